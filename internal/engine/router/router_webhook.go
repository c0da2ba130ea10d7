// Copyright 2025 SitePulse Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/pkg/http"
)

func (rt *Router) webhookRouter(r fiber.Router, authMiddleware fiber.Handler) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.Post("/", authMiddleware, rt.recordWebhook)
	}
}

func (rt *Router) recordWebhook(c *fiber.Ctx) error {
	var req struct {
		RunId          string              `json:"runId"`
		Source         string              `json:"source"`
		Destination    string              `json:"destination"`
		Payload        map[string]any      `json:"payload"`
		Response       map[string]any      `json:"response"`
		StatusCode     int                 `json:"statusCode"`
		Timing         model.WebhookTiming `json:"timing"`
		Authentication string              `json:"authentication"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}

	webhookId, err := rt.Services.Orchestrator.RecordWebhook(c.Context(), &model.WebhookRecord{
		RunId:          strings.TrimSpace(req.RunId),
		Source:         strings.TrimSpace(req.Source),
		Destination:    strings.TrimSpace(req.Destination),
		Payload:        req.Payload,
		Response:       req.Response,
		StatusCode:     req.StatusCode,
		Timing:         req.Timing,
		Authentication: strings.TrimSpace(req.Authentication),
	})
	if err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, fiber.Map{"webhookId": webhookId})
}
