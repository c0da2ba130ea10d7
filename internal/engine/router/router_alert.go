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
	"github.com/sitepulse/sitepulse/internal/engine/repo"
	"github.com/sitepulse/sitepulse/pkg/http"
)

func (rt *Router) alertRouter(r fiber.Router, authMiddleware fiber.Handler) {
	alerts := r.Group("/alerts")
	{
		alerts.Get("/", authMiddleware, rt.listAlerts)
		alerts.Post("/:signature/ack", authMiddleware, rt.acknowledgeAlert)
		alerts.Post("/:signature/resolve", authMiddleware, rt.resolveAlert)

		alerts.Put("/settings/thresholds", authMiddleware, rt.updateThresholds)
		alerts.Put("/settings/cooldowns", authMiddleware, rt.updateCooldowns)
		alerts.Put("/settings/notifications", authMiddleware, rt.updateNotifications)
	}
}

func (rt *Router) listAlerts(c *fiber.Ctx) error {
	query := &repo.AlertQuery{
		Type:       strings.TrimSpace(c.Query("type")),
		Severity:   strings.TrimSpace(c.Query("severity")),
		ActiveOnly: c.QueryBool("active"),
		Limit:      rt.Http.QueryInt(c, "limit"),
	}
	list, err := rt.Services.Alerts.ListAlerts(c.Context(), query)
	if err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, fiber.Map{"list": list, "total": len(list)})
}

type alertActionReq struct {
	Actor string `json:"actor"`
	Note  string `json:"note"`
}

func (rt *Router) acknowledgeAlert(c *fiber.Ctx) error {
	signature := strings.TrimSpace(c.Params("signature"))
	if signature == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "alert signature is required", c.Path())
	}
	var req alertActionReq
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	alert, err := rt.Services.Alerts.AcknowledgeAlert(c.Context(), signature, req.Actor, req.Note)
	if err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, alert)
}

func (rt *Router) resolveAlert(c *fiber.Ctx) error {
	signature := strings.TrimSpace(c.Params("signature"))
	if signature == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "alert signature is required", c.Path())
	}
	var req alertActionReq
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	alert, err := rt.Services.Alerts.ResolveAlert(c.Context(), signature, req.Actor, req.Note)
	if err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, alert)
}

func (rt *Router) updateThresholds(c *fiber.Ctx) error {
	var req model.AlertThresholds
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if err := rt.Services.Alerts.UpdateThresholds(c.Context(), req); err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, nil)
}

func (rt *Router) updateCooldowns(c *fiber.Ctx) error {
	var req map[string]int
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if err := rt.Services.Alerts.UpdateCooldowns(c.Context(), req); err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, nil)
}

func (rt *Router) updateNotifications(c *fiber.Ctx) error {
	var req model.NotificationSettings
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if err := rt.Services.Alerts.UpdateNotificationSettings(c.Context(), req); err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, nil)
}
