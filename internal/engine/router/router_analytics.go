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
	"github.com/gofiber/fiber/v2"

	"github.com/sitepulse/sitepulse/pkg/http"
)

func (rt *Router) analyticsRouter(r fiber.Router, authMiddleware fiber.Handler) {
	analytics := r.Group("/analytics")
	{
		analytics.Get("/", authMiddleware, rt.getAnalytics)
		analytics.Get("/history", authMiddleware, rt.getAnalyticsHistory)
	}
}

func (rt *Router) getAnalytics(c *fiber.Ctx) error {
	snapshot, err := rt.Services.Analytics.Aggregate(c.Context())
	if err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, snapshot)
}

func (rt *Router) getAnalyticsHistory(c *fiber.Ctx) error {
	limit := rt.Http.QueryInt(c, "limit")
	if limit <= 0 {
		limit = 20
	}
	history, err := rt.Services.Analytics.History(c.Context(), limit)
	if err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, fiber.Map{"list": history, "total": len(history)})
}
