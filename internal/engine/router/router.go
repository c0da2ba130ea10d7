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
	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/wire"

	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/service"
	"github.com/sitepulse/sitepulse/pkg/http"
	"github.com/sitepulse/sitepulse/pkg/http/middleware"
	"github.com/sitepulse/sitepulse/pkg/shutdown"
	"github.com/sitepulse/sitepulse/pkg/ws"
)

// ProviderSet 提供路由层相关的依赖
var ProviderSet = wire.NewSet(NewRouter)

type Router struct {
	AppConf     *config.AppConfig
	Http        *http.Http
	Services    *service.Services
	Hub         ws.Hub
	ShutdownMgr *shutdown.Manager
}

// NewRouter creates the HTTP router.
func NewRouter(appConf *config.AppConfig, services *service.Services, hub ws.Hub, shutdownMgr *shutdown.Manager) *Router {
	return &Router{
		AppConf:     appConf,
		Http:        &appConf.Http,
		Services:    services,
		Hub:         hub,
		ShutdownMgr: shutdownMgr,
	}
}

// Router builds the fiber app and registers all routes.
func (rt *Router) Router() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "sitepulse",
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(middleware.CorsMiddleware())
	app.Use(middleware.AccessLogMiddleware())
	app.Use(middleware.HttpMetricsMiddleware())

	app.Get("/healthz", rt.health)

	auth := rt.Http.AuthMiddleware()

	v1 := app.Group("/api/v1")
	rt.runRouter(v1, auth)
	rt.alertRouter(v1, auth)
	rt.analyticsRouter(v1, auth)
	rt.webhookRouter(v1, auth)
	rt.wsRouter(v1, auth)

	return app
}

func (rt *Router) health(c *fiber.Ctx) error {
	if rt.ShutdownMgr != nil && rt.ShutdownMgr.ShuttingDown() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "shutting_down"})
	}
	return c.JSON(fiber.Map{
		"status":     "ok",
		"activeRuns": rt.Services.Orchestrator.ActiveCount(),
	})
}

// respondErr maps service error types onto the response envelope.
func respondErr(c *fiber.Ctx, err error) error {
	switch {
	case service.IsValidation(err):
		return http.WithRepErrMsg(c, http.BadRequest.Code, err.Error(), c.Path())
	case service.IsNotFound(err):
		return http.WithRepErrMsg(c, http.NotFound.Code, err.Error(), c.Path())
	default:
		return http.WithRepErrMsg(c, http.Failed.Code, err.Error(), c.Path())
	}
}
