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
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/pkg/http"
)

func (rt *Router) runRouter(r fiber.Router, authMiddleware fiber.Handler) {
	runs := r.Group("/runs")
	{
		runs.Post("/", authMiddleware, rt.createRun)
		runs.Get("/", authMiddleware, rt.listRuns)
		runs.Get("/:runId", authMiddleware, rt.getRun)
		runs.Get("/:runId/report", authMiddleware, rt.getRunReport)

		runs.Post("/:runId/stages", authMiddleware, rt.updateStage)
		runs.Post("/:runId/errors", authMiddleware, rt.addError)
		runs.Post("/:runId/complete", authMiddleware, rt.completeRun)
	}
}

func (rt *Router) createRun(c *fiber.Ctx) error {
	var req struct {
		Type     string         `json:"type"`
		Source   string         `json:"source"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}

	runId, err := rt.Services.Orchestrator.CreateRun(c.Context(), model.TriggerEvent{
		Type:      strings.TrimSpace(req.Type),
		Source:    strings.TrimSpace(req.Source),
		Timestamp: time.Now(),
		Metadata:  req.Metadata,
	})
	if err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, fiber.Map{"runId": runId})
}

func (rt *Router) listRuns(c *fiber.Ctx) error {
	limit := rt.Http.QueryInt(c, "limit")
	if limit <= 0 {
		limit = 20
	}
	runs, err := rt.Services.Orchestrator.GetRecentRuns(c.Context(), limit)
	if err != nil {
		return respondErr(c, err)
	}
	summaries := make([]*model.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, run.Summary())
	}
	return http.WithRepMsg(c, fiber.Map{"list": summaries, "total": len(summaries)})
}

func (rt *Router) getRun(c *fiber.Ctx) error {
	runId := strings.TrimSpace(c.Params("runId"))
	if runId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "run id is required", c.Path())
	}
	run, err := rt.Services.Orchestrator.GetRun(c.Context(), runId)
	if err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, run)
}

func (rt *Router) getRunReport(c *fiber.Ctx) error {
	runId := strings.TrimSpace(c.Params("runId"))
	if runId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "run id is required", c.Path())
	}
	report, err := rt.Services.Orchestrator.GenerateReport(c.Context(), runId)
	if err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, report)
}

func (rt *Router) updateStage(c *fiber.Ctx) error {
	runId := strings.TrimSpace(c.Params("runId"))
	if runId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "run id is required", c.Path())
	}
	var req struct {
		Name   string         `json:"name"`
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if err := rt.Services.Orchestrator.UpdateStage(c.Context(), runId, strings.TrimSpace(req.Name), strings.TrimSpace(req.Status), req.Data); err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, nil)
}

func (rt *Router) addError(c *fiber.Ctx) error {
	runId := strings.TrimSpace(c.Params("runId"))
	if runId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "run id is required", c.Path())
	}
	var req struct {
		Stage   string         `json:"stage"`
		Type    string         `json:"type"`
		Message string         `json:"message"`
		Context map[string]any `json:"context"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if err := rt.Services.Orchestrator.AddError(c.Context(), runId, req.Stage, req.Type, req.Message, req.Context); err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, nil)
}

func (rt *Router) completeRun(c *fiber.Ctx) error {
	runId := strings.TrimSpace(c.Params("runId"))
	if runId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "run id is required", c.Path())
	}
	var req struct {
		Success bool                      `json:"success"`
		Metrics *model.PerformanceMetrics `json:"metrics"`
	}
	if err := c.BodyParser(&req); err != nil {
		return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
	}
	if err := rt.Services.Orchestrator.CompleteRun(c.Context(), runId, req.Success, req.Metrics); err != nil {
		return respondErr(c, err)
	}
	return http.WithRepMsg(c, nil)
}
