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

package service

import (
	"context"
	"testing"
	"time"

	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/internal/engine/repo"
	"github.com/sitepulse/sitepulse/internal/pkg/notify"
	"github.com/sitepulse/sitepulse/internal/pkg/notify/channel"
)

func failureFixture() *model.PipelineRun {
	start := time.Now().Add(-time.Minute)
	end := time.Now()
	return &model.PipelineRun{
		RunId:  "01TESTFAILEDRUN00000000000",
		Status: model.RunStatusFailed,
		Trigger: model.TriggerEvent{
			Type:   model.TriggerTypeGit,
			Source: "repo:main",
		},
		StartTime: start,
		EndTime:   &end,
		Duration:  end.Sub(start).Milliseconds(),
		Stages: []model.PipelineStage{
			{Name: "build", Status: model.StageStatusCompleted},
			{Name: "deploy", Status: model.StageStatusFailed},
		},
	}
}

func TestFailureFixtureSeverities(t *testing.T) {
	s := newStack(t)
	fired := s.services.Alerts.CheckAlerts(context.Background(), failureFixture())

	bySeverity := make(map[string]string, len(fired))
	for _, a := range fired {
		bySeverity[a.Type] = a.Severity
	}
	if got, ok := bySeverity[model.AlertTypePipelineFailure]; !ok || got != model.SeverityCritical {
		t.Fatalf("pipeline_failure severity = %q, want critical (fired: %v)", got, bySeverity)
	}
	if got, ok := bySeverity[model.AlertTypeStageFailure]; !ok || got != model.SeverityCritical {
		t.Fatalf("stage_failure severity = %q, want critical (fired: %v)", got, bySeverity)
	}
}

func TestCooldownDedup(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	m := s.services.Alerts

	base := time.Now()
	current := base
	m.now = func() time.Time { return current }

	run := failureFixture()
	first := m.CheckAlerts(ctx, run)
	if len(first) == 0 {
		t.Fatal("no alerts fired")
	}
	waitFor(t, time.Second, func() bool {
		return s.channel.count(channel.EventAlertGenerated) == len(first)
	})

	// Same signatures again, inside the window.
	current = base.Add(time.Minute)
	second := m.CheckAlerts(ctx, run)
	if len(second) != len(first) {
		t.Fatalf("re-fire should return the same alerts, got %d want %d", len(second), len(first))
	}
	for _, a := range second {
		if a.Occurrences != 2 {
			t.Fatalf("alert %s occurrences = %d, want 2", a.Type, a.Occurrences)
		}
	}
	// Suppressed: notification count unchanged.
	time.Sleep(50 * time.Millisecond)
	if got := s.channel.count(channel.EventAlertGenerated); got != len(first) {
		t.Fatalf("in-window re-fire dispatched: got %d notifications, want %d", got, len(first))
	}

	// Past the cooldown the same signature notifies again.
	current = base.Add(6 * time.Minute)
	third := m.CheckAlerts(ctx, run)
	for _, a := range third {
		if a.Occurrences != 3 {
			t.Fatalf("alert %s occurrences = %d, want 3", a.Type, a.Occurrences)
		}
	}
	waitFor(t, time.Second, func() bool {
		return s.channel.count(channel.EventAlertGenerated) == 2*len(first)
	})

	// Durable across the burst: the rows persisted every mutation.
	stored, err := s.repos.Alert.List(ctx, &repo.AlertQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(first) {
		t.Fatalf("expected %d alert rows, got %d", len(first), len(stored))
	}
}

func TestCooldownOverridePerType(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	m := s.services.Alerts

	if err := m.UpdateCooldowns(ctx, map[string]int{model.AlertTypePipelineFailure: 1}); err != nil {
		t.Fatal(err)
	}

	base := time.Now()
	current := base
	m.now = func() time.Time { return current }

	run := failureFixture()
	run.Stages = nil // only pipeline_failure fires
	m.CheckAlerts(ctx, run)
	waitFor(t, time.Second, func() bool {
		return s.channel.count(channel.EventAlertGenerated) == 1
	})

	// 2s is inside the default window but past the 1s override.
	current = base.Add(2 * time.Second)
	m.CheckAlerts(ctx, run)
	waitFor(t, time.Second, func() bool {
		return s.channel.count(channel.EventAlertGenerated) == 2
	})
}

func TestAcknowledgeResolveLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	m := s.services.Alerts

	// Lifecycle events only reach channels that opted in.
	if err := m.UpdateNotificationSettings(ctx, model.NotificationSettings{
		Channels: map[string]model.ChannelSettings{
			"recording": {Name: "recording", Enabled: true, NotifyOnLifecycle: true},
		},
	}); err != nil {
		t.Fatal(err)
	}

	run := failureFixture()
	run.Stages = nil
	fired := m.CheckAlerts(ctx, run)
	if len(fired) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(fired))
	}
	signature := fired[0].Signature

	if _, err := m.AcknowledgeAlert(ctx, "bogus", "ops", ""); !IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	acked, err := m.AcknowledgeAlert(ctx, signature, "ops", "looking into it")
	if err != nil {
		t.Fatal(err)
	}
	if !acked.Acknowledged || acked.AcknowledgedAt == nil || acked.AcknowledgedBy != "ops" {
		t.Fatalf("acknowledge did not record metadata: %+v", acked)
	}
	waitFor(t, time.Second, func() bool {
		return s.channel.count(channel.EventAlertAcknowledged) == 1
	})

	resolved, err := m.ResolveAlert(ctx, signature, "ops", "fixed the cdn")
	if err != nil {
		t.Fatal(err)
	}
	if !resolved.Resolved || resolved.ResolvedAt == nil {
		t.Fatalf("resolve did not record metadata: %+v", resolved)
	}
	waitFor(t, time.Second, func() bool {
		return s.channel.count(channel.EventAlertResolved) == 1
	})

	// The row stays behind for audit.
	row, err := s.repos.Alert.Get(ctx, signature)
	if err != nil {
		t.Fatal(err)
	}
	if row == nil || !row.Resolved {
		t.Fatal("resolved alert row should persist")
	}

	// Resolution dropped the signature from the working set, so the next
	// firing notifies immediately.
	before := s.channel.count(channel.EventAlertGenerated)
	m.CheckAlerts(ctx, run)
	waitFor(t, time.Second, func() bool {
		return s.channel.count(channel.EventAlertGenerated) == before+1
	})
}

func TestThresholdPrecedence(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	m := s.services.Alerts

	// Compiled default: 5 minutes. This run is under it.
	run := failureFixture()
	run.Status = model.RunStatusCompleted
	run.Success = true
	run.Stages = nil
	run.Duration = 60 * 1000

	if fired := m.CheckAlerts(ctx, run); len(fired) != 0 {
		t.Fatalf("no alert expected under the default threshold, got %d", len(fired))
	}

	// Persisted override beats the compiled default.
	if err := m.UpdateThresholds(ctx, model.AlertThresholds{SlowPipelineMs: 30 * 1000}); err != nil {
		t.Fatal(err)
	}
	fired := m.CheckAlerts(ctx, run)
	if len(fired) != 1 || fired[0].Type != model.AlertTypeSlowPipeline {
		t.Fatalf("expected slow_pipeline under the override, got %v", fired)
	}
	if fired[0].Severity != model.SeverityWarning {
		t.Fatalf("slow_pipeline severity = %s, want warning", fired[0].Severity)
	}

	// Overrides survive a restart through the settings row.
	fresh := NewAlertManager(s.repos.Alert, notify.NewDispatcher(), nil, func() config.AlertsConfig {
		c := config.AlertsConfig{}
		c.SetDefaults()
		return c
	}())
	if got := fresh.effectiveThresholds(ctx).SlowPipelineMs; got != 30*1000 {
		t.Fatalf("persisted threshold not reloaded, got %d", got)
	}
}

func TestWebhookAlerts(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	m := s.services.Alerts

	authFailed := &model.WebhookRecord{
		WebhookId:      "wh-auth",
		Source:         "github",
		Authentication: model.WebhookAuthFailed,
	}
	fired := m.CheckWebhookAlerts(ctx, authFailed)
	if len(fired) != 1 || fired[0].Type != model.AlertTypeWebhookAuthFailure || fired[0].Severity != model.SeverityCritical {
		t.Fatalf("unexpected auth failure alerts: %v", fired)
	}

	badResponse := &model.WebhookRecord{
		WebhookId:      "wh-bad",
		Source:         "github",
		Authentication: model.WebhookAuthPassed,
		StatusCode:     502,
	}
	fired = m.CheckWebhookAlerts(ctx, badResponse)
	if len(fired) != 1 || fired[0].Type != model.AlertTypeWebhookBadResponse || fired[0].Severity != model.SeverityWarning {
		t.Fatalf("unexpected bad response alerts: %v", fired)
	}

	healthy := &model.WebhookRecord{
		WebhookId:      "wh-ok",
		Source:         "github",
		Authentication: model.WebhookAuthPassed,
		StatusCode:     204,
	}
	if fired = m.CheckWebhookAlerts(ctx, healthy); len(fired) != 0 {
		t.Fatalf("healthy webhook fired alerts: %v", fired)
	}
}

func TestCustomRule(t *testing.T) {
	path := t.TempDir() + "/engine.db"
	repos, err := repo.ProvideRepositories(openServiceTestDB(t, path))
	if err != nil {
		t.Fatal(err)
	}
	conf := config.AlertsConfig{
		Rules: []config.CustomRule{
			{Name: "long_git_run", Severity: model.SeverityInfo, When: `run.Duration > 1000 && run.Trigger.Type == "git"`},
			{Name: "broken_rule", When: `this is not an expression`},
		},
	}
	conf.SetDefaults()
	m := NewAlertManager(repos.Alert, notify.NewDispatcher(), nil, conf)
	if len(m.rules) != 1 {
		t.Fatalf("broken rule should be skipped at compile time, kept %d", len(m.rules))
	}

	run := failureFixture()
	run.Status = model.RunStatusCompleted
	run.Success = true
	run.Stages = nil
	run.Duration = 2000

	fired := m.CheckAlerts(context.Background(), run)
	if len(fired) != 1 || fired[0].Type != "long_git_run" || fired[0].Severity != model.SeverityInfo {
		t.Fatalf("custom rule did not fire as expected: %v", fired)
	}
}

func TestSignatureStability(t *testing.T) {
	payload := map[string]any{"runId": "r1", "stage": "deploy", "attempt": 3}
	a := Signature(model.AlertTypeStageFailure, model.SeverityCritical, payload)
	b := Signature(model.AlertTypeStageFailure, model.SeverityCritical, map[string]any{
		"attempt": 3, "stage": "deploy", "runId": "r1",
	})
	if a != b {
		t.Fatal("signature should be independent of map iteration order")
	}
	if len(a) != 64 {
		t.Fatalf("signature should be a sha256 hex digest, got len %d", len(a))
	}
	c := Signature(model.AlertTypeStageFailure, model.SeverityCritical, map[string]any{
		"runId": "r1", "stage": "build", "attempt": 3,
	})
	if a == c {
		t.Fatal("different payloads must not collide")
	}
}
