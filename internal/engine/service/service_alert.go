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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/internal/engine/repo"
	"github.com/sitepulse/sitepulse/internal/pkg/notify"
	"github.com/sitepulse/sitepulse/internal/pkg/notify/channel"
	"github.com/sitepulse/sitepulse/pkg/log"
	"github.com/sitepulse/sitepulse/pkg/metrics"
)

// severityTaxonomy is the fixed severity per built-in alert type, unless
// overridden through persisted settings.
var severityTaxonomy = map[string]string{
	model.AlertTypePipelineFailure:    model.SeverityCritical,
	model.AlertTypeSlowPipeline:       model.SeverityWarning,
	model.AlertTypeStageFailure:       model.SeverityCritical,
	model.AlertTypeWebhookAuthFailure: model.SeverityCritical,
	model.AlertTypeWebhookBadResponse: model.SeverityWarning,
	model.AlertTypeHighErrorRate:      model.SeverityWarning,
	model.AlertTypeWebhookSlow:        model.SeverityWarning,
}

// compiledRule is one user-defined rule with its compiled expression.
type compiledRule struct {
	name     string
	severity string
	program  *vm.Program
}

// windowState tracks the cooldown window for one live signature.
type windowState struct {
	alert       *model.Alert
	windowStart time.Time
}

// AlertManager evaluates rules against runs and webhook records,
// deduplicates firings by signature+cooldown and drives the alert
// lifecycle. One instance owns all alert state.
type AlertManager struct {
	alertRepo  repo.IAlertRepository
	dispatcher *notify.Dispatcher
	metrics    *metrics.Engine
	defaults   config.AlertsConfig
	rules      []compiledRule
	now        func() time.Time

	mu       sync.Mutex
	active   map[string]*windowState
	settings *model.AlertSettings // persisted overrides, loaded lazily
}

func NewAlertManager(alertRepo repo.IAlertRepository, dispatcher *notify.Dispatcher, engineMetrics *metrics.Engine, conf config.AlertsConfig) *AlertManager {
	m := &AlertManager{
		alertRepo:  alertRepo,
		dispatcher: dispatcher,
		metrics:    engineMetrics,
		defaults:   conf,
		now:        time.Now,
		active:     make(map[string]*windowState),
	}
	for _, rule := range conf.Rules {
		program, err := expr.Compile(rule.When, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			log.Errorw("compile alert rule failed, rule skipped", "rule", rule.Name, "error", err)
			continue
		}
		severity := rule.Severity
		if severity == "" {
			severity = model.SeverityWarning
		}
		m.rules = append(m.rules, compiledRule{name: rule.Name, severity: severity, program: program})
	}
	return m
}

// CheckAlerts evaluates the pipeline rule set against one run and returns
// every alert that fired, new or re-fired. Notification suppression by
// cooldown happens inside; the returned alerts always reflect the
// persisted state after the firing.
func (m *AlertManager) CheckAlerts(ctx context.Context, run *model.PipelineRun) []*model.Alert {
	thresholds := m.effectiveThresholds(ctx)
	var fired []*model.Alert

	if run.Status == model.RunStatusFailed || run.Status == model.RunStatusTimeout {
		if a := m.fire(ctx, model.AlertTypePipelineFailure, map[string]any{
			"runId":   run.RunId,
			"trigger": run.Trigger.Type,
			"status":  run.Status,
		}, fmt.Sprintf("pipeline run %s ended with status %s", run.RunId, run.Status)); a != nil {
			fired = append(fired, a)
		}
	}

	if run.Duration > 0 && run.Duration > thresholds.SlowPipelineMs {
		if a := m.fire(ctx, model.AlertTypeSlowPipeline, map[string]any{
			"runId":       run.RunId,
			"duration":    run.Duration,
			"thresholdMs": thresholds.SlowPipelineMs,
		}, fmt.Sprintf("pipeline run %s took %dms", run.RunId, run.Duration)); a != nil {
			fired = append(fired, a)
		}
	}

	for i := range run.Stages {
		stage := &run.Stages[i]
		if stage.Status != model.StageStatusFailed {
			continue
		}
		if a := m.fire(ctx, model.AlertTypeStageFailure, map[string]any{
			"runId": run.RunId,
			"stage": stage.Name,
		}, fmt.Sprintf("stage %s failed in run %s", stage.Name, run.RunId)); a != nil {
			fired = append(fired, a)
		}
	}

	if run.Metrics != nil && run.Metrics.ErrorRate > thresholds.ErrorRatePct {
		if a := m.fire(ctx, model.AlertTypeHighErrorRate, map[string]any{
			"runId":        run.RunId,
			"errorRate":    run.Metrics.ErrorRate,
			"thresholdPct": thresholds.ErrorRatePct,
		}, fmt.Sprintf("error rate %.2f%% in run %s", run.Metrics.ErrorRate, run.RunId)); a != nil {
			fired = append(fired, a)
		}
	}

	fired = append(fired, m.checkCustomRules(ctx, run)...)
	return fired
}

// checkCustomRules evaluates the compiled config rules; a rule returning
// true fires an alert under the rule's own name.
func (m *AlertManager) checkCustomRules(ctx context.Context, run *model.PipelineRun) []*model.Alert {
	var fired []*model.Alert
	for _, rule := range m.rules {
		out, err := expr.Run(rule.program, map[string]any{"run": run})
		if err != nil {
			log.Warnw("alert rule evaluation failed", "rule", rule.name, "error", err)
			continue
		}
		hit, ok := out.(bool)
		if !ok || !hit {
			continue
		}
		if a := m.fireWithSeverity(ctx, rule.name, rule.severity, map[string]any{
			"runId": run.RunId,
			"rule":  rule.name,
		}, fmt.Sprintf("rule %s matched run %s", rule.name, run.RunId)); a != nil {
			fired = append(fired, a)
		}
	}
	return fired
}

// CheckWebhookAlerts evaluates webhook-specific rules independently of
// the pipeline rules.
func (m *AlertManager) CheckWebhookAlerts(ctx context.Context, rec *model.WebhookRecord) []*model.Alert {
	thresholds := m.effectiveThresholds(ctx)
	var fired []*model.Alert

	if rec.Authentication == model.WebhookAuthFailed {
		if a := m.fire(ctx, model.AlertTypeWebhookAuthFailure, map[string]any{
			"webhookId": rec.WebhookId,
			"source":    rec.Source,
		}, fmt.Sprintf("webhook %s from %s failed authentication", rec.WebhookId, rec.Source)); a != nil {
			fired = append(fired, a)
		}
	}

	if rec.StatusCode != 0 && (rec.StatusCode < 200 || rec.StatusCode > 299) {
		if a := m.fire(ctx, model.AlertTypeWebhookBadResponse, map[string]any{
			"webhookId":  rec.WebhookId,
			"source":     rec.Source,
			"statusCode": rec.StatusCode,
		}, fmt.Sprintf("webhook %s got status %d", rec.WebhookId, rec.StatusCode)); a != nil {
			fired = append(fired, a)
		}
	}

	if rec.Timing.Sent != nil && rec.Timing.Received != nil {
		latency := rec.Timing.Received.Sub(*rec.Timing.Sent).Milliseconds()
		if latency > thresholds.WebhookLatencyMs {
			if a := m.fire(ctx, model.AlertTypeWebhookSlow, map[string]any{
				"webhookId":   rec.WebhookId,
				"latencyMs":   latency,
				"thresholdMs": thresholds.WebhookLatencyMs,
			}, fmt.Sprintf("webhook %s took %dms", rec.WebhookId, latency)); a != nil {
				fired = append(fired, a)
			}
		}
	}

	return fired
}

func (m *AlertManager) fire(ctx context.Context, alertType string, payload map[string]any, message string) *model.Alert {
	return m.fireWithSeverity(ctx, alertType, m.severityFor(ctx, alertType), payload, message)
}

// fireWithSeverity runs the dedup algorithm for one firing. In-window
// repeats mutate occurrences/lastSeen without re-notifying; a firing past
// the cooldown resets the window and notifies again.
func (m *AlertManager) fireWithSeverity(ctx context.Context, alertType, severity string, payload map[string]any, message string) *model.Alert {
	signature := Signature(alertType, severity, payload)
	now := m.now()
	cooldown := m.cooldownFor(ctx, alertType)

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.active[signature]
	if !ok {
		alert, err := m.alertRepo.Get(ctx, signature)
		if err != nil {
			log.Errorw("load alert failed", "signature", signature, "error", err)
			return nil
		}
		if alert == nil {
			alert = &model.Alert{
				Signature: signature,
				Type:      alertType,
				Severity:  severity,
				FirstSeen: now,
				Payload:   payload,
			}
		}
		state = &windowState{alert: alert}
		m.active[signature] = state
	}

	alert := state.alert
	alert.Occurrences++
	alert.LastSeen = now
	alert.Message = message
	alert.Resolved = false

	inWindow := !state.windowStart.IsZero() && now.Sub(state.windowStart) < cooldown
	if !inWindow {
		state.windowStart = now
	}

	if err := m.alertRepo.Save(ctx, alert); err != nil {
		log.Errorw("persist alert failed", "signature", signature, "error", err)
		return nil
	}

	if inWindow {
		if m.metrics != nil {
			m.metrics.AlertsSuppressed.Inc()
		}
		return alert
	}

	if m.metrics != nil {
		m.metrics.AlertsFired.WithLabelValues(alert.Type, alert.Severity).Inc()
	}
	snapshot := *alert
	m.dispatcher.Go(ctx, channel.EventAlertGenerated, &snapshot)
	return alert
}

// AcknowledgeAlert marks the alert acknowledged and notifies channels
// that opted into lifecycle events.
func (m *AlertManager) AcknowledgeAlert(ctx context.Context, signature, actor, note string) (*model.Alert, error) {
	alert, err := m.alertRepo.Get(ctx, signature)
	if err != nil {
		return nil, NewPersistenceError("get alert", err)
	}
	if alert == nil {
		return nil, NewNotFoundError("alert", signature)
	}

	now := m.now()
	alert.Acknowledged = true
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = actor
	alert.AckNote = note
	if err := m.alertRepo.Save(ctx, alert); err != nil {
		return nil, NewPersistenceError("save alert", err)
	}

	m.syncState(signature, alert)
	snapshot := *alert
	m.dispatcher.Go(ctx, channel.EventAlertAcknowledged, &snapshot)
	return alert, nil
}

// ResolveAlert marks the alert resolved and drops it from the active
// working set. The row stays behind for audit.
func (m *AlertManager) ResolveAlert(ctx context.Context, signature, actor, note string) (*model.Alert, error) {
	alert, err := m.alertRepo.Get(ctx, signature)
	if err != nil {
		return nil, NewPersistenceError("get alert", err)
	}
	if alert == nil {
		return nil, NewNotFoundError("alert", signature)
	}

	now := m.now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	alert.ResolvedBy = actor
	alert.ResolveNote = note
	if err := m.alertRepo.Save(ctx, alert); err != nil {
		return nil, NewPersistenceError("save alert", err)
	}

	m.mu.Lock()
	delete(m.active, signature)
	m.mu.Unlock()

	snapshot := *alert
	m.dispatcher.Go(ctx, channel.EventAlertResolved, &snapshot)
	return alert, nil
}

// ListAlerts returns alerts matching the query, newest activity first.
func (m *AlertManager) ListAlerts(ctx context.Context, query *repo.AlertQuery) ([]*model.Alert, error) {
	alerts, err := m.alertRepo.List(ctx, query)
	if err != nil {
		return nil, NewPersistenceError("list alerts", err)
	}
	return alerts, nil
}

// UpdateThresholds merges a thresholds patch into the persisted settings.
func (m *AlertManager) UpdateThresholds(ctx context.Context, patch model.AlertThresholds) error {
	return m.updateSettings(ctx, func(s *model.AlertSettings) {
		if patch.SlowPipelineMs != 0 {
			s.Thresholds.SlowPipelineMs = patch.SlowPipelineMs
		}
		if patch.ErrorRatePct != 0 {
			s.Thresholds.ErrorRatePct = patch.ErrorRatePct
		}
		if patch.WebhookLatencyMs != 0 {
			s.Thresholds.WebhookLatencyMs = patch.WebhookLatencyMs
		}
	})
}

// UpdateCooldowns merges per-type cooldown overrides, in seconds.
func (m *AlertManager) UpdateCooldowns(ctx context.Context, patch map[string]int) error {
	return m.updateSettings(ctx, func(s *model.AlertSettings) {
		if s.Cooldowns == nil {
			s.Cooldowns = make(map[string]int, len(patch))
		}
		for alertType, seconds := range patch {
			s.Cooldowns[alertType] = seconds
		}
	})
}

// UpdateNotificationSettings merges per-channel settings and pushes the
// result to the dispatcher.
func (m *AlertManager) UpdateNotificationSettings(ctx context.Context, patch model.NotificationSettings) error {
	err := m.updateSettings(ctx, func(s *model.AlertSettings) {
		if s.Notifications.Channels == nil {
			s.Notifications.Channels = make(map[string]model.ChannelSettings, len(patch.Channels))
		}
		for name, settings := range patch.Channels {
			s.Notifications.Channels[name] = settings
		}
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	notifications := m.settings.Notifications
	m.mu.Unlock()
	m.dispatcher.SetSettings(notifications)
	return nil
}

// LoadSettings primes the cache from storage and pushes notification
// settings to the dispatcher. Called once at startup.
func (m *AlertManager) LoadSettings(ctx context.Context) error {
	settings, err := m.loadSettings(ctx)
	if err != nil {
		return err
	}
	m.dispatcher.SetSettings(settings.Notifications)
	return nil
}

// updateSettings applies mutate to the persisted settings under the lock
// and saves in the same step, no separate save call for the caller.
func (m *AlertManager) updateSettings(ctx context.Context, mutate func(*model.AlertSettings)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	settings, err := m.loadSettingsLocked(ctx)
	if err != nil {
		return err
	}
	mutate(settings)
	if err := m.alertRepo.SaveSettings(ctx, settings); err != nil {
		return NewPersistenceError("save alert settings", err)
	}
	m.settings = settings
	return nil
}

func (m *AlertManager) loadSettings(ctx context.Context) (*model.AlertSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadSettingsLocked(ctx)
}

func (m *AlertManager) loadSettingsLocked(ctx context.Context) (*model.AlertSettings, error) {
	if m.settings != nil {
		return m.settings, nil
	}
	settings, err := m.alertRepo.GetSettings(ctx)
	if err != nil {
		return nil, NewPersistenceError("get alert settings", err)
	}
	if settings == nil {
		settings = &model.AlertSettings{}
	}
	m.settings = settings
	return settings, nil
}

// effectiveThresholds resolves persisted overrides over compiled defaults.
func (m *AlertManager) effectiveThresholds(ctx context.Context) model.AlertThresholds {
	out := model.AlertThresholds{
		SlowPipelineMs:   m.defaults.SlowPipelineMs,
		ErrorRatePct:     m.defaults.ErrorRatePct,
		WebhookLatencyMs: m.defaults.WebhookLatencyMs,
	}
	settings, err := m.loadSettings(ctx)
	if err != nil {
		log.Warnw("load alert settings failed, using defaults", "error", err)
		return out
	}
	if settings.Thresholds.SlowPipelineMs != 0 {
		out.SlowPipelineMs = settings.Thresholds.SlowPipelineMs
	}
	if settings.Thresholds.ErrorRatePct != 0 {
		out.ErrorRatePct = settings.Thresholds.ErrorRatePct
	}
	if settings.Thresholds.WebhookLatencyMs != 0 {
		out.WebhookLatencyMs = settings.Thresholds.WebhookLatencyMs
	}
	return out
}

func (m *AlertManager) cooldownFor(ctx context.Context, alertType string) time.Duration {
	seconds := m.defaults.CooldownSeconds
	if settings, err := m.loadSettings(ctx); err == nil {
		if override, ok := settings.Cooldowns[alertType]; ok && override > 0 {
			seconds = override
		}
	}
	return time.Duration(seconds) * time.Second
}

func (m *AlertManager) severityFor(ctx context.Context, alertType string) string {
	if settings, err := m.loadSettings(ctx); err == nil {
		if override, ok := settings.Severities[alertType]; ok && override != "" {
			return override
		}
	}
	if severity, ok := severityTaxonomy[alertType]; ok {
		return severity
	}
	return model.SeverityInfo
}

// syncState refreshes the cached copy for a signature if it is live.
func (m *AlertManager) syncState(signature string, alert *model.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.active[signature]; ok {
		state.alert = alert
	}
}

// Signature derives the dedup key from type, severity and a stable
// fingerprint of the payload. Same inputs always hash the same.
func Signature(alertType, severity string, payload map[string]any) string {
	sum := sha256.Sum256([]byte(alertType + "|" + severity + "|" + stableFingerprint(payload)))
	return hex.EncodeToString(sum[:])
}

// stableFingerprint renders the payload with sorted keys so map iteration
// order never changes the signature.
func stableFingerprint(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", k, payload[k])
	}
	return b.String()
}
