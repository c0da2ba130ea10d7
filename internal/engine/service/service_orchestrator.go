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
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/xid"
	"github.com/teris-io/shortid"

	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/internal/engine/repo"
	"github.com/sitepulse/sitepulse/internal/pkg/scheduler"
	"github.com/sitepulse/sitepulse/pkg/log"
	"github.com/sitepulse/sitepulse/pkg/metrics"
	"github.com/sitepulse/sitepulse/pkg/safe"
)

// Broadcaster fans typed events out to subscribed dashboard clients.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// runLocks serializes mutations per run id. Unrelated runs never contend.
type runLocks struct {
	mu    sync.Mutex
	locks map[string]*runLock
}

type runLock struct {
	mu   sync.Mutex
	refs int
}

func newRunLocks() *runLocks {
	return &runLocks{locks: make(map[string]*runLock)}
}

// lock acquires the per-run mutex and returns its release func.
func (r *runLocks) lock(runId string) func() {
	r.mu.Lock()
	l, ok := r.locks[runId]
	if !ok {
		l = &runLock{}
		r.locks[runId] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, runId)
		}
		r.mu.Unlock()
	}
}

// RunReport is the read-only projection handed to external renderers.
type RunReport struct {
	RunId        string                    `json:"runId"`
	Status       string                    `json:"status"`
	Trigger      model.TriggerEvent        `json:"trigger"`
	StartTime    time.Time                 `json:"startTime"`
	EndTime      *time.Time                `json:"endTime,omitempty"`
	Duration     int64                     `json:"duration,omitempty"`
	Success      bool                      `json:"success"`
	Stages       []model.PipelineStage     `json:"stages"`
	Errors       []model.ErrorRecord       `json:"errors"`
	WebhookCount int64                     `json:"webhookCount"`
	Metrics      *model.PerformanceMetrics `json:"metrics,omitempty"`
	GeneratedAt  time.Time                 `json:"generatedAt"`
}

// Orchestrator owns the active-run set and the stage state machine.
// Persistence is the authoritative store; the in-memory map is a cache
// dropped on completion and never repopulated wholesale at startup;
// reads for unknown ids fall through to storage.
type Orchestrator struct {
	runRepo     repo.IRunRepository
	webhookRepo repo.IWebhookRepository
	alerts      *AlertManager
	analytics   *AnalyticsEngine
	broadcaster Broadcaster
	metrics     *metrics.Engine
	conf        config.EngineConfig
	now         func() time.Time

	mu     sync.RWMutex
	active map[string]*model.PipelineRun
	locks  *runLocks
}

func NewOrchestrator(
	runRepo repo.IRunRepository,
	webhookRepo repo.IWebhookRepository,
	alerts *AlertManager,
	analytics *AnalyticsEngine,
	broadcaster Broadcaster,
	engineMetrics *metrics.Engine,
	conf config.EngineConfig,
) *Orchestrator {
	return &Orchestrator{
		runRepo:     runRepo,
		webhookRepo: webhookRepo,
		alerts:      alerts,
		analytics:   analytics,
		broadcaster: broadcaster,
		metrics:     engineMetrics,
		conf:        conf,
		now:         time.Now,
		active:      make(map[string]*model.PipelineRun),
		locks:       newRunLocks(),
	}
}

var validTriggerTypes = map[string]struct{}{
	model.TriggerTypeManual:    {},
	model.TriggerTypeGit:       {},
	model.TriggerTypeWebhook:   {},
	model.TriggerTypeScheduled: {},
}

// CreateRun validates the trigger, opens a run in running state with a
// time-sortable id, persists it and announces it.
func (o *Orchestrator) CreateRun(ctx context.Context, trigger model.TriggerEvent) (string, error) {
	if _, ok := validTriggerTypes[trigger.Type]; !ok {
		return "", NewValidationError("trigger.type", "must be one of manual|git|webhook|scheduled")
	}
	if trigger.Source == "" {
		return "", NewValidationError("trigger.source", "cannot be empty")
	}
	now := o.now()
	if trigger.Timestamp.IsZero() {
		trigger.Timestamp = now
	}

	run := &model.PipelineRun{
		RunId:     ulid.Make().String(),
		Trigger:   trigger,
		Status:    model.RunStatusRunning,
		StartTime: now,
		Stages:    []model.PipelineStage{},
		Errors:    []model.ErrorRecord{},
	}
	if err := o.runRepo.Save(ctx, run); err != nil {
		return "", NewPersistenceError("save run", err)
	}

	o.mu.Lock()
	o.active[run.RunId] = run
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RunsStarted.Inc()
	}
	log.Infow("pipeline run created", "run", run.RunId, "trigger", trigger.Type, "source", trigger.Source)
	o.announce(EventPipelineStarted, run.Summary())
	return run.RunId, nil
}

// UpdateStage applies one stage transition. The first mention of a stage
// name creates the stage. The whole run is persisted before the stage
// health check fires.
func (o *Orchestrator) UpdateStage(ctx context.Context, runId, stageName, status string, data map[string]any) error {
	if stageName == "" {
		return NewValidationError("stage", "cannot be empty")
	}
	switch status {
	case model.StageStatusPending, model.StageStatusRunning, model.StageStatusCompleted, model.StageStatusFailed:
	default:
		return NewValidationError("status", "unknown stage status "+status)
	}

	unlock := o.locks.lock(runId)
	defer unlock()

	run, err := o.resolve(ctx, runId)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return NewValidationError("run", "run "+runId+" is already "+run.Status)
	}

	now := o.now()
	stage := run.FindStage(stageName)
	if stage == nil {
		run.Stages = append(run.Stages, model.PipelineStage{Name: stageName, Status: model.StageStatusPending})
		stage = &run.Stages[len(run.Stages)-1]
	}

	stage.Status = status
	switch status {
	case model.StageStatusRunning:
		if stage.StartTime == nil {
			stage.StartTime = &now
		}
	case model.StageStatusCompleted, model.StageStatusFailed:
		if stage.StartTime == nil {
			stage.StartTime = &now
		}
		stage.EndTime = &now
		stage.Duration = now.Sub(*stage.StartTime).Milliseconds()
	}
	if len(data) > 0 {
		if stage.Data == nil {
			stage.Data = make(map[string]any, len(data))
		}
		for k, v := range data {
			stage.Data[k] = v
		}
	}

	if err := o.runRepo.Save(ctx, run); err != nil {
		return NewPersistenceError("save run", err)
	}
	if status == model.StageStatusFailed {
		o.alerts.CheckAlerts(ctx, run)
	}
	return nil
}

// AddError appends an error record to the run and persists.
func (o *Orchestrator) AddError(ctx context.Context, runId, stage, errType, message string, errCtx map[string]any) error {
	unlock := o.locks.lock(runId)
	defer unlock()

	run, err := o.resolve(ctx, runId)
	if err != nil {
		return err
	}

	run.Errors = append(run.Errors, model.ErrorRecord{
		Id:        shortid.MustGenerate(),
		Stage:     stage,
		Type:      errType,
		Message:   message,
		Timestamp: o.now(),
		Context:   errCtx,
	})
	if s := run.FindStage(stage); s != nil {
		s.Errors = append(s.Errors, message)
	}

	if err := o.runRepo.Save(ctx, run); err != nil {
		return NewPersistenceError("save run", err)
	}
	return nil
}

// CompleteRun moves the run to its terminal status, stores metrics,
// drops it from the active set and kicks off the post-completion side
// effects. A run with a failed stage can never complete successfully.
func (o *Orchestrator) CompleteRun(ctx context.Context, runId string, success bool, perf *model.PerformanceMetrics) error {
	unlock := o.locks.lock(runId)
	defer unlock()

	run, err := o.resolve(ctx, runId)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return NewValidationError("run", "run "+runId+" is already "+run.Status)
	}

	for i := range run.Stages {
		if run.Stages[i].Status == model.StageStatusFailed {
			success = false
			break
		}
	}

	now := o.now()
	run.EndTime = &now
	run.Duration = now.Sub(run.StartTime).Milliseconds()
	run.Success = success
	if success {
		run.Status = model.RunStatusCompleted
	} else {
		run.Status = model.RunStatusFailed
	}
	run.Metrics = perf

	if err := o.runRepo.Save(ctx, run); err != nil {
		return NewPersistenceError("save run", err)
	}
	if perf != nil {
		if err := o.runRepo.SaveMetrics(ctx, &model.RunMetrics{
			RunId:      run.RunId,
			Metrics:    *perf,
			RecordedAt: now,
		}); err != nil {
			log.Errorw("save run metrics failed", "run", run.RunId, "error", err)
		}
	}

	o.mu.Lock()
	delete(o.active, runId)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RunsCompleted.WithLabelValues(run.Status).Inc()
	}
	log.Infow("pipeline run completed", "run", run.RunId, "status", run.Status, "duration", run.Duration)

	o.alerts.CheckAlerts(ctx, run)
	if _, err := o.analytics.UpdateAfterRun(ctx, run); err != nil {
		log.Errorw("analytics update failed", "run", run.RunId, "error", err)
	}
	o.announce(EventPipelineCompleted, run.Summary())
	return nil
}

// GenerateReport assembles the projection for one run, active or
// historical.
func (o *Orchestrator) GenerateReport(ctx context.Context, runId string) (*RunReport, error) {
	run, err := o.lookup(ctx, runId)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, NewNotFoundError("run", runId)
	}

	webhookCount, err := o.webhookRepo.CountByRun(ctx, runId)
	if err != nil {
		return nil, NewPersistenceError("count webhooks", err)
	}
	return &RunReport{
		RunId:        run.RunId,
		Status:       run.Status,
		Trigger:      run.Trigger,
		StartTime:    run.StartTime,
		EndTime:      run.EndTime,
		Duration:     run.Duration,
		Success:      run.Success,
		Stages:       run.Stages,
		Errors:       run.Errors,
		WebhookCount: webhookCount,
		Metrics:      run.Metrics,
		GeneratedAt:  o.now(),
	}, nil
}

// GetRun returns one run by id, active or historical; nil when unknown.
func (o *Orchestrator) GetRun(ctx context.Context, runId string) (*model.PipelineRun, error) {
	return o.lookup(ctx, runId)
}

// GetRecentRuns returns the most recent runs, newest first.
func (o *Orchestrator) GetRecentRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error) {
	runs, err := o.runRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, NewPersistenceError("list recent runs", err)
	}
	return runs, nil
}

// RecordWebhook persists an ingested webhook record and evaluates the
// webhook alert rules against it.
func (o *Orchestrator) RecordWebhook(ctx context.Context, rec *model.WebhookRecord) (string, error) {
	if rec.Source == "" {
		return "", NewValidationError("source", "cannot be empty")
	}
	if rec.WebhookId == "" {
		rec.WebhookId = xid.New().String()
	}
	if rec.Authentication == "" {
		rec.Authentication = model.WebhookAuthNone
	}
	if err := o.webhookRepo.Save(ctx, rec); err != nil {
		return "", NewPersistenceError("save webhook record", err)
	}
	o.alerts.CheckWebhookAlerts(ctx, rec)
	return rec.WebhookId, nil
}

// Status implements StatusProvider for get_status requests.
func (o *Orchestrator) Status(ctx context.Context) (any, error) {
	o.mu.RLock()
	activeCount := len(o.active)
	o.mu.RUnlock()

	recent, err := o.runRepo.ListRecent(ctx, 5)
	if err != nil {
		return nil, NewPersistenceError("list recent runs", err)
	}
	summaries := make([]*model.RunSummary, 0, len(recent))
	for _, run := range recent {
		summaries = append(summaries, run.Summary())
	}
	return map[string]any{
		"activeRuns": activeCount,
		"recentRuns": summaries,
		"timestamp":  o.now(),
	}, nil
}

// StartTimeoutSweep registers the timeout sweep with the scheduler. Runs
// with no stage activity past the configured deadline are forced to
// timeout status.
func (o *Orchestrator) StartTimeoutSweep(sched *scheduler.Scheduler) {
	if o.conf.RunTimeoutMinutes <= 0 {
		return
	}
	interval := time.Duration(o.conf.SweepIntervalSeconds) * time.Second
	sched.Register("run_timeout_sweep", interval, false, func(ctx context.Context) error {
		return o.SweepTimeouts(ctx)
	})
}

// SweepTimeouts scans storage for stalled running runs, covering runs
// recovered from a previous process as well as live ones.
func (o *Orchestrator) SweepTimeouts(ctx context.Context) error {
	deadline := time.Duration(o.conf.RunTimeoutMinutes) * time.Minute
	stale, err := o.runRepo.ListActive(ctx)
	if err != nil {
		return NewPersistenceError("list active runs", err)
	}

	now := o.now()
	for _, candidate := range stale {
		if now.Sub(candidate.LastActivity()) < deadline {
			continue
		}
		if err := o.timeoutRun(ctx, candidate.RunId); err != nil {
			log.Errorw("timeout run failed", "run", candidate.RunId, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) timeoutRun(ctx context.Context, runId string) error {
	unlock := o.locks.lock(runId)
	defer unlock()

	run, err := o.resolve(ctx, runId)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}

	now := o.now()
	run.Status = model.RunStatusTimeout
	run.EndTime = &now
	run.Duration = now.Sub(run.StartTime).Milliseconds()
	run.Success = false
	if err := o.runRepo.Save(ctx, run); err != nil {
		return NewPersistenceError("save run", err)
	}

	o.mu.Lock()
	delete(o.active, runId)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RunsCompleted.WithLabelValues(run.Status).Inc()
	}
	log.Warnw("pipeline run timed out", "run", run.RunId, "lastActivity", run.LastActivity())

	o.alerts.CheckAlerts(ctx, run)
	o.announce(EventPipelineCompleted, run.Summary())
	return nil
}

// CleanupHistory trims terminal runs and webhook records started before
// the cutoff. Used by the retention job.
func (o *Orchestrator) CleanupHistory(ctx context.Context, cutoff time.Time) error {
	runs, err := o.runRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return NewPersistenceError("trim runs", err)
	}
	webhooks, err := o.webhookRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return NewPersistenceError("trim webhooks", err)
	}
	if runs > 0 || webhooks > 0 {
		log.Infow("history trimmed", "runs", runs, "webhooks", webhooks, "cutoff", cutoff)
	}
	return nil
}

// ActiveCount returns the size of the in-memory active set.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// resolve returns the mutable run for an operation: the cached active
// entry, or the stored row adopted back into the cache when a previous
// process left it running. Unknown ids are NotFoundError.
func (o *Orchestrator) resolve(ctx context.Context, runId string) (*model.PipelineRun, error) {
	o.mu.RLock()
	run, ok := o.active[runId]
	o.mu.RUnlock()
	if ok {
		return run, nil
	}

	stored, err := o.runRepo.Get(ctx, runId)
	if err != nil {
		return nil, NewPersistenceError("get run", err)
	}
	if stored == nil {
		return nil, NewNotFoundError("run", runId)
	}
	if stored.Status == model.RunStatusRunning {
		o.mu.Lock()
		if cached, ok := o.active[runId]; ok {
			stored = cached
		} else {
			o.active[runId] = stored
		}
		o.mu.Unlock()
	}
	return stored, nil
}

// lookup is the read-only variant of resolve: no cache adoption, nil for
// unknown ids. Active runs are snapshotted under the run lock so readers
// never share the stages or data maps with an in-flight update.
func (o *Orchestrator) lookup(ctx context.Context, runId string) (*model.PipelineRun, error) {
	unlock := o.locks.lock(runId)
	o.mu.RLock()
	run, ok := o.active[runId]
	o.mu.RUnlock()
	if ok {
		snapshot := run.Clone()
		unlock()
		return snapshot, nil
	}
	unlock()

	stored, err := o.runRepo.Get(ctx, runId)
	if err != nil {
		return nil, NewPersistenceError("get run", err)
	}
	return stored, nil
}

// announce broadcasts fire-and-forget so a slow client never delays a
// state transition.
func (o *Orchestrator) announce(event string, data any) {
	if o.broadcaster == nil {
		return
	}
	safe.Go(func() {
		o.broadcaster.Broadcast(event, data)
	})
}
