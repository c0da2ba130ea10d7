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

package model

import (
	"time"
)

// Trigger event types.
const (
	TriggerTypeManual    = "manual"
	TriggerTypeGit       = "git"
	TriggerTypeWebhook   = "webhook"
	TriggerTypeScheduled = "scheduled"
)

// Run statuses. Transitions move forward only:
// running -> completed | failed | timeout.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusTimeout   = "timeout"
)

// Stage statuses.
const (
	StageStatusPending   = "pending"
	StageStatusRunning   = "running"
	StageStatusCompleted = "completed"
	StageStatusFailed    = "failed"
)

// TriggerEvent 触发事件，记录后不可变
type TriggerEvent struct {
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PipelineStage is one named phase inside a run, owned by that run and
// mutated only through the orchestrator.
type PipelineStage struct {
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	StartTime *time.Time     `json:"startTime,omitempty"`
	EndTime   *time.Time     `json:"endTime,omitempty"`
	Duration  int64          `json:"duration,omitempty"` // 毫秒
	Data      map[string]any `json:"data,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
}

// ErrorRecord is an append-only error attached to exactly one run.
type ErrorRecord struct {
	Id        string         `json:"id"`
	Stage     string         `json:"stage"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
}

// PerformanceMetrics is computed once at completion. Durations in milliseconds,
// rates in percent (0-100).
type PerformanceMetrics struct {
	WebhookLatency    float64 `json:"webhookLatency"`
	BuildTime         float64 `json:"buildTime"`
	DeploymentTime    float64 `json:"deploymentTime"`
	SiteResponseTime  float64 `json:"siteResponseTime"`
	TotalPipelineTime float64 `json:"totalPipelineTime"`
	ErrorRate         float64 `json:"errorRate"`
	SuccessRate       float64 `json:"successRate"`
	Throughput        float64 `json:"throughput"`
}

// PipelineRun 流水线执行记录表
// The aggregate root: stages, errors, trigger and metrics live inside the row
// so one write keeps the persisted view complete.
type PipelineRun struct {
	BaseModel
	RunId     string              `gorm:"column:run_id;type:VARCHAR(64);uniqueIndex" json:"id"`
	Trigger   TriggerEvent        `gorm:"column:trigger_event;type:json;serializer:json" json:"trigger"`
	Stages    []PipelineStage     `gorm:"column:stages;type:json;serializer:json" json:"stages"`
	Status    string              `gorm:"column:status;type:VARCHAR(32);index" json:"status"`
	StartTime time.Time           `gorm:"column:start_time;index" json:"startTime"`
	EndTime   *time.Time          `gorm:"column:end_time" json:"endTime,omitempty"`
	Duration  int64               `gorm:"column:duration" json:"duration,omitempty"` // 毫秒
	Success   bool                `gorm:"column:success" json:"success"`
	Errors    []ErrorRecord       `gorm:"column:errors;type:json;serializer:json" json:"errors"`
	Metrics   *PerformanceMetrics `gorm:"column:metrics;type:json;serializer:json" json:"metrics,omitempty"`
}

// TableName 返回表名称
func (PipelineRun) TableName() string {
	return "t_pipeline_run"
}

// Terminal reports whether the run has left the running state.
func (r *PipelineRun) Terminal() bool {
	return r.Status != RunStatusRunning
}

// FindStage returns the stage with the given name, or nil.
func (r *PipelineRun) FindStage(name string) *PipelineStage {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// LastActivity returns the most recent stage timestamp, falling back to the
// run start. Used by the timeout sweep.
func (r *PipelineRun) LastActivity() time.Time {
	last := r.StartTime
	for i := range r.Stages {
		s := &r.Stages[i]
		if s.StartTime != nil && s.StartTime.After(last) {
			last = *s.StartTime
		}
		if s.EndTime != nil && s.EndTime.After(last) {
			last = *s.EndTime
		}
	}
	return last
}

// Clone returns a deep copy that is safe to serialize or hand to callers
// while the original keeps mutating under the orchestrator's run lock.
func (r *PipelineRun) Clone() *PipelineRun {
	cp := *r
	if r.EndTime != nil {
		t := *r.EndTime
		cp.EndTime = &t
	}
	if r.Metrics != nil {
		m := *r.Metrics
		cp.Metrics = &m
	}
	cp.Trigger.Metadata = cloneMap(r.Trigger.Metadata)
	if r.Stages != nil {
		cp.Stages = make([]PipelineStage, len(r.Stages))
		for i := range r.Stages {
			cp.Stages[i] = r.Stages[i].clone()
		}
	}
	if r.Errors != nil {
		cp.Errors = make([]ErrorRecord, len(r.Errors))
		for i, e := range r.Errors {
			e.Context = cloneMap(e.Context)
			cp.Errors[i] = e
		}
	}
	return &cp
}

func (s PipelineStage) clone() PipelineStage {
	if s.StartTime != nil {
		t := *s.StartTime
		s.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		s.EndTime = &t
	}
	s.Data = cloneMap(s.Data)
	if s.Errors != nil {
		s.Errors = append([]string(nil), s.Errors...)
	}
	return s
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Summary projects the run into its broadcast/snapshot form.
func (r *PipelineRun) Summary() *RunSummary {
	return &RunSummary{
		RunId:     r.RunId,
		Status:    r.Status,
		Trigger:   r.Trigger.Type,
		StartTime: r.StartTime,
		Duration:  r.Duration,
		Success:   r.Success,
	}
}

// RunMetrics 每次执行的原始指标记录
type RunMetrics struct {
	BaseModel
	RunId      string             `gorm:"column:run_id;type:VARCHAR(64);uniqueIndex" json:"runId"`
	Metrics    PerformanceMetrics `gorm:"column:metrics;type:json;serializer:json" json:"metrics"`
	RecordedAt time.Time          `gorm:"column:recorded_at;index" json:"recordedAt"`
}

// TableName 返回表名称
func (RunMetrics) TableName() string {
	return "t_run_metrics"
}
