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

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Built-in alert types. The severity taxonomy is fixed per type unless
// overridden through settings.
const (
	AlertTypePipelineFailure    = "pipeline_failure"
	AlertTypeSlowPipeline       = "slow_pipeline"
	AlertTypeStageFailure       = "stage_failure"
	AlertTypeWebhookAuthFailure = "webhook_auth_failure"
	AlertTypeWebhookBadResponse = "webhook_bad_response"
	AlertTypeHighErrorRate      = "high_error_rate"
	AlertTypeWebhookSlow        = "webhook_slow"
)

// Alert 告警记录表
// One row per signature. Re-firings mutate occurrences/lastSeen; acknowledge
// and resolve are recorded in place so the row stays for audit.
type Alert struct {
	BaseModel
	Signature      string         `gorm:"column:signature;type:VARCHAR(64);uniqueIndex" json:"signature"`
	Type           string         `gorm:"column:type;type:VARCHAR(64);index" json:"type"`
	Severity       string         `gorm:"column:severity;type:VARCHAR(32)" json:"severity"`
	Message        string         `gorm:"column:message;type:TEXT" json:"message,omitempty"`
	Occurrences    int            `gorm:"column:occurrences" json:"occurrences"`
	FirstSeen      time.Time      `gorm:"column:first_seen" json:"firstSeen"`
	LastSeen       time.Time      `gorm:"column:last_seen" json:"lastSeen"`
	Acknowledged   bool           `gorm:"column:acknowledged" json:"acknowledged"`
	AcknowledgedAt *time.Time     `gorm:"column:acknowledged_at" json:"acknowledgedAt,omitempty"`
	AcknowledgedBy string         `gorm:"column:acknowledged_by;type:VARCHAR(128)" json:"acknowledgedBy,omitempty"`
	AckNote        string         `gorm:"column:ack_note;type:TEXT" json:"ackNote,omitempty"`
	Resolved       bool           `gorm:"column:resolved;index" json:"resolved"`
	ResolvedAt     *time.Time     `gorm:"column:resolved_at" json:"resolvedAt,omitempty"`
	ResolvedBy     string         `gorm:"column:resolved_by;type:VARCHAR(128)" json:"resolvedBy,omitempty"`
	ResolveNote    string         `gorm:"column:resolve_note;type:TEXT" json:"resolveNote,omitempty"`
	Payload        map[string]any `gorm:"column:payload;type:json;serializer:json" json:"payload,omitempty"`
}

// TableName 返回表名称
func (Alert) TableName() string {
	return "t_alert"
}

// AlertThresholds are the numeric rule thresholds.
type AlertThresholds struct {
	SlowPipelineMs   int64   `json:"slowPipelineMs"`
	ErrorRatePct     float64 `json:"errorRatePct"`
	WebhookLatencyMs int64   `json:"webhookLatencyMs"`
}

// ChannelSettings configures one notification channel. Destination and
// credential are supplied externally, never hard-coded.
type ChannelSettings struct {
	Name              string `json:"name"`
	Enabled           bool   `json:"enabled"`
	NotifyOnLifecycle bool   `json:"notifyOnLifecycle"`
	Destination       string `json:"destination,omitempty"`
	Credential        string `json:"credential,omitempty"`
	TimeoutSeconds    int    `json:"timeoutSeconds,omitempty"`
}

// NotificationSettings holds per-channel settings keyed by channel name.
type NotificationSettings struct {
	Channels map[string]ChannelSettings `json:"channels"`
}

// AlertSettings 告警配置表（单行）
// Persisted overrides sit between compiled defaults and per-call arguments.
type AlertSettings struct {
	BaseModel
	Thresholds    AlertThresholds      `gorm:"column:thresholds;type:json;serializer:json" json:"thresholds"`
	Cooldowns     map[string]int       `gorm:"column:cooldowns;type:json;serializer:json" json:"cooldowns"` // seconds per alert type
	Severities    map[string]string    `gorm:"column:severities;type:json;serializer:json" json:"severities"`
	Notifications NotificationSettings `gorm:"column:notifications;type:json;serializer:json" json:"notifications"`
}

// TableName 返回表名称
func (AlertSettings) TableName() string {
	return "t_alert_settings"
}
