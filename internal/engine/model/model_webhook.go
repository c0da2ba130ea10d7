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

// Webhook authentication outcomes.
const (
	WebhookAuthNone   = "none"
	WebhookAuthPassed = "passed"
	WebhookAuthFailed = "failed"
)

// RetryAttempt is one delivery retry of a webhook.
type RetryAttempt struct {
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
	Status  int       `json:"status,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// WebhookTiming captures the send/receive/process timestamps.
type WebhookTiming struct {
	Sent      *time.Time `json:"sent,omitempty"`
	Received  *time.Time `json:"received,omitempty"`
	Processed *time.Time `json:"processed,omitempty"`
}

// WebhookRecord 入站/出站 webhook 记录
// RunId is a back-reference to the owning run, not an ownership link.
type WebhookRecord struct {
	BaseModel
	WebhookId      string         `gorm:"column:webhook_id;type:VARCHAR(64);uniqueIndex" json:"id"`
	RunId          string         `gorm:"column:run_id;type:VARCHAR(64);index" json:"runId"`
	Source         string         `gorm:"column:source;type:VARCHAR(255)" json:"source"`
	Destination    string         `gorm:"column:destination;type:VARCHAR(255)" json:"destination"`
	Payload        map[string]any `gorm:"column:payload;type:json;serializer:json" json:"payload,omitempty"`
	Response       map[string]any `gorm:"column:response;type:json;serializer:json" json:"response,omitempty"`
	StatusCode     int            `gorm:"column:status_code" json:"statusCode,omitempty"`
	Timing         WebhookTiming  `gorm:"column:timing;type:json;serializer:json" json:"timing"`
	Authentication string         `gorm:"column:authentication;type:VARCHAR(32)" json:"authentication"`
	Retries        []RetryAttempt `gorm:"column:retries;type:json;serializer:json" json:"retries,omitempty"`
}

// TableName 返回表名称
func (WebhookRecord) TableName() string {
	return "t_webhook_record"
}
