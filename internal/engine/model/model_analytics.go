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

// RunTotals counts runs by outcome.
type RunTotals struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Timeout   int `json:"timeout"`
	Running   int `json:"running"`
}

// RollingRates are success rates over trailing windows, percent, 2 decimals.
type RollingRates struct {
	H24 float64 `json:"24h"`
	D7  float64 `json:"7d"`
	D30 float64 `json:"30d"`
}

// SuccessMetrics rolls up success rates.
type SuccessMetrics struct {
	Overall   float64            `json:"overall"`
	Rolling   RollingRates       `json:"rolling"`
	ByTrigger map[string]float64 `json:"byTrigger"`
}

// StageStat ranks a stage by duration across history.
type StageStat struct {
	Name        string  `json:"name"`
	AvgDuration float64 `json:"avgDuration"` // 毫秒
	MaxDuration int64   `json:"maxDuration"`
	Count       int     `json:"count"`
}

// StageFailureStat counts failures per stage name.
type StageFailureStat struct {
	Name     string `json:"name"`
	Failures int    `json:"failures"`
}

// Bottlenecks ranks stages and carries the fleet-wide average duration.
type Bottlenecks struct {
	SlowestStages           []StageStat        `json:"slowestStages"`
	FrequentFailures        []StageFailureStat `json:"frequentFailures"`
	AveragePipelineDuration float64            `json:"averagePipelineDuration"`
}

// DurationAnomaly flags one run whose duration cleared the threshold.
type DurationAnomaly struct {
	RunId     string  `json:"runId"`
	Duration  int64   `json:"duration"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"stdDev"`
	Threshold float64 `json:"threshold"`
}

// MetricAnomaly flags one metric value against its baseline.
type MetricAnomaly struct {
	RunId     string  `json:"runId"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Baseline  float64 `json:"baseline"`
	StdDev    float64 `json:"stdDev"`
	Threshold float64 `json:"threshold"`
}

// Anomalies groups what the detector flagged.
type Anomalies struct {
	PipelineDuration []DurationAnomaly `json:"pipelineDuration"`
	MetricAnomalies  []MetricAnomaly   `json:"metricAnomalies"`
}

// RunSummary is the latest-run projection inside a snapshot.
type RunSummary struct {
	RunId     string    `json:"runId"`
	Status    string    `json:"status"`
	Trigger   string    `json:"trigger"`
	StartTime time.Time `json:"startTime"`
	Duration  int64     `json:"duration"`
	Success   bool      `json:"success"`
}

// SnapshotData is one point-in-time analytics computation.
type SnapshotData struct {
	GeneratedAt    time.Time      `json:"generatedAt"`
	Totals         RunTotals      `json:"totals"`
	SuccessMetrics SuccessMetrics `json:"successMetrics"`
	Bottlenecks    Bottlenecks    `json:"bottlenecks"`
	Anomalies      Anomalies      `json:"anomalies"`
	LatestRun      *RunSummary    `json:"latestRun,omitempty"`
}

// AnalyticsSnapshot 分析快照历史表（有界）
type AnalyticsSnapshot struct {
	BaseModel
	Snapshot SnapshotData `gorm:"column:snapshot;type:json;serializer:json" json:"snapshot"`
}

// TableName 返回表名称
func (AnalyticsSnapshot) TableName() string {
	return "t_analytics_snapshot"
}

// AnalyticsAggregate 当前聚合指针（单行，整体覆盖写）
type AnalyticsAggregate struct {
	BaseModel
	Snapshot SnapshotData `gorm:"column:snapshot;type:json;serializer:json" json:"snapshot"`
}

// TableName 返回表名称
func (AnalyticsAggregate) TableName() string {
	return "t_analytics_aggregate"
}
