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
	"fmt"
	"testing"
	"time"

	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/model"
)

func newAnalytics() *AnalyticsEngine {
	conf := config.AnalyticsConfig{}
	conf.SetDefaults()
	return &AnalyticsEngine{conf: conf, now: time.Now}
}

func terminalRun(id string, start time.Time, durationMs int64, success bool) *model.PipelineRun {
	end := start.Add(time.Duration(durationMs) * time.Millisecond)
	status := model.RunStatusCompleted
	if !success {
		status = model.RunStatusFailed
	}
	return &model.PipelineRun{
		RunId:     id,
		Status:    status,
		Success:   success,
		StartTime: start,
		EndTime:   &end,
		Duration:  durationMs,
		Trigger:   model.TriggerEvent{Type: model.TriggerTypeGit, Source: "repo:main"},
	}
}

func TestSuccessMetricsRounding(t *testing.T) {
	e := newAnalytics()
	now := time.Now()
	runs := []*model.PipelineRun{
		terminalRun("r1", now.Add(-time.Hour), 1000, true),
		terminalRun("r2", now.Add(-time.Hour), 1000, true),
		terminalRun("r3", now.Add(-time.Hour), 1000, false),
	}
	runs[2].Trigger.Type = model.TriggerTypeManual

	snap := e.Compute(runs, nil, runs[2])
	if snap.SuccessMetrics.Overall != 66.67 {
		t.Fatalf("overall = %v, want 66.67", snap.SuccessMetrics.Overall)
	}
	if snap.SuccessMetrics.Rolling.H24 != 66.67 {
		t.Fatalf("24h = %v, want 66.67", snap.SuccessMetrics.Rolling.H24)
	}
	if got := snap.SuccessMetrics.ByTrigger[model.TriggerTypeGit]; got != 100 {
		t.Fatalf("git trigger rate = %v, want 100", got)
	}
	if got := snap.SuccessMetrics.ByTrigger[model.TriggerTypeManual]; got != 0 {
		t.Fatalf("manual trigger rate = %v, want 0", got)
	}
	if snap.Totals.Total != 3 || snap.Totals.Completed != 2 || snap.Totals.Failed != 1 {
		t.Fatalf("unexpected totals: %+v", snap.Totals)
	}
	if snap.LatestRun == nil || snap.LatestRun.RunId != "r3" {
		t.Fatalf("latest run summary missing: %+v", snap.LatestRun)
	}
}

func TestSuccessRateEmptyHistory(t *testing.T) {
	e := newAnalytics()
	snap := e.Compute(nil, nil, nil)
	if snap.SuccessMetrics.Overall != 0 {
		t.Fatalf("empty history overall = %v, want 0", snap.SuccessMetrics.Overall)
	}
	if snap.Totals.Total != 0 {
		t.Fatalf("empty history totals = %+v", snap.Totals)
	}
	if len(snap.Anomalies.PipelineDuration) != 0 {
		t.Fatal("empty history cannot have anomalies")
	}
}

func TestRollingWindows(t *testing.T) {
	e := newAnalytics()
	now := time.Now()
	runs := []*model.PipelineRun{
		terminalRun("recent", now.Add(-time.Hour), 1000, true),
		terminalRun("lastweek", now.Add(-3*24*time.Hour), 1000, false),
		terminalRun("lastmonth", now.Add(-20*24*time.Hour), 1000, false),
	}
	snap := e.Compute(runs, nil, nil)
	if snap.SuccessMetrics.Rolling.H24 != 100 {
		t.Fatalf("24h = %v, want 100 (only the recent run)", snap.SuccessMetrics.Rolling.H24)
	}
	if snap.SuccessMetrics.Rolling.D7 != 50 {
		t.Fatalf("7d = %v, want 50", snap.SuccessMetrics.Rolling.D7)
	}
	if snap.SuccessMetrics.Rolling.D30 != 33.33 {
		t.Fatalf("30d = %v, want 33.33", snap.SuccessMetrics.Rolling.D30)
	}
}

func TestBottleneckRanking(t *testing.T) {
	e := newAnalytics()
	now := time.Now()

	var runs []*model.PipelineRun
	// Seven distinct stages so the top-5 cut matters; stage-0 slowest.
	for i := 0; i < 3; i++ {
		run := terminalRun(fmt.Sprintf("r%d", i), now.Add(-time.Hour), 10000, true)
		for s := 0; s < 7; s++ {
			run.Stages = append(run.Stages, model.PipelineStage{
				Name:     fmt.Sprintf("stage-%d", s),
				Status:   model.StageStatusCompleted,
				Duration: int64((7 - s) * 1000),
			})
		}
		runs = append(runs, run)
	}
	// stage-6 fails twice, stage-5 once.
	runs[0].Stages[6].Status = model.StageStatusFailed
	runs[1].Stages[6].Status = model.StageStatusFailed
	runs[2].Stages[5].Status = model.StageStatusFailed

	b := e.Compute(runs, nil, nil).Bottlenecks
	if len(b.SlowestStages) != 5 {
		t.Fatalf("want top-5 slowest, got %d", len(b.SlowestStages))
	}
	if b.SlowestStages[0].Name != "stage-0" || b.SlowestStages[0].AvgDuration != 7000 {
		t.Fatalf("slowest stage wrong: %+v", b.SlowestStages[0])
	}
	if b.SlowestStages[0].MaxDuration != 7000 || b.SlowestStages[0].Count != 3 {
		t.Fatalf("slowest stage aggregates wrong: %+v", b.SlowestStages[0])
	}
	if len(b.FrequentFailures) != 2 || b.FrequentFailures[0].Name != "stage-6" || b.FrequentFailures[0].Failures != 2 {
		t.Fatalf("failure ranking wrong: %+v", b.FrequentFailures)
	}
	if b.AveragePipelineDuration != 10000 {
		t.Fatalf("average pipeline duration = %v, want 10000", b.AveragePipelineDuration)
	}
}

func TestDurationAnomaliesFlatHistory(t *testing.T) {
	e := newAnalytics()
	now := time.Now()
	var runs []*model.PipelineRun
	for i := 0; i < 10; i++ {
		runs = append(runs, terminalRun(fmt.Sprintf("r%d", i), now.Add(-time.Hour), 5000, true))
	}
	anomalies := e.detectDurationAnomalies(runs)
	if len(anomalies) != 0 {
		t.Fatalf("flat history reported %d anomalies", len(anomalies))
	}
}

func TestDurationAnomalyOutlier(t *testing.T) {
	e := newAnalytics()
	now := time.Now()
	var runs []*model.PipelineRun
	for i := 0; i < 9; i++ {
		runs = append(runs, terminalRun(fmt.Sprintf("r%d", i), now.Add(-time.Hour), 5000, true))
	}
	runs = append(runs, terminalRun("outlier", now.Add(-time.Hour), 50000, true))

	anomalies := e.detectDurationAnomalies(runs)
	if len(anomalies) != 1 {
		t.Fatalf("expected exactly the outlier, got %d anomalies", len(anomalies))
	}
	a := anomalies[0]
	if a.RunId != "outlier" || a.Duration != 50000 {
		t.Fatalf("wrong anomaly: %+v", a)
	}
	// The tighter of the two bounds wins: mean*1.5 here.
	if a.Threshold != round2(a.Mean*1.5) {
		t.Fatalf("threshold %v should be the ratio bound %v", a.Threshold, round2(a.Mean*1.5))
	}
}

func TestMetricAnomalies(t *testing.T) {
	e := newAnalytics()
	now := time.Now()
	var rows []*model.RunMetrics
	for i := 0; i < 9; i++ {
		rows = append(rows, &model.RunMetrics{
			RunId:      fmt.Sprintf("r%d", i),
			RecordedAt: now,
			Metrics:    model.PerformanceMetrics{BuildTime: 1000, SuccessRate: 100},
		})
	}
	rows = append(rows, &model.RunMetrics{
		RunId:      "spike",
		RecordedAt: now,
		Metrics:    model.PerformanceMetrics{BuildTime: 20000, SuccessRate: 100},
	})

	anomalies := e.detectMetricAnomalies(rows)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d: %+v", len(anomalies), anomalies)
	}
	a := anomalies[0]
	if a.RunId != "spike" || a.Metric != "buildTime" {
		t.Fatalf("wrong anomaly: %+v", a)
	}

	// Flat successRate never flags; a single sample is skipped entirely.
	single := e.detectMetricAnomalies(rows[:1])
	if len(single) != 0 {
		t.Fatalf("single sample should be skipped, got %+v", single)
	}
}

func TestSnapshotPersistence(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	e := s.services.Analytics
	e.conf.SnapshotRetention = 3

	now := time.Now()
	var latest *model.PipelineRun
	for i := 0; i < 5; i++ {
		latest = terminalRun(fmt.Sprintf("r%d", i), now.Add(-time.Hour), 1000, true)
		if err := s.repos.Run.Save(ctx, latest); err != nil {
			t.Fatal(err)
		}
		if _, err := e.UpdateAfterRun(ctx, latest); err != nil {
			t.Fatal(err)
		}
	}

	// Bounded history: only the newest 3 snapshots survive.
	history, err := e.History(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}

	// The aggregate is overwritten wholesale each time.
	agg, err := e.Aggregate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if agg == nil {
		t.Fatal("aggregate missing")
	}
	if agg.LatestRun == nil || agg.LatestRun.RunId != "r4" {
		t.Fatalf("aggregate should reflect the last run, got %+v", agg.LatestRun)
	}
	if agg.Totals.Total != 5 {
		t.Fatalf("aggregate totals = %+v, want 5 runs", agg.Totals)
	}
}
