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
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/internal/engine/repo"
)

// AnalyticsEngine recomputes the analytics snapshot wholesale from run
// history after every completed run.
type AnalyticsEngine struct {
	runRepo       repo.IRunRepository
	analyticsRepo repo.IAnalyticsRepository
	conf          config.AnalyticsConfig
	now           func() time.Time
}

func NewAnalyticsEngine(runRepo repo.IRunRepository, analyticsRepo repo.IAnalyticsRepository, conf config.AnalyticsConfig) *AnalyticsEngine {
	return &AnalyticsEngine{
		runRepo:       runRepo,
		analyticsRepo: analyticsRepo,
		conf:          conf,
		now:           time.Now,
	}
}

// UpdateAfterRun pulls the full history plus raw metrics, computes a new
// snapshot, appends it to the bounded history and overwrites the current
// aggregate.
func (e *AnalyticsEngine) UpdateAfterRun(ctx context.Context, latest *model.PipelineRun) (*model.SnapshotData, error) {
	runs, err := e.runRepo.List(ctx, &repo.RunQuery{})
	if err != nil {
		return nil, NewPersistenceError("list runs", err)
	}
	metricsRows, err := e.runRepo.ListMetrics(ctx)
	if err != nil {
		return nil, NewPersistenceError("list run metrics", err)
	}

	snapshot := e.Compute(runs, metricsRows, latest)

	if err := e.analyticsRepo.AppendSnapshot(ctx, &model.AnalyticsSnapshot{Snapshot: *snapshot}, e.conf.SnapshotRetention); err != nil {
		return nil, NewPersistenceError("append snapshot", err)
	}
	if err := e.analyticsRepo.SaveAggregate(ctx, &model.AnalyticsAggregate{Snapshot: *snapshot}); err != nil {
		return nil, NewPersistenceError("save aggregate", err)
	}
	return snapshot, nil
}

// Compute builds one snapshot from in-memory history. The three
// independent sections run in parallel; they only read the inputs.
func (e *AnalyticsEngine) Compute(runs []*model.PipelineRun, metricsRows []*model.RunMetrics, latest *model.PipelineRun) *model.SnapshotData {
	now := e.now()
	snapshot := &model.SnapshotData{
		GeneratedAt: now,
		Totals:      computeTotals(runs),
	}

	var g errgroup.Group
	g.Go(func() error {
		snapshot.SuccessMetrics = e.computeSuccessMetrics(runs, now)
		return nil
	})
	g.Go(func() error {
		snapshot.Bottlenecks = e.computeBottlenecks(runs)
		return nil
	})
	g.Go(func() error {
		snapshot.Anomalies = model.Anomalies{
			PipelineDuration: e.detectDurationAnomalies(runs),
			MetricAnomalies:  e.detectMetricAnomalies(metricsRows),
		}
		return nil
	})
	_ = g.Wait()

	if latest != nil {
		snapshot.LatestRun = &model.RunSummary{
			RunId:     latest.RunId,
			Status:    latest.Status,
			Trigger:   latest.Trigger.Type,
			StartTime: latest.StartTime,
			Duration:  latest.Duration,
			Success:   latest.Success,
		}
	}
	return snapshot
}

// Aggregate returns the current aggregate snapshot, or nil when nothing
// has been computed yet.
func (e *AnalyticsEngine) Aggregate(ctx context.Context) (*model.SnapshotData, error) {
	agg, err := e.analyticsRepo.GetAggregate(ctx)
	if err != nil {
		return nil, NewPersistenceError("get aggregate", err)
	}
	if agg == nil {
		return nil, nil
	}
	return &agg.Snapshot, nil
}

// History returns up to limit snapshots, newest first.
func (e *AnalyticsEngine) History(ctx context.Context, limit int) ([]*model.AnalyticsSnapshot, error) {
	snaps, err := e.analyticsRepo.ListSnapshots(ctx, limit)
	if err != nil {
		return nil, NewPersistenceError("list snapshots", err)
	}
	return snaps, nil
}

func computeTotals(runs []*model.PipelineRun) model.RunTotals {
	totals := model.RunTotals{Total: len(runs)}
	for _, run := range runs {
		switch run.Status {
		case model.RunStatusCompleted:
			totals.Completed++
		case model.RunStatusFailed:
			totals.Failed++
		case model.RunStatusTimeout:
			totals.Timeout++
		case model.RunStatusRunning:
			totals.Running++
		}
	}
	return totals
}

func (e *AnalyticsEngine) computeSuccessMetrics(runs []*model.PipelineRun, now time.Time) model.SuccessMetrics {
	out := model.SuccessMetrics{
		Overall: successRate(runs),
		Rolling: model.RollingRates{
			H24: successRate(runsSince(runs, now.Add(-24*time.Hour))),
			D7:  successRate(runsSince(runs, now.Add(-7*24*time.Hour))),
			D30: successRate(runsSince(runs, now.Add(-30*24*time.Hour))),
		},
		ByTrigger: make(map[string]float64),
	}
	byTrigger := make(map[string][]*model.PipelineRun)
	for _, run := range runs {
		byTrigger[run.Trigger.Type] = append(byTrigger[run.Trigger.Type], run)
	}
	for trigger, group := range byTrigger {
		out.ByTrigger[trigger] = successRate(group)
	}
	return out
}

// successRate is successes over total in percent, 0 for an empty set.
func successRate(runs []*model.PipelineRun) float64 {
	if len(runs) == 0 {
		return 0
	}
	successes := 0
	for _, run := range runs {
		if run.Success {
			successes++
		}
	}
	return round2(float64(successes) / float64(len(runs)) * 100)
}

func runsSince(runs []*model.PipelineRun, cutoff time.Time) []*model.PipelineRun {
	out := make([]*model.PipelineRun, 0, len(runs))
	for _, run := range runs {
		if !run.StartTime.Before(cutoff) {
			out = append(out, run)
		}
	}
	return out
}

func (e *AnalyticsEngine) computeBottlenecks(runs []*model.PipelineRun) model.Bottlenecks {
	type stageAgg struct {
		total    int64
		max      int64
		count    int
		failures int
	}
	stages := make(map[string]*stageAgg)
	var durationSum int64
	var durationCount int

	for _, run := range runs {
		if run.Duration > 0 {
			durationSum += run.Duration
			durationCount++
		}
		for i := range run.Stages {
			stage := &run.Stages[i]
			agg, ok := stages[stage.Name]
			if !ok {
				agg = &stageAgg{}
				stages[stage.Name] = agg
			}
			if stage.Duration > 0 {
				agg.total += stage.Duration
				agg.count++
				if stage.Duration > agg.max {
					agg.max = stage.Duration
				}
			}
			if stage.Status == model.StageStatusFailed {
				agg.failures++
			}
		}
	}

	slowest := make([]model.StageStat, 0, len(stages))
	failures := make([]model.StageFailureStat, 0, len(stages))
	for name, agg := range stages {
		if agg.count > 0 {
			slowest = append(slowest, model.StageStat{
				Name:        name,
				AvgDuration: round2(float64(agg.total) / float64(agg.count)),
				MaxDuration: agg.max,
				Count:       agg.count,
			})
		}
		if agg.failures > 0 {
			failures = append(failures, model.StageFailureStat{Name: name, Failures: agg.failures})
		}
	}
	sort.Slice(slowest, func(i, j int) bool {
		if slowest[i].AvgDuration != slowest[j].AvgDuration {
			return slowest[i].AvgDuration > slowest[j].AvgDuration
		}
		return slowest[i].Name < slowest[j].Name
	})
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Failures != failures[j].Failures {
			return failures[i].Failures > failures[j].Failures
		}
		return failures[i].Name < failures[j].Name
	})
	if len(slowest) > 5 {
		slowest = slowest[:5]
	}
	if len(failures) > 5 {
		failures = failures[:5]
	}

	avg := 0.0
	if durationCount > 0 {
		avg = round2(float64(durationSum) / float64(durationCount))
	}
	return model.Bottlenecks{
		SlowestStages:           slowest,
		FrequentFailures:        failures,
		AveragePipelineDuration: avg,
	}
}

// detectDurationAnomalies flags runs whose duration clears
// min(mean + k*stddev, mean*m). The tighter bound wins on purpose; a flat
// history (stddev 0) reports nothing.
func (e *AnalyticsEngine) detectDurationAnomalies(runs []*model.PipelineRun) []model.DurationAnomaly {
	type sample struct {
		runId    string
		duration int64
	}
	samples := make([]sample, 0, len(runs))
	values := make([]float64, 0, len(runs))
	for _, run := range runs {
		if run.Duration > 0 {
			samples = append(samples, sample{runId: run.RunId, duration: run.Duration})
			values = append(values, float64(run.Duration))
		}
	}
	if len(values) == 0 {
		return nil
	}

	mean, stddev := meanStdDev(values)
	if stddev == 0 {
		return nil
	}
	threshold := math.Min(mean+e.conf.StdDevMultiplier*stddev, mean*e.conf.RatioMultiplier)

	var out []model.DurationAnomaly
	for _, s := range samples {
		if float64(s.duration) >= threshold {
			out = append(out, model.DurationAnomaly{
				RunId:     s.runId,
				Duration:  s.duration,
				Mean:      round2(mean),
				StdDev:    round2(stddev),
				Threshold: round2(threshold),
			})
		}
	}
	return out
}

// detectMetricAnomalies compares every numeric metric value against its
// own baseline across history, threshold max(baseline*m, baseline +
// k*stddev). Keys with fewer than 2 samples or a dead-flat zero baseline
// are skipped.
func (e *AnalyticsEngine) detectMetricAnomalies(rows []*model.RunMetrics) []model.MetricAnomaly {
	type sample struct {
		runId string
		value float64
	}
	byKey := make(map[string][]sample)
	for _, row := range rows {
		for key, value := range metricValues(&row.Metrics) {
			byKey[key] = append(byKey[key], sample{runId: row.RunId, value: value})
		}
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []model.MetricAnomaly
	for _, key := range keys {
		samples := byKey[key]
		if len(samples) < 2 {
			continue
		}
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.value
		}
		baseline, stddev := meanStdDev(values)
		if baseline == 0 && stddev == 0 {
			continue
		}
		threshold := math.Max(baseline*e.conf.RatioMultiplier, baseline+e.conf.StdDevMultiplier*stddev)
		for _, s := range samples {
			if s.value > threshold {
				out = append(out, model.MetricAnomaly{
					RunId:     s.runId,
					Metric:    key,
					Value:     round2(s.value),
					Baseline:  round2(baseline),
					StdDev:    round2(stddev),
					Threshold: round2(threshold),
				})
			}
		}
	}
	return out
}

// metricValues flattens the metrics struct into named samples.
func metricValues(m *model.PerformanceMetrics) map[string]float64 {
	return map[string]float64{
		"webhookLatency":    m.WebhookLatency,
		"buildTime":         m.BuildTime,
		"deploymentTime":    m.DeploymentTime,
		"siteResponseTime":  m.SiteResponseTime,
		"totalPipelineTime": m.TotalPipelineTime,
		"errorRate":         m.ErrorRate,
		"successRate":       m.SuccessRate,
		"throughput":        m.Throughput,
	}
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
