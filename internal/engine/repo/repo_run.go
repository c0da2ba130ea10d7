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

package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/pkg/database"
)

// RunQuery defines query parameters for listing runs.
type RunQuery struct {
	Status      string
	TriggerType string
	Since       time.Time
	Limit       int
}

// IRunRepository defines persistence methods for pipeline runs and raw metrics.
type IRunRepository interface {
	// Save upserts the full run row keyed by run_id. The stored record always
	// reflects the complete in-memory aggregate.
	Save(ctx context.Context, run *model.PipelineRun) error
	Get(ctx context.Context, runId string) (*model.PipelineRun, error)
	ListRecent(ctx context.Context, limit int) ([]*model.PipelineRun, error)
	List(ctx context.Context, query *RunQuery) ([]*model.PipelineRun, error)
	ListActive(ctx context.Context) ([]*model.PipelineRun, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	SaveMetrics(ctx context.Context, m *model.RunMetrics) error
	ListMetrics(ctx context.Context) ([]*model.RunMetrics, error)
}

type RunRepo struct {
	database.IDatabase
}

// NewRunRepo creates run repository.
func NewRunRepo(db database.IDatabase) IRunRepository {
	return &RunRepo{IDatabase: db}
}

// Save upserts the full run record.
func (r *RunRepo) Save(ctx context.Context, run *model.PipelineRun) error {
	return r.Database().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			UpdateAll: true,
		}).
		Create(run).Error
}

// Get returns a run by runId. Returns (nil, nil) when not found.
func (r *RunRepo) Get(ctx context.Context, runId string) (*model.PipelineRun, error) {
	var one model.PipelineRun
	err := r.Database().WithContext(ctx).
		Where("run_id = ?", runId).
		First(&one).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &one, nil
}

// ListRecent returns the most recent runs ordered by start time descending.
func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]*model.PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 500 {
		limit = 500
	}
	var list []*model.PipelineRun
	err := r.Database().WithContext(ctx).
		Order("start_time DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// List returns runs matching the query, newest first.
func (r *RunRepo) List(ctx context.Context, query *RunQuery) ([]*model.PipelineRun, error) {
	if query == nil {
		query = &RunQuery{}
	}
	tx := r.Database().WithContext(ctx).Model(&model.PipelineRun{})
	if query.Status != "" {
		tx = tx.Where("status = ?", query.Status)
	}
	if !query.Since.IsZero() {
		tx = tx.Where("start_time >= ?", query.Since)
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}
	var list []*model.PipelineRun
	if err := tx.Order("start_time DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	if query.TriggerType != "" {
		// Trigger type lives inside the JSON column; filter in memory.
		filtered := list[:0]
		for _, run := range list {
			if run.Trigger.Type == query.TriggerType {
				filtered = append(filtered, run)
			}
		}
		list = filtered
	}
	return list, nil
}

// ListActive returns all runs still in running state.
func (r *RunRepo) ListActive(ctx context.Context) ([]*model.PipelineRun, error) {
	var list []*model.PipelineRun
	err := r.Database().WithContext(ctx).
		Where("status = ?", model.RunStatusRunning).
		Order("start_time ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteOlderThan removes terminal runs started before the cutoff.
// Running rows are never trimmed.
func (r *RunRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := r.Database().WithContext(ctx).
		Where("start_time < ? AND status <> ?", cutoff, model.RunStatusRunning).
		Delete(&model.PipelineRun{})
	return tx.RowsAffected, tx.Error
}

// SaveMetrics upserts the raw metrics row for a run.
func (r *RunRepo) SaveMetrics(ctx context.Context, m *model.RunMetrics) error {
	return r.Database().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			UpdateAll: true,
		}).
		Create(m).Error
}

// ListMetrics returns all raw metrics rows, oldest first.
func (r *RunRepo) ListMetrics(ctx context.Context) ([]*model.RunMetrics, error) {
	var list []*model.RunMetrics
	err := r.Database().WithContext(ctx).
		Order("recorded_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}
