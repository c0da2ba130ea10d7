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

	"gorm.io/gorm"

	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/pkg/database"
)

// IAnalyticsRepository defines persistence methods for analytics snapshots.
type IAnalyticsRepository interface {
	// AppendSnapshot stores a new snapshot and evicts the oldest rows past keep.
	AppendSnapshot(ctx context.Context, snap *model.AnalyticsSnapshot, keep int) error
	ListSnapshots(ctx context.Context, limit int) ([]*model.AnalyticsSnapshot, error)

	// SaveAggregate overwrites the single current-aggregate row.
	SaveAggregate(ctx context.Context, agg *model.AnalyticsAggregate) error
	GetAggregate(ctx context.Context) (*model.AnalyticsAggregate, error)
}

type AnalyticsRepo struct {
	database.IDatabase
}

// NewAnalyticsRepo creates analytics repository.
func NewAnalyticsRepo(db database.IDatabase) IAnalyticsRepository {
	return &AnalyticsRepo{IDatabase: db}
}

// AppendSnapshot stores the snapshot and trims history beyond keep rows.
func (r *AnalyticsRepo) AppendSnapshot(ctx context.Context, snap *model.AnalyticsSnapshot, keep int) error {
	db := r.Database().WithContext(ctx)
	if err := db.Create(snap).Error; err != nil {
		return err
	}
	if keep <= 0 {
		return nil
	}

	total, err := Count(db.Model(&model.AnalyticsSnapshot{}))
	if err != nil {
		return err
	}
	excess := total - int64(keep)
	if excess <= 0 {
		return nil
	}

	var victims []uint
	err = db.Model(&model.AnalyticsSnapshot{}).
		Order("id ASC").
		Limit(int(excess)).
		Pluck("id", &victims).Error
	if err != nil {
		return err
	}
	return db.Where("id IN ?", victims).Delete(&model.AnalyticsSnapshot{}).Error
}

// ListSnapshots returns snapshots, newest first.
func (r *AnalyticsRepo) ListSnapshots(ctx context.Context, limit int) ([]*model.AnalyticsSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	var list []*model.AnalyticsSnapshot
	err := r.Database().WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// SaveAggregate overwrites the aggregate row.
func (r *AnalyticsRepo) SaveAggregate(ctx context.Context, agg *model.AnalyticsAggregate) error {
	db := r.Database().WithContext(ctx)
	if agg.ID == 0 {
		existing, err := r.GetAggregate(ctx)
		if err != nil {
			return err
		}
		if existing != nil {
			agg.ID = existing.ID
		}
	}
	return db.Save(agg).Error
}

// GetAggregate returns the aggregate row. Returns (nil, nil) when never written.
func (r *AnalyticsRepo) GetAggregate(ctx context.Context) (*model.AnalyticsAggregate, error) {
	var one model.AnalyticsAggregate
	err := r.Database().WithContext(ctx).
		Order("id ASC").
		First(&one).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &one, nil
}
