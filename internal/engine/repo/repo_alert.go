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
	"gorm.io/gorm/clause"

	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/pkg/database"
)

// AlertQuery defines query parameters for listing alerts.
type AlertQuery struct {
	Type       string
	Severity   string
	ActiveOnly bool
	Limit      int
}

// IAlertRepository defines persistence methods for alerts and alert settings.
type IAlertRepository interface {
	Save(ctx context.Context, alert *model.Alert) error
	Get(ctx context.Context, signature string) (*model.Alert, error)
	List(ctx context.Context, query *AlertQuery) ([]*model.Alert, error)
	Delete(ctx context.Context, signature string) error

	GetSettings(ctx context.Context) (*model.AlertSettings, error)
	SaveSettings(ctx context.Context, settings *model.AlertSettings) error
}

type AlertRepo struct {
	database.IDatabase
}

// NewAlertRepo creates alert repository.
func NewAlertRepo(db database.IDatabase) IAlertRepository {
	return &AlertRepo{IDatabase: db}
}

// Save upserts the alert row keyed by signature.
func (r *AlertRepo) Save(ctx context.Context, alert *model.Alert) error {
	return r.Database().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "signature"}},
			UpdateAll: true,
		}).
		Create(alert).Error
}

// Get returns an alert by signature. Returns (nil, nil) when not found.
func (r *AlertRepo) Get(ctx context.Context, signature string) (*model.Alert, error) {
	var one model.Alert
	err := r.Database().WithContext(ctx).
		Where("signature = ?", signature).
		First(&one).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &one, nil
}

// List returns alerts matching the query, most recently seen first.
func (r *AlertRepo) List(ctx context.Context, query *AlertQuery) ([]*model.Alert, error) {
	if query == nil {
		query = &AlertQuery{}
	}
	tx := r.Database().WithContext(ctx).Model(&model.Alert{})
	if query.Type != "" {
		tx = tx.Where("type = ?", query.Type)
	}
	if query.Severity != "" {
		tx = tx.Where("severity = ?", query.Severity)
	}
	if query.ActiveOnly {
		tx = tx.Where("resolved = ?", false)
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}
	var list []*model.Alert
	if err := tx.Order("last_seen DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Delete removes an alert row for good (explicit clear, not resolution).
func (r *AlertRepo) Delete(ctx context.Context, signature string) error {
	return r.Database().WithContext(ctx).
		Where("signature = ?", signature).
		Delete(&model.Alert{}).Error
}

// GetSettings returns the persisted settings row. Returns (nil, nil) when no
// overrides were ever written.
func (r *AlertRepo) GetSettings(ctx context.Context) (*model.AlertSettings, error) {
	var one model.AlertSettings
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

// SaveSettings writes the settings row in place.
func (r *AlertRepo) SaveSettings(ctx context.Context, settings *model.AlertSettings) error {
	db := r.Database().WithContext(ctx)
	if settings.ID == 0 {
		existing, err := r.GetSettings(ctx)
		if err != nil {
			return err
		}
		if existing != nil {
			settings.ID = existing.ID
		}
	}
	return db.Save(settings).Error
}
