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

// IWebhookRepository defines persistence methods for webhook records.
type IWebhookRepository interface {
	Save(ctx context.Context, rec *model.WebhookRecord) error
	Get(ctx context.Context, webhookId string) (*model.WebhookRecord, error)
	ListByRun(ctx context.Context, runId string) ([]*model.WebhookRecord, error)
	CountByRun(ctx context.Context, runId string) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type WebhookRepo struct {
	database.IDatabase
}

// NewWebhookRepo creates webhook repository.
func NewWebhookRepo(db database.IDatabase) IWebhookRepository {
	return &WebhookRepo{IDatabase: db}
}

// Save upserts the webhook record keyed by webhook_id.
func (r *WebhookRepo) Save(ctx context.Context, rec *model.WebhookRecord) error {
	return r.Database().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "webhook_id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
}

// Get returns a webhook record by id. Returns (nil, nil) when not found.
func (r *WebhookRepo) Get(ctx context.Context, webhookId string) (*model.WebhookRecord, error) {
	var one model.WebhookRecord
	err := r.Database().WithContext(ctx).
		Where("webhook_id = ?", webhookId).
		First(&one).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &one, nil
}

// ListByRun returns all webhook records for a run, oldest first.
func (r *WebhookRepo) ListByRun(ctx context.Context, runId string) ([]*model.WebhookRecord, error) {
	var list []*model.WebhookRecord
	err := r.Database().WithContext(ctx).
		Where("run_id = ?", runId).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// CountByRun counts webhook records attached to a run.
func (r *WebhookRepo) CountByRun(ctx context.Context, runId string) (int64, error) {
	return Count(r.Database().WithContext(ctx).
		Model(&model.WebhookRecord{}).
		Where("run_id = ?", runId))
}

// DeleteOlderThan removes webhook records created before the cutoff.
func (r *WebhookRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := r.Database().WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.WebhookRecord{})
	return tx.RowsAffected, tx.Error
}
