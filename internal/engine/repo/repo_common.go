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
	"fmt"

	"github.com/google/wire"
	"gorm.io/gorm"

	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/pkg/database"
)

// ProviderSet 提供仓储层相关的依赖
var ProviderSet = wire.NewSet(
	ProvideRepositories,
	wire.FieldsOf(new(*Repositories), "Run", "Webhook", "Alert", "Analytics"),
)

// Repositories bundles all persistence stores.
type Repositories struct {
	Run       IRunRepository
	Webhook   IWebhookRepository
	Alert     IAlertRepository
	Analytics IAnalyticsRepository
}

// ProvideRepositories migrates the schema and builds all repositories.
func ProvideRepositories(db database.IDatabase) (*Repositories, error) {
	if err := AutoMigrate(db.Database()); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Repositories{
		Run:       NewRunRepo(db),
		Webhook:   NewWebhookRepo(db),
		Alert:     NewAlertRepo(db),
		Analytics: NewAnalyticsRepo(db),
	}, nil
}

// AutoMigrate creates or updates all engine tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.PipelineRun{},
		&model.RunMetrics{},
		&model.WebhookRecord{},
		&model.Alert{},
		&model.AlertSettings{},
		&model.AnalyticsSnapshot{},
		&model.AnalyticsAggregate{},
	)
}

// Count returns the row count of the current query scope.
func Count(tx *gorm.DB) (int64, error) {
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
