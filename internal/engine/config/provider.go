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

package config

import (
	"github.com/google/wire"

	"github.com/sitepulse/sitepulse/pkg/database"
	"github.com/sitepulse/sitepulse/pkg/log"
	"github.com/sitepulse/sitepulse/pkg/metrics"
)

// ProviderSet 提供配置层相关的依赖
var ProviderSet = wire.NewSet(
	NewConf,
	ProvideLogConf,
	ProvideDatabaseConf,
	ProvideMetricsConf,
)

// ProvideLogConf extracts the logger config.
func ProvideLogConf(c *AppConfig) *log.Conf {
	return &c.Log
}

// ProvideDatabaseConf extracts the database config.
func ProvideDatabaseConf(c *AppConfig) database.Database {
	return c.Database
}

// ProvideMetricsConf extracts the metrics config.
func ProvideMetricsConf(c *AppConfig) metrics.MetricsConfig {
	return c.Metrics
}
