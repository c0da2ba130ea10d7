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
	"github.com/google/wire"

	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/repo"
	"github.com/sitepulse/sitepulse/internal/pkg/notify"
	"github.com/sitepulse/sitepulse/pkg/metrics"
	"github.com/sitepulse/sitepulse/pkg/ws"
)

// ProviderSet 提供服务层相关的依赖
var ProviderSet = wire.NewSet(
	ProvideServices,
)

// ProvideServices 提供统一的 Services 实例
func ProvideServices(
	repos *repo.Repositories,
	hub ws.Hub,
	dispatcher *notify.Dispatcher,
	engineMetrics *metrics.Engine,
	cfg *config.AppConfig,
) *Services {
	return NewServices(repos, hub, dispatcher, engineMetrics, cfg)
}
