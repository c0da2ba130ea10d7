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

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/sitepulse/sitepulse/internal/engine/bootstrap"
	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/repo"
	"github.com/sitepulse/sitepulse/internal/engine/router"
	"github.com/sitepulse/sitepulse/internal/engine/service"
	"github.com/sitepulse/sitepulse/internal/pkg/notify"
	"github.com/sitepulse/sitepulse/pkg/database"
	"github.com/sitepulse/sitepulse/pkg/log"
	"github.com/sitepulse/sitepulse/pkg/metrics"
	"github.com/sitepulse/sitepulse/pkg/shutdown"
	"github.com/sitepulse/sitepulse/pkg/ws"
)

func initApp(configPath string) (*bootstrap.App, func(), error) {
	panic(wire.Build(
		// 配置层
		config.ProviderSet,
		// 日志层（依赖 config）
		log.ProviderSet,
		// 数据库层（依赖 config, log）
		database.ProviderSet,
		// 指标层（依赖 config）
		metrics.ProviderSet,
		// 仓储层（依赖 database）
		repo.ProviderSet,
		// 通知与广播（无外部依赖）
		notify.NewDispatcher,
		ws.NewHub,
		shutdown.ProviderSet,
		// 服务层（依赖 repo, notify, ws, metrics, config）
		service.ProviderSet,
		// 路由层（依赖 config, service, ws, shutdown）
		router.ProviderSet,
		// 应用层
		bootstrap.NewApp,
	))
}
