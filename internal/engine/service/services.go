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

	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/repo"
	"github.com/sitepulse/sitepulse/internal/pkg/notify"
	"github.com/sitepulse/sitepulse/internal/pkg/notify/channel"
	"github.com/sitepulse/sitepulse/pkg/log"
	"github.com/sitepulse/sitepulse/pkg/metrics"
	"github.com/sitepulse/sitepulse/pkg/ws"
)

// Services aggregates the engine service layer.
type Services struct {
	Orchestrator *Orchestrator
	Alerts       *AlertManager
	Analytics    *AnalyticsEngine
	WSHandle     *WSHandle
	Dispatcher   *notify.Dispatcher
}

func NewServices(
	repos *repo.Repositories,
	hub ws.Hub,
	dispatcher *notify.Dispatcher,
	engineMetrics *metrics.Engine,
	cfg *config.AppConfig,
) *Services {
	wsHandle := NewWSHandle(hub, engineMetrics)
	alerts := NewAlertManager(repos.Alert, dispatcher, engineMetrics, cfg.Alerts)
	analytics := NewAnalyticsEngine(repos.Run, repos.Analytics, cfg.Analytics)
	orchestrator := NewOrchestrator(repos.Run, repos.Webhook, alerts, analytics, wsHandle, engineMetrics, cfg.Engine)
	wsHandle.SetStatusProvider(orchestrator)

	return &Services{
		Orchestrator: orchestrator,
		Alerts:       alerts,
		Analytics:    analytics,
		WSHandle:     wsHandle,
		Dispatcher:   dispatcher,
	}
}

// Init loads persisted alert settings and registers the notification
// channels. Called once at startup, before traffic arrives.
func (s *Services) Init(ctx context.Context, cfg *config.AppConfig) error {
	if err := s.Alerts.LoadSettings(ctx); err != nil {
		return err
	}

	s.Dispatcher.Register(channel.NewConsole())
	s.Dispatcher.Register(channel.NewDashboard(s.WSHandle))

	if cfg.Notify.Email.Host != "" {
		email, err := channel.NewEmail(cfg.Notify.Email)
		if err != nil {
			// A broken channel config stops that channel, not the process.
			log.Errorw("email channel disabled", "error", err)
		} else {
			s.Dispatcher.Register(email)
		}
	}

	settings, err := s.Alerts.loadSettings(ctx)
	if err != nil {
		return err
	}
	for name, ch := range settings.Notifications.Channels {
		if ch.Destination == "" {
			continue
		}
		if ch.Name == "" {
			ch.Name = name
		}
		hook, err := channel.NewWebhook(ch)
		if err != nil {
			log.Errorw("webhook channel disabled", "channel", name, "error", err)
			continue
		}
		s.Dispatcher.Register(hook)
	}
	return nil
}
