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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Engine holds the pipeline engine collectors.
type Engine struct {
	RunsStarted      prometheus.Counter
	RunsCompleted    *prometheus.CounterVec // label: status
	AlertsFired      *prometheus.CounterVec // labels: type, severity
	AlertsSuppressed prometheus.Counter
	Broadcasts       *prometheus.CounterVec // label: event
	WSClients        prometheus.Gauge
}

// NewEngine creates and registers the engine collectors.
func NewEngine(registry *prometheus.Registry) *Engine {
	e := &Engine{
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "runs_started_total",
			Help:      "Pipeline runs opened",
		}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "runs_completed_total",
			Help:      "Pipeline runs reaching a terminal status",
		}, []string{"status"}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "alerts_fired_total",
			Help:      "Alerts dispatched to notification channels",
		}, []string{"type", "severity"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "alerts_suppressed_total",
			Help:      "Alert firings swallowed by the cooldown window",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "ws_broadcasts_total",
			Help:      "Broadcast deliveries to subscribed clients",
		}, []string{"event"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sitepulse",
			Name:      "ws_clients",
			Help:      "Live dashboard connections",
		}),
	}
	registry.MustRegister(
		e.RunsStarted,
		e.RunsCompleted,
		e.AlertsFired,
		e.AlertsSuppressed,
		e.Broadcasts,
		e.WSClients,
	)
	return e
}
