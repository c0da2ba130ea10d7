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
	"github.com/google/wire"

	"github.com/sitepulse/sitepulse/pkg/http/middleware"
	"github.com/sitepulse/sitepulse/pkg/log"
)

// ProviderSet is a Wire provider set for metrics
var ProviderSet = wire.NewSet(
	NewMetricsServer,
	ProvideEngine,
)

// NewMetricsServer creates a new metrics server from config
func NewMetricsServer(config MetricsConfig) *Server {
	server := NewServer(config)
	// Register HTTP metrics
	if err := middleware.RegisterHttpMetrics(server.GetRegistry()); err != nil {
		log.Warnw("failed to register HTTP metrics", "error", err)
	}
	return server
}

// ProvideEngine registers the engine collectors on the metrics server registry.
func ProvideEngine(server *Server) *Engine {
	return NewEngine(server.GetRegistry())
}
