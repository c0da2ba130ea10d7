// Copyright 2025 SitePulse Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package channel

import (
	"context"

	"github.com/sitepulse/sitepulse/internal/engine/model"
)

// Broadcaster pushes an event to connected dashboard clients. The
// websocket service implements it.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Dashboard mirrors alert events onto the realtime websocket stream so
// open dashboards see alerts without polling.
type Dashboard struct {
	broadcaster Broadcaster
}

func NewDashboard(b Broadcaster) *Dashboard {
	return &Dashboard{broadcaster: b}
}

func (d *Dashboard) Name() string {
	return "dashboard"
}

func (d *Dashboard) Notify(_ context.Context, event string, alert *model.Alert) error {
	d.broadcaster.Broadcast(event, alert)
	return nil
}

func (d *Dashboard) Close() error {
	return nil
}
