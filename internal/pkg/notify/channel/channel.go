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

// Lifecycle events a channel may be asked to deliver.
const (
	EventAlertGenerated    = "alert_generated"
	EventAlertAcknowledged = "alert_acknowledged"
	EventAlertResolved     = "alert_resolved"
)

// IsLifecycleEvent reports whether event is an acknowledge/resolve
// notification rather than a newly generated alert.
func IsLifecycleEvent(event string) bool {
	return event == EventAlertAcknowledged || event == EventAlertResolved
}

// IChannel is a single notification destination.
type IChannel interface {
	// Name returns the channel identifier used in settings.
	Name() string

	// Notify delivers one alert event. Implementations must not panic
	// and should honor ctx for network I/O.
	Notify(ctx context.Context, event string, alert *model.Alert) error

	// Close releases any resources held by the channel.
	Close() error
}
