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

package notify

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/internal/pkg/notify/channel"
	"github.com/sitepulse/sitepulse/pkg/log"
	"github.com/sitepulse/sitepulse/pkg/safe"
)

// Dispatcher fans alert events out to the registered channels. A
// failing channel never blocks or aborts delivery to the others.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]channel.IChannel
	settings model.NotificationSettings
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		channels: make(map[string]channel.IChannel),
	}
}

// Register adds or replaces a channel under its own name.
func (d *Dispatcher) Register(ch channel.IChannel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.channels[ch.Name()]; ok {
		_ = old.Close()
	}
	d.channels[ch.Name()] = ch
}

// Unregister removes a channel and closes it.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[name]; ok {
		_ = ch.Close()
		delete(d.channels, name)
	}
}

// SetSettings swaps in the current notification settings snapshot. The
// alert manager calls this on startup and whenever settings change.
func (d *Dispatcher) SetSettings(settings model.NotificationSettings) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = settings
}

// Channels returns the names of the registered channels.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	return names
}

// Dispatch delivers one alert event to every enabled channel and
// returns the per-channel failures. Callers that do not care about
// delivery outcome use Go instead.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, alert *model.Alert) []error {
	var errs []error
	for _, ch := range d.eligible(event) {
		if err := d.deliver(ctx, ch, event, alert); err != nil {
			log.Warnw("notification delivery failed",
				"channel", ch.Name(), "event", event, "alertType", alert.Type, "error", err)
			errs = append(errs, errors.Wrapf(err, "channel %s", ch.Name()))
		}
	}
	return errs
}

// Go dispatches in the background. Failures are logged and dropped so
// the caller's hot path never waits on notification I/O.
func (d *Dispatcher) Go(ctx context.Context, event string, alert *model.Alert) {
	safe.Go(func() {
		d.Dispatch(ctx, event, alert)
	})
}

// deliver runs a single channel with panic isolation.
func (d *Dispatcher) deliver(ctx context.Context, ch channel.IChannel, event string, alert *model.Alert) (err error) {
	if panicked := safe.Do(func() {
		err = ch.Notify(ctx, event, alert)
	}); panicked {
		err = errors.Errorf("channel %s panicked", ch.Name())
	}
	return err
}

// eligible snapshots the channels allowed to receive event under the
// current settings. A channel with no settings row defaults to enabled
// for generated alerts but stays quiet for lifecycle events.
func (d *Dispatcher) eligible(event string) []channel.IChannel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	lifecycle := channel.IsLifecycleEvent(event)
	out := make([]channel.IChannel, 0, len(d.channels))
	for name, ch := range d.channels {
		settings, ok := d.settings.Channels[name]
		if !ok {
			if !lifecycle {
				out = append(out, ch)
			}
			continue
		}
		if !settings.Enabled {
			continue
		}
		if lifecycle && !settings.NotifyOnLifecycle {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// Close shuts every channel down.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, ch := range d.channels {
		if err := ch.Close(); err != nil {
			log.Warnw("close notification channel", "channel", name, "error", err)
		}
		delete(d.channels, name)
	}
}
