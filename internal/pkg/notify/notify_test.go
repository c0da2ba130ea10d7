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
	"testing"

	"github.com/pkg/errors"

	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/internal/pkg/notify/channel"
)

type fakeChannel struct {
	mu     sync.Mutex
	name   string
	err    error
	panics bool
	events []string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Notify(_ context.Context, event string, _ *model.Alert) error {
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	return f.err
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

func sampleAlert() *model.Alert {
	return &model.Alert{
		Signature: "sig-1",
		Type:      model.AlertTypePipelineFailure,
		Severity:  model.SeverityCritical,
		Message:   "pipeline run failed",
	}
}

func TestDispatchFailureIsolation(t *testing.T) {
	d := NewDispatcher()
	bad := &fakeChannel{name: "bad", err: errors.New("unreachable")}
	worse := &fakeChannel{name: "worse", panics: true}
	good := &fakeChannel{name: "good"}
	d.Register(bad)
	d.Register(worse)
	d.Register(good)

	errs := d.Dispatch(context.Background(), channel.EventAlertGenerated, sampleAlert())
	if len(errs) != 2 {
		t.Fatalf("expected 2 delivery errors, got %d: %v", len(errs), errs)
	}
	if got := good.delivered(); len(got) != 1 || got[0] != channel.EventAlertGenerated {
		t.Fatalf("healthy channel should still deliver, got %v", got)
	}
}

func TestDispatchRespectsEnabledFlag(t *testing.T) {
	d := NewDispatcher()
	off := &fakeChannel{name: "slack"}
	on := &fakeChannel{name: "console"}
	d.Register(off)
	d.Register(on)
	d.SetSettings(model.NotificationSettings{
		Channels: map[string]model.ChannelSettings{
			"slack":   {Name: "slack", Enabled: false},
			"console": {Name: "console", Enabled: true},
		},
	})

	d.Dispatch(context.Background(), channel.EventAlertGenerated, sampleAlert())
	if got := off.delivered(); len(got) != 0 {
		t.Fatalf("disabled channel should not deliver, got %v", got)
	}
	if got := on.delivered(); len(got) != 1 {
		t.Fatalf("enabled channel should deliver once, got %v", got)
	}
}

func TestLifecycleEventsGated(t *testing.T) {
	d := NewDispatcher()
	quiet := &fakeChannel{name: "quiet"}
	loud := &fakeChannel{name: "loud"}
	bare := &fakeChannel{name: "bare"} // no settings row
	d.Register(quiet)
	d.Register(loud)
	d.Register(bare)
	d.SetSettings(model.NotificationSettings{
		Channels: map[string]model.ChannelSettings{
			"quiet": {Name: "quiet", Enabled: true, NotifyOnLifecycle: false},
			"loud":  {Name: "loud", Enabled: true, NotifyOnLifecycle: true},
		},
	})

	d.Dispatch(context.Background(), channel.EventAlertAcknowledged, sampleAlert())
	if got := quiet.delivered(); len(got) != 0 {
		t.Fatalf("channel without lifecycle opt-in should stay quiet, got %v", got)
	}
	if got := bare.delivered(); len(got) != 0 {
		t.Fatalf("unconfigured channel should not get lifecycle events, got %v", got)
	}
	if got := loud.delivered(); len(got) != 1 || got[0] != channel.EventAlertAcknowledged {
		t.Fatalf("opted-in channel should get lifecycle event, got %v", got)
	}
}

func TestRegisterReplacesByName(t *testing.T) {
	d := NewDispatcher()
	d.Register(&fakeChannel{name: "webhook"})
	replacement := &fakeChannel{name: "webhook"}
	d.Register(replacement)

	if got := d.Channels(); len(got) != 1 {
		t.Fatalf("expected 1 channel after replacement, got %v", got)
	}
	d.Dispatch(context.Background(), channel.EventAlertGenerated, sampleAlert())
	if got := replacement.delivered(); len(got) != 1 {
		t.Fatalf("replacement should receive events, got %v", got)
	}
}

func TestEmailMessageFormat(t *testing.T) {
	email, err := channel.NewEmail(channel.EmailConfig{
		Host: "smtp.example.com",
		From: "pulse@example.com",
		To:   []string{"ops@example.com"},
	})
	if err != nil {
		t.Fatalf("NewEmail: %v", err)
	}
	if email.Name() != "email" {
		t.Fatalf("unexpected channel name %q", email.Name())
	}

	if _, err := channel.NewEmail(channel.EmailConfig{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error without from/to")
	}
}

func TestWebhookRequiresDestination(t *testing.T) {
	if _, err := channel.NewWebhook(model.ChannelSettings{Name: "hook"}); err == nil {
		t.Fatal("expected error without destination")
	}
	hook, err := channel.NewWebhook(model.ChannelSettings{
		Name:        "hook",
		Destination: "https://example.com/notify",
	})
	if err != nil {
		t.Fatalf("NewWebhook: %v", err)
	}
	if hook.Name() != "hook" {
		t.Fatalf("unexpected channel name %q", hook.Name())
	}
}
