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
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/sitepulse/sitepulse/internal/pkg/notify/channel"
	"github.com/sitepulse/sitepulse/pkg/ws"
)

// fakeConn implements ws.Conn recording every frame written to it.
type fakeConn struct {
	mu       sync.Mutex
	id       string
	writeErr error
	frames   []*WSResponse
}

func (f *fakeConn) ID() string         { return f.id }
func (f *fakeConn) RemoteAddr() string { return "test" }
func (f *fakeConn) Close() error       { return nil }

func (f *fakeConn) WriteJSON(v any) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	resp, ok := v.(*WSResponse)
	if !ok {
		return errors.New("unexpected frame type")
	}
	f.mu.Lock()
	f.frames = append(f.frames, resp)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) received(eventType string) []*WSResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*WSResponse
	for _, fr := range f.frames {
		if fr.Type == eventType {
			out = append(out, fr)
		}
	}
	return out
}

type fixedStatus struct{}

func (fixedStatus) Status(context.Context) (any, error) {
	return map[string]any{"activeRuns": 2}, nil
}

func newWSFixture(t *testing.T) (*WSHandle, ws.Hub) {
	t.Helper()
	hub := ws.NewHub()
	h := NewWSHandle(hub, nil)
	h.SetStatusProvider(fixedStatus{})
	return h, hub
}

func connect(t *testing.T, h *WSHandle, hub ws.Hub, id string) *fakeConn {
	t.Helper()
	c := &fakeConn{id: id}
	hub.Register(c)
	if err := h.OnConnect(c); err != nil {
		t.Fatalf("OnConnect: %v", err)
	}
	return c
}

func subscribe(t *testing.T, h *WSHandle, c *fakeConn, events ...string) {
	t.Helper()
	req := `{"type":"subscribe","events":[`
	for i, e := range events {
		if i > 0 {
			req += ","
		}
		req += `"` + e + `"`
	}
	req += `]}`
	before := len(c.received(EventSubscriptionConfirmed))
	if err := h.OnMessage(c, ws.TextMessage, []byte(req)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := c.received(EventSubscriptionConfirmed); len(got) != before+1 {
		t.Fatalf("expected one more subscription_confirmed, got frames %+v", c.frames)
	}
}

func TestWelcomeCarriesClientId(t *testing.T) {
	h, hub := newWSFixture(t)
	c := connect(t, h, hub, "client-1")

	welcomes := c.received(EventWelcome)
	if len(welcomes) != 1 {
		t.Fatalf("expected one welcome frame, got %d", len(welcomes))
	}
	data, ok := welcomes[0].Data.(map[string]any)
	if !ok || data["clientId"] != "client-1" {
		t.Fatalf("welcome payload missing client id: %+v", welcomes[0].Data)
	}
}

func TestSubscriptionFiltering(t *testing.T) {
	h, hub := newWSFixture(t)
	alertsOnly := connect(t, h, hub, "alerts-only")
	unsubscribed := connect(t, h, hub, "unsubscribed")

	subscribe(t, h, alertsOnly, channel.EventAlertGenerated)

	h.Broadcast(channel.EventAlertGenerated, map[string]any{"signature": "sig-1"})
	h.Broadcast(channel.EventAlertResolved, map[string]any{"signature": "sig-1"})

	if got := alertsOnly.received(channel.EventAlertGenerated); len(got) != 1 {
		t.Fatalf("subscriber should get alert_generated, got %d", len(got))
	}
	if got := alertsOnly.received(channel.EventAlertResolved); len(got) != 0 {
		t.Fatalf("subscriber to alert_generated got alert_resolved: %d frames", len(got))
	}
	if got := unsubscribed.received(channel.EventAlertGenerated); len(got) != 0 {
		t.Fatal("unsubscribed client received alert_generated")
	}
	if got := unsubscribed.received(channel.EventAlertResolved); len(got) != 0 {
		t.Fatal("unsubscribed client received alert_resolved")
	}
}

func TestResubscribeReplacesSet(t *testing.T) {
	h, hub := newWSFixture(t)
	c := connect(t, h, hub, "c1")

	subscribe(t, h, c, channel.EventAlertGenerated)
	subscribe(t, h, c, EventPipelineCompleted)

	h.Broadcast(channel.EventAlertGenerated, nil)
	h.Broadcast(EventPipelineCompleted, nil)

	if got := c.received(channel.EventAlertGenerated); len(got) != 0 {
		t.Fatal("old subscription should be replaced, not merged")
	}
	if got := c.received(EventPipelineCompleted); len(got) != 1 {
		t.Fatalf("new subscription not delivered, frames %+v", c.frames)
	}
}

func TestBroadcastFailureIsolation(t *testing.T) {
	h, hub := newWSFixture(t)
	broken := connect(t, h, hub, "broken")
	healthy := connect(t, h, hub, "healthy")
	subscribe(t, h, broken, EventPipelineCompleted)
	subscribe(t, h, healthy, EventPipelineCompleted)
	broken.writeErr = errors.New("connection reset")

	h.Broadcast(EventPipelineCompleted, map[string]any{"runId": "r1"})

	if got := healthy.received(EventPipelineCompleted); len(got) != 1 {
		t.Fatalf("healthy client should still receive, got %d", len(got))
	}
}

func TestGetStatusRepliesToRequesterOnly(t *testing.T) {
	h, hub := newWSFixture(t)
	requester := connect(t, h, hub, "requester")
	bystander := connect(t, h, hub, "bystander")

	if err := h.OnMessage(requester, ws.TextMessage, []byte(`{"type":"get_status"}`)); err != nil {
		t.Fatalf("get_status: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return len(requester.received(EventStatusResponse)) == 1
	})
	if got := bystander.received(EventStatusResponse); len(got) != 0 {
		t.Fatal("status_response must not be broadcast")
	}
}

func TestDisconnectPurgesSubscriptions(t *testing.T) {
	h, hub := newWSFixture(t)
	c := connect(t, h, hub, "c1")
	subscribe(t, h, c, channel.EventAlertGenerated)

	h.OnDisconnect(c, nil)
	hub.Unregister(c.ID())

	h.Broadcast(channel.EventAlertGenerated, nil)
	if got := c.received(channel.EventAlertGenerated); len(got) != 0 {
		t.Fatal("disconnected client received a broadcast")
	}
}

func TestUnknownMessageType(t *testing.T) {
	h, hub := newWSFixture(t)
	c := connect(t, h, hub, "c1")

	if err := h.OnMessage(c, ws.TextMessage, []byte(`{"type":"shrug"}`)); err != nil {
		t.Fatalf("unknown type should answer, not error: %v", err)
	}
	if got := c.received(EventError); len(got) != 1 {
		t.Fatalf("expected an error frame, got %+v", c.frames)
	}
	if err := h.OnMessage(c, ws.TextMessage, []byte(`{not json`)); err != nil {
		t.Fatalf("bad json should answer, not error: %v", err)
	}
}
