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
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	fws "github.com/fasthttp/websocket"

	"github.com/sitepulse/sitepulse/pkg/log"
	"github.com/sitepulse/sitepulse/pkg/metrics"
	"github.com/sitepulse/sitepulse/pkg/safe"
	"github.com/sitepulse/sitepulse/pkg/ws"
)

// Inbound message types.
const (
	actionSubscribe = "subscribe"
	actionGetStatus = "get_status"
)

// Outbound event types. Alert and pipeline events reuse the same values
// as subscription keys.
const (
	EventWelcome               = "welcome"
	EventSubscriptionConfirmed = "subscription_confirmed"
	EventStatusResponse        = "status_response"
	EventError                 = "error"

	EventPipelineStarted   = "pipeline_started"
	EventPipelineCompleted = "pipeline_completed"
)

type WSRequest struct {
	Type   string   `json:"type"`
	Events []string `json:"events,omitempty"`
}

type WSResponse struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// StatusProvider answers get_status requests. The orchestrator implements
// it; injected through a setter to keep construction acyclic.
type StatusProvider interface {
	Status(ctx context.Context) (any, error)
}

// WSHandle implements the dashboard websocket protocol: a welcome frame on
// connect, per-client event subscriptions, filtered broadcast fan-out and
// direct status replies.
type WSHandle struct {
	hub     ws.Hub
	metrics *metrics.Engine

	mu   sync.RWMutex
	subs map[string]map[string]struct{} // conn id -> subscribed event types

	statusMu sync.RWMutex
	status   StatusProvider
}

func NewWSHandle(hub ws.Hub, engineMetrics *metrics.Engine) *WSHandle {
	return &WSHandle{
		hub:     hub,
		metrics: engineMetrics,
		subs:    make(map[string]map[string]struct{}),
	}
}

// SetStatusProvider wires the status source after construction.
func (h *WSHandle) SetStatusProvider(p StatusProvider) {
	h.statusMu.Lock()
	defer h.statusMu.Unlock()
	h.status = p
}

func (h *WSHandle) OnConnect(conn ws.Conn) error {
	h.mu.Lock()
	h.subs[conn.ID()] = make(map[string]struct{})
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Inc()
	}
	log.Infow("ws client connected", "conn", conn.ID(), "remote", conn.RemoteAddr())
	return conn.WriteJSON(&WSResponse{
		Type: EventWelcome,
		Data: map[string]any{"clientId": conn.ID()},
	})
}

func (h *WSHandle) OnMessage(conn ws.Conn, messageType int, data []byte) error {
	if messageType != ws.TextMessage && messageType != ws.BinaryMessage {
		return nil
	}

	var req WSRequest
	if err := sonic.Unmarshal(data, &req); err != nil {
		return h.sendError(conn, "invalid request")
	}

	switch strings.ToLower(strings.TrimSpace(req.Type)) {
	case actionSubscribe:
		return h.handleSubscribe(conn, req.Events)
	case actionGetStatus:
		h.handleGetStatus(conn)
		return nil
	default:
		return h.sendError(conn, fmt.Sprintf("unknown message type: %s", req.Type))
	}
}

func (h *WSHandle) OnDisconnect(conn ws.Conn, err error) {
	h.mu.Lock()
	delete(h.subs, conn.ID())
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Dec()
	}

	// 客户端主动断开通常会触发 CloseNormalClosure(1000) / CloseGoingAway(1001)
	if err != nil && fws.IsCloseError(err, fws.CloseNormalClosure, fws.CloseGoingAway) {
		var ce *fws.CloseError
		if errors.As(err, &ce) {
			log.Infow("ws client disconnected", "conn", conn.ID(), "remote", conn.RemoteAddr(), "code", ce.Code, "text", ce.Text)
			return
		}
	}
	log.Infow("ws client disconnected", "conn", conn.ID(), "remote", conn.RemoteAddr())
}

func (h *WSHandle) OnError(conn ws.Conn, err error) {
	if err != nil {
		log.Warnw("ws handler error", "conn", conn.ID(), "error", err)
	}
}

// handleSubscribe replaces the client's subscription set wholesale.
func (h *WSHandle) handleSubscribe(conn ws.Conn, events []string) error {
	set := make(map[string]struct{}, len(events))
	confirmed := make([]string, 0, len(events))
	for _, event := range events {
		event = strings.TrimSpace(event)
		if event == "" {
			continue
		}
		if _, dup := set[event]; dup {
			continue
		}
		set[event] = struct{}{}
		confirmed = append(confirmed, event)
	}

	h.mu.Lock()
	if _, ok := h.subs[conn.ID()]; !ok {
		h.mu.Unlock()
		return h.sendError(conn, "connection not registered")
	}
	h.subs[conn.ID()] = set
	h.mu.Unlock()

	return conn.WriteJSON(&WSResponse{
		Type: EventSubscriptionConfirmed,
		Data: map[string]any{"events": confirmed},
	})
}

// handleGetStatus fetches asynchronously and replies to the requester
// only, never as a broadcast.
func (h *WSHandle) handleGetStatus(conn ws.Conn) {
	h.statusMu.RLock()
	provider := h.status
	h.statusMu.RUnlock()
	if provider == nil {
		_ = h.sendError(conn, "status unavailable")
		return
	}

	id := conn.ID()
	safe.Go(func() {
		data, err := provider.Status(context.Background())
		if err != nil {
			log.Warnw("ws status fetch failed", "conn", id, "error", err)
			data = map[string]any{"error": "status unavailable"}
		}
		target, ok := h.hub.Get(id)
		if !ok {
			return
		}
		if err := target.WriteJSON(&WSResponse{Type: EventStatusResponse, Data: data}); err != nil {
			log.Warnw("ws status reply failed", "conn", id, "error", err)
		}
	})
}

// Broadcast fans one event out to every client subscribed to it. A write
// failure on one connection never stops delivery to the rest.
func (h *WSHandle) Broadcast(event string, data any) {
	msg := &WSResponse{Type: event, Data: data}
	h.hub.Each(func(c ws.Conn) bool {
		if !h.subscribed(c.ID(), event) {
			return true
		}
		if err := c.WriteJSON(msg); err != nil {
			log.Warnw("ws broadcast failed", "conn", c.ID(), "event", event, "error", err)
			return true
		}
		if h.metrics != nil {
			h.metrics.Broadcasts.WithLabelValues(event).Inc()
		}
		return true
	})
}

func (h *WSHandle) subscribed(connID, event string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.subs[connID]
	if !ok {
		return false
	}
	_, ok = set[event]
	return ok
}

func (h *WSHandle) sendError(conn ws.Conn, message string) error {
	return conn.WriteJSON(&WSResponse{
		Type: EventError,
		Data: map[string]any{"message": message},
	})
}
