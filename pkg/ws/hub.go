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

package ws

import (
	"sync"
)

// Hub tracks live connections by id.
type Hub interface {
	// Register adds a connection to the hub.
	Register(c Conn)

	// Unregister removes a connection from the hub.
	Unregister(id string)

	// Get returns a connection by id.
	Get(id string) (Conn, bool)

	// Each calls fn for every connection until fn returns false.
	Each(fn func(c Conn) bool)

	// Count returns the number of live connections.
	Count() int
}

type hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewHub creates an empty hub.
func NewHub() Hub {
	return &hub{conns: make(map[string]Conn)}
}

func (h *hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
}

func (h *hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

func (h *hub) Get(id string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

func (h *hub) Each(fn func(c Conn) bool) {
	h.mu.RLock()
	snapshot := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if !fn(c) {
			return
		}
	}
}

func (h *hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
