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

	"github.com/bytedance/sonic"
	fws "github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Message type constants, mirroring the underlying websocket library.
const (
	TextMessage   = fws.TextMessage
	BinaryMessage = fws.BinaryMessage
)

// Conn is one live client connection.
// WriteJSON is safe for concurrent use; reads happen on the serving goroutine only.
type Conn interface {
	// ID returns the opaque connection identifier.
	ID() string

	// RemoteAddr returns the remote address string.
	RemoteAddr() string

	// WriteJSON marshals v and writes it as a single text message.
	WriteJSON(v any) error

	// Close closes the underlying connection.
	Close() error
}

type conn struct {
	id  string
	raw *fws.Conn

	writeMu sync.Mutex
}

func newConn(raw *fws.Conn) *conn {
	return &conn{
		id:  uuid.NewString(),
		raw: raw,
	}
}

func (c *conn) ID() string {
	return c.id
}

func (c *conn) RemoteAddr() string {
	if addr := c.raw.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *conn) WriteJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.raw.WriteMessage(TextMessage, data)
}

func (c *conn) Close() error {
	return c.raw.Close()
}
