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
	"github.com/gofiber/fiber/v2"
	fws "github.com/gofiber/websocket/v2"

	"github.com/sitepulse/sitepulse/pkg/log"
)

// Handler receives connection lifecycle callbacks.
type Handler interface {
	// OnConnect is called after the connection is registered.
	// A returned error closes the connection.
	OnConnect(conn Conn) error

	// OnMessage is called for every inbound frame.
	OnMessage(conn Conn, messageType int, data []byte) error

	// OnDisconnect is called once after the read loop ends.
	OnDisconnect(conn Conn, err error)

	// OnError is called for handler errors that did not end the connection.
	OnError(conn Conn, err error)
}

// Handle upgrades the request and serves the connection through the handler.
func Handle(hub Hub, handler Handler) fiber.Handler {
	serve := fws.New(func(raw *fws.Conn) {
		cn := newConn(raw)
		hub.Register(cn)
		defer func() {
			hub.Unregister(cn.ID())
			_ = cn.Close()
		}()

		if err := handler.OnConnect(cn); err != nil {
			log.Warnw("ws connect rejected", "conn", cn.ID(), "error", err)
			return
		}

		var readErr error
		for {
			messageType, data, err := raw.ReadMessage()
			if err != nil {
				readErr = err
				break
			}
			if err := handler.OnMessage(cn, messageType, data); err != nil {
				handler.OnError(cn, err)
			}
		}
		handler.OnDisconnect(cn, readErr)
	})

	return func(c *fiber.Ctx) error {
		if !fws.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return serve(c)
	}
}
