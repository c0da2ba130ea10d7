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

package http

import (
	"crypto/subtle"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Http defines HTTP server configuration.
type Http struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	AccessLog       bool   `mapstructure:"accessLog"`
	ReadTimeout     int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout    int    `mapstructure:"writeTimeout"` // seconds
	IdleTimeout     int    `mapstructure:"idleTimeout"`  // seconds
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"`
	BodyLimit       int    `mapstructure:"bodyLimit"` // 请求体大小限制（字节）
	Auth            Auth   `mapstructure:"auth"`
}

// Auth carries the opaque shared secret collaborators present on every call.
// Anything beyond this check is out of scope for the engine.
type Auth struct {
	Token string `mapstructure:"token"`
}

// SetDefaults fills zero values with defaults.
func (h *Http) SetDefaults() {
	if h.Host == "" {
		h.Host = "127.0.0.1"
	}
	if h.Port == 0 {
		h.Port = 8080
	}
	if h.ReadTimeout == 0 {
		h.ReadTimeout = 60
	}
	if h.WriteTimeout == 0 {
		h.WriteTimeout = 60
	}
	if h.IdleTimeout == 0 {
		h.IdleTimeout = 60
	}
	if h.ShutdownTimeout == 0 {
		h.ShutdownTimeout = 10
	}
	if h.BodyLimit == 0 {
		h.BodyLimit = 10 * 1024 * 1024 // 10MB
	}
}

// TokenHeader is the request header carrying the shared secret.
const TokenHeader = "X-Sitepulse-Token"

// AuthMiddleware verifies the shared-secret header when a token is configured.
// An empty configured token disables the check (local dev).
func (h *Http) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if h.Auth.Token == "" {
			return c.Next()
		}
		got := c.Get(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Auth.Token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		return c.Next()
	}
}

// QueryInt queries the int value from the query string
func (h *Http) QueryInt(c *fiber.Ctx, key string) int {
	value := c.Query(key)
	if value == "" {
		return 0
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return intValue
}
