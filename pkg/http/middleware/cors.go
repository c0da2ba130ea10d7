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

package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/sitepulse/sitepulse/pkg/env"
)

var (
	allowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	allowHeaders  = "Origin, X-Requested-With, Content-Type, Accept, X-Sitepulse-Token"
	exposeHeaders = "Content-Length, Content-Type, Cache-Control"
)

// CorsMiddleware 跨域中间件
func CorsMiddleware() fiber.Handler {
	// Allowed dashboard origins come from env:
	//   SITEPULSE_CORS_ALLOW_ORIGINS="http://localhost:5173,http://127.0.0.1:5173"
	// Unset defaults to localhost dev origins.
	allowed := strings.TrimSpace(env.GetEnv("SITEPULSE_CORS_ALLOW_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173"))
	allowedSet := map[string]struct{}{}
	for o := range strings.SplitSeq(allowed, ",") {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "" {
			continue
		}
		allowedSet[o] = struct{}{}
	}

	return cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			origin = strings.ToLower(strings.TrimSpace(origin))
			_, ok := allowedSet[origin]
			return ok
		},
		AllowMethods:  allowMethods,
		AllowHeaders:  allowHeaders,
		ExposeHeaders: exposeHeaders,
	})
}
