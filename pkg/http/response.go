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
	"github.com/gofiber/fiber/v2"
)

// ResCode pairs an application code with its default message.
type ResCode struct {
	Code int
	Msg  string
}

var (
	Success                       = ResCode{Code: 0, Msg: "success"}
	Failed                        = ResCode{Code: 1, Msg: "failed"}
	BadRequest                    = ResCode{Code: 400, Msg: "bad request"}
	Unauthorized                  = ResCode{Code: 401, Msg: "unauthorized"}
	NotFound                      = ResCode{Code: 404, Msg: "not found"}
	RequestParameterParsingFailed = ResCode{Code: 4001, Msg: "request parameter parsing failed"}
)

// Rep is the uniform response envelope.
type Rep struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
	Path string `json:"path,omitempty"`
}

// WithRepMsg writes a success envelope with data.
func WithRepMsg(c *fiber.Ctx, data any) error {
	return c.JSON(&Rep{
		Code: Success.Code,
		Msg:  Success.Msg,
		Data: data,
	})
}

// WithRepErrMsg writes an error envelope. The HTTP status stays 200; the
// application code carries the outcome, callers switch on it.
func WithRepErrMsg(c *fiber.Ctx, code int, msg, path string) error {
	return c.JSON(&Rep{
		Code: code,
		Msg:  msg,
		Path: path,
	})
}
