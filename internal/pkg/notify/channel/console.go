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

package channel

import (
	"context"

	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/pkg/log"
)

// Console writes alert events to the engine log. It is always safe to
// enable and serves as the fallback channel in fresh installs.
type Console struct{}

func NewConsole() *Console {
	return &Console{}
}

func (c *Console) Name() string {
	return "console"
}

func (c *Console) Notify(_ context.Context, event string, alert *model.Alert) error {
	log.Infow("alert notification",
		"channel", c.Name(),
		"event", event,
		"alertType", alert.Type,
		"severity", alert.Severity,
		"signature", alert.Signature,
		"occurrences", alert.Occurrences,
		"message", alert.Message,
	)
	return nil
}

func (c *Console) Close() error {
	return nil
}
