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
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/sitepulse/sitepulse/internal/engine/model"
)

const defaultWebhookTimeout = 10 * time.Second

// Webhook POSTs alert events as JSON to an external endpoint.
type Webhook struct {
	name   string
	url    string
	client *resty.Client
}

// webhookPayload is the body delivered to the remote endpoint.
type webhookPayload struct {
	Event     string       `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
	Alert     *model.Alert `json:"alert"`
}

// NewWebhook builds a webhook channel from channel settings. The
// destination is the target URL; a non-empty credential is sent as a
// bearer token.
func NewWebhook(settings model.ChannelSettings) (*Webhook, error) {
	if settings.Destination == "" {
		return nil, errors.New("webhook channel requires a destination url")
	}
	timeout := defaultWebhookTimeout
	if settings.TimeoutSeconds > 0 {
		timeout = time.Duration(settings.TimeoutSeconds) * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "sitepulse-notify")
	if settings.Credential != "" {
		client.SetAuthToken(settings.Credential)
	}
	name := settings.Name
	if name == "" {
		name = "webhook"
	}
	return &Webhook{name: name, url: settings.Destination, client: client}, nil
}

func (w *Webhook) Name() string {
	return w.name
}

func (w *Webhook) Notify(ctx context.Context, event string, alert *model.Alert) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(&webhookPayload{
			Event:     event,
			Timestamp: time.Now(),
			Alert:     alert,
		}).
		Post(w.url)
	if err != nil {
		return errors.Wrapf(err, "post webhook %s", w.url)
	}
	if resp.IsError() {
		return errors.Errorf("webhook %s returned status %d", w.url, resp.StatusCode())
	}
	return nil
}

func (w *Webhook) Close() error {
	return nil
}
