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
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"

	"github.com/sitepulse/sitepulse/internal/engine/model"
)

// EmailConfig carries SMTP relay settings, loaded from the config file
// rather than the per-channel settings row since credentials and relay
// host rarely change at runtime.
type EmailConfig struct {
	Host     string   `mapstructure:"host" json:"host"`
	Port     int      `mapstructure:"port" json:"port"`
	From     string   `mapstructure:"from" json:"from"`
	To       []string `mapstructure:"to" json:"to"`
	Username string   `mapstructure:"username" json:"username"`
	Password string   `mapstructure:"password" json:"password"`
}

func (c *EmailConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 587
	}
}

// sendFunc matches smtp.SendMail, injectable for tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email delivers alert events through an SMTP relay.
type Email struct {
	conf EmailConfig
	send sendFunc
}

func NewEmail(conf EmailConfig) (*Email, error) {
	conf.SetDefaults()
	if conf.Host == "" {
		return nil, errors.New("email channel requires an smtp host")
	}
	if conf.From == "" || len(conf.To) == 0 {
		return nil, errors.New("email channel requires from and to addresses")
	}
	return &Email{conf: conf, send: smtp.SendMail}, nil
}

func (e *Email) Name() string {
	return "email"
}

func (e *Email) Notify(_ context.Context, event string, alert *model.Alert) error {
	var auth smtp.Auth
	if e.conf.Username != "" {
		auth = smtp.PlainAuth("", e.conf.Username, e.conf.Password, e.conf.Host)
	}
	addr := fmt.Sprintf("%s:%d", e.conf.Host, e.conf.Port)
	msg := e.buildMessage(event, alert)
	if err := e.send(addr, auth, e.conf.From, e.conf.To, msg); err != nil {
		return errors.Wrapf(err, "send mail via %s", addr)
	}
	return nil
}

func (e *Email) buildMessage(event string, alert *model.Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.conf.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.conf.To, ", "))
	fmt.Fprintf(&b, "Subject: [sitepulse][%s] %s\r\n", alert.Severity, alert.Type)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Event: %s\r\n", event)
	fmt.Fprintf(&b, "Alert: %s\r\n", alert.Type)
	fmt.Fprintf(&b, "Severity: %s\r\n", alert.Severity)
	fmt.Fprintf(&b, "Message: %s\r\n", alert.Message)
	fmt.Fprintf(&b, "Occurrences: %d\r\n", alert.Occurrences)
	fmt.Fprintf(&b, "First seen: %s\r\n", alert.FirstSeen.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Last seen: %s\r\n", alert.LastSeen.Format("2006-01-02 15:04:05 MST"))
	return []byte(b.String())
}

func (e *Email) Close() error {
	return nil
}
