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

// Package trigger drives pipeline runs from cron expressions. It is pure
// glue over the orchestrator's public create operation; the heavier
// trigger detectors (git polling, webhook ingestion) live outside the
// process and call the HTTP surface instead.
package trigger

import (
	"context"
	"time"

	"github.com/robfig/cron"

	"github.com/sitepulse/sitepulse/internal/engine/config"
	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/pkg/log"
)

// RunStarter opens a pipeline run for a trigger event.
type RunStarter interface {
	CreateRun(ctx context.Context, trigger model.TriggerEvent) (string, error)
}

// Scheduled fires CreateRun on the configured cron entries.
type Scheduled struct {
	starter RunStarter
	entries []config.ScheduledTrigger
	cron    *cron.Cron
}

func NewScheduled(starter RunStarter, conf config.TriggersConfig) *Scheduled {
	return &Scheduled{
		starter: starter,
		entries: conf.Scheduled,
		cron:    cron.New(),
	}
}

// Start registers every entry and starts the cron loop. A bad expression
// disables that entry only.
func (s *Scheduled) Start() {
	registered := 0
	for _, entry := range s.entries {
		name := entry.Name
		if err := s.cron.AddFunc(entry.Cron, func() {
			s.fire(name)
		}); err != nil {
			log.Errorw("scheduled trigger disabled", "name", entry.Name, "cron", entry.Cron, "error", err)
			continue
		}
		registered++
	}
	if registered == 0 {
		return
	}
	s.cron.Start()
	log.Infow("scheduled triggers started", "count", registered)
}

// Stop halts the cron loop. Runs already opened keep going.
func (s *Scheduled) Stop() {
	s.cron.Stop()
}

func (s *Scheduled) fire(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runId, err := s.starter.CreateRun(ctx, model.TriggerEvent{
		Type:      model.TriggerTypeScheduled,
		Source:    name,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"schedule": name},
	})
	if err != nil {
		log.Errorw("scheduled trigger failed", "name", name, "error", err)
		return
	}
	log.Infow("scheduled trigger fired", "name", name, "run", runId)
}
