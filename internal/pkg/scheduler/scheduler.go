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

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sitepulse/sitepulse/pkg/log"
	"github.com/sitepulse/sitepulse/pkg/safe"
)

// JobFunc is one tick of a recurring job.
type JobFunc func(ctx context.Context) error

// Scheduler runs named recurring jobs. A failing or panicking tick never
// cancels the job's future ticks or any other job.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*job)}
}

// Register schedules fn to run every interval. When runNow is set the first
// tick fires immediately. Re-registering a name atomically replaces the prior
// schedule.
func (s *Scheduler) Register(name string, interval time.Duration, runNow bool, fn JobFunc) {
	if interval <= 0 || fn == nil {
		log.Warnw("scheduler: rejecting invalid job registration", "job", name, "interval", interval)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		name:     name,
		interval: interval,
		fn:       fn,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if prev, ok := s.jobs[name]; ok {
		prev.cancel()
	}
	s.jobs[name] = j
	s.mu.Unlock()

	safe.Go(func() {
		defer close(j.done)
		j.run(ctx, runNow)
	})
	log.Debugw("scheduler: job registered", "job", name, "interval", interval, "runNow", runNow)
}

func (j *job) run(ctx context.Context, runNow bool) {
	if runNow {
		j.tick(ctx)
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

// tick executes one run of the job, absorbing both errors and panics.
func (j *job) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	safe.Do(func() {
		if err := j.fn(ctx); err != nil {
			log.Warnw("scheduler: job tick failed", "job", j.name, "error", err)
		}
	})
}

// Cancel stops one job and waits for its goroutine to exit.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if ok {
		delete(s.jobs, name)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	j.cancel()
	<-j.done
}

// CancelAll stops every job and waits for all goroutines to exit.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.jobs = make(map[string]*job)
	s.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	for _, j := range jobs {
		<-j.done
	}
}

// Names returns the currently registered job names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}
