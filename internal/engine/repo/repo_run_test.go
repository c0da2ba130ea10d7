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

package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/sitepulse/sitepulse/internal/engine/model"
	"github.com/sitepulse/sitepulse/pkg/database"
)

type testAdapter struct {
	db *gorm.DB
}

func (a *testAdapter) Database() *gorm.DB { return a.db }

func openTestDB(t *testing.T, path string) database.IDatabase {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   "sp_",
			SingularTable: true,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatal(err)
	}
	return &testAdapter{db: db}
}

func newTestDB(t *testing.T) database.IDatabase {
	return openTestDB(t, filepath.Join(t.TempDir(), "test.db"))
}

func sampleRun(id string, start time.Time) *model.PipelineRun {
	stageEnd := start.Add(40 * time.Second)
	return &model.PipelineRun{
		RunId: id,
		Trigger: model.TriggerEvent{
			Type:      model.TriggerTypeGit,
			Source:    "repo:main",
			Timestamp: start,
			Metadata:  map[string]any{"commit": "abc123"},
		},
		Stages: []model.PipelineStage{
			{
				Name:      "build",
				Status:    model.StageStatusCompleted,
				StartTime: &start,
				EndTime:   &stageEnd,
				Duration:  stageEnd.Sub(start).Milliseconds(),
				Data:      map[string]any{"artifacts": float64(3)},
			},
		},
		Status:    model.RunStatusRunning,
		StartTime: start,
	}
}

func TestRunRepo_SaveGetRoundTrip(t *testing.T) {
	db := newTestDB(t)
	r := NewRunRepo(db)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	run := sampleRun("run-1", start)
	if err := r.Save(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("run not found after Save")
	}
	if got.RunId != run.RunId || got.Status != run.Status {
		t.Errorf("round trip mismatch: got %s/%s", got.RunId, got.Status)
	}
	if !got.StartTime.Equal(run.StartTime) {
		t.Errorf("start time mismatch: got %v want %v", got.StartTime, run.StartTime)
	}
	if len(got.Stages) != 1 || got.Stages[0].Name != "build" {
		t.Fatalf("stages not preserved: %+v", got.Stages)
	}
	if got.Stages[0].Duration != run.Stages[0].Duration {
		t.Errorf("stage duration mismatch: got %d want %d", got.Stages[0].Duration, run.Stages[0].Duration)
	}
	if got.Trigger.Metadata["commit"] != "abc123" {
		t.Errorf("trigger metadata not preserved: %+v", got.Trigger.Metadata)
	}
}

func TestRunRepo_SaveIsUpsert(t *testing.T) {
	db := newTestDB(t)
	r := NewRunRepo(db)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	run := sampleRun("run-1", start)
	if err := r.Save(ctx, run); err != nil {
		t.Fatal(err)
	}

	end := start.Add(2 * time.Minute)
	run.Status = model.RunStatusCompleted
	run.Success = true
	run.EndTime = &end
	run.Duration = end.Sub(start).Milliseconds()
	run.ID = 0 // fresh aggregate, not the loaded row
	if err := r.Save(ctx, run); err != nil {
		t.Fatal(err)
	}

	got, err := r.Get(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.RunStatusCompleted || !got.Success {
		t.Errorf("upsert did not replace row: %s success=%v", got.Status, got.Success)
	}

	total, err := Count(db.Database().Model(&model.PipelineRun{}))
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("expected a single row after upsert, got %d", total)
	}
}

func TestRunRepo_PersistedRowSurvivesReopen(t *testing.T) {
	// Write through one handle, reopen the same file, read back.
	path := filepath.Join(t.TempDir(), "engine.db")
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	run := sampleRun("run-restart", start)
	run.Errors = []model.ErrorRecord{{
		Id:        "err-1",
		Stage:     "deploy",
		Type:      "remote",
		Message:   "connection reset",
		Timestamp: start.Add(10 * time.Second),
	}}

	first := NewRunRepo(openTestDB(t, path))
	if err := first.Save(ctx, run); err != nil {
		t.Fatal(err)
	}

	second := NewRunRepo(openTestDB(t, path))
	got, err := second.Get(ctx, "run-restart")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("run missing after reopen")
	}
	if len(got.Errors) != 1 || got.Errors[0].Message != "connection reset" {
		t.Errorf("error records not preserved: %+v", got.Errors)
	}
	if len(got.Stages) != 1 || got.Stages[0].Status != model.StageStatusCompleted {
		t.Errorf("stages not preserved: %+v", got.Stages)
	}
}

func TestRunRepo_ListRecentOrder(t *testing.T) {
	db := newTestDB(t)
	r := NewRunRepo(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := r.Save(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	list, err := r.ListRecent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(list))
	}
	if list[0].RunId != "run-c" || list[1].RunId != "run-b" {
		t.Errorf("wrong order: %s, %s", list[0].RunId, list[1].RunId)
	}
}

func TestRunRepo_DeleteOlderThanKeepsRunning(t *testing.T) {
	db := newTestDB(t)
	r := NewRunRepo(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	doneRun := sampleRun("run-done", old)
	doneRun.Status = model.RunStatusCompleted
	if err := r.Save(ctx, doneRun); err != nil {
		t.Fatal(err)
	}
	if err := r.Save(ctx, sampleRun("run-live", old)); err != nil {
		t.Fatal(err)
	}

	n, err := r.DeleteOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 trimmed row, got %d", n)
	}
	live, err := r.Get(ctx, "run-live")
	if err != nil {
		t.Fatal(err)
	}
	if live == nil {
		t.Error("running row was trimmed")
	}
}
