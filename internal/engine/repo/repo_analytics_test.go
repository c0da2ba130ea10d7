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
	"testing"
	"time"

	"github.com/sitepulse/sitepulse/internal/engine/model"
)

func snapshotAt(ts time.Time, total int) *model.AnalyticsSnapshot {
	return &model.AnalyticsSnapshot{
		Snapshot: model.SnapshotData{
			GeneratedAt: ts,
			Totals:      model.RunTotals{Total: total},
		},
	}
}

func TestAnalyticsRepo_AppendSnapshotTrimsOldest(t *testing.T) {
	r := NewAnalyticsRepo(newTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 1; i <= 5; i++ {
		if err := r.AppendSnapshot(ctx, snapshotAt(base.Add(time.Duration(i)*time.Minute), i), 3); err != nil {
			t.Fatal(err)
		}
	}

	list, err := r.ListSnapshots(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected history bounded at 3, got %d", len(list))
	}
	// Newest first; the two oldest snapshots were evicted.
	if list[0].Snapshot.Totals.Total != 5 || list[2].Snapshot.Totals.Total != 3 {
		t.Errorf("wrong retained window: %d..%d", list[0].Snapshot.Totals.Total, list[2].Snapshot.Totals.Total)
	}
}

func TestAnalyticsRepo_AggregateOverwrite(t *testing.T) {
	r := NewAnalyticsRepo(newTestDB(t))
	ctx := context.Background()

	got, err := r.GetAggregate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected no aggregate initially, got %+v", got)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	for i := 1; i <= 3; i++ {
		agg := &model.AnalyticsAggregate{
			Snapshot: model.SnapshotData{GeneratedAt: now, Totals: model.RunTotals{Total: i}},
		}
		if err := r.SaveAggregate(ctx, agg); err != nil {
			t.Fatal(err)
		}
	}

	got, err = r.GetAggregate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Snapshot.Totals.Total != 3 {
		t.Fatalf("aggregate not overwritten: %+v", got)
	}

	total, err := Count(r.(*AnalyticsRepo).Database().Model(&model.AnalyticsAggregate{}))
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("expected single aggregate row, got %d", total)
	}
}
