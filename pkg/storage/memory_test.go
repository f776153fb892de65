package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HatiCode/foresight/pkg/capacity"
	"github.com/HatiCode/foresight/pkg/models"
)

func snapshot(metric string, at time.Time) Snapshot {
	return Snapshot{
		Metric:      metric,
		Kind:        KindCapacity,
		CycleID:     "cycle-1",
		Status:      StatusOK,
		GeneratedAt: at,
		Points:      30,
		Forecast: &models.Forecast{
			Metric:      metric,
			MetricDate:  at.Truncate(24 * time.Hour),
			Forecast7d:  300,
			DaysToLimit: capacity.Days(28),
		},
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := store.Put(ctx, snapshot("disk_d", now)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := store.GetLatest(ctx, "disk_d")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if !found {
		t.Fatal("expected snapshot to be found")
	}
	if got.Forecast == nil || got.Forecast.Forecast7d != 300 {
		t.Errorf("Forecast = %+v", got.Forecast)
	}
	if n, _ := got.Forecast.DaysToLimit.Get(); n != 28 {
		t.Errorf("DaysToLimit = %v, want 28", got.Forecast.DaysToLimit)
	}

	_, found, err = store.GetLatest(ctx, "missing")
	if err != nil || found {
		t.Errorf("missing metric: found=%v err=%v", found, err)
	}
}

func TestMemoryStore_PutReplacesAndValidates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, Snapshot{}); err == nil {
		t.Fatal("expected error for empty metric")
	}

	first := snapshot("sessions", time.Now())
	second := first
	second.Status = StatusSkipped
	second.Reason = "data unavailable"

	_ = store.Put(ctx, first)
	_ = store.Put(ctx, second)

	got, _, _ := store.GetLatest(ctx, "sessions")
	if got.Status != StatusSkipped || got.Reason != "data unavailable" {
		t.Errorf("got %+v", got)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, m := range []string{"sessions", "disk_d", "disk_c"} {
		_ = store.Put(ctx, snapshot(m, time.Now()))
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"disk_c", "disk_d", "sessions"}
	if len(list) != len(want) {
		t.Fatalf("List() len = %d, want %d", len(list), len(want))
	}
	for i, s := range list {
		if s.Metric != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, s.Metric, want[i])
		}
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, snapshot("disk_d", time.Now())); err == nil {
		t.Error("Put: expected context error")
	}
	if _, _, err := store.GetLatest(ctx, "disk_d"); err == nil {
		t.Error("GetLatest: expected context error")
	}
	if _, err := store.List(ctx); err == nil {
		t.Error("List: expected context error")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			metric := fmt.Sprintf("disk_%d", i%5)
			for j := 0; j < 50; j++ {
				if err := store.Put(ctx, snapshot(metric, time.Now())); err != nil {
					t.Errorf("Put failed: %v", err)
				}
				if _, _, err := store.GetLatest(ctx, metric); err != nil {
					t.Errorf("GetLatest failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	if store.Len() != 5 {
		t.Errorf("Len() = %d, want 5", store.Len())
	}
}

func TestMemoryStoreWithTTL_Eviction(t *testing.T) {
	store := NewMemoryStoreWithTTL(50*time.Millisecond, 10*time.Millisecond)
	defer store.Stop()
	ctx := context.Background()

	_ = store.Put(ctx, snapshot("old", time.Now().Add(-time.Hour)))
	_ = store.Put(ctx, snapshot("fresh", time.Now().Add(time.Hour)))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, found, _ := store.GetLatest(ctx, "old"); !found {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, found, _ := store.GetLatest(ctx, "old"); found {
		t.Error("expected stale snapshot to be evicted")
	}
	if _, found, _ := store.GetLatest(ctx, "fresh"); !found {
		t.Error("expected fresh snapshot to be kept")
	}
}

func TestMemoryStore_StopIsIdempotent(t *testing.T) {
	NewMemoryStore().Stop()
	NewMemoryStoreWithTTL(0, 0).Stop()

	store := NewMemoryStoreWithTTL(time.Minute, 0)
	store.Stop()
	store.Stop()
}
