package memory

import (
	"context"
	"fmt"
	"testing"

	"stream-prober/internal/domain"
)

func record(i int) domain.RunRecord {
	return domain.RunRecord{ID: fmt.Sprintf("run-%d", i), Script: "probe"}
}

func TestStoreKeepsInsertionOrder(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.AppendRun(ctx, record(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "run-0" || runs[2].ID != "run-2" {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestStoreEvictsOldestAtCapacity(t *testing.T) {
	s := NewStore(2)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := s.AppendRun(ctx, record(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	runs, _ := s.ListRuns(ctx)
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-3" {
		t.Fatalf("oldest runs should be evicted: %+v", runs)
	}
	if s.Evicted() != 2 {
		t.Fatalf("expected 2 evictions, got %d", s.Evicted())
	}
}

func TestStoreListReturnsCopy(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()
	_ = s.AppendRun(ctx, record(0))

	runs, _ := s.ListRuns(ctx)
	runs[0].ID = "mutated"

	again, _ := s.ListRuns(ctx)
	if again[0].ID != "run-0" {
		t.Fatalf("callers must not be able to mutate stored runs")
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()
	_ = s.AppendRun(ctx, record(0))
	if err := s.ClearRuns(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	runs, _ := s.ListRuns(ctx)
	if len(runs) != 0 {
		t.Fatalf("store should be empty after clear, got %d", len(runs))
	}
}
