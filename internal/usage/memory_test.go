package usage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryLedger_TaskTotals(t *testing.T) {
	t.Parallel()

	l := NewMemoryLedger()
	ctx := context.Background()

	_ = l.Record(ctx, "t1", "openai", Record{Counters: Counters{Input: 10, Output: 5}, Model: "gpt-4o", TotalCost: 0.5})
	_ = l.Record(ctx, "t1", "websocket", Record{Counters: Counters{Input: 1, Output: 1, CacheRead: 3}, TotalCost: 0.25})
	_ = l.Record(ctx, "t2", "openai", Record{Counters: Counters{Input: 100}})

	got, err := l.TaskTotals(ctx, "t1")
	if err != nil {
		t.Fatalf("TaskTotals: %v", err)
	}
	if got.Calls != 2 || got.Input != 11 || got.Output != 6 || got.CacheRead != 3 {
		t.Errorf("totals = %+v", got)
	}
	if got.TotalCost != 0.75 {
		t.Errorf("TotalCost = %v, want 0.75", got.TotalCost)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("Model = %q, want first recorded model", got.Model)
	}

	empty, err := l.TaskTotals(ctx, "unknown")
	if err != nil || empty.Calls != 0 || empty.TaskID != "unknown" {
		t.Errorf("unknown task = %+v, %v", empty, err)
	}
}

func TestMemoryLedger_EntriesNewestFirst(t *testing.T) {
	t.Parallel()

	l := NewMemoryLedger()
	ctx := context.Background()
	for i := range 5 {
		_ = l.Record(ctx, "t", "b", Record{Counters: Counters{Input: i}})
	}

	got, err := l.Entries(ctx, "t", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []int{4, 3, 2} {
		if got[i].Input != want {
			t.Errorf("entries[%d].Input = %d, want %d", i, got[i].Input, want)
		}
	}

	all, _ := l.Entries(ctx, "t", 0)
	if len(all) != 5 {
		t.Errorf("unlimited len = %d, want 5", len(all))
	}
}

func TestMemoryLedger_Prune(t *testing.T) {
	t.Parallel()

	l := NewMemoryLedger()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	l.now = func() time.Time { return clock }

	ctx := context.Background()
	for i := range 4 {
		clock = base.Add(time.Duration(i) * time.Hour)
		_ = l.Record(ctx, "t", "b", Record{})
	}

	n, err := l.Prune(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	tot, _ := l.TaskTotals(ctx, "t")
	if tot.Calls != 2 || !tot.First.Equal(base.Add(2*time.Hour)) {
		t.Errorf("after prune = %+v", tot)
	}
}

func TestMemoryLedger_Concurrent(t *testing.T) {
	t.Parallel()

	l := NewMemoryLedger()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Record(ctx, fmt.Sprintf("t%d", i%2), "b", Record{Counters: Counters{Output: 1}})
		}()
	}
	wg.Wait()

	a, _ := l.TaskTotals(ctx, "t0")
	b, _ := l.TaskTotals(ctx, "t1")
	if a.Output+b.Output != 20 {
		t.Errorf("total output = %d, want 20", a.Output+b.Output)
	}
}
