package usage

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"
)

// MemoryLedger is a thread-safe, in-memory Ledger. It is the fallback
// when no persistent ledger module is configured.
type MemoryLedger struct {
	mu      sync.RWMutex
	seq     int
	entries []Entry
	now     func() time.Time
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: time.Now}
}

// Compile-time interface check.
var _ Ledger = (*MemoryLedger)(nil)

// Record implements Recorder.
func (l *MemoryLedger) Record(_ context.Context, taskID, backend string, r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.entries = append(l.entries, Entry{
		ID:        strconv.Itoa(l.seq),
		TaskID:    taskID,
		Backend:   backend,
		CreatedAt: l.now().UTC(),
		Record:    r,
	})
	return nil
}

// TaskTotals implements Ledger.
func (l *MemoryLedger) TaskTotals(_ context.Context, taskID string) (Totals, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t := Totals{TaskID: taskID}
	for _, e := range l.entries {
		if e.TaskID != taskID {
			continue
		}
		if t.Calls == 0 {
			t.First = e.CreatedAt
		}
		t.Calls++
		t.Last = e.CreatedAt
		t.Add(e.Record)
	}
	return t, nil
}

// Entries implements Ledger.
func (l *MemoryLedger) Entries(_ context.Context, taskID string, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range slices.Backward(l.entries) {
		if e.TaskID != taskID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Prune implements Ledger.
func (l *MemoryLedger) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := len(l.entries)
	l.entries = slices.DeleteFunc(l.entries, func(e Entry) bool {
		return e.CreatedAt.Before(cutoff)
	})
	return int64(before - len(l.entries)), nil
}
