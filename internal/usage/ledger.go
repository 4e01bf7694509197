package usage

import (
	"context"
	"time"
)

// LedgerService is the AppContext key of the active Ledger.
const LedgerService = "usage.ledger"

// Entry is one recorded stream's usage.
type Entry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Backend   string    `json:"backend"`
	CreatedAt time.Time `json:"created_at"`
	Record
}

// Totals aggregates the entries of one task.
type Totals struct {
	TaskID string    `json:"task_id"`
	Calls  int       `json:"calls"`
	First  time.Time `json:"first,omitzero"`
	Last   time.Time `json:"last,omitzero"`
	Record
}

// Ledger is a Recorder that can be queried.
type Ledger interface {
	Recorder

	// TaskTotals sums every entry recorded under taskID. An unknown task
	// yields zero totals, not an error.
	TaskTotals(ctx context.Context, taskID string) (Totals, error)

	// Entries returns the most recent entries for taskID, newest first.
	// A limit of zero or less means no limit.
	Entries(ctx context.Context, taskID string, limit int) ([]Entry, error)

	// Prune deletes entries created before cutoff and reports how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
