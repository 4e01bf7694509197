package cron

import (
	"context"
	"log/slog"
	"time"
)

// Pruner is the part of usage.Ledger the retention job needs.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneJob deletes ledger entries older than Retention.
type PruneJob struct {
	Ledger       Pruner
	Retention    time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = "@daily"

	now func() time.Time
}

// Compile-time interface check.
var _ Job = (*PruneJob)(nil)

// Name implements Job.
func (j *PruneJob) Name() string { return "ledger_prune" }

// Schedule implements Job.
func (j *PruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@daily"
}

// Run deletes entries created before now minus Retention.
func (j *PruneJob) Run(ctx context.Context) error {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	cutoff := now().Add(-j.Retention)

	n, err := j.Ledger.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 && j.Logger != nil {
		j.Logger.Info("cron: pruned usage entries", "count", n, "cutoff", cutoff)
	}
	return nil
}
