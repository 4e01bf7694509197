package cron_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/flemzord/llmrelay/internal/cron"
	"github.com/flemzord/llmrelay/internal/cron/crontest"
)

func TestPruneJob_Defaults(t *testing.T) {
	t.Parallel()

	j := &cron.PruneJob{}
	if j.Name() != "ledger_prune" {
		t.Errorf("Name() = %q", j.Name())
	}
	if j.Schedule() != "@daily" {
		t.Errorf("Schedule() = %q, want @daily", j.Schedule())
	}
	j.ScheduleExpr = "0 3 * * *"
	if j.Schedule() != "0 3 * * *" {
		t.Errorf("Schedule() = %q, want custom", j.Schedule())
	}
}

func TestPruneJob_Run(t *testing.T) {
	t.Parallel()

	p := &crontest.MockPruner{
		PruneFunc: func(context.Context, time.Time) (int64, error) { return 3, nil },
	}
	j := &cron.PruneJob{Ledger: p, Retention: 24 * time.Hour, Logger: slog.Default()}

	before := time.Now()
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	cutoffs := p.Cutoffs()
	if len(cutoffs) != 1 {
		t.Fatalf("Prune calls = %d, want 1", len(cutoffs))
	}
	want := before.Add(-24 * time.Hour)
	if d := cutoffs[0].Sub(want); d < 0 || d > time.Second {
		t.Errorf("cutoff = %v, want about %v", cutoffs[0], want)
	}
}

func TestPruneJob_RunError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	p := &crontest.MockPruner{
		PruneFunc: func(context.Context, time.Time) (int64, error) { return 0, boom },
	}
	j := &cron.PruneJob{Ledger: p, Retention: time.Hour}

	if err := j.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want %v", err, boom)
	}
}

func TestScheduler_RunsMockJob(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(slog.Default())
	job := &crontest.MockJob{NameVal: "mock", ScheduleVal: "@hourly"}
	if err := s.RegisterJob(job); err != nil {
		t.Fatal(err)
	}
	s.RunNow("mock")
	if job.CallCount() != 1 {
		t.Errorf("CallCount = %d, want 1", job.CallCount())
	}
}
