// Package cron runs periodic maintenance jobs such as usage ledger
// retention. Schedules are 5-field cron expressions or descriptors like
// "@daily".
package cron

import "context"

// Job defines a periodic background task.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Schedule returns a cron expression (e.g., "*/5 * * * *" or "@hourly").
	Schedule() string

	// Run executes the job. Implementations should check ctx.Done() for
	// graceful cancellation.
	Run(ctx context.Context) error
}
