package sqlite

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/llmrelay/internal/cron"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "usage.db"
)

// Config holds the SQLite ledger module configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/usage.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// Retention is how long entries are kept, e.g. "720h". Empty keeps
	// everything and disables the prune job.
	Retention string `yaml:"retention"`

	// PruneSchedule is the cron schedule of the prune job. Defaults to "@daily".
	PruneSchedule string `yaml:"prune_schedule"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = "@daily"
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

// retention returns the parsed retention, zero when unset.
func (c *Config) retention() (time.Duration, error) {
	if c.Retention == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Retention)
	if err != nil {
		return 0, fmt.Errorf("sqlite: invalid retention %q: %w", c.Retention, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("sqlite: retention must be positive, got %s", d)
	}
	return d, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout))
	}
	if _, err := c.retention(); err != nil {
		errs = append(errs, err)
	}
	if err := cron.ValidateSchedule(c.PruneSchedule); err != nil {
		errs = append(errs, fmt.Errorf("sqlite: prune_schedule: %w", err))
	}
	return errors.Join(errs...)
}
