// Package sqlite implements the ledger.sqlite module: a persistent usage
// ledger that records the normalized usage of every stream under its task
// id. It uses modernc.org/sqlite (pure Go, no CGO) in WAL mode and prunes
// old entries on a cron schedule.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/llmrelay/internal/core"
	"github.com/flemzord/llmrelay/internal/cron"
	"github.com/flemzord/llmrelay/internal/usage"
)

// ModuleID is the registry identifier of this module.
const ModuleID = "ledger.sqlite"

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module provides a SQLite-backed usage.Ledger.
type Module struct {
	config    Config
	logger    *slog.Logger
	ledger    *Ledger
	scheduler *cron.Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	db, err := openDB(context.TODO(), m.config.Path, m.config.walEnabled(), m.config.BusyTimeout)
	if err != nil {
		return err
	}
	m.ledger = &Ledger{db: db}

	ctx.RegisterService(usage.RecorderService, m.ledger)
	ctx.RegisterService(usage.LedgerService, m.ledger)

	m.logger.Info("usage ledger provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"retention", m.config.Retention,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.ledger.db.PingContext(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Start implements core.Starter. It schedules retention when configured.
func (m *Module) Start() error {
	retention, err := m.config.retention()
	if err != nil || retention == 0 {
		return err
	}

	m.scheduler = cron.NewScheduler(m.logger)
	if err := m.scheduler.RegisterJob(&cron.PruneJob{
		Ledger:       m.ledger,
		Retention:    retention,
		Logger:       m.logger,
		ScheduleExpr: m.config.PruneSchedule,
	}); err != nil {
		return err
	}
	return m.scheduler.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	m.logger.Info("usage ledger stopping")
	if m.scheduler != nil {
		_ = m.scheduler.Stop(ctx)
	}
	if m.ledger != nil {
		return m.ledger.Close()
	}
	return nil
}

// Ledger returns the ledger.
func (m *Module) Ledger() *Ledger {
	return m.ledger
}
