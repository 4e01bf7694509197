// Package app provides the shared entry point for the llmrelay commands:
// it loads configuration, builds the logger and observers, loads modules
// and wires the provider chain.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/llmrelay/internal/config"
	"github.com/flemzord/llmrelay/internal/core"
	"github.com/flemzord/llmrelay/internal/metrics"
	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
	"github.com/flemzord/llmrelay/internal/security"
	"github.com/flemzord/llmrelay/internal/tracing"
	"github.com/flemzord/llmrelay/internal/usage"
)

// RunParams configures Bootstrap and Run.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version is injected at build time via ldflags and logged at startup.
	Version string

	// DataDir overrides data_dir from the configuration.
	DataDir string

	// LogLevel overrides logging.level when non-empty.
	LogLevel string

	// LogOutput receives log records. Default: os.Stderr.
	LogOutput io.Writer
}

// Runtime is a bootstrapped, not yet started, llmrelay process.
type Runtime struct {
	Config  *config.Config
	App     *core.App
	Context *core.AppContext
	Chain   *provider.Chain
	Models  *model.Registry
	Logger  *slog.Logger

	shutdownTracing func(context.Context) error
}

// Ledger returns the active usage ledger: ledger.sqlite when configured,
// the in-memory ledger otherwise.
func (rt *Runtime) Ledger() usage.Ledger {
	if svc, ok := rt.Context.Service(usage.LedgerService); ok {
		if l, ok := svc.(usage.Ledger); ok {
			return l
		}
	}
	return nil
}

// Start starts every module and the chain health probes.
func (rt *Runtime) Start() error {
	return rt.App.Start()
}

// Close stops every module and flushes pending spans.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.App.Stop()
	return rt.shutdownTracing(ctx)
}

// LoadConfig resolves, loads and validates the configuration file.
// It returns the path that was used.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Bootstrap loads configuration, registers shared services, loads every
// configured module and builds the provider chain. Services are
// registered before modules load so providers find them at Provision.
func Bootstrap(ctx context.Context, params RunParams) (*Runtime, error) {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return nil, err
	}

	logging := cfg.Logging
	if params.LogLevel != "" {
		logging.Level = params.LogLevel
	}
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	redactor := NewRedactor(cfg)
	logger, err := NewLogger(out, logging, redactor)
	if err != nil {
		return nil, err
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)

	models := NewRegistry(cfg)
	appCtx.RegisterService(model.ServiceName, models)

	if cfg.Metrics.IsEnabled() {
		appCtx.RegisterService(metrics.ServiceName, metrics.New(cfg.Metrics.Namespace))
	}

	tp, shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	if cfg.Tracing.Enabled {
		appCtx.RegisterService(tracing.ServiceName, tp)
	}

	// ledger.sqlite replaces these during Provision when configured.
	mem := usage.NewMemoryLedger()
	appCtx.RegisterService(usage.RecorderService, mem)
	appCtx.RegisterService(usage.LedgerService, mem)

	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return nil, errors.Join(err, shutdownTracing(ctx))
	}

	chain, err := buildChain(application, cfg, logger)
	if err != nil {
		application.Stop()
		return nil, errors.Join(err, shutdownTracing(ctx))
	}
	appCtx.RegisterService(provider.ChainService, chain)
	application.AppendModule(provider.ChainService, &chainModule{chain: chain})

	logger.Info("llmrelay bootstrapped",
		"version", params.Version,
		"config", cfgPath,
		"data_dir", dataDir,
		"modules", len(ids),
	)

	return &Runtime{
		Config:          cfg,
		App:             application,
		Context:         appCtx,
		Chain:           chain,
		Models:          models,
		Logger:          logger,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Run bootstraps and starts llmrelay, then blocks until ctx is done or a
// shutdown signal is received.
func Run(ctx context.Context, params RunParams) error {
	rt, err := Bootstrap(ctx, params)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.shutdownTracing(context.Background()); err != nil {
			rt.Logger.Warn("tracing shutdown failed", "error", err)
		}
	}()
	return rt.App.Run(ctx)
}

// NewRedactor returns a redactor that knows every secret found in the
// module configurations plus logging.redact.
func NewRedactor(cfg *config.Config) *security.Redactor {
	r := security.NewRedactor()
	for _, node := range cfg.Modules {
		for _, s := range security.CollectSecrets(&node) {
			r.AddLiteral(s)
		}
	}
	for _, s := range cfg.Logging.Redact {
		r.AddLiteral(s)
	}
	return r
}

// NewLogger builds the process logger. Every record passes through the
// redactor before reaching w.
func NewLogger(w io.Writer, cfg config.LoggingConfig, redactor *security.Redactor) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	switch cfg.Format {
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	default:
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// NewRegistry returns the built-in models extended with the configured
// descriptors, then re-priced from the pricing table.
func NewRegistry(cfg *config.Config) *model.Registry {
	reg := model.NewRegistry()
	for _, d := range cfg.Models {
		reg.Register(d)
	}
	reg.ApplyPricing(cfg.Pricing)
	return reg
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/llmrelay/llmrelay.yaml, then
// ~/.config/llmrelay/llmrelay.yaml, then ./llmrelay.yaml.
func ResolveConfigPath() (string, error) {
	candidates := ConfigCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// ConfigCandidates lists the paths ResolveConfigPath tries, in order.
// `llmrelay init` writes to the first one by default.
func ConfigCandidates() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "llmrelay", "llmrelay.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "llmrelay", "llmrelay.yaml"))
	}
	return append(candidates, "llmrelay.yaml")
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/llmrelay if set, otherwise ~/.local/share/llmrelay.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "llmrelay")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "llmrelay")
}
