package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flemzord/llmrelay/internal/config"
	"github.com/flemzord/llmrelay/internal/core"
	"github.com/flemzord/llmrelay/internal/provider"
)

// chainModule wraps a *provider.Chain to satisfy core.Module, core.Starter,
// and core.Stopper, so health probes follow the App lifecycle.
type chainModule struct {
	chain *provider.Chain
}

func (m *chainModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: provider.ChainService}
}

func (m *chainModule) Start() error {
	m.chain.Start(context.Background())
	return nil
}

func (m *chainModule) Stop(context.Context) error {
	m.chain.Stop()
	return nil
}

// buildChain turns the configured chain entries into a provider.Chain over
// the loaded provider modules. Must be called after LoadModules.
func buildChain(app *core.App, cfg *config.Config, logger *slog.Logger) (*provider.Chain, error) {
	health, err := cfg.Health.Parse()
	if err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}

	refs := config.ResolveChain(cfg)
	entries := make([]provider.ChainEntry, 0, len(refs))
	for _, ref := range refs {
		mod, ok := app.Module(ref.Module)
		if !ok {
			return nil, fmt.Errorf("chain: module %q is not loaded", ref.Module)
		}
		p, ok := mod.(provider.Provider)
		if !ok {
			return nil, fmt.Errorf("chain: module %q is not a provider", ref.Module)
		}
		entries = append(entries, provider.ChainEntry{
			Name:        ref.Module,
			Provider:    p,
			Role:        provider.Role(ref.Role),
			Health:      health,
			FallbackFor: ref.Roles(),
		})
		logger.Info("chain: registered provider",
			"module", ref.Module,
			"role", ref.Role,
			"model", p.ResolveModel().ID,
		)
	}

	return provider.NewChain(entries, provider.WithLogger(logger.With("component", "chain")))
}
