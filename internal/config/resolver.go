package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/flemzord/llmrelay/internal/provider"
)

// Resolve returns a sorted list of module IDs from the configuration.
// The deterministic order ensures consistent module loading.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ResolveChain returns the failover chain. Without an explicit chain
// section every configured provider module becomes a primary entry, in
// module ID order.
func ResolveChain(cfg *Config) []ChainEntry {
	if len(cfg.Chain) > 0 {
		return cfg.Chain
	}
	var out []ChainEntry
	for _, id := range Resolve(cfg) {
		if isProviderModule(id) {
			out = append(out, ChainEntry{Module: id, Role: string(provider.RolePrimary)})
		}
	}
	return out
}

// Roles converts the entry's fallback_for list to provider roles.
func (e ChainEntry) Roles() []provider.Role {
	if len(e.FallbackFor) == 0 {
		return nil
	}
	out := make([]provider.Role, len(e.FallbackFor))
	for i, r := range e.FallbackFor {
		out[i] = provider.Role(r)
	}
	return out
}

// Parse converts string durations into a provider.HealthConfig.
func (h HealthConfig) Parse() (provider.HealthConfig, error) {
	out := provider.HealthConfig{MaxFailures: h.MaxFailures}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"initial_backoff", h.InitialBackoff, &out.InitialBackoff},
		{"max_backoff", h.MaxBackoff, &out.MaxBackoff},
		{"check_interval", h.CheckInterval, &out.CheckInterval},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return provider.HealthConfig{}, fmt.Errorf("health.%s: %w", d.name, err)
		}
		if v < 0 {
			return provider.HealthConfig{}, fmt.Errorf("health.%s: must not be negative", d.name)
		}
		*d.dst = v
	}
	return out, nil
}

func isProviderModule(id string) bool {
	return strings.HasPrefix(id, "provider.")
}
