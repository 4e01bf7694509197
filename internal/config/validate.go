package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/llmrelay/internal/core"
	"github.com/flemzord/llmrelay/internal/provider"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, checks that every module ID exists in
// the registry and that the chain only references configured provider
// modules. All problems are reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	providers := 0
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
		if isProviderModule(id) {
			providers++
		}
	}
	if len(cfg.Modules) > 0 && providers == 0 {
		errs = append(errs, errors.New("config: at least one provider.* module must be configured"))
	}

	errs = append(errs, validateChain(cfg)...)
	if _, err := cfg.Health.Parse(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	errs = append(errs, validatePricing(cfg)...)
	errs = append(errs, validateLogging(cfg.Logging)...)

	return errors.Join(errs...)
}

func validateChain(cfg *Config) []error {
	var errs []error
	seen := make(map[string]bool, len(cfg.Chain))
	for i, e := range cfg.Chain {
		switch {
		case e.Module == "":
			errs = append(errs, fmt.Errorf("config: chain[%d]: module is required", i))
			continue
		case !isProviderModule(e.Module):
			errs = append(errs, fmt.Errorf("config: chain[%d]: %q is not a provider module", i, e.Module))
		case seen[e.Module]:
			errs = append(errs, fmt.Errorf("config: chain[%d]: duplicate module %q", i, e.Module))
		}
		seen[e.Module] = true

		if _, ok := cfg.Modules[e.Module]; !ok {
			errs = append(errs, fmt.Errorf("config: chain[%d]: module %q has no entry under modules", i, e.Module))
		}
		if !validRole(e.Role) {
			errs = append(errs, fmt.Errorf("config: chain[%d]: invalid role %q", i, e.Role))
		}
		if len(e.FallbackFor) > 0 && e.Role != string(provider.RoleFallback) {
			errs = append(errs, fmt.Errorf("config: chain[%d]: fallback_for requires role %q", i, provider.RoleFallback))
		}
		for _, r := range e.FallbackFor {
			if !validRole(r) || r == string(provider.RoleFallback) {
				errs = append(errs, fmt.Errorf("config: chain[%d]: invalid fallback_for role %q", i, r))
			}
		}
	}
	return errs
}

func validRole(r string) bool {
	switch provider.Role(r) {
	case provider.RolePrimary, provider.RoleInternal, provider.RoleFallback:
		return true
	}
	return false
}

func validatePricing(cfg *Config) []error {
	var errs []error
	for id, p := range cfg.Pricing {
		if p.Input < 0 || p.Output < 0 || p.CacheWrite < 0 || p.CacheRead < 0 {
			errs = append(errs, fmt.Errorf("config: pricing[%q]: prices must not be negative", id))
		}
	}
	for i, d := range cfg.Models {
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("config: models[%d]: id is required", i))
		}
		if d.InputPrice < 0 || d.OutputPrice < 0 || d.CacheWritePrice < 0 || d.CacheReadPrice < 0 {
			errs = append(errs, fmt.Errorf("config: models[%d]: prices must not be negative", i))
		}
	}
	return errs
}

func validateLogging(l LoggingConfig) []error {
	var errs []error
	if _, err := ParseLevel(l.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: logging.level: %w", err))
	}
	switch l.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format: unsupported %q (text, json)", l.Format))
	}
	return errs
}

// ParseLevel maps a logging.level value to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return lvl, nil
}
