package config

import (
	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/tracing"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for llmrelay.
type Config struct {
	Version string `yaml:"version"`

	// DataDir holds module state (usage ledger). Default: ~/.llmrelay.
	DataDir string `yaml:"data_dir,omitempty"`

	// Modules maps module IDs to their raw YAML configuration.
	Modules map[string]yaml.Node `yaml:"modules"`

	// Chain orders configured provider modules into a failover chain.
	// When empty, every configured provider module is used as primary.
	Chain []ChainEntry `yaml:"chain,omitempty"`

	// Health tunes the chain's failure tracking.
	Health HealthConfig `yaml:"health,omitempty"`

	// Pricing overrides per-million-token prices in the model registry.
	Pricing map[string]model.Price `yaml:"pricing,omitempty"`

	// Models registers extra model descriptors.
	Models []model.Descriptor `yaml:"models,omitempty"`

	Logging LoggingConfig  `yaml:"logging,omitempty"`
	Metrics MetricsConfig  `yaml:"metrics,omitempty"`
	Tracing tracing.Config `yaml:"tracing,omitempty"`
}

// ChainEntry references a provider module by ID.
type ChainEntry struct {
	Module      string   `yaml:"module"`
	Role        string   `yaml:"role"`
	FallbackFor []string `yaml:"fallback_for,omitempty"`
}

// HealthConfig mirrors provider.HealthConfig with string durations.
// Zero values fall back to the chain defaults.
type HealthConfig struct {
	InitialBackoff string `yaml:"initial_backoff,omitempty"`
	MaxBackoff     string `yaml:"max_backoff,omitempty"`
	MaxFailures    int    `yaml:"max_failures,omitempty"`
	CheckInterval  string `yaml:"check_interval,omitempty"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text, json

	// Redact lists extra literal secrets to scrub from log output.
	// Module API keys are added automatically.
	Redact []string `yaml:"redact,omitempty"`
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	Enabled   *bool  `yaml:"enabled,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

// IsEnabled reports whether metrics are enabled. Default: true.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}
