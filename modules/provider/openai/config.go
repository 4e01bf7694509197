package openai

import (
	"fmt"
	"time"

	"github.com/flemzord/llmrelay/internal/provider"
)

// DefaultAzureAPIVersion is used for Azure deployments when api_version is unset.
const DefaultAzureAPIVersion = "2024-08-01-preview"

// Config holds the configuration for the OpenAI provider module.
type Config struct {
	provider.Options `yaml:",inline"`

	// Timeout bounds the wait for response headers. The body of a stream
	// is bounded only by the caller's context.
	Timeout string `yaml:"timeout"`

	// RequestsPerMinute paces outgoing requests client side. Zero disables.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// defaults fills zero-valued fields with sensible defaults.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
}

// parsedTimeout returns the timeout as a time.Duration.
// Assumes the value has been validated by validateTimeout.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// validateTimeout checks that the timeout string is a valid Go duration.
func (c *Config) validateTimeout() error {
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("provider.openai: invalid timeout %q: %w", c.Timeout, err)
	}
	return nil
}
