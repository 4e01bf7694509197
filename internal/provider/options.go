package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/llmrelay/internal/model"
)

// Options is the configuration shared by every backend module.
type Options struct {
	BaseURL         string            `yaml:"base_url"`
	APIKey          string            `yaml:"api_key"`
	APIVersion      string            `yaml:"api_version"`
	TaskID          string            `yaml:"task_id"`
	Model           string            `yaml:"model"`
	ModelInfo       *model.Descriptor `yaml:"model_info"`
	Temperature     *float64          `yaml:"temperature"`
	ReasoningEffort string            `yaml:"reasoning_effort"`
	MaxTokens       int               `yaml:"max_tokens"`
	Headers         map[string]string `yaml:"headers"`
	Retry           RetryConfig       `yaml:"retry"`
}

// RetryConfig is the YAML form of RetryPolicy.
type RetryConfig struct {
	MaxAttempts     int    `yaml:"max_attempts"`
	BaseDelay       string `yaml:"base_delay"`
	MaxDelay        string `yaml:"max_delay"`
	MaxRetryAfter   string `yaml:"max_retry_after"`
	RetryableStatus []int  `yaml:"retryable_status"`
}

// Policy converts c into a RetryPolicy, starting from DefaultRetryPolicy.
func (c RetryConfig) Policy() (RetryPolicy, error) {
	p := DefaultRetryPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}

	var errs []error
	parse := func(name, v string, dst *time.Duration) {
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("retry.%s: invalid duration %q: %w", name, v, err))
			return
		}
		if d < 0 {
			errs = append(errs, fmt.Errorf("retry.%s: must not be negative", name))
			return
		}
		*dst = d
	}
	parse("base_delay", c.BaseDelay, &p.BaseDelay)
	parse("max_delay", c.MaxDelay, &p.MaxDelay)
	parse("max_retry_after", c.MaxRetryAfter, &p.MaxRetryAfter)

	if len(c.RetryableStatus) > 0 {
		allowed := make(map[int]bool, len(c.RetryableStatus))
		for _, s := range c.RetryableStatus {
			allowed[s] = true
		}
		p.RetryableStatus = func(status int) bool { return allowed[status] }
	}

	if err := errors.Join(errs...); err != nil {
		return RetryPolicy{}, err
	}
	if p.MaxDelay < p.BaseDelay {
		return RetryPolicy{}, fmt.Errorf("retry.max_delay (%s) is shorter than retry.base_delay (%s)", p.MaxDelay, p.BaseDelay)
	}
	return p, nil
}

// Resolve returns the descriptor for the configured model from reg.
func (o Options) Resolve(reg *model.Registry) model.Descriptor {
	if reg == nil {
		reg = model.Default()
	}
	return reg.Resolve(o.Model, o.ModelInfo)
}
