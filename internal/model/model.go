// Package model holds the registry of known model descriptors and the
// resolution rules providers use to pick one for a request.
package model

import "strings"

// Descriptor describes the capabilities and prices of a model.
// Prices are in currency units per token.
type Descriptor struct {
	ID                          string  `json:"id" yaml:"id"`
	ContextWindow               int     `json:"context_window" yaml:"context_window"`
	MaxOutputTokens             int     `json:"max_output_tokens" yaml:"max_output_tokens"`
	SupportsPromptCache         bool    `json:"supports_prompt_cache" yaml:"supports_prompt_cache"`
	SupportsImages              bool    `json:"supports_images" yaml:"supports_images"`
	RequiresAlternateRoleFormat bool    `json:"requires_alternate_role_format" yaml:"requires_alternate_role_format"`
	Temperature                 float64 `json:"temperature" yaml:"temperature"`
	InputPrice                  float64 `json:"input_price" yaml:"input_price"`
	OutputPrice                 float64 `json:"output_price" yaml:"output_price"`
	CacheWritePrice             float64 `json:"cache_write_price" yaml:"cache_write_price"`
	CacheReadPrice              float64 `json:"cache_read_price" yaml:"cache_read_price"`
}

// OutputLimit returns the max_tokens value to send: configured when set,
// else the descriptor's bound. Zero means the field is omitted.
func (d Descriptor) OutputLimit(configured int) int {
	if configured > 0 {
		return configured
	}
	if d.MaxOutputTokens > 0 {
		return d.MaxOutputTokens
	}
	return 0
}

// Price is a per-million-token price entry, the unit vendors publish.
type Price struct {
	Input      float64 `yaml:"input"`
	Output     float64 `yaml:"output"`
	CacheWrite float64 `yaml:"cache_write"`
	CacheRead  float64 `yaml:"cache_read"`
}

const perMillion = 1_000_000

// apply copies p onto d, converting to per-token prices.
func (p Price) apply(d *Descriptor) {
	d.InputPrice = p.Input / perMillion
	d.OutputPrice = p.Output / perMillion
	d.CacheWritePrice = p.CacheWrite / perMillion
	d.CacheReadPrice = p.CacheRead / perMillion
}

// DefaultID is used when neither the caller nor the configuration names a model.
const DefaultID = "default"

// SaneDefaults returns the descriptor used for models nothing else describes.
func SaneDefaults(id string) Descriptor {
	if id == "" {
		id = DefaultID
	}
	return Descriptor{
		ID:              id,
		ContextWindow:   128_000,
		MaxOutputTokens: -1,
		SupportsImages:  true,
		Temperature:     0,
	}
}

// IsReasoningFamily reports whether id belongs to the o1/o3/o4 family,
// which takes a developer role and a reasoning effort instead of a
// temperature.
func IsReasoningFamily(id string) bool {
	id = strings.ToLower(id)
	return strings.Contains(id, "o1") || strings.Contains(id, "o3") || strings.Contains(id, "o4")
}

// IsDeepSeek reports whether id names a DeepSeek model.
func IsDeepSeek(id string) bool {
	return strings.Contains(strings.ToLower(id), "deepseek")
}

// IsR1 reports whether id names a model that forbids the system role and
// adjacent same-role turns.
func IsR1(id string) bool {
	return strings.Contains(strings.ToLower(id), "deepseek-reasoner")
}
