package model

import (
	"cmp"
	"slices"
	"sync"
)

// builtin lists the models known without configuration. Prices are per
// million tokens and converted at registration.
var builtin = []struct {
	desc  Descriptor
	price Price
}{
	{
		desc:  Descriptor{ID: "deepseek-chat", ContextWindow: 64_000, MaxOutputTokens: 8_000, SupportsPromptCache: true},
		price: Price{Input: 0, Output: 1.1, CacheWrite: 0.27, CacheRead: 0.07},
	},
	{
		desc:  Descriptor{ID: "deepseek-reasoner", ContextWindow: 64_000, MaxOutputTokens: 8_000, SupportsPromptCache: true, RequiresAlternateRoleFormat: true},
		price: Price{Input: 0, Output: 2.19, CacheWrite: 0.55, CacheRead: 0.14},
	},
	{
		desc:  Descriptor{ID: "gpt-4o", ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsPromptCache: true, SupportsImages: true},
		price: Price{Input: 2.5, Output: 10, CacheRead: 1.25},
	},
	{
		desc:  Descriptor{ID: "gpt-4o-mini", ContextWindow: 128_000, MaxOutputTokens: 16_384, SupportsPromptCache: true, SupportsImages: true},
		price: Price{Input: 0.15, Output: 0.6, CacheRead: 0.075},
	},
	{
		desc:  Descriptor{ID: "gpt-4.1", ContextWindow: 1_047_576, MaxOutputTokens: 32_768, SupportsPromptCache: true, SupportsImages: true},
		price: Price{Input: 2, Output: 8, CacheRead: 0.5},
	},
	{
		desc:  Descriptor{ID: "o1", ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsPromptCache: true, SupportsImages: true},
		price: Price{Input: 15, Output: 60, CacheRead: 7.5},
	},
	{
		desc:  Descriptor{ID: "o3-mini", ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsPromptCache: true},
		price: Price{Input: 1.1, Output: 4.4, CacheRead: 0.55},
	},
	{
		desc:  Descriptor{ID: "o4-mini", ContextWindow: 200_000, MaxOutputTokens: 100_000, SupportsPromptCache: true, SupportsImages: true},
		price: Price{Input: 1.1, Output: 4.4, CacheRead: 0.275},
	},
}

// Registry maps model ids to descriptors. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Descriptor
}

// NewRegistry returns a registry seeded with the built-in models.
func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]Descriptor, len(builtin))}
	for _, b := range builtin {
		d := b.desc
		b.price.apply(&d)
		r.models[d.ID] = d
	}
	return r
}

// Lookup returns the descriptor registered for id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.models[id]
	return d, ok
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[d.ID] = d
}

// ApplyPricing overrides prices from a per-million price table. Unknown
// ids are registered on top of the sane defaults so they can be priced.
func (r *Registry) ApplyPricing(table map[string]Price) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range table {
		d, ok := r.models[id]
		if !ok {
			d = SaneDefaults(id)
		}
		p.apply(&d)
		r.models[id] = d
	}
}

// List returns every registered descriptor sorted by id.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.models))
	for _, d := range r.models {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Resolve picks the descriptor for id: the registry entry if known, else
// the caller override, else SaneDefaults. The result always carries an id.
func (r *Registry) Resolve(id string, override *Descriptor) Descriptor {
	if d, ok := r.Lookup(id); ok {
		return d
	}
	if override != nil {
		d := *override
		if id != "" {
			d.ID = id
		}
		if d.ID == "" {
			d.ID = DefaultID
		}
		return d
	}
	return SaneDefaults(id)
}

// ServiceName is the AppContext key of the configured Registry.
const ServiceName = "models"

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}
