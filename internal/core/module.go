// Package core provides the module system behind llmrelay: a registry of
// named module factories, a YAML-driven lifecycle and a shared service
// lookup used to wire providers, metrics and storage together.
package core

// ModuleID identifies a module in dotted namespace form, e.g. "provider.openai".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is the minimal interface every module implements.
type Module interface {
	ModuleInfo() ModuleInfo
}
