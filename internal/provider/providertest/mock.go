// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Unset funcs panic on call, except ResolveModelFunc which defaults to
// sane defaults. All methods are safe for concurrent use.
type MockProvider struct {
	StreamFunc       func(ctx context.Context, systemPrompt string, conv provider.Conversation) (<-chan provider.StreamEvent, error)
	ResolveModelFunc func() model.Descriptor
	HealthCheckFunc  func(ctx context.Context) error

	mu          sync.Mutex
	StreamCalls int
	HealthCalls int
}

// Stream delegates to StreamFunc and tracks call count.
func (m *MockProvider) Stream(ctx context.Context, systemPrompt string, conv provider.Conversation) (<-chan provider.StreamEvent, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.mu.Unlock()
	return m.StreamFunc(ctx, systemPrompt, conv)
}

// ResolveModel delegates to ResolveModelFunc.
func (m *MockProvider) ResolveModel() model.Descriptor {
	if m.ResolveModelFunc == nil {
		return model.SaneDefaults("mock")
	}
	return m.ResolveModelFunc()
}

// HealthCheck delegates to HealthCheckFunc and tracks call count.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	return m.HealthCheckFunc(ctx)
}

// Calls returns the number of Stream calls so far.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StreamCalls
}

// Events returns a closed channel holding evs, in order.
func Events(evs ...provider.StreamEvent) <-chan provider.StreamEvent {
	ch := make(chan provider.StreamEvent, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

// Interface guards.
var (
	_ provider.Provider      = (*MockProvider)(nil)
	_ provider.HealthChecker = (*MockProvider)(nil)
)
