package provider

import (
	"context"

	"github.com/flemzord/llmrelay/internal/model"
)

// Provider streams completions from one LLM backend.
// Concrete implementations live in separate packages (e.g., provider.openai)
// and typically also implement core.Module for lifecycle management.
type Provider interface {
	// Stream starts a completion for the conversation and returns a channel
	// of events. Errors before the first event are returned directly.
	// Later errors arrive as the last element via StreamEvent.Err. The
	// channel is closed when the stream ends; cancel ctx to abandon it.
	Stream(ctx context.Context, systemPrompt string, conv Conversation) (<-chan StreamEvent, error)

	// ResolveModel returns the descriptor used for requests.
	ResolveModel() model.Descriptor
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing. When a provider is in cooldown,
// the health tracker will call HealthCheck periodically to determine
// if the provider has recovered.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Collect drains a stream into a slice. The returned error is the Err of
// the terminal element, if any.
func Collect(ch <-chan StreamEvent) ([]StreamEvent, error) {
	var events []StreamEvent
	for ev := range ch {
		if ev.Err != nil {
			return events, ev.Err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Send delivers ev on ch unless ctx is done first. It reports whether the
// event was delivered.
func Send(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

type taskIDKey struct{}

// WithTaskID attaches a task identifier to ctx. Providers send it as the
// X-Task-ID header where the transport allows and attribute usage to it.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

// TaskID returns the task identifier carried by ctx, or fallback.
func TaskID(ctx context.Context, fallback string) string {
	if id, ok := ctx.Value(taskIDKey{}).(string); ok && id != "" {
		return id
	}
	return fallback
}
