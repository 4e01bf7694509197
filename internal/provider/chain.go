// Package provider defines the streaming Provider contract shared by every
// backend, its error taxonomy, the retry combinator, health tracking and a
// failover chain.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/llmrelay/internal/model"
)

// nopHandler is a slog.Handler that discards all log records.
// Enabled returns false so slog skips formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// ChainService is the AppContext key of the configured *Chain.
const ChainService = "provider.chain"

// ChainEntry configures a single provider in the chain.
type ChainEntry struct {
	Name        string
	Provider    Provider
	Role        Role
	Health      HealthConfig
	FallbackFor []Role // empty = fallback for all roles
}

type chainEntry struct {
	ChainEntry
	health *healthTracker
}

// ChainOption configures optional Chain behavior.
type ChainOption func(*Chain)

// WithLogger injects a structured logger into the Chain.
// When nil or omitted, all log output is discarded.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// Chain fails over across providers by role. A stream moves to the next
// candidate only while it has produced no event; after that the caller
// owns whatever the chosen provider delivers.
type Chain struct {
	entries []chainEntry
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewChain creates a chain from the given entries.
func NewChain(entries []ChainEntry, opts ...ChainOption) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoProvider
	}

	internal := make([]chainEntry, len(entries))
	for i, e := range entries {
		if e.Provider == nil {
			return nil, fmt.Errorf("%w: entry %q has nil provider", ErrNoProvider, e.Name)
		}
		internal[i] = chainEntry{
			ChainEntry: e,
			health:     newHealthTracker(e.Health),
		}
	}

	c := &Chain{entries: internal}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(nopHandler{})
	}

	for i := range c.entries {
		e := &c.entries[i]
		name := e.Name
		logger := c.logger
		e.health.onStateChange = func(from, to healthState) {
			switch to {
			case stateCooldown:
				logger.Warn("provider entered cooldown",
					"provider", name,
					"backoff", e.health.CurrentBackoff(),
					"failures", e.health.Failures(),
				)
			case stateDead:
				logger.Error("provider marked dead",
					"provider", name,
					"total_failures", e.health.Failures(),
				)
			case stateHealthy:
				logger.Info("provider revived",
					"provider", name,
					"previous_state", from.String(),
				)
			}
		}
	}

	return c, nil
}

// Start launches the background health probe loop.
func (pc *Chain) Start(ctx context.Context) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.cancel != nil {
		return
	}
	ctx, pc.cancel = context.WithCancel(ctx)
	go runHealthChecks(ctx, minHealthCheckInterval(pc.entries), pc.entries)
}

// Stop cancels background health checks.
func (pc *Chain) Stop() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.cancel != nil {
		pc.cancel()
		pc.cancel = nil
	}
}

// Stream sends the conversation to the best available provider for role.
// Retryable failures move on to the next candidate.
func (pc *Chain) Stream(ctx context.Context, role Role, systemPrompt string, conv Conversation) (<-chan StreamEvent, error) {
	candidates := pc.candidates(role)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w for role %q", ErrNoProvider, role)
	}

	var lastErr error
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.health.IsAvailable() {
			continue
		}

		ch, err := e.Provider.Stream(ctx, systemPrompt, conv)
		if err == nil {
			return pc.wrapStream(ctx, ch, e), nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}

		e.health.RecordFailure()
		pc.logger.Warn("provider failed, failing over",
			"provider", e.Name,
			"error", err,
		)
	}

	if lastErr != nil {
		pc.logger.Error("all providers exhausted", "role", role, "last_error", lastErr)
		return nil, fmt.Errorf("%w: last error: %w", ErrAllProviders, lastErr)
	}
	pc.logger.Error("all providers exhausted", "role", role)
	return nil, fmt.Errorf("%w for role %q: all candidates unavailable", ErrAllProviders, role)
}

// wrapStream defers the health verdict to the end of the stream.
func (pc *Chain) wrapStream(ctx context.Context, src <-chan StreamEvent, e *chainEntry) <-chan StreamEvent {
	out := make(chan StreamEvent, cap(src))
	go func() {
		defer close(out)
		var sawError bool
		for ev := range src {
			if ev.Err != nil && IsRetryable(ev.Err) {
				sawError = true
				e.health.RecordFailure()
				pc.logger.Warn("mid-stream error degraded provider health",
					"provider", e.Name,
					"error", ev.Err,
				)
			}
			if !Send(ctx, out, ev) {
				for range src {
				}
				return
			}
		}
		if !sawError {
			e.health.RecordSuccess()
		}
	}()
	return out
}

// GetProvider returns the first available provider for the given role.
func (pc *Chain) GetProvider(role Role) (Provider, error) {
	for _, e := range pc.candidates(role) {
		if e.health.IsAvailable() {
			return e.Provider, nil
		}
	}
	return nil, fmt.Errorf("%w for role %q", ErrNoProvider, role)
}

// ForRole exposes the chain as a Provider bound to role.
func (pc *Chain) ForRole(role Role) Provider {
	return roleProvider{chain: pc, role: role}
}

// EntryStatus is a snapshot of one entry's health.
type EntryStatus struct {
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Status returns the health of every entry in configuration order.
func (pc *Chain) Status() []EntryStatus {
	out := make([]EntryStatus, 0, len(pc.entries))
	for i := range pc.entries {
		e := &pc.entries[i]
		out = append(out, EntryStatus{
			Name:     e.Name,
			Role:     e.Role,
			State:    e.health.State().String(),
			Failures: e.health.Failures(),
		})
	}
	return out
}

type roleProvider struct {
	chain *Chain
	role  Role
}

func (r roleProvider) Stream(ctx context.Context, systemPrompt string, conv Conversation) (<-chan StreamEvent, error) {
	return r.chain.Stream(ctx, r.role, systemPrompt, conv)
}

// ResolveModel reports the descriptor of the provider currently first in
// line, or sane defaults when none is available.
func (r roleProvider) ResolveModel() model.Descriptor {
	p, err := r.chain.GetProvider(r.role)
	if err != nil {
		return model.SaneDefaults("")
	}
	return p.ResolveModel()
}

// minHealthCheckInterval returns the shortest configured check interval.
func minHealthCheckInterval(entries []chainEntry) time.Duration {
	if len(entries) == 0 {
		return 10 * time.Second
	}
	interval := entries[0].Health.checkIntervalOrDefault()
	for i := 1; i < len(entries); i++ {
		interval = min(interval, entries[i].Health.checkIntervalOrDefault())
	}
	return interval
}

// candidates returns entries matching role, direct matches first.
func (pc *Chain) candidates(role Role) []*chainEntry {
	var direct, fallbacks []*chainEntry
	for i := range pc.entries {
		e := &pc.entries[i]
		if e.Role == role {
			direct = append(direct, e)
			continue
		}
		if e.Role == RoleFallback && (len(e.FallbackFor) == 0 || slices.Contains(e.FallbackFor, role)) {
			fallbacks = append(fallbacks, e)
		}
	}
	return append(direct, fallbacks...)
}

// runHealthChecks probes entries that need it until ctx is cancelled.
func runHealthChecks(ctx context.Context, interval time.Duration, entries []chainEntry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range entries {
				e := &entries[i]
				if !e.health.ShouldHealthCheck() {
					continue
				}
				checker, ok := e.Provider.(HealthChecker)
				if !ok {
					continue
				}
				if err := checker.HealthCheck(ctx); err == nil {
					e.health.RecordSuccess()
				}
			}
		}
	}
}
