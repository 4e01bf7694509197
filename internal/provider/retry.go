package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// StreamFunc produces one attempt of a stream. Implementations must stop
// sending and close the channel once ctx is done.
type StreamFunc func(ctx context.Context) (<-chan StreamEvent, error)

// RetryPolicy controls WithRetry.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt. Values below 1 mean 1.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; it doubles per retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// MaxRetryAfter caps a server retry hint. Zero means no cap.
	MaxRetryAfter time.Duration

	// RetryableStatus decides whether an HTTP status is worth another try.
	// Nil means DefaultRetryableStatus.
	RetryableStatus func(status int) bool
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        10 * time.Second,
		MaxRetryAfter:   30 * time.Second,
		RetryableStatus: DefaultRetryableStatus,
	}
}

// DefaultRetryableStatus accepts timeouts, rate limits and 5xx gateway
// failures.
func DefaultRetryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.RetryableStatus == nil {
		p.RetryableStatus = DefaultRetryableStatus
	}
	return p
}

// Retryable reports whether err may be retried under p.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrProtocol) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if !errors.Is(err, ErrConnection) && !errors.Is(err, ErrTransport) {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		status := p.RetryableStatus
		if status == nil {
			status = DefaultRetryableStatus
		}
		return status(pe.StatusCode)
	}
	return true
}

// RetryOption configures WithRetry.
type RetryOption func(*retrier)

// WithRetryBackend names the backend in RetryError and log lines.
func WithRetryBackend(name string) RetryOption {
	return func(r *retrier) { r.backend = name }
}

// WithRetryLogger logs every scheduled retry.
func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(r *retrier) {
		if l != nil {
			r.logger = l
		}
	}
}

// OnRetry registers a callback invoked before each backoff sleep.
func OnRetry(fn func(attempt int, err error, delay time.Duration)) RetryOption {
	return func(r *retrier) { r.onRetry = fn }
}

type retrier struct {
	policy  RetryPolicy
	backend string
	logger  *slog.Logger
	onRetry func(attempt int, err error, delay time.Duration)
	sleep   func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps op so that failures before the first event are retried
// with exponential backoff. Once an event has been delivered the stream
// is never restarted: later errors reach the caller unchanged.
//
// The returned StreamFunc blocks until the first event, the end of an
// empty stream, or a terminal error.
func WithRetry(op StreamFunc, policy RetryPolicy, opts ...RetryOption) StreamFunc {
	r := &retrier{
		policy: policy.normalized(),
		logger: slog.New(nopHandler{}),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return func(ctx context.Context) (<-chan StreamEvent, error) {
		return r.run(ctx, op)
	}
}

func (r *retrier) run(ctx context.Context, op StreamFunc) (<-chan StreamEvent, error) {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     r.policy.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         r.policy.MaxDelay,
	}
	bo.Reset()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithCancel(ctx)
		first, src, err := firstEvent(attemptCtx, op)
		if err == nil {
			return forward(attemptCtx, cancel, first, src), nil
		}
		cancel()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !r.policy.Retryable(err) {
			return nil, err
		}
		if attempt >= r.policy.MaxAttempts {
			return nil, &RetryError{Backend: r.backend, Attempts: attempt, Last: err}
		}

		delay := min(bo.NextBackOff(), r.policy.MaxDelay)
		if hint := retryAfter(err); hint > 0 {
			delay = hint
			if r.policy.MaxRetryAfter > 0 {
				delay = min(delay, r.policy.MaxRetryAfter)
			}
		}

		r.logger.Warn("stream attempt failed, retrying",
			"backend", r.backend,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if r.onRetry != nil {
			r.onRetry(attempt, err, delay)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// firstEvent starts op and waits for its first element. A nil first with
// a nil error means the stream ended without events.
func firstEvent(ctx context.Context, op StreamFunc) (*StreamEvent, <-chan StreamEvent, error) {
	src, err := op(ctx)
	if err != nil {
		return nil, nil, err
	}

	select {
	case ev, ok := <-src:
		if !ok {
			return nil, src, nil
		}
		if ev.Err != nil {
			return nil, nil, ev.Err
		}
		return &ev, src, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// forward relays first and the rest of src to a fresh channel. cancel is
// released when the relay ends so the producer can exit.
func forward(ctx context.Context, cancel context.CancelFunc, first *StreamEvent, src <-chan StreamEvent) <-chan StreamEvent {
	out := make(chan StreamEvent, 16)
	go func() {
		defer cancel()
		defer close(out)

		if first == nil {
			return
		}
		if !Send(ctx, out, *first) {
			return
		}
		for ev := range src {
			if !Send(ctx, out, ev) {
				return
			}
			if ev.Err != nil {
				return
			}
		}
	}()
	return out
}

func retryAfter(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
