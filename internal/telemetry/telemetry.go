// Package telemetry bundles the optional observers a provider reports
// to: Prometheus metrics, OpenTelemetry spans and the usage recorder.
// Each is looked up from the AppContext and may be absent.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/llmrelay/internal/core"
	"github.com/flemzord/llmrelay/internal/metrics"
	"github.com/flemzord/llmrelay/internal/provider"
	"github.com/flemzord/llmrelay/internal/tracing"
	"github.com/flemzord/llmrelay/internal/usage"
)

// Hooks holds the observers. The zero value observes nothing.
type Hooks struct {
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
	Recorder usage.Recorder
	Logger   *slog.Logger
}

// Lookup collects whatever observers are registered in ctx.
func Lookup(ctx *core.AppContext) Hooks {
	h := Hooks{Logger: ctx.Logger}
	if svc, ok := ctx.Service(metrics.ServiceName); ok {
		h.Metrics, _ = svc.(*metrics.Metrics)
	}
	if svc, ok := ctx.Service(tracing.ServiceName); ok {
		if tp, ok := svc.(trace.TracerProvider); ok {
			h.Tracer = tracing.Tracer(tp)
		}
	}
	if svc, ok := ctx.Service(usage.RecorderService); ok {
		h.Recorder, _ = svc.(usage.Recorder)
	}
	return h
}

// WrapAttempt traces every attempt of op.
func (h Hooks) WrapAttempt(backend, modelID string, op provider.StreamFunc) provider.StreamFunc {
	if h.Tracer == nil {
		return op
	}
	return tracing.WrapAttempt(h.Tracer, backend, modelID, op)
}

// RetryOptions returns the retry options that log and count retries.
func (h Hooks) RetryOptions(backend string) []provider.RetryOption {
	return []provider.RetryOption{
		provider.WithRetryBackend(backend),
		provider.WithRetryLogger(h.Logger),
		provider.OnRetry(func(int, error, time.Duration) {
			h.Metrics.Retry(backend)
		}),
	}
}

// Observe accounts for a stream started at start. It counts the outcome,
// records first-event latency and forwards usage to metrics and the
// recorder under taskID.
func (h Hooks) Observe(ctx context.Context, backend, taskID string, start time.Time, src <-chan provider.StreamEvent, err error) (<-chan provider.StreamEvent, error) {
	if err != nil {
		h.Metrics.StreamDone(backend, outcome(err))
		return nil, err
	}
	h.Metrics.FirstEvent(backend, time.Since(start))

	out := make(chan provider.StreamEvent, cap(src))
	go func() {
		defer close(out)
		result := metrics.OutcomeOK
		defer func() { h.Metrics.StreamDone(backend, result) }()

		for ev := range src {
			if ev.Err != nil {
				result = outcome(ev.Err)
			}
			if ev.Usage != nil {
				h.recordUsage(ctx, backend, taskID, *ev.Usage)
			}
			if !provider.Send(ctx, out, ev) {
				result = metrics.OutcomeCancelled
				for range src {
				}
				return
			}
		}
	}()
	return out, nil
}

func (h Hooks) recordUsage(ctx context.Context, backend, taskID string, r usage.Record) {
	h.Metrics.Usage(backend, r)
	if h.Recorder == nil {
		return
	}
	if err := h.Recorder.Record(context.WithoutCancel(ctx), taskID, backend, r); err != nil && h.Logger != nil {
		h.Logger.Warn("recording usage failed", "backend", backend, "task_id", taskID, "error", err)
	}
}

func outcome(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return metrics.OutcomeCancelled
	}
	return metrics.OutcomeError
}
