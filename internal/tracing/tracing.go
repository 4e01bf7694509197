// Package tracing sets up OpenTelemetry export and wraps stream attempts
// in spans.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flemzord/llmrelay/internal/provider"
)

// ServiceName is the key under which the trace.TracerProvider is
// published in the AppContext.
const ServiceName = "tracer"

const instrumentationName = "github.com/flemzord/llmrelay"

// Config controls OTLP export.
type Config struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

func (c *Config) defaults() {
	if c.ServiceName == "" {
		c.ServiceName = "llmrelay"
	}
	if c.SampleRatio <= 0 || c.SampleRatio > 1 {
		c.SampleRatio = 1
	}
}

// Setup builds a tracer provider exporting over OTLP/HTTP. When tracing
// is disabled it returns a no-op provider. shutdown flushes pending spans.
func Setup(ctx context.Context, cfg Config) (tp trace.TracerProvider, shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}
	cfg.defaults()

	opts := []otlptracehttp.Option{}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return sdk, sdk.Shutdown, nil
}

// Inject writes the trace context carried by ctx into h using the global
// propagator. It is a no-op until Setup has enabled tracing.
func Inject(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// Tracer returns the package tracer from tp, or a no-op tracer when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// WrapAttempt runs every invocation of op inside its own span. The span
// ends with the stream and records the event count and any error.
func WrapAttempt(tracer trace.Tracer, backend, modelID string, op provider.StreamFunc) provider.StreamFunc {
	if tracer == nil {
		return op
	}
	return func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		ctx, span := tracer.Start(ctx, "llm.stream.attempt",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("llm.backend", backend),
				attribute.String("llm.model", modelID),
			),
		)
		start := time.Now()

		src, err := op(ctx)
		if err != nil {
			endWithError(span, err)
			return nil, err
		}

		out := make(chan provider.StreamEvent, cap(src))
		go func() {
			defer close(out)
			events := 0
			var streamErr error
			defer func() {
				if streamErr != nil {
					endWithError(span, streamErr)
					return
				}
				span.SetAttributes(attribute.Int("llm.events", events))
				span.SetStatus(codes.Ok, "")
				span.End()
			}()

			for ev := range src {
				if ev.Err != nil {
					streamErr = ev.Err
				} else {
					if events == 0 {
						span.SetAttributes(attribute.Int64("llm.first_event_ms", time.Since(start).Milliseconds()))
					}
					events++
					if ev.Usage != nil {
						span.SetAttributes(
							attribute.Int("llm.usage.input_tokens", ev.Usage.Input),
							attribute.Int("llm.usage.output_tokens", ev.Usage.Output),
							attribute.Float64("llm.usage.cost", ev.Usage.TotalCost),
						)
					}
				}
				if !provider.Send(ctx, out, ev) {
					streamErr = ctx.Err()
					for range src {
					}
					return
				}
			}
		}()
		return out, nil
	}
}

func endWithError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, errorKind(err))
	span.End()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, provider.ErrProtocol):
		return "protocol"
	case errors.Is(err, provider.ErrTransport):
		return "transport"
	case errors.Is(err, provider.ErrConnection):
		return "connection"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}
