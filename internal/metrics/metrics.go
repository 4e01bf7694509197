// Package metrics exposes Prometheus instruments for streams, retries,
// token usage and WebSocket connections. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/llmrelay/internal/usage"
)

// ServiceName is the key under which Metrics is published in the AppContext.
const ServiceName = "metrics"

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "llmrelay"

// Stream outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Metrics holds every instrument.
type Metrics struct {
	registry *prometheus.Registry

	streams     *prometheus.CounterVec
	firstEvent  *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	tokens      *prometheus.CounterVec
	cost        *prometheus.CounterVec
	dials       *prometheus.CounterVec
	connections *prometheus.GaugeVec
}

// New creates and registers all instruments on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		streams: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streams_total",
				Help:      "Completed streams by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		firstEvent: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "first_event_seconds",
				Help:      "Latency from request to first stream event",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"backend"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Stream attempts retried before the first event",
			},
			[]string{"backend"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens reported by backends, by kind",
			},
			[]string{"backend", "model", "kind"},
		),
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_total",
				Help:      "Accumulated cost computed from reported usage",
			},
			[]string{"backend", "model"},
		),
		dials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_dials_total",
				Help:      "WebSocket dial attempts by outcome",
			},
			[]string{"backend", "outcome"},
		),
		connections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_open_connections",
				Help:      "Open WebSocket connections (0 or 1 per backend)",
			},
			[]string{"backend"},
		),
	}

	m.registry.MustRegister(
		m.streams,
		m.firstEvent,
		m.retries,
		m.tokens,
		m.cost,
		m.dials,
		m.connections,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// StreamDone counts a finished stream.
func (m *Metrics) StreamDone(backend, outcome string) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(backend, outcome).Inc()
}

// FirstEvent records time to first event.
func (m *Metrics) FirstEvent(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.firstEvent.WithLabelValues(backend).Observe(d.Seconds())
}

// Retry counts a scheduled retry.
func (m *Metrics) Retry(backend string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(backend).Inc()
}

// Usage adds a usage record to the token and cost counters.
func (m *Metrics) Usage(backend string, r usage.Record) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(backend, r.Model, "input").Add(float64(r.Input))
	m.tokens.WithLabelValues(backend, r.Model, "output").Add(float64(r.Output))
	m.tokens.WithLabelValues(backend, r.Model, "cache_write").Add(float64(r.CacheWrite))
	m.tokens.WithLabelValues(backend, r.Model, "cache_read").Add(float64(r.CacheRead))
	m.cost.WithLabelValues(backend, r.Model).Add(r.TotalCost)
}

// Dial counts a WebSocket dial attempt.
func (m *Metrics) Dial(backend string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.dials.WithLabelValues(backend, outcome).Inc()
}

// Connected sets the open-connection gauge.
func (m *Metrics) Connected(backend string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.connections.WithLabelValues(backend).Set(v)
}
