package gateway

import (
	"sync/atomic"
	"time"
)

// Stats tracks gateway-level stream counters using atomic operations.
// Prometheus collectors cover the provider side; Stats backs /status.
type Stats struct {
	streams      atomic.Int64
	errors       atomic.Int64
	inFlight     atomic.Int64
	totalTokens  atomic.Int64
	totalCost    atomic.Uint64 // micro-dollars
	totalLatency atomic.Int64  // nanoseconds
}

// begin marks a stream as in flight.
func (s *Stats) begin() { s.inFlight.Add(1) }

// RecordStream records a completed stream.
func (s *Stats) RecordStream(tokens int, cost float64, latency time.Duration) {
	s.inFlight.Add(-1)
	s.streams.Add(1)
	s.totalTokens.Add(int64(tokens))
	s.totalCost.Add(uint64(cost * 1e6))
	s.totalLatency.Add(int64(latency))
}

// RecordError records a stream that failed.
func (s *Stats) RecordError() {
	s.inFlight.Add(-1)
	s.errors.Add(1)
}

// Snapshot returns a point-in-time view of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	streams := s.streams.Load()
	snap := StatsSnapshot{
		Streams:     streams,
		Errors:      s.errors.Load(),
		InFlight:    s.inFlight.Load(),
		TotalTokens: s.totalTokens.Load(),
		TotalCost:   float64(s.totalCost.Load()) / 1e6,
	}
	if streams > 0 {
		snap.AvgLatency = time.Duration(s.totalLatency.Load() / streams)
	}
	return snap
}

// StatsSnapshot is a serializable point-in-time stats view.
type StatsSnapshot struct {
	Streams     int64         `json:"streams"`
	Errors      int64         `json:"errors"`
	InFlight    int64         `json:"in_flight"`
	TotalTokens int64         `json:"total_tokens"`
	TotalCost   float64       `json:"total_cost"`
	AvgLatency  time.Duration `json:"avg_latency_ns"`
}
