// Package metrics tracks cache effectiveness and operation latency for the
// rules engine with lock-free counters. A snapshot is derived purely from
// the counters, so reading it is O(1) and never blocks writers.
package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/brewrules/internal/domain"
)

// SlowOperationThreshold is the per-operation latency budget. Operations
// exceeding it are counted and logged.
const SlowOperationThreshold = 100 * time.Millisecond

// Operation is a timed rules-engine operation category.
type Operation int

const (
	OpAvailability Operation = iota
	OpPricing
	OpPrepTime
	OpLoyalty
	numOperations
)

func (o Operation) String() string {
	switch o {
	case OpAvailability:
		return "availability"
	case OpPricing:
		return "pricing"
	case OpPrepTime:
		return "prep_time"
	case OpLoyalty:
		return "loyalty"
	default:
		return "unknown"
	}
}

type cacheCounters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

type opCounters struct {
	count       atomic.Uint64
	totalMicros atomic.Uint64
	slow        atomic.Uint64
}

type Metrics struct {
	cache         map[domain.ConfigKind]*cacheCounters
	ops           [numOperations]opCounters
	slowThreshold time.Duration
	logger        *slog.Logger
	slowOps       otelmetric.Int64Counter
}

type Option func(*Metrics)

// WithSlowThreshold overrides the slow-operation budget; tests use this.
func WithSlowThreshold(d time.Duration) Option {
	return func(m *Metrics) { m.slowThreshold = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Metrics) { m.logger = logger }
}

func New(opts ...Option) *Metrics {
	m := &Metrics{
		cache:         make(map[domain.ConfigKind]*cacheCounters, len(domain.ConfigKinds)),
		slowThreshold: SlowOperationThreshold,
		logger:        slog.Default(),
	}
	for _, kind := range domain.ConfigKinds {
		m.cache[kind] = &cacheCounters{}
	}
	for _, opt := range opts {
		opt(m)
	}

	meter := otel.Meter("brewrules/metrics")
	slowOps, err := meter.Int64Counter("rules.slow_operations",
		otelmetric.WithDescription("Operations that exceeded the latency budget"))
	if err == nil {
		m.slowOps = slowOps
	}

	return m
}

func (m *Metrics) RecordCacheHit(kind domain.ConfigKind) {
	if c, ok := m.cache[kind]; ok {
		c.hits.Add(1)
	}
}

func (m *Metrics) RecordCacheMiss(kind domain.ConfigKind) {
	if c, ok := m.cache[kind]; ok {
		c.misses.Add(1)
	}
}

// StartTimer begins timing one operation. Stop the timer with defer so the
// duration is recorded on error paths too.
func (m *Metrics) StartTimer(op Operation) *Timer {
	return &Timer{metrics: m, op: op, start: time.Now()}
}

type Timer struct {
	metrics *Metrics
	op      Operation
	start   time.Time
	stopped bool
}

// Stop records the elapsed time. Calling Stop more than once is a no-op.
func (t *Timer) Stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.metrics.record(t.op, time.Since(t.start))
}

func (m *Metrics) record(op Operation, elapsed time.Duration) {
	c := &m.ops[op]
	c.count.Add(1)
	c.totalMicros.Add(uint64(elapsed.Microseconds()))

	if elapsed > m.slowThreshold {
		c.slow.Add(1)
		m.logger.Warn("slow rules operation",
			"operation", op.String(),
			"elapsed_ms", elapsed.Milliseconds(),
			"threshold_ms", m.slowThreshold.Milliseconds())
		if m.slowOps != nil {
			m.slowOps.Add(context.Background(), 1,
				otelmetric.WithAttributes(attribute.String("operation", op.String())))
		}
	}
}

// CacheStats is a point-in-time view of one cache kind's counters.
type CacheStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// OperationStats is a point-in-time view of one operation category.
type OperationStats struct {
	Count     uint64  `json:"count"`
	AvgMillis float64 `json:"avg_ms"`
	Slow      uint64  `json:"slow"`
}

// Snapshot aggregates every counter. Counters are read individually without
// locks, so a snapshot is consistent per counter, not across them; that is
// fine for monitoring.
type Snapshot struct {
	Cache      map[domain.ConfigKind]CacheStats `json:"cache"`
	Operations map[string]OperationStats        `json:"operations"`
}

func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Cache:      make(map[domain.ConfigKind]CacheStats, len(m.cache)),
		Operations: make(map[string]OperationStats, int(numOperations)),
	}

	for kind, c := range m.cache {
		hits := c.hits.Load()
		misses := c.misses.Load()
		stats := CacheStats{Hits: hits, Misses: misses}
		if total := hits + misses; total > 0 {
			stats.HitRate = float64(hits) / float64(total)
		}
		snap.Cache[kind] = stats
	}

	for op := Operation(0); op < numOperations; op++ {
		c := &m.ops[op]
		count := c.count.Load()
		stats := OperationStats{Count: count, Slow: c.slow.Load()}
		if count > 0 {
			stats.AvgMillis = float64(c.totalMicros.Load()) / float64(count) / 1000
		}
		snap.Operations[op.String()] = stats
	}

	return snap
}
