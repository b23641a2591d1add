package configstore

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/joao-fontenele/brewrules/internal/domain"
)

// DefaultTTL is how long a cached configuration kind stays fresh.
const DefaultTTL = 60 * time.Second

// Source reads the four configuration kinds from durable storage.
type Source interface {
	LoadAvailability(ctx context.Context) (map[string]domain.AvailabilityRecord, error)
	LoadPricingRules(ctx context.Context) ([]domain.PricingRule, error)
	LoadPrepTimes(ctx context.Context) (map[string]domain.PrepTimeSetting, error)
	LoadLoyalty(ctx context.Context) (domain.LoyaltySettings, error)
}

// Recorder receives cache hit/miss signals, one per get.
type Recorder interface {
	RecordCacheHit(kind domain.ConfigKind)
	RecordCacheMiss(kind domain.ConfigKind)
}

// Store caches the four configuration kinds with bounded staleness. Each
// kind refreshes independently using a double-checked staleness pattern: a
// shared-read freshness check first, then an exclusive re-check before the
// durable read, so N concurrent callers of a stale kind trigger one load.
//
// If a refresh fails and a previous value exists, the stale value is served
// and the failure logged; callers only see an error when nothing was ever
// loaded.
type Store struct {
	source   Source
	recorder Recorder
	logger   *slog.Logger

	availability entry[map[string]domain.AvailabilityRecord]
	pricing      entry[[]domain.PricingRule]
	prepTimes    entry[map[string]domain.PrepTimeSetting]
	loyalty      entry[domain.LoyaltySettings]
}

type entry[T any] struct {
	mu          sync.RWMutex
	ttl         time.Duration
	value       T
	loaded      bool
	refreshedAt time.Time
}

func (e *entry[T]) fresh(now time.Time) bool {
	return e.loaded && !e.refreshedAt.IsZero() && now.Sub(e.refreshedAt) < e.ttl
}

type Option func(*Store)

// WithTTL overrides the freshness window for every kind.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.availability.ttl = ttl
		s.pricing.ttl = ttl
		s.prepTimes.ttl = ttl
		s.loyalty.ttl = ttl
	}
}

// WithRecorder wires cache hit/miss reporting.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func New(source Source, opts ...Option) *Store {
	s := &Store{
		source: source,
		logger: slog.Default(),
	}
	WithTTL(DefaultTTL)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Availability returns the cached availability records keyed by item id.
func (s *Store) Availability(ctx context.Context) (map[string]domain.AvailabilityRecord, error) {
	return get(ctx, s, domain.KindAvailability, &s.availability, s.source.LoadAvailability, cloneMap)
}

// PricingRules returns the cached pricing rules.
func (s *Store) PricingRules(ctx context.Context) ([]domain.PricingRule, error) {
	return get(ctx, s, domain.KindPricing, &s.pricing, s.source.LoadPricingRules, slices.Clone)
}

// PrepTimes returns the cached prep-time settings keyed by item id.
func (s *Store) PrepTimes(ctx context.Context) (map[string]domain.PrepTimeSetting, error) {
	return get(ctx, s, domain.KindPrepTime, &s.prepTimes, s.source.LoadPrepTimes, cloneMap)
}

// Loyalty returns the cached loyalty settings.
func (s *Store) Loyalty(ctx context.Context) (domain.LoyaltySettings, error) {
	return get(ctx, s, domain.KindLoyalty, &s.loyalty, s.source.LoadLoyalty, cloneLoyalty)
}

// Warm eagerly populates every kind. Individual failures are logged and
// tolerated; Warm errors only when no kind could be loaded at all.
func (s *Store) Warm(ctx context.Context) error {
	var failed int
	var firstErr error
	for _, kind := range domain.ConfigKinds {
		var err error
		switch kind {
		case domain.KindAvailability:
			_, err = s.Availability(ctx)
		case domain.KindPricing:
			_, err = s.PricingRules(ctx)
		case domain.KindPrepTime:
			_, err = s.PrepTimes(ctx)
		case domain.KindLoyalty:
			_, err = s.Loyalty(ctx)
		}
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Warn("failed to warm configuration", "kind", kind, "error", err)
		}
	}
	if failed == len(domain.ConfigKinds) {
		return fmt.Errorf("configuration source unreachable: %w", firstErr)
	}
	return nil
}

// Invalidate marks a kind stale so the next get refreshes from the source.
// The last-known value is kept for degraded reads.
func (s *Store) Invalidate(kind domain.ConfigKind) {
	switch kind {
	case domain.KindAvailability:
		invalidate(&s.availability)
	case domain.KindPricing:
		invalidate(&s.pricing)
	case domain.KindPrepTime:
		invalidate(&s.prepTimes)
	case domain.KindLoyalty:
		invalidate(&s.loyalty)
	}
}

func invalidate[T any](e *entry[T]) {
	e.mu.Lock()
	e.refreshedAt = time.Time{}
	e.mu.Unlock()
}

func get[T any](
	ctx context.Context,
	s *Store,
	kind domain.ConfigKind,
	e *entry[T],
	load func(context.Context) (T, error),
	clone func(T) T,
) (T, error) {
	e.mu.RLock()
	if e.fresh(time.Now()) {
		value := clone(e.value)
		e.mu.RUnlock()
		s.recordHit(kind)
		return value, nil
	}
	e.mu.RUnlock()

	s.recordMiss(kind)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if e.fresh(time.Now()) {
		return clone(e.value), nil
	}

	value, err := load(ctx)
	if err != nil {
		if e.loaded {
			s.logger.Warn("serving stale configuration after refresh failure",
				"kind", kind, "age", time.Since(e.refreshedAt).String(), "error", err)
			return clone(e.value), nil
		}
		var zero T
		return zero, &domain.DependencyError{Op: fmt.Sprintf("load %s configuration", kind), Err: err}
	}

	e.value = value
	e.loaded = true
	e.refreshedAt = time.Now()
	return clone(value), nil
}

func (s *Store) recordHit(kind domain.ConfigKind) {
	if s.recorder != nil {
		s.recorder.RecordCacheHit(kind)
	}
}

func (s *Store) recordMiss(kind domain.ConfigKind) {
	if s.recorder != nil {
		s.recorder.RecordCacheMiss(kind)
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	return maps.Clone(m)
}

func cloneLoyalty(cfg domain.LoyaltySettings) domain.LoyaltySettings {
	cfg.BonusMultipliers = maps.Clone(cfg.BonusMultipliers)
	return cfg
}
