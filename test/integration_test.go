//go:build integration

package test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/brewrules/internal/audit"
	"github.com/joao-fontenele/brewrules/internal/configstore"
	"github.com/joao-fontenele/brewrules/internal/domain"
	"github.com/joao-fontenele/brewrules/internal/loyalty"
	"github.com/joao-fontenele/brewrules/internal/messaging"
	"github.com/joao-fontenele/brewrules/internal/metrics"
	"github.com/joao-fontenele/brewrules/internal/rules"
)

func TestConfigurationLoadAndCache(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(metrics.WithLogger(logger))
	store := configstore.New(configstore.NewPostgresSource(db),
		configstore.WithRecorder(m), configstore.WithLogger(logger))

	if err := store.Warm(ctx); err != nil {
		t.Fatalf("warm failed: %v", err)
	}

	prepTimes, err := store.PrepTimes(ctx)
	if err != nil {
		t.Fatalf("failed to get prep times: %v", err)
	}
	if prepTimes["espresso"].BaseMinutes != 3 {
		t.Errorf("expected seeded espresso base of 3 minutes, got %d", prepTimes["espresso"].BaseMinutes)
	}

	records, err := store.Availability(ctx)
	if err != nil {
		t.Fatalf("failed to get availability: %v", err)
	}
	coldBrew := records["cold-brew"]
	if coldBrew.Status != domain.StatusSeasonal {
		t.Errorf("expected cold-brew to be seasonal, got %s", coldBrew.Status)
	}
	if coldBrew.AvailableFrom == nil || coldBrew.AvailableFrom.String() != "08:00" {
		t.Errorf("expected cold-brew window from 08:00, got %v", coldBrew.AvailableFrom)
	}

	snap := m.Snapshot()
	stats := snap.Cache[domain.KindPrepTime]
	if stats.Hits == 0 {
		t.Error("expected cache hits after warm")
	}
}

func TestEvaluateAndSettleFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	ruleID := uuid.New()
	_, err = db.ExecContext(ctx, `
		INSERT INTO pricing_rules (id, kind, priority, discount_type, discount_value,
		                           item_ids, is_active, valid_from, config, description)
		VALUES ($1, 'promotional', 10, 'percentage', 10, NULL, true, NOW() - INTERVAL '1 hour', '{}', 'launch promo')
	`, ruleID)
	if err != nil {
		t.Fatalf("failed to insert pricing rule: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(metrics.WithLogger(logger))
	store := configstore.New(configstore.NewPostgresSource(db),
		configstore.WithRecorder(m), configstore.WithLogger(logger))
	auditSink := audit.NewPostgresSink(db)
	auditLogger := audit.NewLogger(auditSink, logger, 64)
	balances := loyalty.NewPostgresBalanceStore(db)
	engine := rules.NewEngine(store, balances, auditLogger, m, logger)

	if err := engine.Warm(ctx); err != nil {
		t.Fatalf("warm failed: %v", err)
	}

	orderID := uuid.New()
	lines := []domain.OrderLine{
		{ItemID: "espresso", Quantity: 2, UnitPrice: 300},
		{ItemID: "latte", Quantity: 1, UnitPrice: 500},
	}

	result, err := engine.EvaluateOrder(ctx, rules.EvaluateRequest{
		OrderID:           orderID,
		Lines:             lines,
		At:                time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		QueueDelayMinutes: 5,
	})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if result.BasePrice != 1100 {
		t.Errorf("expected base 1100, got %d", result.BasePrice)
	}
	if result.FinalPrice != 990 {
		t.Errorf("expected final 990, got %d", result.FinalPrice)
	}
	// espresso 3+1, latte 5, queue 5.
	if result.PrepMinutes != 14 {
		t.Errorf("expected 14 prep minutes, got %d", result.PrepMinutes)
	}

	points, err := engine.SettleOrder(ctx, orderID, "cust-integration", result.FinalPrice, lines)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	// floor(9.90 * 1) base, no bonus multipliers seeded.
	if points != 9 {
		t.Errorf("expected 9 points, got %d", points)
	}

	balance, err := balances.Balance(ctx, "cust-integration")
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance != points {
		t.Errorf("expected balance %d, got %d", points, balance)
	}

	auditLogger.Close()

	entries, err := auditSink.ListByOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	// availability + per-rule + pricing summary + prep time + loyalty.
	if len(entries) != 5 {
		t.Errorf("expected 5 audit entries, got %d", len(entries))
	}
}

func TestConcurrentAwardsDoNotLoseUpdates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	balances := loyalty.NewPostgresBalanceStore(db)

	const goroutines = 10
	const pointsEach = 7

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := balances.AddPoints(ctx, "cust-concurrent", pointsEach)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("award failed: %v", err)
		}
	}

	balance, err := balances.Balance(ctx, "cust-concurrent")
	if err != nil {
		t.Fatalf("failed to read balance: %v", err)
	}
	if balance != goroutines*pointsEach {
		t.Errorf("expected balance %d, got %d", goroutines*pointsEach, balance)
	}
}

func TestConfigChangePropagatesOverKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source := configstore.NewPostgresSource(db)
	store := configstore.New(source, configstore.WithLogger(logger))

	if _, err := store.Availability(ctx); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	received := make(chan domain.ConfigChangedEvent, 1)
	consumer := messaging.NewConsumer(brokers, "integration-test")
	defer func() { _ = consumer.Close() }()

	go func() {
		_ = consumer.Consume(ctx, func(_ context.Context, event domain.ConfigChangedEvent) error {
			store.Invalidate(event.Kind)
			received <- event
			return nil
		})
	}()

	if err := source.UpsertAvailability(ctx, domain.AvailabilityRecord{
		ItemID: "espresso",
		Status: domain.StatusOutOfStock,
		Reason: "machine broken",
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	producer := messaging.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	err = producer.Publish(ctx, domain.ConfigChangedEvent{
		Kind:      domain.KindAvailability,
		ItemID:    "espresso",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case event := <-received:
		if event.Kind != domain.KindAvailability {
			t.Fatalf("unexpected event kind: %s", event.Kind)
		}
	case <-time.After(90 * time.Second):
		t.Fatal("timed out waiting for config change event")
	}

	records, err := store.Availability(ctx)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if records["espresso"].Status != domain.StatusOutOfStock {
		t.Errorf("expected invalidated cache to serve the new record, got %s", records["espresso"].Status)
	}
}
