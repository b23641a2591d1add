package availability

import (
	"context"
	"testing"
	"time"

	"github.com/joao-fontenele/brewrules/internal/configstore"
	"github.com/joao-fontenele/brewrules/internal/domain"
)

type fakeSource struct {
	records map[string]domain.AvailabilityRecord
}

func (f *fakeSource) LoadAvailability(ctx context.Context) (map[string]domain.AvailabilityRecord, error) {
	return f.records, nil
}

func (f *fakeSource) LoadPricingRules(ctx context.Context) ([]domain.PricingRule, error) {
	return nil, nil
}

func (f *fakeSource) LoadPrepTimes(ctx context.Context) (map[string]domain.PrepTimeSetting, error) {
	return map[string]domain.PrepTimeSetting{}, nil
}

func (f *fakeSource) LoadLoyalty(ctx context.Context) (domain.LoyaltySettings, error) {
	return domain.LoyaltySettings{}, nil
}

func newEngine(records map[string]domain.AvailabilityRecord) *Engine {
	return NewEngine(configstore.New(&fakeSource{records: records}))
}

func mustTime(t *testing.T, s string) domain.TimeOfDay {
	t.Helper()
	tod, err := domain.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("bad time %q: %v", s, err)
	}
	return tod
}

func at(hour int) time.Time {
	return time.Date(2026, 8, 30, hour, 0, 0, 0, time.UTC)
}

func TestCheckUnknownItemIsAvailable(t *testing.T) {
	engine := newEngine(map[string]domain.AvailabilityRecord{})

	result, err := engine.Check(context.Background(), "new-item", at(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Available {
		t.Error("expected item without a record to be available")
	}
}

func TestCheckOutOfStock(t *testing.T) {
	engine := newEngine(map[string]domain.AvailabilityRecord{
		"latte": {ItemID: "latte", Status: domain.StatusOutOfStock},
	})

	result, err := engine.Check(context.Background(), "latte", at(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Available {
		t.Error("expected out of stock item to be unavailable")
	}
	if result.Reason != "item is out of stock" {
		t.Errorf("unexpected reason: %q", result.Reason)
	}
}

func TestCheckDiscontinuedUsesRecordReason(t *testing.T) {
	engine := newEngine(map[string]domain.AvailabilityRecord{
		"mocha": {ItemID: "mocha", Status: domain.StatusDiscontinued, Reason: "removed from menu"},
	})

	result, err := engine.Check(context.Background(), "mocha", at(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Available {
		t.Error("expected discontinued item to be unavailable")
	}
	if result.Reason != "removed from menu" {
		t.Errorf("expected record reason, got %q", result.Reason)
	}
}

func TestCheckSeasonalWindow(t *testing.T) {
	from := mustTime(t, "08:00")
	until := mustTime(t, "11:00")
	engine := newEngine(map[string]domain.AvailabilityRecord{
		"pumpkin-latte": {
			ItemID:         "pumpkin-latte",
			Status:         domain.StatusSeasonal,
			AvailableFrom:  &from,
			AvailableUntil: &until,
		},
	})

	tests := []struct {
		name      string
		hour      int
		available bool
	}{
		{"inside window", 9, true},
		{"at window start", 8, true},
		{"after window", 13, false},
		{"at window end", 11, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Check(context.Background(), "pumpkin-latte", at(tt.hour))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Available != tt.available {
				t.Errorf("at %02d:00 expected available=%v, got %v (reason %q)",
					tt.hour, tt.available, result.Available, result.Reason)
			}
		})
	}
}

func TestCheckSeasonalWithoutWindowAlwaysAvailable(t *testing.T) {
	engine := newEngine(map[string]domain.AvailabilityRecord{
		"cold-brew": {ItemID: "cold-brew", Status: domain.StatusSeasonal},
	})

	result, err := engine.Check(context.Background(), "cold-brew", at(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Available {
		t.Error("expected seasonal item without a window to be available")
	}
}

func TestCheckAllAggregatesEveryProblem(t *testing.T) {
	engine := newEngine(map[string]domain.AvailabilityRecord{
		"latte": {ItemID: "latte", Status: domain.StatusOutOfStock},
		"mocha": {ItemID: "mocha", Status: domain.StatusDiscontinued},
	})

	lines := []domain.OrderLine{
		{ItemID: "latte", Quantity: 1, UnitPrice: 500},
		{ItemID: "espresso", Quantity: 1, UnitPrice: 300},
		{ItemID: "mocha", Quantity: 1, UnitPrice: 550},
	}

	problems, err := engine.CheckAll(context.Background(), lines, at(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(problems) != 2 {
		t.Fatalf("expected 2 problems, got %d: %v", len(problems), problems)
	}
	for _, p := range problems {
		if p.ItemID != "latte" && p.ItemID != "mocha" {
			t.Errorf("unexpected problem item: %s", p.ItemID)
		}
	}
}

func TestCheckAllEmptyForOrderableOrder(t *testing.T) {
	engine := newEngine(map[string]domain.AvailabilityRecord{
		"espresso": {ItemID: "espresso", Status: domain.StatusAvailable},
	})

	lines := []domain.OrderLine{{ItemID: "espresso", Quantity: 2, UnitPrice: 300}}

	problems, err := engine.CheckAll(context.Background(), lines, at(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("expected no problems, got %v", problems)
	}
}
