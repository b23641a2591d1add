package configstore

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/brewrules/internal/domain"
)

func TestLoadAvailability(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"item_id", "status", "reason", "available_from", "available_until", "updated_at"}).
		AddRow("espresso", "available", nil, nil, nil, now).
		AddRow("cold-brew", "seasonal", "summer menu", "08:00", "18:00", now)

	mock.ExpectQuery("SELECT item_id, status, reason, available_from, available_until, updated_at").
		WillReturnRows(rows)

	source := NewPostgresSource(db)
	records, err := source.LoadAvailability(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	espresso := records["espresso"]
	if espresso.AvailableFrom != nil || espresso.AvailableUntil != nil {
		t.Error("expected espresso to have no availability window")
	}

	coldBrew := records["cold-brew"]
	if coldBrew.AvailableFrom == nil || coldBrew.AvailableFrom.String() != "08:00" {
		t.Errorf("expected cold-brew window to start at 08:00, got %v", coldBrew.AvailableFrom)
	}
	if coldBrew.Reason != "summer menu" {
		t.Errorf("expected reason 'summer menu', got %q", coldBrew.Reason)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLoadAvailabilityRejectsMalformedWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"item_id", "status", "reason", "available_from", "available_until", "updated_at"}).
		AddRow("espresso", "seasonal", nil, "not-a-time", "18:00", time.Now())

	mock.ExpectQuery("SELECT item_id, status").WillReturnRows(rows)

	source := NewPostgresSource(db)
	_, err = source.LoadAvailability(context.Background())

	var configErr *domain.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
	}
}

func TestLoadPricingRules(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	id := uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "kind", "priority", "discount_type", "discount_value", "item_ids",
		"is_active", "valid_from", "valid_until", "config", "description",
	}).AddRow(
		id, "time_based", 10, "percentage", 15.0, pq.StringArray{"espresso"},
		true, time.Now().Add(-time.Hour), nil,
		[]byte(`{"time_ranges":[{"start":"14:00","end":"16:00"}]}`), "happy hour",
	)

	mock.ExpectQuery("SELECT id, kind, priority").WillReturnRows(rows)

	source := NewPostgresSource(db)
	rules, err := source.LoadPricingRules(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	rule := rules[0]
	if rule.ID != id {
		t.Errorf("expected id %s, got %s", id, rule.ID)
	}
	if len(rule.TimeRanges) != 1 {
		t.Fatalf("expected 1 time range, got %d", len(rule.TimeRanges))
	}
	if rule.TimeRanges[0].Start.String() != "14:00" {
		t.Errorf("expected range start 14:00, got %s", rule.TimeRanges[0].Start)
	}
}

func TestLoadPricingRulesRejectsInvalidRule(t *testing.T) {
	tests := []struct {
		name          string
		kind          string
		discountType  string
		discountValue float64
		config        []byte
	}{
		{"negative discount", "promotional", "percentage", -5, []byte(`{}`)},
		{"percentage over 100", "promotional", "percentage", 150, []byte(`{}`)},
		{"time_based without ranges", "time_based", "percentage", 10, []byte(`{}`)},
		{"quantity_based without min", "quantity_based", "percentage", 10, []byte(`{}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create sqlmock: %v", err)
			}
			defer func() { _ = db.Close() }()

			rows := sqlmock.NewRows([]string{
				"id", "kind", "priority", "discount_type", "discount_value", "item_ids",
				"is_active", "valid_from", "valid_until", "config", "description",
			}).AddRow(
				uuid.New(), tt.kind, 0, tt.discountType, tt.discountValue, pq.StringArray(nil),
				true, time.Now(), nil, tt.config, nil,
			)

			mock.ExpectQuery("SELECT id, kind, priority").WillReturnRows(rows)

			source := NewPostgresSource(db)
			_, err = source.LoadPricingRules(context.Background())

			var configErr *domain.ConfigurationError
			if !errors.As(err, &configErr) {
				t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
			}
		})
	}
}

func TestLoadLoyalty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"points_per_currency_unit", "bonus_multipliers"}).
		AddRow(1.5, []byte(`{"espresso":2.0}`))

	mock.ExpectQuery("SELECT points_per_currency_unit").WillReturnRows(rows)

	source := NewPostgresSource(db)
	settings, err := source.LoadLoyalty(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.PointsPerCurrencyUnit != 1.5 {
		t.Errorf("expected 1.5 points per unit, got %v", settings.PointsPerCurrencyUnit)
	}
	if settings.BonusMultipliers["espresso"] != 2.0 {
		t.Errorf("expected espresso multiplier 2.0, got %v", settings.BonusMultipliers["espresso"])
	}
}

func TestLoadLoyaltyMissingSingleton(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT points_per_currency_unit").
		WillReturnRows(sqlmock.NewRows([]string{"points_per_currency_unit", "bonus_multipliers"}))

	source := NewPostgresSource(db)
	_, err = source.LoadLoyalty(context.Background())

	var configErr *domain.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
	}
}

func TestUpsertAvailability(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	from, _ := domain.ParseTimeOfDay("08:00")
	until, _ := domain.ParseTimeOfDay("11:00")

	mock.ExpectExec("INSERT INTO item_availability").
		WithArgs("croissant", domain.StatusSeasonal, "morning menu", "08:00", "11:00").
		WillReturnResult(sqlmock.NewResult(0, 1))

	source := NewPostgresSource(db)
	err = source.UpsertAvailability(context.Background(), domain.AvailabilityRecord{
		ItemID:         "croissant",
		Status:         domain.StatusSeasonal,
		Reason:         "morning menu",
		AvailableFrom:  &from,
		AvailableUntil: &until,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
