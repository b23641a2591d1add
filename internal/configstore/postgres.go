package configstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/brewrules/internal/domain"
)

// PostgresSource loads configuration rows from Postgres. It also carries the
// admin write path for availability records, which invalidation events hang
// off.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) LoadAvailability(ctx context.Context) (map[string]domain.AvailabilityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, status, reason, available_from, available_until, updated_at
		FROM item_availability
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := make(map[string]domain.AvailabilityRecord)
	for rows.Next() {
		var rec domain.AvailabilityRecord
		var reason, from, until sql.NullString
		if err := rows.Scan(&rec.ItemID, &rec.Status, &reason, &from, &until, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Reason = reason.String
		if rec.AvailableFrom, err = parseWindowBound(rec.ItemID, from); err != nil {
			return nil, err
		}
		if rec.AvailableUntil, err = parseWindowBound(rec.ItemID, until); err != nil {
			return nil, err
		}
		records[rec.ItemID] = rec
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func parseWindowBound(itemID string, bound sql.NullString) (*domain.TimeOfDay, error) {
	if !bound.Valid || bound.String == "" {
		return nil, nil
	}
	t, err := domain.ParseTimeOfDay(bound.String)
	if err != nil {
		return nil, &domain.ConfigurationError{
			Setting: "item_availability/" + itemID,
			Reason:  err.Error(),
		}
	}
	return &t, nil
}

// rulePayload is the kind-specific part of a pricing rule, stored as JSONB.
type rulePayload struct {
	TimeRanges  []domain.TimeRange `json:"time_ranges,omitempty"`
	MinQuantity int                `json:"min_quantity,omitempty"`
}

func (s *PostgresSource) LoadPricingRules(ctx context.Context) ([]domain.PricingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, priority, discount_type, discount_value, item_ids,
		       is_active, valid_from, valid_until, config, description
		FROM pricing_rules
		WHERE is_active = true
		ORDER BY priority DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rules []domain.PricingRule
	for rows.Next() {
		var rule domain.PricingRule
		var itemIDs pq.StringArray
		var validUntil sql.NullTime
		var config []byte
		var description sql.NullString
		if err := rows.Scan(
			&rule.ID, &rule.Kind, &rule.Priority,
			&rule.Discount.Type, &rule.Discount.Value, &itemIDs,
			&rule.IsActive, &rule.ValidFrom, &validUntil, &config, &description,
		); err != nil {
			return nil, err
		}
		rule.ItemIDs = itemIDs
		rule.Description = description.String
		if validUntil.Valid {
			t := validUntil.Time
			rule.ValidUntil = &t
		}

		var payload rulePayload
		if len(config) > 0 {
			if err := json.Unmarshal(config, &payload); err != nil {
				return nil, invalidRule(rule.ID, fmt.Sprintf("malformed config: %v", err))
			}
		}
		rule.TimeRanges = payload.TimeRanges
		rule.MinQuantity = payload.MinQuantity

		if err := validatePricingRule(rule); err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rules, nil
}

func validatePricingRule(rule domain.PricingRule) error {
	if rule.Discount.Value < 0 {
		return invalidRule(rule.ID, "discount value must be non-negative")
	}
	switch rule.Discount.Type {
	case domain.DiscountPercentage:
		if rule.Discount.Value > 100 {
			return invalidRule(rule.ID, "percentage discount cannot exceed 100")
		}
	case domain.DiscountFixedAmount:
	default:
		return invalidRule(rule.ID, fmt.Sprintf("unknown discount type %q", rule.Discount.Type))
	}

	switch rule.Kind {
	case domain.RuleTimeBased:
		if len(rule.TimeRanges) == 0 {
			return invalidRule(rule.ID, "time_based rule needs at least one time range")
		}
	case domain.RuleQuantityBased:
		if rule.MinQuantity < 1 {
			return invalidRule(rule.ID, "quantity_based rule needs min_quantity >= 1")
		}
	case domain.RulePromotional:
	default:
		return invalidRule(rule.ID, fmt.Sprintf("unknown rule kind %q", rule.Kind))
	}

	return nil
}

func invalidRule(id uuid.UUID, reason string) error {
	return &domain.ConfigurationError{
		Setting: "pricing_rules/" + id.String(),
		Reason:  reason,
	}
}

func (s *PostgresSource) LoadPrepTimes(ctx context.Context) (map[string]domain.PrepTimeSetting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, base_minutes, per_additional_minutes
		FROM prep_time_settings
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	settings := make(map[string]domain.PrepTimeSetting)
	for rows.Next() {
		var setting domain.PrepTimeSetting
		if err := rows.Scan(&setting.ItemID, &setting.BaseMinutes, &setting.PerAdditionalMinutes); err != nil {
			return nil, err
		}
		if setting.BaseMinutes < 1 {
			return nil, &domain.ConfigurationError{
				Setting: "prep_time_settings/" + setting.ItemID,
				Reason:  "base_minutes must be at least 1",
			}
		}
		if setting.PerAdditionalMinutes < 0 {
			return nil, &domain.ConfigurationError{
				Setting: "prep_time_settings/" + setting.ItemID,
				Reason:  "per_additional_minutes must be non-negative",
			}
		}
		settings[setting.ItemID] = setting
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return settings, nil
}

func (s *PostgresSource) LoadLoyalty(ctx context.Context) (domain.LoyaltySettings, error) {
	var settings domain.LoyaltySettings
	var multipliers []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT points_per_currency_unit, bonus_multipliers
		FROM loyalty_settings
		WHERE id = 1
	`).Scan(&settings.PointsPerCurrencyUnit, &multipliers)
	if err != nil {
		if err == sql.ErrNoRows {
			return settings, &domain.ConfigurationError{
				Setting: "loyalty_settings",
				Reason:  "singleton row not found",
			}
		}
		return settings, err
	}

	if err := json.Unmarshal(multipliers, &settings.BonusMultipliers); err != nil {
		return settings, &domain.ConfigurationError{
			Setting: "loyalty_settings",
			Reason:  fmt.Sprintf("malformed bonus_multipliers: %v", err),
		}
	}

	if settings.PointsPerCurrencyUnit < 0 {
		return settings, &domain.ConfigurationError{
			Setting: "loyalty_settings",
			Reason:  "points_per_currency_unit must be non-negative",
		}
	}
	for itemID, m := range settings.BonusMultipliers {
		if m < 0 {
			return settings, &domain.ConfigurationError{
				Setting: "loyalty_settings",
				Reason:  fmt.Sprintf("bonus multiplier for %s must be non-negative", itemID),
			}
		}
	}

	return settings, nil
}

// UpsertAvailability writes an availability record. Callers are expected to
// invalidate the availability cache afterwards.
func (s *PostgresSource) UpsertAvailability(ctx context.Context, rec domain.AvailabilityRecord) error {
	var from, until any
	if rec.AvailableFrom != nil {
		from = rec.AvailableFrom.String()
	}
	if rec.AvailableUntil != nil {
		until = rec.AvailableUntil.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_availability (item_id, status, reason, available_from, available_until, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NOW())
		ON CONFLICT (item_id)
		DO UPDATE SET
			status = $2,
			reason = NULLIF($3, ''),
			available_from = $4,
			available_until = $5,
			updated_at = NOW()
	`, rec.ItemID, rec.Status, rec.Reason, from, until)
	return err
}
