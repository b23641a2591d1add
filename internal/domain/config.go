package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ConfigKind identifies one of the cached configuration families.
type ConfigKind string

const (
	KindAvailability ConfigKind = "availability"
	KindPricing      ConfigKind = "pricing"
	KindPrepTime     ConfigKind = "prep_time"
	KindLoyalty      ConfigKind = "loyalty"
)

// ConfigKinds lists every cached configuration kind.
var ConfigKinds = []ConfigKind{KindAvailability, KindPricing, KindPrepTime, KindLoyalty}

type AvailabilityStatus string

const (
	StatusAvailable    AvailabilityStatus = "available"
	StatusOutOfStock   AvailabilityStatus = "out_of_stock"
	StatusSeasonal     AvailabilityStatus = "seasonal"
	StatusDiscontinued AvailabilityStatus = "discontinued"
)

// AvailabilityRecord controls whether an item is orderable. A nil window
// bound means the item is not time-restricted; Seasonal items with no window
// are treated as always in season.
type AvailabilityRecord struct {
	ItemID         string             `json:"item_id"`
	Status         AvailabilityStatus `json:"status"`
	Reason         string             `json:"reason,omitempty"`
	AvailableFrom  *TimeOfDay         `json:"available_from,omitempty"`
	AvailableUntil *TimeOfDay         `json:"available_until,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type PricingRuleKind string

const (
	RuleTimeBased     PricingRuleKind = "time_based"
	RuleQuantityBased PricingRuleKind = "quantity_based"
	RulePromotional   PricingRuleKind = "promotional"
)

type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// Discount describes a price reduction. Percentage values are 0-100;
// fixed-amount values are cents.
type Discount struct {
	Type  DiscountType `json:"type"`
	Value float64      `json:"value"`
}

// AmountOff returns how many cents this discount removes from price.
func (d Discount) AmountOff(price int64) int64 {
	switch d.Type {
	case DiscountPercentage:
		return int64(math.Round(float64(price) * d.Value / 100))
	case DiscountFixedAmount:
		return int64(math.Round(d.Value))
	default:
		return 0
	}
}

// TimeRange is a daily window for time-based rules. Ranges where End < Start
// wrap past midnight (22:00-02:00).
type TimeRange struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Contains reports whether t falls inside the range, inclusive of both ends.
func (r TimeRange) Contains(t TimeOfDay) bool {
	if r.Start <= r.End {
		return t >= r.Start && t <= r.End
	}
	return t >= r.Start || t <= r.End
}

// PricingRule is one configurable discount. ItemIDs of nil targets every
// item. TimeRanges is set for time_based rules, MinQuantity for
// quantity_based ones; promotional rules rely only on the validity window
// and item set.
type PricingRule struct {
	ID          uuid.UUID       `json:"id"`
	Kind        PricingRuleKind `json:"kind"`
	Priority    int             `json:"priority"`
	Discount    Discount        `json:"discount"`
	ItemIDs     []string        `json:"item_ids,omitempty"`
	IsActive    bool            `json:"is_active"`
	ValidFrom   time.Time       `json:"valid_from"`
	ValidUntil  *time.Time      `json:"valid_until,omitempty"`
	TimeRanges  []TimeRange     `json:"time_ranges,omitempty"`
	MinQuantity int             `json:"min_quantity,omitempty"`
	Description string          `json:"description,omitempty"`
}

// AppliesToItem reports whether the rule targets the given item.
func (r PricingRule) AppliesToItem(itemID string) bool {
	if len(r.ItemIDs) == 0 {
		return true
	}
	for _, id := range r.ItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// PrepTimeSetting is the per-item preparation timing configuration.
type PrepTimeSetting struct {
	ItemID               string `json:"item_id"`
	BaseMinutes          int    `json:"base_minutes"`
	PerAdditionalMinutes int    `json:"per_additional_minutes"`
}

// LoyaltySettings is the singleton loyalty configuration. Multipliers are
// keyed by item id; items absent from the map earn no bonus.
type LoyaltySettings struct {
	PointsPerCurrencyUnit float64            `json:"points_per_currency_unit"`
	BonusMultipliers      map[string]float64 `json:"bonus_multipliers"`
}

// CustomerLoyalty is a customer's durable points balance.
type CustomerLoyalty struct {
	CustomerID     string `json:"customer_id"`
	PointsBalance  int64  `json:"points_balance"`
	LifetimePoints int64  `json:"lifetime_points"`
}
