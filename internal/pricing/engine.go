// Package pricing evaluates configurable pricing rules against an order and
// combines the applicable discounts into a final price.
package pricing

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/brewrules/internal/configstore"
	"github.com/joao-fontenele/brewrules/internal/domain"
)

// Strategy selects how multiple applicable discounts combine.
type Strategy string

const (
	// Additive sums every discount and subtracts the total from the base
	// price once.
	Additive Strategy = "additive"
	// Multiplicative applies each discount to the running price in
	// priority order.
	Multiplicative Strategy = "multiplicative"
	// BestSingle applies exactly one rule, whichever yields the lowest
	// price.
	BestSingle Strategy = "best_single"
	// BestPrice returns the lowest of additive, multiplicative and the
	// undiscounted base price. This is the default.
	BestPrice Strategy = "best_price"
)

func (s Strategy) Valid() bool {
	switch s {
	case Additive, Multiplicative, BestSingle, BestPrice:
		return true
	}
	return false
}

// AppliedRule is a rule that contributed to the final price.
type AppliedRule struct {
	RuleID      uuid.UUID              `json:"rule_id"`
	Kind        domain.PricingRuleKind `json:"kind"`
	Description string                 `json:"description,omitempty"`
	Discount    domain.Discount        `json:"discount"`
}

// Result of pricing an order. Prices are cents; FinalPrice is never
// negative and never exceeds BasePrice.
type Result struct {
	BasePrice    int64         `json:"base_price"`
	FinalPrice   int64         `json:"final_price"`
	AppliedRules []AppliedRule `json:"applied_rules"`
}

type Engine struct {
	store *configstore.Store
}

func NewEngine(store *configstore.Store) *Engine {
	return &Engine{store: store}
}

// Price evaluates the cached rule set against the order at the given time.
// When no rules apply the base price is returned unchanged; that is not an
// error.
func (e *Engine) Price(ctx context.Context, lines []domain.OrderLine, at time.Time, strategy Strategy) (Result, error) {
	basePrice := domain.BasePrice(lines)

	rules, err := e.store.PricingRules(ctx)
	if err != nil {
		return Result{}, err
	}

	applicable := filterRules(rules, lines, at)
	if len(applicable) == 0 {
		return Result{BasePrice: basePrice, FinalPrice: basePrice, AppliedRules: []AppliedRule{}}, nil
	}

	applied := make([]AppliedRule, len(applicable))
	for i, rule := range applicable {
		applied[i] = AppliedRule{
			RuleID:      rule.ID,
			Kind:        rule.Kind,
			Description: rule.Description,
			Discount:    rule.Discount,
		}
	}

	final, winners := combine(basePrice, applied, strategy)

	return Result{BasePrice: basePrice, FinalPrice: final, AppliedRules: winners}, nil
}

// filterRules keeps rules that are active, inside their validity window,
// target at least one ordered item, and satisfy their kind-specific
// condition. The result is ordered by descending priority, ties broken by
// rule id so evaluation is deterministic.
func filterRules(rules []domain.PricingRule, lines []domain.OrderLine, at time.Time) []domain.PricingRule {
	totalQuantity := domain.TotalQuantity(lines)
	timeOfDay := domain.TimeOfDayFrom(at)

	var applicable []domain.PricingRule
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if at.Before(rule.ValidFrom) {
			continue
		}
		if rule.ValidUntil != nil && !at.Before(*rule.ValidUntil) {
			continue
		}
		if !targetsAnyLine(rule, lines) {
			continue
		}
		switch rule.Kind {
		case domain.RuleTimeBased:
			if !inAnyRange(rule.TimeRanges, timeOfDay) {
				continue
			}
		case domain.RuleQuantityBased:
			if totalQuantity < rule.MinQuantity {
				continue
			}
		}
		applicable = append(applicable, rule)
	}

	sort.Slice(applicable, func(i, j int) bool {
		if applicable[i].Priority != applicable[j].Priority {
			return applicable[i].Priority > applicable[j].Priority
		}
		return applicable[i].ID.String() < applicable[j].ID.String()
	})

	return applicable
}

func targetsAnyLine(rule domain.PricingRule, lines []domain.OrderLine) bool {
	if len(rule.ItemIDs) == 0 {
		return true
	}
	for _, line := range lines {
		if rule.AppliesToItem(line.ItemID) {
			return true
		}
	}
	return false
}

func inAnyRange(ranges []domain.TimeRange, t domain.TimeOfDay) bool {
	for _, r := range ranges {
		if r.Contains(t) {
			return true
		}
	}
	return false
}

// combine computes the final price for the chosen strategy and the subset
// of rules that produced it.
func combine(basePrice int64, applied []AppliedRule, strategy Strategy) (int64, []AppliedRule) {
	switch strategy {
	case Additive:
		return additive(basePrice, applied), applied
	case Multiplicative:
		return multiplicative(basePrice, applied), applied
	case BestSingle:
		return bestSingle(basePrice, applied)
	default: // BestPrice
		add := additive(basePrice, applied)
		mul := multiplicative(basePrice, applied)
		// Discounts never raise the price, so the undiscounted base is
		// only a formal floor here.
		return min(basePrice, add, mul), applied
	}
}

// additive sums all discounts against the pre-discount base.
func additive(basePrice int64, applied []AppliedRule) int64 {
	var totalOff int64
	for _, rule := range applied {
		totalOff += rule.Discount.AmountOff(basePrice)
	}
	return clamp(basePrice - totalOff)
}

// multiplicative applies each discount to the running price, clamping after
// every step.
func multiplicative(basePrice int64, applied []AppliedRule) int64 {
	price := basePrice
	for _, rule := range applied {
		price = clamp(price - rule.Discount.AmountOff(price))
	}
	return price
}

// bestSingle applies exactly one rule and keeps whichever gives the lowest
// price.
func bestSingle(basePrice int64, applied []AppliedRule) (int64, []AppliedRule) {
	best := basePrice
	winners := []AppliedRule{}
	for _, rule := range applied {
		price := clamp(basePrice - rule.Discount.AmountOff(basePrice))
		if price < best {
			best = price
			winners = []AppliedRule{rule}
		}
	}
	return best, winners
}

func clamp(price int64) int64 {
	if price < 0 {
		return 0
	}
	return price
}
