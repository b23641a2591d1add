// Package loyalty computes and awards loyalty points for completed orders.
package loyalty

import (
	"context"
	"math"

	"github.com/joao-fontenele/brewrules/internal/configstore"
	"github.com/joao-fontenele/brewrules/internal/domain"
)

// BalanceStore is the durable customer-balance collaborator. AddPoints must
// be atomic per customer: concurrent awards may not lose increments.
type BalanceStore interface {
	AddPoints(ctx context.Context, customerID string, points int64) (domain.CustomerLoyalty, error)
	Balance(ctx context.Context, customerID string) (int64, error)
}

// Calculation is the breakdown of a points award.
type Calculation struct {
	BasePoints  int64 `json:"base_points"`
	BonusPoints int64 `json:"bonus_points"`
	TotalPoints int64 `json:"total_points"`
}

type Engine struct {
	store    *configstore.Store
	balances BalanceStore
}

func NewEngine(store *configstore.Store, balances BalanceStore) *Engine {
	return &Engine{store: store, balances: balances}
}

// Calculate computes points without touching the balance. Base points are
// floor(order_total * points_per_unit); each line with a bonus multiplier
// adds floor(line_subtotal * (multiplier-1)). Items absent from the bonus
// map earn no bonus. Totals are cents, so cent amounts are scaled to
// currency units before multiplying.
func (e *Engine) Calculate(ctx context.Context, orderTotal int64, lines []domain.OrderLine) (Calculation, error) {
	settings, err := e.store.Loyalty(ctx)
	if err != nil {
		return Calculation{}, err
	}

	base := int64(math.Floor(float64(orderTotal) / 100 * settings.PointsPerCurrencyUnit))

	var bonus int64
	for _, line := range lines {
		multiplier, ok := settings.BonusMultipliers[line.ItemID]
		if !ok || multiplier <= 1 {
			continue
		}
		bonus += int64(math.Floor(float64(line.Subtotal()) / 100 * (multiplier - 1)))
	}

	return Calculation{
		BasePoints:  base,
		BonusPoints: bonus,
		TotalPoints: base + bonus,
	}, nil
}

// Award calculates points for a completed order and atomically adds them to
// the customer's balance. A failed balance update is returned to the caller;
// points are never silently dropped.
func (e *Engine) Award(ctx context.Context, customerID string, orderTotal int64, lines []domain.OrderLine) (Calculation, domain.CustomerLoyalty, error) {
	calc, err := e.Calculate(ctx, orderTotal, lines)
	if err != nil {
		return Calculation{}, domain.CustomerLoyalty{}, err
	}

	balance, err := e.balances.AddPoints(ctx, customerID, calc.TotalPoints)
	if err != nil {
		return Calculation{}, domain.CustomerLoyalty{}, &domain.DependencyError{Op: "award loyalty points", Err: err}
	}

	return calc, balance, nil
}
