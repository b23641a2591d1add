// Package rules composes the availability, pricing, prep-time and loyalty
// engines into the two operations the rest of the system consumes:
// evaluating an order and settling a completed one. Every operation is
// timed and audited.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/brewrules/internal/audit"
	"github.com/joao-fontenele/brewrules/internal/availability"
	"github.com/joao-fontenele/brewrules/internal/configstore"
	"github.com/joao-fontenele/brewrules/internal/domain"
	"github.com/joao-fontenele/brewrules/internal/loyalty"
	"github.com/joao-fontenele/brewrules/internal/metrics"
	"github.com/joao-fontenele/brewrules/internal/preptime"
	"github.com/joao-fontenele/brewrules/internal/pricing"
)

type Engine struct {
	availability *availability.Engine
	pricing      *pricing.Engine
	prepTime     *preptime.Engine
	loyalty      *loyalty.Engine
	audit        *audit.Logger
	metrics      *metrics.Metrics
	store        *configstore.Store
	logger       *slog.Logger
}

func NewEngine(
	store *configstore.Store,
	balances loyalty.BalanceStore,
	auditLogger *audit.Logger,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		availability: availability.NewEngine(store),
		pricing:      pricing.NewEngine(store),
		prepTime:     preptime.NewEngine(store),
		loyalty:      loyalty.NewEngine(store, balances),
		audit:        auditLogger,
		metrics:      m,
		store:        store,
		logger:       logger,
	}
}

// Warm pre-loads every configuration kind, avoiding cold-start latency on
// the first orders.
func (e *Engine) Warm(ctx context.Context) error {
	e.logger.Info("warming rules configuration cache")
	if err := e.store.Warm(ctx); err != nil {
		return err
	}
	e.logger.Info("rules configuration cache warmed")
	return nil
}

// MetricsSnapshot exposes the engine's counters for monitoring endpoints.
func (e *Engine) MetricsSnapshot() metrics.Snapshot {
	return e.metrics.Snapshot()
}

// Store gives read access to the cached configuration for admin endpoints.
func (e *Engine) Store() *configstore.Store {
	return e.store
}

type EvaluateRequest struct {
	OrderID           uuid.UUID
	Lines             []domain.OrderLine
	At                time.Time
	Strategy          pricing.Strategy
	QueueDelayMinutes int
}

type EvaluateResult struct {
	BasePrice    int64                 `json:"base_price"`
	FinalPrice   int64                 `json:"final_price"`
	AppliedRules []pricing.AppliedRule `json:"applied_rules"`
	PrepMinutes  int                   `json:"prep_minutes"`
}

// EvaluateOrder validates availability, prices the order and estimates prep
// time. An order with any unavailable item is rejected as a whole before
// pricing or prep-time work happens.
func (e *Engine) EvaluateOrder(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error) {
	if req.At.IsZero() {
		req.At = time.Now()
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = pricing.BestPrice
	}

	problems, err := e.checkAvailability(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, &domain.ValidationError{Problems: problems}
	}

	priced, err := e.price(ctx, req, strategy)
	if err != nil {
		return nil, err
	}

	estimate, err := e.estimatePrep(ctx, req)
	if err != nil {
		return nil, err
	}

	return &EvaluateResult{
		BasePrice:    priced.BasePrice,
		FinalPrice:   priced.FinalPrice,
		AppliedRules: priced.AppliedRules,
		PrepMinutes:  estimate.Minutes,
	}, nil
}

func (e *Engine) checkAvailability(ctx context.Context, req EvaluateRequest) ([]domain.ItemProblem, error) {
	timer := e.metrics.StartTimer(metrics.OpAvailability)
	defer timer.Stop()

	problems, err := e.availability.CheckAll(ctx, req.Lines, req.At)
	if err != nil {
		return nil, err
	}

	effect := "all items available"
	if len(problems) > 0 {
		effect = fmt.Sprintf("%d items unavailable", len(problems))
	}
	e.audit.Record(domain.AuditEntry{
		OrderID:  req.OrderID,
		Category: domain.KindAvailability,
		Snapshot: snapshot(map[string]any{
			"items_checked": len(req.Lines),
			"problems":      problems,
		}),
		Effect: effect,
	})

	return problems, nil
}

func (e *Engine) price(ctx context.Context, req EvaluateRequest, strategy pricing.Strategy) (pricing.Result, error) {
	timer := e.metrics.StartTimer(metrics.OpPricing)
	defer timer.Stop()

	result, err := e.pricing.Price(ctx, req.Lines, req.At, strategy)
	if err != nil {
		return pricing.Result{}, err
	}

	for _, rule := range result.AppliedRules {
		ruleID := rule.RuleID
		e.audit.Record(domain.AuditEntry{
			OrderID:  req.OrderID,
			Category: domain.KindPricing,
			RuleID:   &ruleID,
			Snapshot: snapshot(rule),
			Effect:   "applied: " + ruleDescription(rule),
		})
	}
	e.audit.Record(domain.AuditEntry{
		OrderID:  req.OrderID,
		Category: domain.KindPricing,
		Snapshot: snapshot(map[string]any{
			"base_price":  result.BasePrice,
			"final_price": result.FinalPrice,
			"strategy":    strategy,
		}),
		Effect: fmt.Sprintf("applied %d rules, discount %d cents",
			len(result.AppliedRules), result.BasePrice-result.FinalPrice),
	})

	return result, nil
}

func (e *Engine) estimatePrep(ctx context.Context, req EvaluateRequest) (preptime.Estimate, error) {
	timer := e.metrics.StartTimer(metrics.OpPrepTime)
	defer timer.Stop()

	estimate, err := e.prepTime.Estimate(ctx, req.Lines, req.QueueDelayMinutes)
	if err != nil {
		return preptime.Estimate{}, err
	}

	e.audit.Record(domain.AuditEntry{
		OrderID:  req.OrderID,
		Category: domain.KindPrepTime,
		Snapshot: snapshot(estimate),
		Effect:   fmt.Sprintf("estimated %d minutes", estimate.Minutes),
	})

	return estimate, nil
}

// SettleOrder awards loyalty points for a completed order and returns the
// points awarded.
func (e *Engine) SettleOrder(ctx context.Context, orderID uuid.UUID, customerID string, orderTotal int64, lines []domain.OrderLine) (int64, error) {
	timer := e.metrics.StartTimer(metrics.OpLoyalty)
	defer timer.Stop()

	calc, balance, err := e.loyalty.Award(ctx, customerID, orderTotal, lines)
	if err != nil {
		return 0, err
	}

	e.audit.Record(domain.AuditEntry{
		OrderID:  orderID,
		Category: domain.KindLoyalty,
		Snapshot: snapshot(map[string]any{
			"customer_id":     customerID,
			"order_total":     orderTotal,
			"base_points":     calc.BasePoints,
			"bonus_points":    calc.BonusPoints,
			"total_points":    calc.TotalPoints,
			"new_balance":     balance.PointsBalance,
			"lifetime_points": balance.LifetimePoints,
		}),
		Effect: fmt.Sprintf("awarded %d points (base %d, bonus %d)",
			calc.TotalPoints, calc.BasePoints, calc.BonusPoints),
	})

	return calc.TotalPoints, nil
}

func ruleDescription(rule pricing.AppliedRule) string {
	if rule.Description != "" {
		return rule.Description
	}
	return string(rule.Kind) + " discount"
}

func snapshot(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
