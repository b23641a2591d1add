// Package availability decides whether catalog items are orderable at a
// given time, based on cached availability records.
package availability

import (
	"context"
	"time"

	"github.com/joao-fontenele/brewrules/internal/configstore"
	"github.com/joao-fontenele/brewrules/internal/domain"
)

type Engine struct {
	store *configstore.Store
}

func NewEngine(store *configstore.Store) *Engine {
	return &Engine{store: store}
}

// Result of a single item check.
type Result struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Check reports whether one item is orderable at the given time. Items with
// no availability record default to available.
func (e *Engine) Check(ctx context.Context, itemID string, at time.Time) (Result, error) {
	records, err := e.store.Availability(ctx)
	if err != nil {
		return Result{}, err
	}

	rec, ok := records[itemID]
	if !ok {
		return Result{Available: true}, nil
	}

	return evaluate(rec, at), nil
}

// CheckAll validates every line and returns the full set of problems, not
// just the first. An empty slice means the order is orderable.
func (e *Engine) CheckAll(ctx context.Context, lines []domain.OrderLine, at time.Time) ([]domain.ItemProblem, error) {
	records, err := e.store.Availability(ctx)
	if err != nil {
		return nil, err
	}

	var problems []domain.ItemProblem
	for _, line := range lines {
		rec, ok := records[line.ItemID]
		if !ok {
			continue
		}
		if result := evaluate(rec, at); !result.Available {
			problems = append(problems, domain.ItemProblem{ItemID: line.ItemID, Reason: result.Reason})
		}
	}

	return problems, nil
}

func evaluate(rec domain.AvailabilityRecord, at time.Time) Result {
	switch rec.Status {
	case domain.StatusDiscontinued:
		return unavailable(rec, "item has been discontinued")
	case domain.StatusOutOfStock:
		return unavailable(rec, "item is out of stock")
	case domain.StatusSeasonal, domain.StatusAvailable:
		// A window on either status restricts ordering to that time of
		// day. A missing bound means no restriction; for seasonal items
		// that is the always-in-season fallback.
		if rec.AvailableFrom == nil || rec.AvailableUntil == nil {
			return Result{Available: true}
		}
		now := domain.TimeOfDayFrom(at)
		if now >= *rec.AvailableFrom && now < *rec.AvailableUntil {
			return Result{Available: true}
		}
		return unavailable(rec, "item is only available "+rec.AvailableFrom.String()+"-"+rec.AvailableUntil.String())
	default:
		return unavailable(rec, "item has unknown availability status")
	}
}

func unavailable(rec domain.AvailabilityRecord, fallback string) Result {
	reason := rec.Reason
	if reason == "" {
		reason = fallback
	}
	return Result{Available: false, Reason: reason}
}
