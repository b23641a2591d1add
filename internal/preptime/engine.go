// Package preptime estimates order preparation minutes from per-item timing
// settings and a caller-supplied queue delay.
package preptime

import (
	"context"

	"github.com/joao-fontenele/brewrules/internal/configstore"
	"github.com/joao-fontenele/brewrules/internal/domain"
)

// Estimate is the result of a prep-time calculation, with its breakdown.
type Estimate struct {
	Minutes           int `json:"minutes"`
	BaseMinutes       int `json:"base_minutes"`
	QueueDelayMinutes int `json:"queue_delay_minutes"`
}

type Engine struct {
	store *configstore.Store
}

func NewEngine(store *configstore.Store) *Engine {
	return &Engine{store: store}
}

// Estimate computes base_minutes + (quantity-1)*per_additional for every
// line, sums across lines and adds the queue delay. The queue delay is the
// minutes of work already queued ahead of this order, computed by the
// caller. An item without a prep-time setting is a configuration error: an
// unknown prep time is a staffing risk, not something to default away.
func (e *Engine) Estimate(ctx context.Context, lines []domain.OrderLine, queueDelayMinutes int) (Estimate, error) {
	settings, err := e.store.PrepTimes(ctx)
	if err != nil {
		return Estimate{}, err
	}

	var base int
	for _, line := range lines {
		setting, ok := settings[line.ItemID]
		if !ok {
			return Estimate{}, &domain.ConfigurationError{
				Setting: "prep_time_settings/" + line.ItemID,
				Reason:  "no prep time configured for ordered item",
			}
		}
		base += setting.BaseMinutes
		if line.Quantity > 1 {
			base += (line.Quantity - 1) * setting.PerAdditionalMinutes
		}
	}

	total := base + queueDelayMinutes
	if total < 1 {
		total = 1
	}

	return Estimate{
		Minutes:           total,
		BaseMinutes:       base,
		QueueDelayMinutes: queueDelayMinutes,
	}, nil
}
