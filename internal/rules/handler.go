package rules

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/brewrules/internal/domain"
	"github.com/joao-fontenele/brewrules/internal/pricing"
)

// AdminStore writes configuration changes to durable storage.
type AdminStore interface {
	UpsertAvailability(ctx context.Context, rec domain.AvailabilityRecord) error
}

// AuditTrail reads persisted audit entries back for inspection.
type AuditTrail interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.AuditEntry, error)
}

// Publisher announces configuration changes to other instances.
type Publisher interface {
	Publish(ctx context.Context, event domain.ConfigChangedEvent) error
}

type Handler struct {
	engine     *Engine
	admin      AdminStore
	auditTrail AuditTrail
	publisher  Publisher
	logger     *slog.Logger
}

func NewHandler(engine *Engine, admin AdminStore, auditTrail AuditTrail, publisher Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		engine:     engine,
		admin:      admin,
		auditTrail: auditTrail,
		publisher:  publisher,
		logger:     logger,
	}
}

type orderLineRequest struct {
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type evaluateOrderRequest struct {
	OrderID           string             `json:"order_id"`
	Items             []orderLineRequest `json:"items"`
	At                string             `json:"at,omitempty"`
	Strategy          string             `json:"strategy,omitempty"`
	QueueDelayMinutes int                `json:"queue_delay_minutes"`
}

func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orderID, err := parseOrderID(req.OrderID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lines, err := parseLines(req.Items)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	at := time.Now()
	if req.At != "" {
		at, err = time.Parse(time.RFC3339, req.At)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid at: expected RFC3339 timestamp")
			return
		}
	}

	strategy := pricing.Strategy(req.Strategy)
	if req.Strategy != "" && !strategy.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown pricing strategy")
		return
	}

	result, err := h.engine.EvaluateOrder(r.Context(), EvaluateRequest{
		OrderID:           orderID,
		Lines:             lines,
		At:                at,
		Strategy:          strategy,
		QueueDelayMinutes: req.QueueDelayMinutes,
	})
	if err != nil {
		h.writeEngineError(w, "evaluate order", orderID, err)
		return
	}

	h.logger.Info("order evaluated", "order_id", orderID,
		"final_price", result.FinalPrice, "prep_minutes", result.PrepMinutes)
	h.writeJSON(w, http.StatusOK, result)
}

type settleOrderRequest struct {
	CustomerID string             `json:"customer_id"`
	OrderTotal int64              `json:"order_total"`
	Items      []orderLineRequest `json:"items"`
}

type settleOrderResponse struct {
	OrderID       uuid.UUID `json:"order_id"`
	PointsAwarded int64     `json:"points_awarded"`
}

func (h *Handler) HandleSettle(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseOrderID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req settleOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CustomerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}
	if req.OrderTotal < 0 {
		h.writeError(w, http.StatusBadRequest, "order total must not be negative")
		return
	}

	lines, err := parseLines(req.Items)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := h.engine.SettleOrder(r.Context(), orderID, req.CustomerID, req.OrderTotal, lines)
	if err != nil {
		h.writeEngineError(w, "settle order", orderID, err)
		return
	}

	h.logger.Info("order settled", "order_id", orderID,
		"customer_id", req.CustomerID, "points_awarded", points)
	h.writeJSON(w, http.StatusOK, settleOrderResponse{OrderID: orderID, PointsAwarded: points})
}

func (h *Handler) HandleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.MetricsSnapshot())
}

func (h *Handler) HandleListAvailability(w http.ResponseWriter, r *http.Request) {
	records, err := h.engine.Store().Availability(r.Context())
	if err != nil {
		h.writeEngineError(w, "list availability", uuid.Nil, err)
		return
	}

	list := make([]domain.AvailabilityRecord, 0, len(records))
	for _, rec := range records {
		list = append(list, rec)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ItemID < list[j].ItemID })

	h.writeJSON(w, http.StatusOK, list)
}

type updateAvailabilityRequest struct {
	Status         domain.AvailabilityStatus `json:"status"`
	Reason         string                    `json:"reason,omitempty"`
	AvailableFrom  string                    `json:"available_from,omitempty"`
	AvailableUntil string                    `json:"available_until,omitempty"`
}

func (h *Handler) HandleUpdateAvailability(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")
	if itemID == "" {
		h.writeError(w, http.StatusBadRequest, "missing item id")
		return
	}

	var req updateAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Status {
	case domain.StatusAvailable, domain.StatusOutOfStock, domain.StatusSeasonal, domain.StatusDiscontinued:
	default:
		h.writeError(w, http.StatusBadRequest, "unknown availability status")
		return
	}

	rec := domain.AvailabilityRecord{
		ItemID: itemID,
		Status: req.Status,
		Reason: req.Reason,
	}
	if req.AvailableFrom != "" {
		from, err := domain.ParseTimeOfDay(req.AvailableFrom)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rec.AvailableFrom = &from
	}
	if req.AvailableUntil != "" {
		until, err := domain.ParseTimeOfDay(req.AvailableUntil)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rec.AvailableUntil = &until
	}
	if (rec.AvailableFrom == nil) != (rec.AvailableUntil == nil) {
		h.writeError(w, http.StatusBadRequest, "available_from and available_until must be set together")
		return
	}

	if err := h.admin.UpsertAvailability(r.Context(), rec); err != nil {
		h.logger.Error("failed to update availability", "error", err, "item_id", itemID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.engine.Store().Invalidate(domain.KindAvailability)

	if h.publisher != nil {
		event := domain.ConfigChangedEvent{
			Kind:      domain.KindAvailability,
			ItemID:    itemID,
			Timestamp: time.Now().UTC(),
		}
		if err := h.publisher.Publish(r.Context(), event); err != nil {
			h.logger.Error("failed to publish config change", "error", err, "item_id", itemID)
		}
	}

	h.logger.Info("availability updated", "item_id", itemID, "status", rec.Status)
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) HandleListPricingRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.engine.Store().PricingRules(r.Context())
	if err != nil {
		h.writeEngineError(w, "list pricing rules", uuid.Nil, err)
		return
	}

	h.writeJSON(w, http.StatusOK, rules)
}

func (h *Handler) HandleGetLoyaltySettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.engine.Store().Loyalty(r.Context())
	if err != nil {
		h.writeEngineError(w, "get loyalty settings", uuid.Nil, err)
		return
	}

	h.writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) HandleOrderAudit(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseOrderID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.auditTrail.ListByOrder(r.Context(), orderID)
	if err != nil {
		h.logger.Error("failed to list audit entries", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	h.writeJSON(w, http.StatusOK, entries)
}

func parseOrderID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, errors.New("missing order id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("invalid order id")
	}
	return id, nil
}

func parseLines(items []orderLineRequest) ([]domain.OrderLine, error) {
	if len(items) == 0 {
		return nil, errors.New("order must contain at least one item")
	}
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		if item.ItemID == "" {
			return nil, errors.New("every item needs an item_id")
		}
		if item.Quantity <= 0 {
			return nil, errors.New("every item needs a positive quantity")
		}
		if item.UnitPrice < 0 {
			return nil, errors.New("unit_price must not be negative")
		}
		lines = append(lines, domain.OrderLine{
			ItemID:    item.ItemID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return lines, nil
}

// writeEngineError translates the engine's error taxonomy into HTTP statuses:
// rejected orders are 400 with the per-item problems, configuration gaps are
// 422, and unreachable dependencies are 503.
func (h *Handler) writeEngineError(w http.ResponseWriter, op string, orderID uuid.UUID, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "order rejected",
			"unavailable_items": validationErr.Problems,
		})
		return
	}

	var configErr *domain.ConfigurationError
	if errors.As(err, &configErr) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   "configuration error",
			"setting": configErr.Setting,
			"reason":  configErr.Reason,
		})
		return
	}

	var depErr *domain.DependencyError
	if errors.As(err, &depErr) {
		h.logger.Error("dependency failure", "op", op, "error", err, "order_id", orderID)
		h.writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		return
	}

	h.logger.Error("failed to "+op, "error", err, "order_id", orderID)
	h.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
