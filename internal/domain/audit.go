package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one rule decision for an order. Entries are append-only.
type AuditEntry struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Category  ConfigKind      `json:"category"`
	RuleID    *uuid.UUID      `json:"rule_id,omitempty"`
	Snapshot  json.RawMessage `json:"snapshot"`
	Effect    string          `json:"effect"`
	CreatedAt time.Time       `json:"created_at"`
}
