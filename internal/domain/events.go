package domain

import "time"

// ConfigChangedEvent announces that a configuration kind was modified.
// Consumers invalidate their cached copy of that kind.
type ConfigChangedEvent struct {
	Kind      ConfigKind `json:"kind"`
	ItemID    string     `json:"item_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
