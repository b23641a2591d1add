package domain

import (
	"fmt"
	"strings"
)

// ItemProblem describes why a single item failed validation.
type ItemProblem struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

// ValidationError aggregates every unavailable item in an order. It is
// returned before any pricing or prep-time work happens.
type ValidationError struct {
	Problems []ItemProblem
}

func (e *ValidationError) Error() string {
	reasons := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		reasons[i] = fmt.Sprintf("%s: %s", p.ItemID, p.Reason)
	}
	return fmt.Sprintf("%d unavailable items: %s", len(e.Problems), strings.Join(reasons, "; "))
}

// ConfigurationError reports a required setting that is missing or invalid.
// Orders are rejected rather than priced with guessed values.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Setting, e.Reason)
}

// DependencyError wraps a failure of a durable collaborator (configuration
// source or balance store).
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
