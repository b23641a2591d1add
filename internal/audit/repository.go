package audit

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/joao-fontenele/brewrules/internal/domain"
)

// PostgresSink appends audit entries to the rule_audit_log table.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Append(ctx context.Context, entry domain.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_audit_log (id, order_id, category, rule_id, snapshot, effect, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.OrderID, entry.Category, entry.RuleID, []byte(entry.Snapshot), entry.Effect, entry.CreatedAt)
	return err
}

// ListByOrder returns the audit trail for one order, oldest first.
func (s *PostgresSink) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, category, rule_id, snapshot, effect, created_at
		FROM rule_audit_log
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var ruleID uuid.NullUUID
		var snapshot []byte
		if err := rows.Scan(&entry.ID, &entry.OrderID, &entry.Category, &ruleID, &snapshot, &entry.Effect, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if ruleID.Valid {
			id := ruleID.UUID
			entry.RuleID = &id
		}
		entry.Snapshot = snapshot
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
