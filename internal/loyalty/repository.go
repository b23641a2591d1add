package loyalty

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/brewrules/internal/domain"
)

// PostgresBalanceStore keeps customer balances in Postgres. The increment is
// a single upsert, so per-customer serialization happens at the row level
// and concurrent awards cannot lose updates.
type PostgresBalanceStore struct {
	db *sql.DB
}

func NewPostgresBalanceStore(db *sql.DB) *PostgresBalanceStore {
	return &PostgresBalanceStore{db: db}
}

func (s *PostgresBalanceStore) AddPoints(ctx context.Context, customerID string, points int64) (domain.CustomerLoyalty, error) {
	var balance domain.CustomerLoyalty

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customer_loyalty (customer_id, points_balance, lifetime_points, updated_at)
		VALUES ($1, $2, $2, NOW())
		ON CONFLICT (customer_id)
		DO UPDATE SET
			points_balance = customer_loyalty.points_balance + $2,
			lifetime_points = customer_loyalty.lifetime_points + $2,
			updated_at = NOW()
		RETURNING customer_id, points_balance, lifetime_points
	`, customerID, points).Scan(&balance.CustomerID, &balance.PointsBalance, &balance.LifetimePoints)
	if err != nil {
		return domain.CustomerLoyalty{}, err
	}

	return balance, nil
}

// Balance returns the customer's current points balance, zero for unknown
// customers.
func (s *PostgresBalanceStore) Balance(ctx context.Context, customerID string) (int64, error) {
	var balance int64

	err := s.db.QueryRowContext(ctx, `
		SELECT points_balance
		FROM customer_loyalty
		WHERE customer_id = $1
	`, customerID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}

	return balance, nil
}
