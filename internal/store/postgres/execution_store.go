package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebhsu/longbox/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. Each
// execution runs as one transaction so both counterparties' orders,
// positions, and balances land together or not at all.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Apply commits one match. Order updates are version-checked; a stale
// version rolls back the whole execution with ErrVersionConflict.
func (s *ExecutionStore) Apply(ctx context.Context, exec domain.Execution) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin execution: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, u := range exec.Orders {
		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET filled_quantity = $1, avg_fill_price = $2, status = $3,
			    filled_at = COALESCE($4, filled_at), version = version + 1
			WHERE id = $5 AND version = $6`,
			u.FilledQuantity, u.AvgFillPrice, string(u.Status), u.FilledAt,
			u.OrderID, u.ExpectedVersion,
		)
		if err != nil {
			return fmt.Errorf("postgres: update order %s: %w", u.OrderID, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}
	}

	for _, t := range exec.Trades {
		_, err := tx.Exec(ctx, `
			INSERT INTO trades (id, account_id, asset_id, order_id, side, quantity, price, total_value, fees, executed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			t.ID, t.AccountID, t.AssetID, t.OrderID, string(t.Side),
			t.Quantity, t.Price, t.TotalValue, t.Fees, t.ExecutedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
		}
	}

	for _, p := range exec.Positions {
		_, err := tx.Exec(ctx, `
			INSERT INTO positions (id, account_id, asset_id, quantity, entry_value, current_value, status, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5, 'open', NOW())
			ON CONFLICT (account_id, asset_id) DO UPDATE SET
				quantity = positions.quantity + EXCLUDED.quantity,
				entry_value = positions.entry_value + EXCLUDED.entry_value,
				current_value = positions.current_value + EXCLUDED.current_value,
				status = CASE WHEN positions.quantity + EXCLUDED.quantity <= 0 THEN 'closed' ELSE 'open' END,
				updated_at = NOW()`,
			uuid.NewString(), p.AccountID, p.AssetID, p.Quantity, p.ValueDelta,
		)
		if err != nil {
			return fmt.Errorf("postgres: apply position delta %s/%s: %w", p.AccountID, p.AssetID, err)
		}
	}

	for _, b := range exec.Balances {
		tag, err := tx.Exec(ctx, `
			UPDATE balances SET cash = cash + $1, updated_at = NOW() WHERE account_id = $2`,
			b.Cash, b.AccountID,
		)
		if err != nil {
			return fmt.Errorf("postgres: apply balance delta %s: %w", b.AccountID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("postgres: balance %s: %w", b.AccountID, domain.ErrNotFound)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit execution: %w", err)
	}
	return nil
}
