package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebhsu/longbox/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, account_id, asset_id, side, order_type, price,
			quantity, filled_quantity, avg_fill_price, status, version, created_at, filled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.AccountID, o.AssetID, string(o.Side), string(o.Type), o.Price,
		o.Quantity, o.FilledQuantity, o.AvgFillPrice, string(o.Status), o.CreatedAt, o.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// ListOpen returns all open and partially filled orders, oldest first.
func (s *OrderStore) ListOpen(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, asset_id, side, order_type, price,
		       quantity, filled_quantity, avg_fill_price, status, version, created_at, filled_at
		FROM orders
		WHERE status IN ('open', 'partially_filled')
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var side, orderType, status string
		err := rows.Scan(
			&o.ID, &o.AccountID, &o.AssetID, &side, &orderType, &o.Price,
			&o.Quantity, &o.FilledQuantity, &o.AvgFillPrice, &status, &o.Version,
			&o.CreatedAt, &o.FilledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o.Side = domain.OrderSide(side)
		o.Type = domain.OrderType(orderType)
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Cancel moves an order to cancelled, guarded by the expected version.
func (s *OrderStore) Cancel(ctx context.Context, id string, expectedVersion int64, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = 'cancelled', reject_reason = $1, version = version + 1
		WHERE id = $2 AND version = $3 AND status IN ('open', 'partially_filled')`,
		reason, id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: cancel order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}
