package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebhsu/longbox/internal/domain"
)

// ArchiveStore serves the time-ranged reads the cold archiver needs. It is
// read-only; the archiver never deletes from the primary store.
type ArchiveStore struct {
	pool *pgxpool.Pool
}

// NewArchiveStore creates a new ArchiveStore backed by the given pool.
func NewArchiveStore(pool *pgxpool.Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

// ListTradesBefore returns all trades executed strictly before the cutoff.
func (s *ArchiveStore) ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, asset_id, order_id, side, quantity, price, total_value, fees, executed_at
		FROM trades
		WHERE executed_at < $1
		ORDER BY executed_at`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		err := rows.Scan(
			&t.ID, &t.AccountID, &t.AssetID, &t.OrderID, &side,
			&t.Quantity, &t.Price, &t.TotalValue, &t.Fees, &t.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Side = domain.OrderSide(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListSettledOrdersBefore returns filled and cancelled orders created
// strictly before the cutoff.
func (s *ArchiveStore) ListSettledOrdersBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, asset_id, side, order_type, price,
		       quantity, filled_quantity, avg_fill_price, status, version, created_at, filled_at
		FROM orders
		WHERE status IN ('filled', 'cancelled') AND created_at < $1
		ORDER BY created_at`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled orders before %s: %w", before.Format(time.RFC3339), err)
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

// ListExpiredContractsBefore returns deactivated contracts whose expiration
// is strictly before the cutoff.
func (s *ArchiveStore) ListExpiredContractsBefore(ctx context.Context, before time.Time) ([]domain.OptionContract, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+optionSelectCols+` FROM option_contracts
		 WHERE NOT is_active AND expiration_date < $1
		 ORDER BY expiration_date`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired contracts before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var contracts []domain.OptionContract
	for rows.Next() {
		var c domain.OptionContract
		var optionType string
		err := rows.Scan(
			&c.ID, &c.UnderlyingAssetID, &c.StrikePrice, &c.ExpirationDate, &optionType,
			&c.BidPrice, &c.AskPrice, &c.LastPrice, &c.MarkPrice, &c.ImpliedVolatility,
			&c.Greeks.Delta, &c.Greeks.Gamma, &c.Greeks.Theta, &c.Greeks.Vega, &c.Greeks.Rho,
			&c.IntrinsicValue, &c.TimeValue,
			&c.IsActive, &c.LastUpdate,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan contract: %w", err)
		}
		c.Type = domain.OptionType(optionType)
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}
