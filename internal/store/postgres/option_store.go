package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebhsu/longbox/internal/domain"
)

// OptionStore implements domain.OptionStore using PostgreSQL.
type OptionStore struct {
	pool *pgxpool.Pool
}

// NewOptionStore creates a new OptionStore backed by the given pool.
func NewOptionStore(pool *pgxpool.Pool) *OptionStore {
	return &OptionStore{pool: pool}
}

const optionSelectCols = `id, underlying_asset_id, strike_price, expiration_date, option_type,
	bid_price, ask_price, last_price, mark_price, implied_volatility,
	delta, gamma, theta, vega, rho, intrinsic_value, time_value,
	is_active, last_update`

// ListActive returns all contracts that have not been deactivated. Expired
// contracts are never returned once deactivated, so they are never repriced.
func (s *OptionStore) ListActive(ctx context.Context) ([]domain.OptionContract, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+optionSelectCols+` FROM option_contracts WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active contracts: %w", err)
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

// UpdateQuote writes a fresh valuation onto an active contract. Deactivated
// contracts are left frozen.
func (s *OptionStore) UpdateQuote(ctx context.Context, id string, q domain.OptionQuote) error {
	const query = `
		UPDATE option_contracts SET
			bid_price = $1, ask_price = $2, last_price = $3, mark_price = $4,
			implied_volatility = $5,
			delta = $6, gamma = $7, theta = $8, vega = $9, rho = $10,
			intrinsic_value = $11, time_value = $12, last_update = $13
		WHERE id = $14 AND is_active`

	tag, err := s.pool.Exec(ctx, query,
		q.BidPrice, q.AskPrice, q.LastPrice, q.MarkPrice,
		q.ImpliedVolatility,
		q.Greeks.Delta, q.Greeks.Gamma, q.Greeks.Theta, q.Greeks.Vega, q.Greeks.Rho,
		q.IntrinsicValue, q.TimeValue, q.UpdatedAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("postgres: update quote %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Deactivate marks a contract expired. The transition is one-way; pricing
// fields are left at their last computed values.
func (s *OptionStore) Deactivate(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE option_contracts SET is_active = FALSE, last_update = $1 WHERE id = $2 AND is_active`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: deactivate contract %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
