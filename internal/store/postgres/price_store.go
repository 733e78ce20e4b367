package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebhsu/longbox/internal/domain"
)

// PriceStore implements domain.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a new PriceStore backed by the given pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Get returns the spot price record for one asset.
func (s *PriceStore) Get(ctx context.Context, assetID string) (domain.AssetPrice, error) {
	var p domain.AssetPrice
	err := s.pool.QueryRow(ctx,
		`SELECT asset_id, price, volatility, updated_at FROM asset_prices WHERE asset_id = $1`,
		assetID,
	).Scan(&p.AssetID, &p.Price, &p.Volatility, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AssetPrice{}, domain.ErrNotFound
		}
		return domain.AssetPrice{}, fmt.Errorf("postgres: get price %s: %w", assetID, err)
	}
	return p, nil
}

// Set upserts the spot price record for one asset.
func (s *PriceStore) Set(ctx context.Context, p domain.AssetPrice) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO asset_prices (asset_id, price, volatility, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset_id) DO UPDATE SET
			price = EXCLUDED.price,
			volatility = EXCLUDED.volatility,
			updated_at = EXCLUDED.updated_at`,
		p.AssetID, p.Price, p.Volatility, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: set price %s: %w", p.AssetID, err)
	}
	return nil
}

// List returns all spot price records.
func (s *PriceStore) List(ctx context.Context) ([]domain.AssetPrice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset_id, price, volatility, updated_at FROM asset_prices ORDER BY asset_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list prices: %w", err)
	}
	defer rows.Close()

	var prices []domain.AssetPrice
	for rows.Next() {
		var p domain.AssetPrice
		if err := rows.Scan(&p.AssetID, &p.Price, &p.Volatility, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
