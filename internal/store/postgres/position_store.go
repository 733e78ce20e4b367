package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebhsu/longbox/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Get returns one account's position in one asset.
func (s *PositionStore) Get(ctx context.Context, accountID, assetID string) (domain.Position, error) {
	var p domain.Position
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, account_id, asset_id, quantity, entry_value, current_value, status, updated_at
		FROM positions
		WHERE account_id = $1 AND asset_id = $2`,
		accountID, assetID,
	).Scan(&p.ID, &p.AccountID, &p.AssetID, &p.Quantity, &p.EntryValue, &p.CurrentValue, &status, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", accountID, assetID, err)
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// BalanceStore implements domain.BalanceStore using PostgreSQL.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a new BalanceStore backed by the given pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Get returns one account's cash balance.
func (s *BalanceStore) Get(ctx context.Context, accountID string) (domain.Balance, error) {
	var b domain.Balance
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, cash, updated_at FROM balances WHERE account_id = $1`,
		accountID,
	).Scan(&b.AccountID, &b.Cash, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Balance{}, domain.ErrNotFound
		}
		return domain.Balance{}, fmt.Errorf("postgres: get balance %s: %w", accountID, err)
	}
	return b, nil
}
