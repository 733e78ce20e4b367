package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebhsu/longbox/internal/domain"
)

// TierStore implements domain.TierStore using PostgreSQL.
type TierStore struct {
	pool *pgxpool.Pool
}

// NewTierStore creates a new TierStore backed by the given pool.
func NewTierStore(pool *pgxpool.Pool) *TierStore {
	return &TierStore{pool: pool}
}

// ListTiers returns the full tier catalog, lowest rank first.
func (s *TierStore) ListTiers(ctx context.Context) ([]domain.InformationTier, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, rank FROM information_tiers ORDER BY rank`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tiers: %w", err)
	}
	defer rows.Close()

	var tiers []domain.InformationTier
	for rows.Next() {
		var t domain.InformationTier
		if err := rows.Scan(&t.ID, &t.Name, &t.Rank); err != nil {
			return nil, fmt.Errorf("postgres: scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// ListUsersAtOrAbove returns users whose tier rank meets the threshold.
func (s *TierStore) ListUsersAtOrAbove(ctx context.Context, rank int) ([]domain.TierUser, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.tier_id
		FROM tier_users u
		JOIN information_tiers t ON t.id = u.tier_id
		WHERE t.rank >= $1
		ORDER BY u.id`,
		rank,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list users at rank >= %d: %w", rank, err)
	}
	defer rows.Close()

	var users []domain.TierUser
	for rows.Next() {
		var u domain.TierUser
		if err := rows.Scan(&u.ID, &u.TierID); err != nil {
			return nil, fmt.Errorf("postgres: scan tier user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
