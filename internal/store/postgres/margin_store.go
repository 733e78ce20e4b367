package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebhsu/longbox/internal/domain"
)

// MarginStore implements domain.MarginStore using PostgreSQL.
type MarginStore struct {
	pool *pgxpool.Pool
}

// NewMarginStore creates a new MarginStore backed by the given pool.
func NewMarginStore(pool *pgxpool.Pool) *MarginStore {
	return &MarginStore{pool: pool}
}

// ListAll returns every margin account.
func (s *MarginStore) ListAll(ctx context.Context) ([]domain.MarginAccount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, margin_equity, margin_debt, maintenance_margin,
		       account_status, margin_call_date, margin_call_amount, version
		FROM margin_accounts
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list margin accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.MarginAccount
	for rows.Next() {
		var a domain.MarginAccount
		var status string
		err := rows.Scan(
			&a.ID, &a.UserID, &a.MarginEquity, &a.MarginDebt, &a.MaintenanceMargin,
			&status, &a.MarginCallDate, &a.MarginCallAmount, &a.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan margin account: %w", err)
		}
		a.Status = domain.MarginStatus(status)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// IssueCall moves an account into margin_call and records when and for how
// much, guarded by the expected version.
func (s *MarginStore) IssueCall(ctx context.Context, id string, expectedVersion int64, at time.Time, amount float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE margin_accounts
		SET account_status = 'margin_call', margin_call_date = $1,
		    margin_call_amount = $2, version = version + 1
		WHERE id = $3 AND version = $4`,
		at, amount, id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: issue margin call %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}
