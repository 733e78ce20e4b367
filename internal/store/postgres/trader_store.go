package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebhsu/longbox/internal/domain"
)

// TraderStore implements domain.TraderStore using PostgreSQL.
type TraderStore struct {
	pool *pgxpool.Pool
}

// NewTraderStore creates a new TraderStore backed by the given pool.
func NewTraderStore(pool *pgxpool.Pool) *TraderStore {
	return &TraderStore{pool: pool}
}

// ListActive returns all active simulated traders.
func (s *TraderStore) ListActive(ctx context.Context) ([]domain.LiquidityTrader, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, trader_type, aggressiveness, intelligence, emotionality,
		       adaptability, available_capital, max_position_size,
		       last_trade_at, total_trades, is_active
		FROM liquidity_traders
		WHERE is_active
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active traders: %w", err)
	}
	defer rows.Close()

	var traders []domain.LiquidityTrader
	for rows.Next() {
		var t domain.LiquidityTrader
		var traderType string
		err := rows.Scan(
			&t.ID, &t.Name, &traderType, &t.Aggressiveness, &t.Intelligence,
			&t.Emotionality, &t.Adaptability, &t.AvailableCapital, &t.MaxPositionSize,
			&t.LastTradeAt, &t.TotalTrades, &t.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trader: %w", err)
		}
		t.Type = domain.TraderType(traderType)
		traders = append(traders, t)
	}
	return traders, rows.Err()
}

// RecordTrade stamps the trader's last trade time and bumps its counter.
func (s *TraderStore) RecordTrade(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE liquidity_traders
		SET last_trade_at = $1, total_trades = total_trades + 1
		WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: record trade for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
