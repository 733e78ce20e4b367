package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebhsu/longbox/internal/domain"
)

// NewsStore implements domain.NewsStore using PostgreSQL.
type NewsStore struct {
	pool *pgxpool.Pool
}

// NewNewsStore creates a new NewsStore backed by the given pool.
func NewNewsStore(pool *pgxpool.Pool) *NewsStore {
	return &NewsStore{pool: pool}
}

// ListPending returns undistributed articles, oldest first.
func (s *NewsStore) ListPending(ctx context.Context) ([]domain.NewsArticle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, headline, body, required_tier_id, distribution_status, distributed_at, published_at
		FROM news_articles
		WHERE distribution_status = 'pending'
		ORDER BY published_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending articles: %w", err)
	}
	defer rows.Close()

	var articles []domain.NewsArticle
	for rows.Next() {
		var a domain.NewsArticle
		var status string
		err := rows.Scan(
			&a.ID, &a.Headline, &a.Body, &a.RequiredTierID,
			&status, &a.DistributedAt, &a.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan article: %w", err)
		}
		a.DistributionStatus = domain.DistributionStatus(status)
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// MarkDistributed moves an article to distributed. The pending guard makes
// the transition one-shot even if two cycles race on the same article.
func (s *NewsStore) MarkDistributed(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE news_articles
		SET distribution_status = 'distributed', distributed_at = $1
		WHERE id = $2 AND distribution_status = 'pending'`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark distributed %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
