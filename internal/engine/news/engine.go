// Package news gates and distributes pending news articles to users by
// information tier. It is the single source of truth for which users may see
// which article.
package news

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/calebhsu/longbox/internal/domain"
	"github.com/calebhsu/longbox/internal/scheduler"
)

// Deliverer pushes an article to its eligible users. Delivery transport
// (WebSocket frames, notifications) is the collaborator's concern.
type Deliverer interface {
	Deliver(ctx context.Context, article domain.NewsArticle, users []domain.TierUser) error
}

// Engine distributes pending articles on one timer and refreshes the tier
// catalog on another, slower one. Marking an article distributed happens
// exactly once, so a repeat cycle with no new pending articles is a no-op.
type Engine struct {
	articles  domain.NewsStore
	tiers     domain.TierStore
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	catalog map[string]domain.InformationTier // tier id -> tier
}

// New creates a news Engine.
func New(articles domain.NewsStore, tiers domain.TierStore, deliverer Deliverer, logger *slog.Logger) *Engine {
	return &Engine{
		articles:  articles,
		tiers:     tiers,
		deliverer: deliverer,
		logger:    logger.With(slog.String("component", "news_engine")),
		now:       time.Now,
	}
}

// SyncTiers reloads the tier catalog. It runs on its own slow timer and is
// also invoked lazily by the first distribution tick.
func (e *Engine) SyncTiers(ctx context.Context) (scheduler.TickResult, error) {
	var res scheduler.TickResult

	tiers, err := e.tiers.ListTiers(ctx)
	if err != nil {
		return res, err
	}

	catalog := make(map[string]domain.InformationTier, len(tiers))
	for _, t := range tiers {
		catalog[t.ID] = t
	}

	e.mu.Lock()
	e.catalog = catalog
	e.mu.Unlock()

	res.Processed = len(tiers)
	res.Succeeded = len(tiers)
	e.logger.Debug("information tier catalog synced", slog.Int("tiers", len(tiers)))
	return res, nil
}

// Tick distributes every pending article. A failure on one article leaves it
// pending for retry on the next cycle; the rest of the batch is unaffected.
func (e *Engine) Tick(ctx context.Context) (scheduler.TickResult, error) {
	var res scheduler.TickResult

	pending, err := e.articles.ListPending(ctx)
	if err != nil {
		return res, err
	}
	if len(pending) == 0 {
		return res, nil
	}

	if e.catalogEmpty() {
		if _, err := e.SyncTiers(ctx); err != nil {
			return res, fmt.Errorf("news: sync tiers: %w", err)
		}
	}

	for _, article := range pending {
		res.Processed++
		if err := e.distribute(ctx, article); err != nil {
			res.AddError("article %s: %v", article.ID, err)
			e.logger.Warn("article distribution failed",
				slog.String("article_id", article.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

func (e *Engine) distribute(ctx context.Context, article domain.NewsArticle) error {
	tier, ok := e.lookupTier(article.RequiredTierID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTier, article.RequiredTierID)
	}

	// Users at or above the required rank are eligible.
	users, err := e.tiers.ListUsersAtOrAbove(ctx, tier.Rank)
	if err != nil {
		return err
	}

	if err := e.deliverer.Deliver(ctx, article, users); err != nil {
		return err
	}

	// The pending -> distributed transition happens exactly once.
	now := e.now()
	if err := e.articles.MarkDistributed(ctx, article.ID, now); err != nil {
		return err
	}

	e.logger.Info("article distributed",
		slog.String("article_id", article.ID),
		slog.String("headline", article.Headline),
		slog.String("tier", tier.Name),
		slog.Int("recipients", len(users)),
	)
	return nil
}

func (e *Engine) lookupTier(id string) (domain.InformationTier, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.catalog[id]
	return t, ok
}

func (e *Engine) catalogEmpty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.catalog) == 0
}
