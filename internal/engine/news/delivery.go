package news

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/calebhsu/longbox/internal/domain"
	"github.com/calebhsu/longbox/internal/notify"
)

// BusDeliverer publishes distributed articles onto the event bus for the UI
// push channel, and optionally pings the operator notifier.
type BusDeliverer struct {
	bus      domain.EventBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewBusDeliverer creates a BusDeliverer. notifier may be nil.
func NewBusDeliverer(bus domain.EventBus, notifier *notify.Notifier, logger *slog.Logger) *BusDeliverer {
	return &BusDeliverer{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "news_deliverer")),
	}
}

// Deliver publishes one article event carrying the eligible recipient ids.
func (d *BusDeliverer) Deliver(ctx context.Context, article domain.NewsArticle, users []domain.TierUser) error {
	recipients := make([]string, len(users))
	for i, u := range users {
		recipients[i] = u.ID
	}

	payload, _ := json.Marshal(map[string]any{
		"event":      "news_distributed",
		"article_id": article.ID,
		"headline":   article.Headline,
		"tier_id":    article.RequiredTierID,
		"recipients": recipients,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err := d.bus.Publish(ctx, "news", payload); err != nil {
		return err
	}

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, "news_distributed", "News distributed", article.Headline); err != nil {
			// Operator alerting is best effort; the article still counts
			// as delivered once it is on the bus.
			d.logger.Warn("news notification failed",
				slog.String("article_id", article.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
