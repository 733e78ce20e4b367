package news

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebhsu/longbox/internal/domain"
)

type fakeBus struct {
	streams  []string
	payloads [][]byte
}

func (b *fakeBus) Publish(ctx context.Context, stream string, payload []byte) error {
	b.streams = append(b.streams, stream)
	b.payloads = append(b.payloads, payload)
	return nil
}

func TestBusDelivererPublishesArticleEvent(t *testing.T) {
	bus := &fakeBus{}
	d := NewBusDeliverer(bus, nil, slog.New(slog.DiscardHandler))

	article := domain.NewsArticle{
		ID:             "art-1",
		Headline:       "Gold key variant surfaces",
		RequiredTierID: "tier-pro",
	}
	users := []domain.TierUser{{ID: "u1"}, {ID: "u2"}}

	require.NoError(t, d.Deliver(context.Background(), article, users))

	require.Len(t, bus.streams, 1)
	assert.Equal(t, "news", bus.streams[0])

	var event map[string]any
	require.NoError(t, json.Unmarshal(bus.payloads[0], &event))
	assert.Equal(t, "news_distributed", event["event"])
	assert.Equal(t, "art-1", event["article_id"])
	assert.ElementsMatch(t, []any{"u1", "u2"}, event["recipients"])
}
