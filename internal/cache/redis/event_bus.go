package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/calebhsu/longbox/internal/domain"
)

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// EventBus implements domain.EventBus using Redis Streams for durable,
// ordered delivery plus Pub/Sub fan-out for live push consumers (the
// WebSocket hub subscribes to the same stream name as a channel).
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.rdb}
}

// Publish appends the payload to a Redis stream and mirrors it on the
// matching Pub/Sub channel.
func (b *EventBus) Publish(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	if err := b.rdb.Publish(ctx, stream, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", stream, err)
	}
	return nil
}

// Subscribe creates a Pub/Sub subscription for one or more streams and
// returns a read-only channel of raw payloads. The subscription closes when
// the context is cancelled; the returned channel is closed at that point.
func (b *EventBus) Subscribe(ctx context.Context, streams ...string) (<-chan []byte, error) {
	pubsub := b.rdb.Subscribe(ctx, streams...)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %v: %w", streams, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
