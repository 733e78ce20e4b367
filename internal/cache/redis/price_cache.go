package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calebhsu/longbox/internal/domain"
)

// priceTTL bounds staleness if a write-through is missed.
const priceTTL = 5 * time.Minute

// CachedPriceStore layers a Redis hash cache over a backing PriceStore.
// Each asset's quote is stored at key "price:{assetID}" with fields "price",
// "vol", and "ts" (Unix nanosecond timestamp). Reads hit Redis first and fall
// back to the backing store, backfilling the cache on a miss. Writes go
// through to the backing store and then update the cache.
type CachedPriceStore struct {
	rdb  *redis.Client
	next domain.PriceStore
}

// NewCachedPriceStore creates a CachedPriceStore backed by the given Client
// and fallback store.
func NewCachedPriceStore(c *Client, next domain.PriceStore) *CachedPriceStore {
	return &CachedPriceStore{rdb: c.rdb, next: next}
}

func priceKey(assetID string) string {
	return "price:" + assetID
}

// Get returns the spot price for one asset, preferring the cache.
func (s *CachedPriceStore) Get(ctx context.Context, assetID string) (domain.AssetPrice, error) {
	vals, err := s.rdb.HGetAll(ctx, priceKey(assetID)).Result()
	if err == nil && len(vals) > 0 {
		if p, ok := parsePriceHash(assetID, vals); ok {
			return p, nil
		}
	}

	p, err := s.next.Get(ctx, assetID)
	if err != nil {
		return domain.AssetPrice{}, err
	}
	// Best-effort backfill; a cache write failure must not fail the read.
	_ = s.writeCache(ctx, p)
	return p, nil
}

// Set writes the price through to the backing store and refreshes the cache.
func (s *CachedPriceStore) Set(ctx context.Context, p domain.AssetPrice) error {
	if err := s.next.Set(ctx, p); err != nil {
		return err
	}
	if err := s.writeCache(ctx, p); err != nil {
		return fmt.Errorf("redis: cache price %s: %w", p.AssetID, err)
	}
	return nil
}

// List always reads from the backing store; the cache only serves point reads.
func (s *CachedPriceStore) List(ctx context.Context) ([]domain.AssetPrice, error) {
	return s.next.List(ctx)
}

func (s *CachedPriceStore) writeCache(ctx context.Context, p domain.AssetPrice) error {
	key := priceKey(p.AssetID)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(p.Price, 'f', -1, 64),
		"vol":   strconv.FormatFloat(p.Volatility, 'f', -1, 64),
		"ts":    strconv.FormatInt(p.UpdatedAt.UnixNano(), 10),
	}
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func parsePriceHash(assetID string, vals map[string]string) (domain.AssetPrice, bool) {
	priceStr, ok := vals["price"]
	if !ok {
		return domain.AssetPrice{}, false
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.AssetPrice{}, false
	}

	vol, _ := strconv.ParseFloat(vals["vol"], 64)

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.AssetPrice{}, false
	}

	return domain.AssetPrice{
		AssetID:    assetID,
		Price:      price,
		Volatility: vol,
		UpdatedAt:  time.Unix(0, tsNano),
	}, true
}

// Compile-time interface check.
var _ domain.PriceStore = (*CachedPriceStore)(nil)
