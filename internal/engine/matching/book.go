package matching

import (
	"sort"

	"github.com/calebhsu/longbox/internal/domain"
)

// book is one asset's resting orders, sorted for price-time priority:
// better-priced orders first, and at a given price level the order that has
// been resting longest.
type book struct {
	bids   []*domain.Order // limit buys, highest price first
	asks   []*domain.Order // limit sells, lowest price first
	market []*domain.Order // market orders, oldest first
}

func newBook(orders []domain.Order) *book {
	b := &book{}
	for i := range orders {
		o := &orders[i]
		if o.IsTerminal() || o.Remaining() <= 0 {
			continue
		}
		switch {
		case o.Type == domain.OrderTypeMarket:
			b.market = append(b.market, o)
		case o.Side == domain.OrderSideBuy:
			b.bids = append(b.bids, o)
		default:
			b.asks = append(b.asks, o)
		}
	}

	sort.Slice(b.bids, func(i, j int) bool {
		if b.bids[i].Price == b.bids[j].Price {
			return b.bids[i].CreatedAt.Before(b.bids[j].CreatedAt)
		}
		return b.bids[i].Price > b.bids[j].Price
	})
	sort.Slice(b.asks, func(i, j int) bool {
		if b.asks[i].Price == b.asks[j].Price {
			return b.asks[i].CreatedAt.Before(b.asks[j].CreatedAt)
		}
		return b.asks[i].Price < b.asks[j].Price
	})
	sort.Slice(b.market, func(i, j int) bool {
		return b.market[i].CreatedAt.Before(b.market[j].CreatedAt)
	})
	return b
}

func groupByAsset(orders []domain.Order) map[string][]domain.Order {
	byAsset := make(map[string][]domain.Order)
	for _, o := range orders {
		byAsset[o.AssetID] = append(byAsset[o.AssetID], o)
	}
	return byAsset
}
