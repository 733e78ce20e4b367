package liquidity

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebhsu/longbox/internal/domain"
)

type fakeTraderStore struct {
	traders  []domain.LiquidityTrader
	recorded map[string]int
}

func (s *fakeTraderStore) ListActive(ctx context.Context) ([]domain.LiquidityTrader, error) {
	return s.traders, nil
}

func (s *fakeTraderStore) RecordTrade(ctx context.Context, id string, at time.Time) error {
	if s.recorded == nil {
		s.recorded = make(map[string]int)
	}
	s.recorded[id]++
	return nil
}

type fakePriceStore struct {
	prices []domain.AssetPrice
}

func (s *fakePriceStore) Get(ctx context.Context, assetID string) (domain.AssetPrice, error) {
	for _, p := range s.prices {
		if p.AssetID == assetID {
			return p, nil
		}
	}
	return domain.AssetPrice{}, domain.ErrNotFound
}

func (s *fakePriceStore) Set(ctx context.Context, price domain.AssetPrice) error { return nil }

func (s *fakePriceStore) List(ctx context.Context) ([]domain.AssetPrice, error) {
	return s.prices, nil
}

type fakeOrderStore struct {
	created []domain.Order
}

func (s *fakeOrderStore) Create(ctx context.Context, order domain.Order) error {
	s.created = append(s.created, order)
	return nil
}

func (s *fakeOrderStore) ListOpen(ctx context.Context) ([]domain.Order, error) {
	return s.created, nil
}

func (s *fakeOrderStore) Cancel(ctx context.Context, id string, expectedVersion int64, reason string) error {
	return nil
}

func newTestEngine(traders *fakeTraderStore, prices *fakePriceStore, orders *fakeOrderStore, seed int64) *Engine {
	e := New(traders, prices, orders, rand.New(rand.NewSource(seed)), slog.New(slog.DiscardHandler))
	e.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return e
}

func momentumTrader(id string) domain.LiquidityTrader {
	return domain.LiquidityTrader{
		ID:               id,
		Name:             "trader " + id,
		Type:             domain.TraderMomentum,
		Aggressiveness:   100,
		Intelligence:     90,
		Emotionality:     100,
		AvailableCapital: 100_000,
		MaxPositionSize:  20_000,
		IsActive:         true,
	}
}

func testAssets(n int) []domain.AssetPrice {
	assets := make([]domain.AssetPrice, n)
	for i := range assets {
		assets[i] = domain.AssetPrice{
			AssetID: fmt.Sprintf("asset-%d", i),
			Price:   50 + float64(i)*10,
		}
	}
	return assets
}

func TestTraderOnCooldownSkipped(t *testing.T) {
	recent := time.Date(2026, 3, 15, 11, 59, 0, 0, time.UTC) // 1 minute ago
	traders := &fakeTraderStore{traders: []domain.LiquidityTrader{
		func() domain.LiquidityTrader {
			tr := momentumTrader("npc-1")
			tr.LastTradeAt = &recent
			return tr
		}(),
	}}
	prices := &fakePriceStore{prices: testAssets(5)}
	orders := &fakeOrderStore{}

	e := newTestEngine(traders, prices, orders, 1)
	result, err := e.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.TradersProcessed)
	assert.Zero(t, result.OrdersCreated)
	assert.Empty(t, orders.created)
	assert.Empty(t, traders.recorded)
}

func TestTraderOffCooldownEligible(t *testing.T) {
	old := time.Date(2026, 3, 15, 11, 0, 0, 0, time.UTC) // 1 hour ago
	tr := momentumTrader("npc-1")
	tr.LastTradeAt = &old
	traders := &fakeTraderStore{traders: []domain.LiquidityTrader{tr}}
	prices := &fakePriceStore{prices: testAssets(5)}
	orders := &fakeOrderStore{}

	// Across many seeds an eligible trader must place an order at least once,
	// and never more than one per cycle.
	placedAtLeastOnce := false
	for seed := int64(1); seed <= 20; seed++ {
		orders.created = nil
		traders.recorded = nil
		e := newTestEngine(traders, prices, orders, seed)
		result, err := e.RunCycle(context.Background())
		require.NoError(t, err)
		assert.LessOrEqual(t, result.OrdersCreated, 1)
		if result.OrdersCreated == 1 {
			placedAtLeastOnce = true
			assert.Equal(t, 1, traders.recorded["npc-1"])
		}
	}
	assert.True(t, placedAtLeastOnce)
}

func TestCycleInvariants(t *testing.T) {
	roster := make([]domain.LiquidityTrader, 0, 10)
	for i := 0; i < 10; i++ {
		roster = append(roster, momentumTrader(fmt.Sprintf("npc-%d", i)))
	}
	traders := &fakeTraderStore{traders: roster}
	prices := &fakePriceStore{prices: testAssets(8)}
	orders := &fakeOrderStore{}

	e := newTestEngine(traders, prices, orders, 42)
	result, err := e.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, result.TradersProcessed)
	assert.Equal(t, len(orders.created), result.OrdersCreated)
	assert.Empty(t, result.Errors)

	perTrader := make(map[string]int)
	for _, o := range orders.created {
		perTrader[o.AccountID]++
		assert.Positive(t, o.Quantity)
		assert.LessOrEqual(t, o.Quantity, float64(maxOrderQty))
		assert.Equal(t, domain.OrderStatusOpen, o.Status)
		assert.NotEmpty(t, o.ID)
		if o.Type == domain.OrderTypeMarket {
			assert.Zero(t, o.Price)
		} else {
			assert.Positive(t, o.Price)
		}
	}
	for id, n := range perTrader {
		assert.Equal(t, 1, n, "trader %s placed more than one order", id)
		assert.Equal(t, 1, traders.recorded[id])
	}
}

func TestDeterministicWithSameSeed(t *testing.T) {
	run := func() []domain.Order {
		roster := make([]domain.LiquidityTrader, 0, 5)
		for i := 0; i < 5; i++ {
			roster = append(roster, momentumTrader(fmt.Sprintf("npc-%d", i)))
		}
		traders := &fakeTraderStore{traders: roster}
		orders := &fakeOrderStore{}
		e := newTestEngine(traders, &fakePriceStore{prices: testAssets(6)}, orders, 7)
		e.newID = func() string { return "fixed" }
		_, err := e.RunCycle(context.Background())
		require.NoError(t, err)
		return orders.created
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestNoAssetsNoOrders(t *testing.T) {
	traders := &fakeTraderStore{traders: []domain.LiquidityTrader{momentumTrader("npc-1")}}
	orders := &fakeOrderStore{}

	e := newTestEngine(traders, &fakePriceStore{}, orders, 1)
	result, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.TradersProcessed)
	assert.Empty(t, orders.created)
}

func TestDecideMomentumBuysRisingPrice(t *testing.T) {
	e := newTestEngine(&fakeTraderStore{}, &fakePriceStore{}, &fakeOrderStore{}, 1)
	tr := domain.LiquidityTrader{
		Type:             domain.TraderMomentum,
		Aggressiveness:   50,
		Intelligence:     100,
		Emotionality:     50,
		AvailableCapital: 110_000,
		MaxPositionSize:  11_000,
	}

	// Price up 10% against the previous point.
	d := e.Decide(tr, 110, []float64{100, 100, 100, 110}, 1.0, 1.0)
	assert.Equal(t, ActionBuy, d.Action)
	assert.Positive(t, d.Quantity)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9) // intelligence * (1 - default vol 0.2)
}

func TestDecideMomentumSellsFallingPrice(t *testing.T) {
	e := newTestEngine(&fakeTraderStore{}, &fakePriceStore{}, &fakeOrderStore{}, 1)
	tr := domain.LiquidityTrader{
		Type:             domain.TraderMomentum,
		Aggressiveness:   50,
		Intelligence:     100,
		Emotionality:     50,
		AvailableCapital: 110_000,
		MaxPositionSize:  11_000,
	}

	d := e.Decide(tr, 90, []float64{100, 100, 100, 90}, 1.0, 1.0)
	assert.Equal(t, ActionSell, d.Action)
}

func TestDecideContrarianBuysTheDip(t *testing.T) {
	e := newTestEngine(&fakeTraderStore{}, &fakePriceStore{}, &fakeOrderStore{}, 1)
	tr := domain.LiquidityTrader{
		Type:             domain.TraderContrarian,
		Aggressiveness:   50,
		Intelligence:     100,
		Emotionality:     0,
		AvailableCapital: 100_000,
		MaxPositionSize:  10_000,
	}

	// Momentum below -5% triggers the contrarian bid.
	d := e.Decide(tr, 90, []float64{100, 100, 100, 90}, 0, 1.0)
	assert.Equal(t, ActionBuy, d.Action)
}

func TestDecideNeutralHolds(t *testing.T) {
	e := newTestEngine(&fakeTraderStore{}, &fakePriceStore{}, &fakeOrderStore{}, 1)
	tr := domain.LiquidityTrader{
		Type:             domain.TraderMomentum,
		Aggressiveness:   50,
		Intelligence:     100,
		Emotionality:     50,
		AvailableCapital: 100_000,
		MaxPositionSize:  10_000,
	}

	d := e.Decide(tr, 100, []float64{100, 100, 100, 100}, 1.0, 1.0)
	assert.Equal(t, ActionHold, d.Action)
	assert.Zero(t, d.Quantity)
}

func TestDecideQuantityCappedByCapital(t *testing.T) {
	e := newTestEngine(&fakeTraderStore{}, &fakePriceStore{}, &fakeOrderStore{}, 1)
	tr := domain.LiquidityTrader{
		Type:             domain.TraderMomentum,
		Aggressiveness:   100,
		Intelligence:     100,
		Emotionality:     50,
		AvailableCapital: 500, // 5 units at price 100
		MaxPositionSize:  1_000_000,
	}

	d := e.Decide(tr, 110, []float64{100, 100, 100, 110}, 1.0, 1.0)
	require.Equal(t, ActionBuy, d.Action)
	assert.LessOrEqual(t, d.Quantity, 500.0/110)
}
