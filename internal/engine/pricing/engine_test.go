package pricing

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebhsu/longbox/internal/domain"
)

type fakeOptionStore struct {
	contracts   []domain.OptionContract
	quotes      map[string]domain.OptionQuote
	deactivated map[string]time.Time
	quoteErr    error
}

func newFakeOptionStore(contracts ...domain.OptionContract) *fakeOptionStore {
	return &fakeOptionStore{
		contracts:   contracts,
		quotes:      make(map[string]domain.OptionQuote),
		deactivated: make(map[string]time.Time),
	}
}

func (s *fakeOptionStore) ListActive(ctx context.Context) ([]domain.OptionContract, error) {
	return s.contracts, nil
}

func (s *fakeOptionStore) UpdateQuote(ctx context.Context, id string, quote domain.OptionQuote) error {
	if s.quoteErr != nil {
		return s.quoteErr
	}
	s.quotes[id] = quote
	return nil
}

func (s *fakeOptionStore) Deactivate(ctx context.Context, id string, at time.Time) error {
	s.deactivated[id] = at
	return nil
}

type fakePriceStore struct {
	prices map[string]domain.AssetPrice
}

func (s *fakePriceStore) Get(ctx context.Context, assetID string) (domain.AssetPrice, error) {
	p, ok := s.prices[assetID]
	if !ok {
		return domain.AssetPrice{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakePriceStore) Set(ctx context.Context, price domain.AssetPrice) error {
	s.prices[price.AssetID] = price
	return nil
}

func (s *fakePriceStore) List(ctx context.Context) ([]domain.AssetPrice, error) {
	out := make([]domain.AssetPrice, 0, len(s.prices))
	for _, p := range s.prices {
		out = append(out, p)
	}
	return out, nil
}

type fakeBus struct {
	streams  []string
	payloads [][]byte
}

func (b *fakeBus) Publish(ctx context.Context, stream string, payload []byte) error {
	b.streams = append(b.streams, stream)
	b.payloads = append(b.payloads, payload)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func TestTickRepricesActiveContract(t *testing.T) {
	now := fixedNow()
	contract := domain.OptionContract{
		ID:                "opt-1",
		UnderlyingAssetID: "asset-1",
		StrikePrice:       100,
		ExpirationDate:    now.Add(time.Duration(0.25 * hoursPerYear * float64(time.Hour))),
		Type:              domain.OptionCall,
	}
	options := newFakeOptionStore(contract)
	prices := &fakePriceStore{prices: map[string]domain.AssetPrice{
		"asset-1": {AssetID: "asset-1", Price: 100, Volatility: 0.25},
	}}
	bus := &fakeBus{}

	e := New(options, prices, bus, Config{}, discardLogger())
	e.now = func() time.Time { return now }

	res, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Succeeded)
	assert.Zero(t, res.Failed)

	q, ok := options.quotes["opt-1"]
	require.True(t, ok)
	assert.InDelta(t, 5.598, q.MarkPrice, 0.01)
	assert.InDelta(t, q.MarkPrice*0.995, q.BidPrice, 1e-9)
	assert.InDelta(t, q.MarkPrice*1.005, q.AskPrice, 1e-9)
	assert.InDelta(t, 0.25, q.ImpliedVolatility, 1e-9)
	assert.Equal(t, now, q.UpdatedAt)

	require.Len(t, bus.streams, 1)
	assert.Equal(t, "quotes", bus.streams[0])
}

func TestTickDeactivatesExpiredContract(t *testing.T) {
	now := fixedNow()
	options := newFakeOptionStore(domain.OptionContract{
		ID:                "opt-expired",
		UnderlyingAssetID: "asset-1",
		StrikePrice:       50,
		ExpirationDate:    now.Add(-time.Hour),
		Type:              domain.OptionPut,
	})
	prices := &fakePriceStore{prices: map[string]domain.AssetPrice{}}

	e := New(options, prices, nil, Config{}, discardLogger())
	e.now = func() time.Time { return now }

	res, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	at, ok := options.deactivated["opt-expired"]
	require.True(t, ok)
	assert.Equal(t, now, at)
	// Quotes are frozen, not recomputed.
	assert.Empty(t, options.quotes)
}

func TestTickMissingSpotPriceCountedAsFailure(t *testing.T) {
	now := fixedNow()
	options := newFakeOptionStore(
		domain.OptionContract{
			ID:                "opt-no-spot",
			UnderlyingAssetID: "asset-missing",
			StrikePrice:       100,
			ExpirationDate:    now.Add(30 * 24 * time.Hour),
			Type:              domain.OptionCall,
		},
		domain.OptionContract{
			ID:                "opt-ok",
			UnderlyingAssetID: "asset-1",
			StrikePrice:       100,
			ExpirationDate:    now.Add(30 * 24 * time.Hour),
			Type:              domain.OptionCall,
		},
	)
	prices := &fakePriceStore{prices: map[string]domain.AssetPrice{
		"asset-1": {AssetID: "asset-1", Price: 95, Volatility: 0.3},
	}}

	e := New(options, prices, nil, Config{}, discardLogger())
	e.now = func() time.Time { return now }

	res, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "opt-no-spot")

	// The healthy contract still got a fresh quote.
	_, ok := options.quotes["opt-ok"]
	assert.True(t, ok)
}

func TestTickFallsBackToDefaultVolatility(t *testing.T) {
	now := fixedNow()
	options := newFakeOptionStore(domain.OptionContract{
		ID:                "opt-1",
		UnderlyingAssetID: "asset-1",
		StrikePrice:       100,
		ExpirationDate:    now.Add(90 * 24 * time.Hour),
		Type:              domain.OptionCall,
	})
	prices := &fakePriceStore{prices: map[string]domain.AssetPrice{
		"asset-1": {AssetID: "asset-1", Price: 100, Volatility: 0}, // no vol recorded
	}}

	e := New(options, prices, nil, Config{DefaultVolatility: 0.25}, discardLogger())
	e.now = func() time.Time { return now }

	_, err := e.Tick(context.Background())
	require.NoError(t, err)

	q := options.quotes["opt-1"]
	assert.InDelta(t, 0.25, q.ImpliedVolatility, 1e-9)
}

func TestTickQuoteWriteFailureDoesNotAbortBatch(t *testing.T) {
	now := fixedNow()
	options := newFakeOptionStore(domain.OptionContract{
		ID:                "opt-1",
		UnderlyingAssetID: "asset-1",
		StrikePrice:       100,
		ExpirationDate:    now.Add(90 * 24 * time.Hour),
		Type:              domain.OptionCall,
	})
	options.quoteErr = errors.New("write failed")
	prices := &fakePriceStore{prices: map[string]domain.AssetPrice{
		"asset-1": {AssetID: "asset-1", Price: 100, Volatility: 0.25},
	}}

	e := New(options, prices, nil, Config{}, discardLogger())
	e.now = func() time.Time { return now }

	res, err := e.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}
