package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebhsu/longbox/internal/domain"
)

type fakeBlobWriter struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeBlobWriter() *fakeBlobWriter {
	return &fakeBlobWriter{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (w *fakeBlobWriter) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	w.objects[key] = data
	w.types[key] = contentType
	return nil
}

type fakeArchiveStore struct {
	trades    []domain.Trade
	orders    []domain.Order
	contracts []domain.OptionContract

	tradesErr error
}

func (s *fakeArchiveStore) ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	if s.tradesErr != nil {
		return nil, s.tradesErr
	}
	return s.trades, nil
}

func (s *fakeArchiveStore) ListSettledOrdersBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	return s.orders, nil
}

func (s *fakeArchiveStore) ListExpiredContractsBefore(ctx context.Context, before time.Time) ([]domain.OptionContract, error) {
	return s.contracts, nil
}

func newTestArchiver(w domain.BlobWriter, store *fakeArchiveStore) *Archiver {
	a := NewArchiver(w, store, store, store, 90*24*time.Hour, slog.New(slog.DiscardHandler))
	a.now = func() time.Time { return time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC) }
	return a
}

func TestRunArchivesAllKinds(t *testing.T) {
	store := &fakeArchiveStore{
		trades: []domain.Trade{
			{ID: "t1", AssetID: "asm-1", Price: 50, Quantity: 2},
			{ID: "t2", AssetID: "asm-1", Price: 51, Quantity: 1},
		},
		orders:    []domain.Order{{ID: "o1", Status: domain.OrderStatusFilled}},
		contracts: []domain.OptionContract{{ID: "c1"}},
	}
	w := newFakeBlobWriter()
	a := newTestArchiver(w, store)

	stats, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Trades)
	assert.Equal(t, int64(1), stats.Orders)
	assert.Equal(t, int64(1), stats.Contracts)

	// Cutoff is 90 days before 2026-08-30, so objects land in 2026-06.
	require.Contains(t, w.objects, "archive/trades/2026-06.jsonl")
	require.Contains(t, w.objects, "archive/orders/2026-06.jsonl")
	require.Contains(t, w.objects, "archive/contracts/2026-06.jsonl")
	assert.Equal(t, "application/x-ndjson", w.types["archive/trades/2026-06.jsonl"])

	// Each trade is one JSON line.
	lines := strings.Split(strings.TrimRight(string(w.objects["archive/trades/2026-06.jsonl"]), "\n"), "\n")
	require.Len(t, lines, 2)
	var tr domain.Trade
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &tr))
	assert.Equal(t, "t1", tr.ID)
}

func TestRunSkipsEmptyKinds(t *testing.T) {
	w := newFakeBlobWriter()
	a := newTestArchiver(w, &fakeArchiveStore{})

	stats, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Trades)
	assert.Empty(t, w.objects)
}

func TestRunKindFailureDoesNotBlockOthers(t *testing.T) {
	store := &fakeArchiveStore{
		tradesErr: errors.New("query timeout"),
		orders:    []domain.Order{{ID: "o1", Status: domain.OrderStatusCancelled}},
	}
	w := newFakeBlobWriter()
	a := newTestArchiver(w, store)

	stats, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, stats.Trades)
	assert.Equal(t, int64(1), stats.Orders)
	assert.Contains(t, err.Error(), "archive trades query")
}

func TestMarshalJSONLKeepsRawStrings(t *testing.T) {
	type rec struct {
		URL string `json:"url"`
	}
	out, err := marshalJSONL([]rec{{URL: "https://example.com/a?b=1&c=2"}})
	require.NoError(t, err)
	// HTML escaping is off so & survives verbatim.
	assert.True(t, bytes.Contains(out, []byte("b=1&c=2")))
}

func TestArchivePathPartitionsByMonth(t *testing.T) {
	at := time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "archive/trades/2026-01.jsonl", archivePath("trades", at))
}
