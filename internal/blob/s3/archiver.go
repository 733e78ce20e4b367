package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/calebhsu/longbox/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver. The archiver only needs
// time-ranged read access, not the full store surface. The Postgres archive
// store satisfies all three.
// ---------------------------------------------------------------------------

// TradeArchiveStore provides read access to trades for archival purposes.
type TradeArchiveStore interface {
	// ListTradesBefore returns all trades executed strictly before the cutoff.
	ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// OrderArchiveStore provides read access to settled orders for archival
// purposes.
type OrderArchiveStore interface {
	// ListSettledOrdersBefore returns filled and cancelled orders created
	// strictly before the cutoff.
	ListSettledOrdersBefore(ctx context.Context, before time.Time) ([]domain.Order, error)
}

// ContractArchiveStore provides read access to expired contracts for archival
// purposes.
type ContractArchiveStore interface {
	// ListExpiredContractsBefore returns deactivated contracts whose
	// expiration is strictly before the cutoff.
	ListExpiredContractsBefore(ctx context.Context, before time.Time) ([]domain.OptionContract, error)
}

// ArchiveStats summarizes one archive run.
type ArchiveStats struct {
	Trades    int64
	Orders    int64
	Contracts int64
}

// Archiver copies settled trading records older than the retention window to
// object storage as JSONL files partitioned by year-month. Deletion from the
// primary store is intentionally NOT performed here; that is a separate,
// explicit step executed after an archive has been verified.
type Archiver struct {
	writer    domain.BlobWriter
	trades    TradeArchiveStore
	orders    OrderArchiveStore
	contracts ContractArchiveStore
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewArchiver creates an Archiver with the given retention window.
func NewArchiver(
	writer domain.BlobWriter,
	trades TradeArchiveStore,
	orders OrderArchiveStore,
	contracts ContractArchiveStore,
	retention time.Duration,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:    writer,
		trades:    trades,
		orders:    orders,
		contracts: contracts,
		retention: retention,
		logger:    logger.With(slog.String("component", "archiver")),
		now:       time.Now,
	}
}

// Run archives all record kinds older than the retention cutoff. Kinds are
// archived independently; a failure in one does not block the others.
func (a *Archiver) Run(ctx context.Context) (ArchiveStats, error) {
	before := a.now().Add(-a.retention)

	var stats ArchiveStats
	var firstErr error

	record := func(kind string, n int64, err error) {
		if err != nil {
			a.logger.ErrorContext(ctx, "archive failed",
				slog.String("kind", kind),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		if n > 0 {
			a.logger.InfoContext(ctx, "archived records",
				slog.String("kind", kind),
				slog.Int64("count", n),
			)
		}
	}

	n, err := a.archiveTrades(ctx, before)
	stats.Trades = n
	record("trades", n, err)

	n, err = a.archiveOrders(ctx, before)
	stats.Orders = n
	record("orders", n, err)

	n, err = a.archiveContracts(ctx, before)
	stats.Contracts = n
	record("contracts", n, err)

	return stats, firstErr
}

func (a *Archiver) archiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListTradesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	return upload(ctx, a.writer, "trades", before, trades)
}

func (a *Archiver) archiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.orders.ListSettledOrdersBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	return upload(ctx, a.writer, "orders", before, orders)
}

func (a *Archiver) archiveContracts(ctx context.Context, before time.Time) (int64, error) {
	contracts, err := a.contracts.ListExpiredContractsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive contracts query: %w", err)
	}
	return upload(ctx, a.writer, "contracts", before, contracts)
}

// upload serializes records as JSONL and writes one archive object. Empty
// record sets produce no object.
func upload[T any](ctx context.Context, w domain.BlobWriter, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if err := w.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}
	return int64(len(records)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2026-08.jsonl
//	archive/orders/2026-08.jsonl
//	archive/contracts/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
