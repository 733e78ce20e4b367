// Package domain defines the exchange entities, their lifecycle enums, and
// the narrow per-entity store interfaces consumed by the background engines.
// Each engine depends only on the interfaces it needs, which is also what
// gets faked in unit tests.
package domain

import (
	"context"
	"time"
)

// OptionStore persists options contracts. ListActive never returns
// deactivated contracts, so an expired contract is never repriced again.
type OptionStore interface {
	ListActive(ctx context.Context) ([]OptionContract, error)
	UpdateQuote(ctx context.Context, id string, quote OptionQuote) error
	Deactivate(ctx context.Context, id string, at time.Time) error
}

// PriceStore persists per-asset spot prices and volatility.
type PriceStore interface {
	Get(ctx context.Context, assetID string) (AssetPrice, error)
	Set(ctx context.Context, price AssetPrice) error
	List(ctx context.Context) ([]AssetPrice, error)
}

// OrderStore persists trading orders. ListOpen returns open and
// partially-filled orders only.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	ListOpen(ctx context.Context) ([]Order, error)
	Cancel(ctx context.Context, id string, expectedVersion int64, reason string) error
}

// ExecutionStore applies the full set of mutations from one match as a
// single transaction: trades inserted, orders advanced, positions and
// balances adjusted. Order updates are version-checked; a stale version
// fails the whole execution with ErrVersionConflict.
type ExecutionStore interface {
	Apply(ctx context.Context, exec Execution) error
}

// PositionStore reads positions; the matching engine validates sells against
// it before executing.
type PositionStore interface {
	Get(ctx context.Context, accountID, assetID string) (Position, error)
}

// BalanceStore reads cash balances for pre-trade fund checks.
type BalanceStore interface {
	Get(ctx context.Context, accountID string) (Balance, error)
}

// MarginStore persists margin accounts. IssueCall transitions the account to
// margin_call and records the call date and amount, guarded by version.
type MarginStore interface {
	ListAll(ctx context.Context) ([]MarginAccount, error)
	IssueCall(ctx context.Context, id string, expectedVersion int64, at time.Time, amount float64) error
}

// NewsStore persists news articles awaiting distribution.
type NewsStore interface {
	ListPending(ctx context.Context) ([]NewsArticle, error)
	MarkDistributed(ctx context.Context, id string, at time.Time) error
}

// TierStore reads the information tier catalog and tier membership.
type TierStore interface {
	ListTiers(ctx context.Context) ([]InformationTier, error)
	ListUsersAtOrAbove(ctx context.Context, rank int) ([]TierUser, error)
}

// TraderStore persists simulated liquidity trader profiles.
type TraderStore interface {
	ListActive(ctx context.Context) ([]LiquidityTrader, error)
	RecordTrade(ctx context.Context, id string, at time.Time) error
}

// EventBus publishes engine output events (trades, margin calls, distributed
// news, quote updates) toward the UI push channel. Framing and sanitization
// on the far side are the consumer's concern.
type EventBus interface {
	Publish(ctx context.Context, stream string, payload []byte) error
}

// RateLimiter throttles requests per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
