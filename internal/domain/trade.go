package domain

import "time"

// Trade is one executed fill for one side of a match. A limit-vs-limit match
// produces two trades, one per counterparty; a market or marketable-limit
// execution against the current spot price produces one.
type Trade struct {
	ID         string
	AccountID  string
	AssetID    string
	OrderID    string
	Side       OrderSide
	Quantity   float64
	Price      float64
	TotalValue float64
	Fees       float64
	ExecutedAt time.Time
}

// OrderUpdate is the order-side mutation of a fill: new filled quantity,
// resulting status and fill price, guarded by the expected version.
type OrderUpdate struct {
	OrderID         string
	ExpectedVersion int64
	FilledQuantity  float64
	AvgFillPrice    float64
	Status          OrderStatus
	FilledAt        *time.Time
}

// PositionDelta adjusts one account's position in one asset.
type PositionDelta struct {
	AccountID  string
	AssetID    string
	Quantity   float64 // signed: positive on buy, negative on sell
	ValueDelta float64 // signed change in entry value
}

// BalanceDelta adjusts one account's cash balance.
type BalanceDelta struct {
	AccountID string
	Cash      float64 // signed
}

// Execution bundles every mutation produced by one match. The execution store
// applies all of it in a single transaction so there is no observable state
// where quantity is debited but value is not credited.
type Execution struct {
	Trades    []Trade
	Orders    []OrderUpdate
	Positions []PositionDelta
	Balances  []BalanceDelta
}
