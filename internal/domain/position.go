package domain

import "time"

// PositionStatus tracks whether a position is still held.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is one account's holding in one asset. Mutated only by successful
// matches, through the execution store.
type Position struct {
	ID           string
	AccountID    string
	AssetID      string
	Quantity     float64
	EntryValue   float64
	CurrentValue float64
	Status       PositionStatus
	UpdatedAt    time.Time
}

// Balance is the cash balance backing an account's orders.
type Balance struct {
	AccountID string
	Cash      float64
	UpdatedAt time.Time
}
