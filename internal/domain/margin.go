package domain

import "time"

// MarginStatus is the margin account state. An account is in margin_call iff
// it was below its maintenance threshold with outstanding debt as of the most
// recent maintenance cycle.
type MarginStatus string

const (
	MarginStatusNormal MarginStatus = "normal"
	MarginStatusCall   MarginStatus = "margin_call"
)

// MarginAccount is a borrowing account subject to maintenance checks.
type MarginAccount struct {
	ID                string
	UserID            string
	MarginEquity      float64
	MarginDebt        float64
	MaintenanceMargin float64
	Status            MarginStatus
	MarginCallDate    *time.Time
	MarginCallAmount  float64
	Version           int64
}

// Shortfall returns how far equity is below the maintenance threshold, never
// negative.
func (a MarginAccount) Shortfall() float64 {
	s := a.MaintenanceMargin - a.MarginEquity
	if s < 0 {
		return 0
	}
	return s
}

// Breached reports whether the account is below maintenance with debt
// outstanding.
func (a MarginAccount) Breached() bool {
	return a.MarginDebt > 0 && a.MarginEquity < a.MaintenanceMargin
}
