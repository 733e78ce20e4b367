package domain

import "time"

// TraderType selects the behavioral model of a simulated liquidity trader.
type TraderType string

const (
	TraderWhale      TraderType = "whale"
	TraderMomentum   TraderType = "momentum"
	TraderContrarian TraderType = "contrarian"
	TraderArbitrage  TraderType = "arbitrage"
)

// LiquidityTrader is a simulated market participant that generates resting
// order flow so the book stays liquid without real user activity. Personality
// factors are percentages in [0, 100].
type LiquidityTrader struct {
	ID              string
	Name            string
	Type            TraderType
	Aggressiveness  float64
	Intelligence    float64
	Emotionality    float64
	Adaptability    float64
	AvailableCapital float64
	MaxPositionSize float64
	LastTradeAt     *time.Time
	TotalTrades     int
	IsActive        bool
}
