package domain

import "time"

// AssetPrice is the current spot price and annualized volatility for a single
// tradable asset. Written by the matching and liquidity engines, read by the
// options pricing engine.
type AssetPrice struct {
	AssetID    string
	Price      float64
	Volatility float64
	UpdatedAt  time.Time
}
