package domain

import "time"

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// Greeks are the standard Black-Scholes risk sensitivities. Theta is quoted
// per calendar day; vega and rho per one percentage point.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// OptionContract is a row in an options chain on an underlying asset.
// Once ExpirationDate has passed the contract is deactivated permanently and
// its pricing fields are frozen at their last computed values.
type OptionContract struct {
	ID                string
	UnderlyingAssetID string
	StrikePrice       float64
	ExpirationDate    time.Time
	Type              OptionType

	BidPrice          float64
	AskPrice          float64
	LastPrice         float64
	MarkPrice         float64
	ImpliedVolatility float64
	Greeks            Greeks
	IntrinsicValue    float64
	TimeValue         float64

	IsActive   bool
	LastUpdate time.Time
}

// OptionQuote is the set of pricing fields written back on each repricing.
type OptionQuote struct {
	BidPrice          float64
	AskPrice          float64
	LastPrice         float64
	MarkPrice         float64
	ImpliedVolatility float64
	Greeks            Greeks
	IntrinsicValue    float64
	TimeValue         float64
	UpdatedAt         time.Time
}
