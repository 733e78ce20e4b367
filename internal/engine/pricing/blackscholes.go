// Package pricing keeps every active options contract's theoretical value
// and risk sensitivities consistent with the latest underlying spot price.
package pricing

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/calebhsu/longbox/internal/domain"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Result is a full Black-Scholes valuation: theoretical price, the five
// Greeks, and the intrinsic/time value split.
type Result struct {
	Price          float64
	Greeks         domain.Greeks
	IntrinsicValue float64
	TimeValue      float64
}

// BlackScholes prices a European option. Theta is returned per calendar day;
// vega and rho per one percentage point move, matching how the quotes are
// displayed. timeToExpiry is in years and must be positive.
func BlackScholes(spot, strike, timeToExpiry, riskFree, vol float64, typ domain.OptionType) Result {
	sqrtT := math.Sqrt(timeToExpiry)
	d1 := (math.Log(spot/strike) + (riskFree+0.5*vol*vol)*timeToExpiry) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT

	discount := math.Exp(-riskFree * timeToExpiry)
	nd1 := stdNormal.CDF(d1)
	nd2 := stdNormal.CDF(d2)
	pdf1 := stdNormal.Prob(d1)

	var price, delta, rho, intrinsic float64
	if typ == domain.OptionCall {
		price = spot*nd1 - strike*discount*nd2
		delta = nd1
		rho = strike * timeToExpiry * discount * nd2 / 100
		intrinsic = math.Max(spot-strike, 0)
	} else {
		price = strike*discount*stdNormal.CDF(-d2) - spot*stdNormal.CDF(-d1)
		delta = nd1 - 1
		rho = -strike * timeToExpiry * discount * stdNormal.CDF(-d2) / 100
		intrinsic = math.Max(strike-spot, 0)
	}

	gamma := pdf1 / (spot * vol * sqrtT)
	vega := spot * sqrtT * pdf1 / 100

	// Annual theta, then quoted per day.
	theta := -(spot * pdf1 * vol) / (2 * sqrtT)
	if typ == domain.OptionCall {
		theta -= riskFree * strike * discount * nd2
	} else {
		theta += riskFree * strike * discount * stdNormal.CDF(-d2)
	}

	price = math.Max(price, 0)
	return Result{
		Price: price,
		Greeks: domain.Greeks{
			Delta: delta,
			Gamma: gamma,
			Theta: theta / 365,
			Vega:  vega,
			Rho:   rho,
		},
		IntrinsicValue: intrinsic,
		TimeValue:      math.Max(price-intrinsic, 0),
	}
}

// ImpliedVolatility solves for the volatility that reproduces marketPrice
// using Newton-Raphson on vega. The result is clamped to [0.001, 5.0]; if
// the iteration does not converge the last estimate is returned.
func ImpliedVolatility(marketPrice, spot, strike, timeToExpiry, riskFree float64, typ domain.OptionType) float64 {
	const (
		tolerance     = 1e-4
		maxIterations = 100
	)

	sigma := 0.3
	for i := 0; i < maxIterations; i++ {
		res := BlackScholes(spot, strike, timeToExpiry, riskFree, sigma, typ)
		diff := res.Price - marketPrice
		if math.Abs(diff) < tolerance {
			return sigma
		}
		vega := res.Greeks.Vega * 100
		if vega == 0 {
			break
		}
		sigma -= diff / vega
		sigma = math.Max(0.001, math.Min(sigma, 5.0))
	}
	return sigma
}
