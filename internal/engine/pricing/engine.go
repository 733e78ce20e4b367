package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/calebhsu/longbox/internal/domain"
	"github.com/calebhsu/longbox/internal/scheduler"
)

const hoursPerYear = 24 * 365

// Engine reprices the options chain each tick. Contracts whose expiration
// has passed are deactivated and their quotes frozen; everything else gets a
// fresh Black-Scholes valuation against the current spot.
type Engine struct {
	options domain.OptionStore
	prices  domain.PriceStore
	bus     domain.EventBus
	logger  *slog.Logger

	riskFreeRate      float64
	defaultVolatility float64
	now               func() time.Time
}

// Config holds the pricing engine tunables.
type Config struct {
	RiskFreeRate      float64 // annualized, e.g. 0.05
	DefaultVolatility float64 // used when the price record carries none
}

// New creates a pricing Engine. bus may be nil when no push channel is wired.
func New(options domain.OptionStore, prices domain.PriceStore, bus domain.EventBus, cfg Config, logger *slog.Logger) *Engine {
	if cfg.RiskFreeRate == 0 {
		cfg.RiskFreeRate = 0.05
	}
	if cfg.DefaultVolatility == 0 {
		cfg.DefaultVolatility = 0.25
	}
	return &Engine{
		options:           options,
		prices:            prices,
		bus:               bus,
		logger:            logger.With(slog.String("component", "pricing_engine")),
		riskFreeRate:      cfg.RiskFreeRate,
		defaultVolatility: cfg.DefaultVolatility,
		now:               time.Now,
	}
}

// Tick reprices all active contracts. A failure on one contract is logged
// and skipped; the batch continues. There is no retry before the next tick.
func (e *Engine) Tick(ctx context.Context) (scheduler.TickResult, error) {
	var res scheduler.TickResult

	contracts, err := e.options.ListActive(ctx)
	if err != nil {
		return res, err
	}
	if len(contracts) == 0 {
		return res, nil
	}

	now := e.now()
	for _, c := range contracts {
		res.Processed++
		if err := e.reprice(ctx, c, now); err != nil {
			res.AddError("contract %s: %v", c.ID, err)
			e.logger.Warn("contract repricing failed",
				slog.String("contract_id", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Succeeded++
	}

	e.logger.Debug("options chain updated",
		slog.Int("contracts", res.Processed),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func (e *Engine) reprice(ctx context.Context, c domain.OptionContract, now time.Time) error {
	timeToExpiry := c.ExpirationDate.Sub(now).Hours() / hoursPerYear
	if timeToExpiry <= 0 {
		// Terminal: freeze quotes and never reprice again.
		return e.options.Deactivate(ctx, c.ID, now)
	}

	spot, err := e.prices.Get(ctx, c.UnderlyingAssetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errors.New("no spot price for underlying " + c.UnderlyingAssetID)
		}
		return err
	}

	vol := spot.Volatility
	if vol <= 0 {
		vol = e.defaultVolatility
	}

	valuation := BlackScholes(spot.Price, c.StrikePrice, timeToExpiry, e.riskFreeRate, vol, c.Type)

	quote := domain.OptionQuote{
		BidPrice:          valuation.Price * 0.995,
		AskPrice:          valuation.Price * 1.005,
		LastPrice:         valuation.Price,
		MarkPrice:         valuation.Price,
		ImpliedVolatility: vol,
		Greeks:            valuation.Greeks,
		IntrinsicValue:    valuation.IntrinsicValue,
		TimeValue:         valuation.TimeValue,
		UpdatedAt:         now,
	}
	if err := e.options.UpdateQuote(ctx, c.ID, quote); err != nil {
		return err
	}

	e.publishQuote(ctx, c, quote)
	return nil
}

func (e *Engine) publishQuote(ctx context.Context, c domain.OptionContract, q domain.OptionQuote) {
	if e.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"event":       "option_quote",
		"contract_id": c.ID,
		"underlying":  c.UnderlyingAssetID,
		"bid":         q.BidPrice,
		"ask":         q.AskPrice,
		"mark":        q.MarkPrice,
		"delta":       q.Greeks.Delta,
		"timestamp":   q.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err := e.bus.Publish(ctx, "quotes", payload); err != nil {
		e.logger.Warn("publish quote event failed",
			slog.String("contract_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
}
