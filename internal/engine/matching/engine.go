// Package matching matches resting orders against each other and against the
// current spot price, and settles the resulting trades atomically.
package matching

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/calebhsu/longbox/internal/domain"
	"github.com/calebhsu/longbox/internal/scheduler"
)

// Engine is the order matching engine. Each tick it groups open orders by
// asset, executes market orders at spot, crosses limit orders under
// price-time priority, then fills limit orders that have become marketable
// against the spot price. Every fill settles through one transactional
// execution covering both counterparties.
type Engine struct {
	orders     domain.OrderStore
	executions domain.ExecutionStore
	prices     domain.PriceStore
	positions  domain.PositionStore
	balances   domain.BalanceStore
	bus        domain.EventBus
	logger     *slog.Logger

	feeRate float64
	now     func() time.Time
	newID   func() string
}

// Config holds the matching engine tunables.
type Config struct {
	FeeRate float64 // per-fill fee on notional, e.g. 0.001
}

// New creates a matching Engine. bus may be nil.
func New(
	orders domain.OrderStore,
	executions domain.ExecutionStore,
	prices domain.PriceStore,
	positions domain.PositionStore,
	balances domain.BalanceStore,
	bus domain.EventBus,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.FeeRate == 0 {
		cfg.FeeRate = 0.001
	}
	return &Engine{
		orders:     orders,
		executions: executions,
		prices:     prices,
		positions:  positions,
		balances:   balances,
		bus:        bus,
		logger:     logger.With(slog.String("component", "matching_engine")),
		feeRate:    cfg.FeeRate,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Tick processes every asset's order book once. A failure in one asset's
// book does not halt the others; per-asset and per-order errors are logged
// and reported in the tick result.
func (e *Engine) Tick(ctx context.Context) (scheduler.TickResult, error) {
	var res scheduler.TickResult

	open, err := e.orders.ListOpen(ctx)
	if err != nil {
		return res, err
	}
	if len(open) == 0 {
		return res, nil
	}

	byAsset := groupByAsset(open)
	assetIDs := make([]string, 0, len(byAsset))
	for id := range byAsset {
		assetIDs = append(assetIDs, id)
	}
	sort.Strings(assetIDs)

	for _, assetID := range assetIDs {
		if err := e.processBook(ctx, assetID, byAsset[assetID], &res); err != nil {
			res.AddError("asset %s: %v", assetID, err)
			e.logger.Error("order book processing failed",
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

func (e *Engine) processBook(ctx context.Context, assetID string, orders []domain.Order, res *scheduler.TickResult) error {
	res.Processed += len(orders)

	spot, err := e.prices.Get(ctx, assetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errors.New("no spot price")
		}
		return err
	}

	b := newBook(orders)
	last := 0.0

	// Market orders execute immediately at spot.
	for _, o := range b.market {
		if err := e.fillAgainstMarket(ctx, o, spot.Price, o.Remaining()); err != nil {
			e.rejectOrder(ctx, o, err, res)
			continue
		}
		last = spot.Price
		res.Succeeded++
	}

	// Cross limit orders under price-time priority, trading at the mid-price.
	bi, si := 0, 0
	for bi < len(b.bids) && si < len(b.asks) {
		bid, ask := b.bids[bi], b.asks[si]
		if bid.Price < ask.Price {
			break
		}
		qty := min(bid.Remaining(), ask.Remaining())
		if qty <= 0 {
			if bid.Remaining() <= 0 {
				bi++
			}
			if ask.Remaining() <= 0 {
				si++
			}
			continue
		}

		matchPrice := (bid.Price + ask.Price) / 2
		if err := e.cross(ctx, bid, ask, matchPrice, qty); err != nil {
			res.AddError("match %s/%s: %v", bid.ID, ask.ID, err)
			// Skip the aggressor side so the loop keeps making progress.
			bi++
			continue
		}
		last = matchPrice
		res.Succeeded += 2

		if bid.Remaining() <= 0 {
			bi++
		}
		if ask.Remaining() <= 0 {
			si++
		}
	}

	// Limit orders that have become marketable fill at spot.
	for _, o := range b.bids {
		if o.IsTerminal() || o.Remaining() <= 0 || o.Price < spot.Price {
			continue
		}
		if err := e.fillAgainstMarket(ctx, o, spot.Price, o.Remaining()); err != nil {
			e.rejectOrder(ctx, o, err, res)
			continue
		}
		last = spot.Price
		res.Succeeded++
	}
	for _, o := range b.asks {
		if o.IsTerminal() || o.Remaining() <= 0 || o.Price > spot.Price {
			continue
		}
		if err := e.fillAgainstMarket(ctx, o, spot.Price, o.Remaining()); err != nil {
			e.rejectOrder(ctx, o, err, res)
			continue
		}
		last = spot.Price
		res.Succeeded++
	}

	// The last trade price becomes the new spot, which the pricing and
	// liquidity engines consume on their next cycle.
	if last > 0 && last != spot.Price {
		spot.Price = last
		spot.UpdatedAt = e.now()
		if err := e.prices.Set(ctx, spot); err != nil {
			return err
		}
	}
	return nil
}

// fillAgainstMarket settles one order against the spot price with no resting
// counterparty.
func (e *Engine) fillAgainstMarket(ctx context.Context, o *domain.Order, price, qty float64) error {
	if qty <= 0 {
		return nil
	}
	if err := e.validate(ctx, o, price, qty); err != nil {
		return err
	}

	exec := domain.Execution{}
	e.appendFill(&exec, o, price, qty)
	if err := e.executions.Apply(ctx, exec); err != nil {
		return err
	}
	e.applyLocal(o, price, qty)
	e.publishTrades(ctx, exec.Trades)
	return nil
}

// cross settles one matched bid/ask pair as a single execution so both
// counterparties' orders, positions, and balances land together.
func (e *Engine) cross(ctx context.Context, bid, ask *domain.Order, price, qty float64) error {
	if err := e.validate(ctx, bid, price, qty); err != nil {
		return err
	}
	if err := e.validate(ctx, ask, price, qty); err != nil {
		return err
	}

	exec := domain.Execution{}
	e.appendFill(&exec, bid, price, qty)
	e.appendFill(&exec, ask, price, qty)
	if err := e.executions.Apply(ctx, exec); err != nil {
		return err
	}
	e.applyLocal(bid, price, qty)
	e.applyLocal(ask, price, qty)
	e.publishTrades(ctx, exec.Trades)
	return nil
}

// validate runs pre-trade checks: buys need cash for notional plus fees,
// sells need sufficient position quantity.
func (e *Engine) validate(ctx context.Context, o *domain.Order, price, qty float64) error {
	notional := price * qty
	if o.Side == domain.OrderSideBuy {
		bal, err := e.balances.Get(ctx, o.AccountID)
		if err != nil {
			return err
		}
		if bal.Cash < notional*(1+e.feeRate) {
			return domain.ErrInsufficientFunds
		}
		return nil
	}
	pos, err := e.positions.Get(ctx, o.AccountID, o.AssetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInsufficientQty
		}
		return err
	}
	if pos.Quantity < qty {
		return domain.ErrInsufficientQty
	}
	return nil
}

// appendFill adds one side's trade, order update, position delta, and
// balance delta to the pending execution.
func (e *Engine) appendFill(exec *domain.Execution, o *domain.Order, price, qty float64) {
	now := e.now()
	notional := price * qty
	fees := notional * e.feeRate

	exec.Trades = append(exec.Trades, domain.Trade{
		ID:         e.newID(),
		AccountID:  o.AccountID,
		AssetID:    o.AssetID,
		OrderID:    o.ID,
		Side:       o.Side,
		Quantity:   qty,
		Price:      price,
		TotalValue: notional,
		Fees:       fees,
		ExecutedAt: now,
	})

	newFilled := o.FilledQuantity + qty
	status := domain.OrderStatusPartiallyFilled
	var filledAt *time.Time
	if newFilled >= o.Quantity {
		status = domain.OrderStatusFilled
		filledAt = &now
	}
	exec.Orders = append(exec.Orders, domain.OrderUpdate{
		OrderID:         o.ID,
		ExpectedVersion: o.Version,
		FilledQuantity:  newFilled,
		AvgFillPrice:    avgFill(o, price, qty),
		Status:          status,
		FilledAt:        filledAt,
	})

	if o.Side == domain.OrderSideBuy {
		exec.Positions = append(exec.Positions, domain.PositionDelta{
			AccountID:  o.AccountID,
			AssetID:    o.AssetID,
			Quantity:   qty,
			ValueDelta: notional,
		})
		exec.Balances = append(exec.Balances, domain.BalanceDelta{
			AccountID: o.AccountID,
			Cash:      -(notional + fees),
		})
	} else {
		exec.Positions = append(exec.Positions, domain.PositionDelta{
			AccountID:  o.AccountID,
			AssetID:    o.AssetID,
			Quantity:   -qty,
			ValueDelta: -notional,
		})
		exec.Balances = append(exec.Balances, domain.BalanceDelta{
			AccountID: o.AccountID,
			Cash:      notional - fees,
		})
	}
}

// applyLocal mirrors a committed fill onto the in-memory order so the rest
// of the tick sees the advanced state.
func (e *Engine) applyLocal(o *domain.Order, price, qty float64) {
	o.AvgFillPrice = avgFill(o, price, qty)
	o.FilledQuantity += qty
	o.Version++
	if o.FilledQuantity >= o.Quantity {
		o.Status = domain.OrderStatusFilled
	} else {
		o.Status = domain.OrderStatusPartiallyFilled
	}
}

func avgFill(o *domain.Order, price, qty float64) float64 {
	newFilled := o.FilledQuantity + qty
	if newFilled <= 0 {
		return 0
	}
	return (o.AvgFillPrice*o.FilledQuantity + price*qty) / newFilled
}

// rejectOrder cancels an order that failed pre-trade checks so it cannot
// poison the book on every subsequent tick.
func (e *Engine) rejectOrder(ctx context.Context, o *domain.Order, cause error, res *scheduler.TickResult) {
	res.AddError("order %s: %v", o.ID, cause)
	e.logger.Warn("order rejected",
		slog.String("order_id", o.ID),
		slog.String("reason", cause.Error()),
	)
	if !errors.Is(cause, domain.ErrInsufficientFunds) && !errors.Is(cause, domain.ErrInsufficientQty) {
		return
	}
	if err := e.orders.Cancel(ctx, o.ID, o.Version, cause.Error()); err != nil {
		e.logger.Warn("order cancel failed",
			slog.String("order_id", o.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	o.Status = domain.OrderStatusCancelled
	o.Version++
}

func (e *Engine) publishTrades(ctx context.Context, trades []domain.Trade) {
	if e.bus == nil {
		return
	}
	for _, t := range trades {
		payload, _ := json.Marshal(map[string]any{
			"event":     "trade",
			"trade_id":  t.ID,
			"asset_id":  t.AssetID,
			"order_id":  t.OrderID,
			"side":      t.Side,
			"price":     t.Price,
			"quantity":  t.Quantity,
			"timestamp": t.ExecutedAt.Format(time.RFC3339Nano),
		})
		if err := e.bus.Publish(ctx, "trades", payload); err != nil {
			e.logger.Warn("publish trade event failed",
				slog.String("trade_id", t.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
