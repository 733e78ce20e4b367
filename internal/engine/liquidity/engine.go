// Package liquidity simulates market-maker and whale participants that place
// resting buy and sell orders so the book stays liquid without real user
// activity.
package liquidity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/calebhsu/longbox/internal/domain"
	"github.com/calebhsu/longbox/internal/scheduler"
)

const (
	tradeCooldown   = 5 * time.Minute
	assetsPerTrader = 5
	maxOrderQty     = 100
	confidenceGate  = 0.7
)

// Action is a trader's decision for one asset.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Decision is the output of the behavioral model for one trader and asset.
type Decision struct {
	Action     Action
	Quantity   float64
	Urgency    float64
	Confidence float64
}

// CycleResult reports one liquidity cycle. Failures generating individual
// orders are collected into Errors and do not abort the cycle.
type CycleResult struct {
	TradersProcessed int
	OrdersCreated    int
	TotalVolume      float64
	Errors           []string
}

// Engine generates synthetic order flow from a roster of simulated traders.
type Engine struct {
	traders domain.TraderStore
	prices  domain.PriceStore
	orders  domain.OrderStore
	logger  *slog.Logger

	rng   *rand.Rand
	now   func() time.Time
	newID func() string
}

// New creates a liquidity Engine. rng may be nil, in which case a
// time-seeded source is used.
func New(traders domain.TraderStore, prices domain.PriceStore, orders domain.OrderStore, rng *rand.Rand, logger *slog.Logger) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		traders: traders,
		prices:  prices,
		orders:  orders,
		logger:  logger.With(slog.String("component", "liquidity_engine")),
		rng:     rng,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Tick adapts RunCycle to the coordinator's tick contract.
func (e *Engine) Tick(ctx context.Context) (scheduler.TickResult, error) {
	cycle, err := e.RunCycle(ctx)
	res := scheduler.TickResult{
		Processed: cycle.TradersProcessed,
		Succeeded: cycle.OrdersCreated,
		Failed:    len(cycle.Errors),
		Errors:    cycle.Errors,
	}
	return res, err
}

// RunCycle runs one trading cycle: each active trader off cooldown scans a
// handful of assets and places at most one order.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	traders, err := e.traders.ListActive(ctx)
	if err != nil {
		return result, err
	}
	if len(traders) == 0 {
		return result, nil
	}

	assets, err := e.prices.List(ctx)
	if err != nil {
		return result, err
	}
	if len(assets) == 0 {
		return result, nil
	}

	now := e.now()
	for _, trader := range traders {
		result.TradersProcessed++

		if trader.LastTradeAt != nil && now.Sub(*trader.LastTradeAt) < tradeCooldown {
			continue
		}

		if err := e.runTrader(ctx, trader, assets, now, &result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("trader %s: %v", trader.ID, err))
			e.logger.Warn("trader cycle failed",
				slog.String("trader_id", trader.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if result.OrdersCreated > 0 {
		e.logger.Info("liquidity cycle complete",
			slog.Int("orders_created", result.OrdersCreated),
			slog.Float64("total_volume", result.TotalVolume),
		)
	}
	return result, nil
}

func (e *Engine) runTrader(ctx context.Context, trader domain.LiquidityTrader, assets []domain.AssetPrice, now time.Time, result *CycleResult) error {
	// Scan a random handful of assets; place at most one order per cycle.
	scan := e.pickAssets(assets)
	for _, asset := range scan {
		history := e.syntheticHistory(asset.Price)
		sentiment := (e.rng.Float64() - 0.5) * 2 // -1..1
		volumeProfile := 0.8 + e.rng.Float64()*0.4

		decision := e.Decide(trader, asset.Price, history, sentiment, volumeProfile)
		if decision.Action == ActionHold || decision.Confidence <= confidenceGate || decision.Quantity <= 0 {
			continue
		}

		order := e.buildOrder(trader, asset, decision, now)
		if err := e.orders.Create(ctx, order); err != nil {
			return err
		}
		if err := e.traders.RecordTrade(ctx, trader.ID, now); err != nil {
			return err
		}

		result.OrdersCreated++
		result.TotalVolume += order.Quantity * asset.Price
		e.logger.Debug("liquidity order placed",
			slog.String("trader", trader.Name),
			slog.String("trader_type", string(trader.Type)),
			slog.String("asset_id", asset.AssetID),
			slog.String("side", string(order.Side)),
			slog.Float64("quantity", order.Quantity),
		)
		return nil
	}
	return nil
}

// Decide runs the behavioral model: trader-type biases on momentum and
// volatility, then personality adjustments, then an intelligence-scaled
// noise reduction pulling the probability back toward neutral.
func (e *Engine) Decide(trader domain.LiquidityTrader, assetPrice float64, history []float64, sentiment, volumeProfile float64) Decision {
	aggressiveness := trader.Aggressiveness / 100
	intelligence := trader.Intelligence / 100
	emotionality := trader.Emotionality / 100

	momentum := 0.0
	if len(history) >= 2 {
		prev := history[len(history)-2]
		if prev != 0 {
			momentum = (assetPrice - prev) / prev
		}
	}
	volatility := 0.2
	if len(history) >= 5 {
		volatility = annualizedVolatility(history[len(history)-5:])
	}

	buyProbability := 0.5
	switch trader.Type {
	case domain.TraderWhale:
		// Whales want large stable moves.
		if volatility < 0.1 && math.Abs(momentum) > 0.02 {
			if momentum > 0 {
				buyProbability += 0.3
			} else {
				buyProbability -= 0.3
			}
		}
	case domain.TraderMomentum:
		buyProbability += momentum * 2
		if volumeProfile > 1.5 {
			buyProbability += 0.2
		}
	case domain.TraderContrarian:
		buyProbability -= sentiment * 0.3
		if momentum < -0.05 {
			buyProbability += 0.4
		}
	case domain.TraderArbitrage:
		if pricingEfficiency(assetPrice, history) < 0.8 {
			buyProbability += 0.3
		}
	}

	buyProbability += (aggressiveness - 0.5) * 0.3
	buyProbability += (sentiment*emotionality - 0.5) * 0.2

	noiseReduction := intelligence * 0.2
	buyProbability = buyProbability*(1-noiseReduction) + 0.5*noiseReduction

	action := ActionHold
	if buyProbability > 0.6 {
		action = ActionBuy
	} else if buyProbability < 0.4 {
		action = ActionSell
	}

	var quantity float64
	if action != ActionHold && assetPrice > 0 {
		maxQty := math.Min(trader.MaxPositionSize/assetPrice, trader.AvailableCapital/assetPrice)
		sizing := math.Abs(buyProbability-0.5) * 2
		quantity = math.Floor(maxQty * sizing * aggressiveness)
	}

	return Decision{
		Action:     action,
		Quantity:   quantity,
		Urgency:    math.Abs(buyProbability-0.5) * 2,
		Confidence: intelligence * (1 - volatility),
	}
}

func (e *Engine) buildOrder(trader domain.LiquidityTrader, asset domain.AssetPrice, d Decision, now time.Time) domain.Order {
	qty := math.Min(d.Quantity, maxOrderQty)

	// Mostly market orders, with limit orders resting just inside spot.
	orderType := domain.OrderTypeMarket
	price := 0.0
	if e.rng.Float64() <= 0.3 {
		orderType = domain.OrderTypeLimit
		if d.Action == ActionBuy {
			price = asset.Price * 1.001
		} else {
			price = asset.Price * 0.999
		}
	}

	side := domain.OrderSideBuy
	if d.Action == ActionSell {
		side = domain.OrderSideSell
	}

	return domain.Order{
		ID:        e.newID(),
		AccountID: trader.ID,
		AssetID:   asset.AssetID,
		Side:      side,
		Type:      orderType,
		Price:     price,
		Quantity:  qty,
		Status:    domain.OrderStatusOpen,
		CreatedAt: now,
	}
}

func (e *Engine) pickAssets(assets []domain.AssetPrice) []domain.AssetPrice {
	shuffled := make([]domain.AssetPrice, len(assets))
	copy(shuffled, assets)
	e.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	n := assetsPerTrader
	if len(shuffled) < n {
		n = len(shuffled)
	}
	return shuffled[:n]
}

// syntheticHistory fabricates a short recent price path around spot, since
// the simulated market keeps no per-asset tick history.
func (e *Engine) syntheticHistory(spot float64) []float64 {
	return []float64{
		spot * (0.95 + e.rng.Float64()*0.10),
		spot * (0.97 + e.rng.Float64()*0.06),
		spot * (0.98 + e.rng.Float64()*0.04),
		spot,
	}
}

func annualizedVolatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0.2
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(prices[i]/prices[i-1]))
	}
	if len(returns) == 0 {
		return 0.2
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance * 252)
}

// pricingEfficiency compares spot to a short moving average; below 1.0 means
// the price has drifted from its recent mean.
func pricingEfficiency(current float64, history []float64) float64 {
	if len(history) < 3 {
		return 1.0
	}
	recent := history[len(history)-3:]
	var sum float64
	for _, p := range recent {
		sum += p
	}
	expected := sum / 3
	if expected == 0 {
		return 1.0
	}
	diff := math.Abs(current-expected) / expected
	return math.Max(0, 1-diff*5)
}
