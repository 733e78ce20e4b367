// Package app provides the top-level application lifecycle management for the
// trading engine. It wires together all dependencies (stores, caches, blob
// storage, engines, and notifications), registers the scheduled services with
// the coordinator, and runs the HTTP control server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calebhsu/longbox/internal/config"
	"github.com/calebhsu/longbox/internal/engine/liquidity"
	"github.com/calebhsu/longbox/internal/engine/margin"
	"github.com/calebhsu/longbox/internal/engine/matching"
	"github.com/calebhsu/longbox/internal/engine/news"
	"github.com/calebhsu/longbox/internal/engine/pricing"
	"github.com/calebhsu/longbox/internal/scheduler"
	"github.com/calebhsu/longbox/internal/server"
	"github.com/calebhsu/longbox/internal/server/handler"
	"github.com/calebhsu/longbox/internal/server/ws"
)

// shutdownTimeout bounds the graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, registers the
// scheduled services, starts the coordinator and the HTTP server, and blocks
// until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	coord, err := a.buildCoordinator(deps)
	if err != nil {
		return fmt.Errorf("app: register services: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// The coordinator starts immediately; ticks descend from gctx so a server
	// failure also drains the engines.
	coord.Start(gctx)
	defer coord.Stop()

	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.EventBus, a.logger)
		g.Go(func() error {
			if err := hub.Run(gctx); err != nil && err != context.Canceled {
				return fmt.Errorf("app: ws hub: %w", err)
			}
			return nil
		})

		srv := server.NewServer(
			server.Config{
				Port:               a.cfg.Server.Port,
				CORSOrigins:        a.cfg.Server.CORSOrigins,
				APIKey:             a.cfg.Server.APIKey,
				RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
			},
			server.Handlers{
				Health: handler.NewHealthHandler(deps.PG, deps.Redis, a.logger),
				Status: handler.NewStatusHandler(coord),
				Engine: handler.NewEngineHandler(coord, gctx),
				Prices: handler.NewPriceHandler(deps.PriceStore, a.logger),
				Orders: handler.NewOrderHandler(deps.OrderStore, a.logger),
			},
			hub,
			deps.RateLimiter,
			a.logger,
		)

		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	} else {
		g.Go(func() error {
			<-gctx.Done()
			return gctx.Err()
		})
	}

	return g.Wait()
}

// buildCoordinator constructs the engines and registers one scheduled service
// per cadence.
func (a *App) buildCoordinator(deps *Dependencies) (*scheduler.Coordinator, error) {
	coord := scheduler.New(a.logger)
	ec := a.cfg.Engine

	pricingEngine := pricing.New(deps.OptionStore, deps.PriceStore, deps.EventBus, pricing.Config{
		RiskFreeRate:      ec.RiskFreeRate,
		DefaultVolatility: ec.DefaultVolatility,
	}, a.logger)

	matchingEngine := matching.New(
		deps.OrderStore,
		deps.ExecutionStore,
		deps.PriceStore,
		deps.PositionStore,
		deps.BalanceStore,
		deps.EventBus,
		matching.Config{FeeRate: ec.TradeFeeRate},
		a.logger,
	)

	marginEngine := margin.New(deps.MarginStore, deps.EventBus, deps.Notifier, margin.Config{
		RefreshCalls: ec.RefreshMarginCalls,
	}, a.logger)

	liquidityEngine := liquidity.New(deps.TraderStore, deps.PriceStore, deps.OrderStore, nil, a.logger)

	newsEngine := news.New(
		deps.NewsStore,
		deps.TierStore,
		news.NewBusDeliverer(deps.EventBus, deps.Notifier, a.logger),
		a.logger,
	)

	services := []scheduler.Service{
		{Name: "options_pricing", Interval: ec.OptionsPricingInterval.Duration, Run: pricingEngine.Tick},
		{Name: "order_matching", Interval: ec.OrderMatchingInterval.Duration, Run: matchingEngine.Tick},
		{Name: "margin_maintenance", Interval: ec.MarginCheckInterval.Duration, Run: marginEngine.Tick},
		{Name: "npc_liquidity", Interval: ec.LiquidityInterval.Duration, Run: liquidityEngine.Tick},
		{Name: "news_distribution", Interval: ec.NewsDistributionInterval.Duration, Run: newsEngine.Tick},
		{Name: "tier_sync", Interval: ec.TierSyncInterval.Duration, Run: newsEngine.SyncTiers},
	}

	if deps.Archiver != nil {
		archiver := deps.Archiver
		services = append(services, scheduler.Service{
			Name:     "cold_archive",
			Interval: a.cfg.Archive.Interval.Duration,
			Run: func(ctx context.Context) (scheduler.TickResult, error) {
				stats, err := archiver.Run(ctx)
				var res scheduler.TickResult
				res.Processed = int(stats.Trades + stats.Orders + stats.Contracts)
				if err != nil {
					res.AddError("archive: %v", err)
					return res, err
				}
				res.Succeeded = res.Processed
				return res, nil
			},
		})
	}

	for _, svc := range services {
		if err := coord.Register(svc); err != nil {
			return nil, err
		}
	}
	return coord, nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
