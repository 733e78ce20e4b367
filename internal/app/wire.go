package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/calebhsu/longbox/internal/blob/s3"
	"github.com/calebhsu/longbox/internal/cache/redis"
	"github.com/calebhsu/longbox/internal/config"
	"github.com/calebhsu/longbox/internal/domain"
	"github.com/calebhsu/longbox/internal/notify"
	"github.com/calebhsu/longbox/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the engines and server
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	OptionStore    domain.OptionStore
	PriceStore     domain.PriceStore // Redis-cached over Postgres
	OrderStore     domain.OrderStore
	ExecutionStore domain.ExecutionStore
	PositionStore  domain.PositionStore
	BalanceStore   domain.BalanceStore
	MarginStore    domain.MarginStore
	NewsStore      domain.NewsStore
	TierStore      domain.TierStore
	TraderStore    domain.TraderStore

	// Event bus and rate limiting
	EventBus    *redis.EventBus
	RateLimiter domain.RateLimiter

	// Cold archive; nil unless archive.enabled
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Clients kept for health checks
	PG    *postgres.Client
	Redis *redis.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.PG = pgClient

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.OptionStore = postgres.NewOptionStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.ExecutionStore = postgres.NewExecutionStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.BalanceStore = postgres.NewBalanceStore(pool)
	deps.MarginStore = postgres.NewMarginStore(pool)
	deps.NewsStore = postgres.NewNewsStore(pool)
	deps.TierStore = postgres.NewTierStore(pool)
	deps.TraderStore = postgres.NewTraderStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Redis = redisClient

	// Spot price reads sit on the matching engine's hot path, so they go
	// through the Redis cache.
	deps.PriceStore = redis.NewCachedPriceStore(redisClient, postgres.NewPriceStore(pool))
	deps.EventBus = redis.NewEventBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- S3 cold archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		archiveStore := postgres.NewArchiveStore(pool)
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			archiveStore,
			archiveStore,
			archiveStore,
			time.Duration(cfg.Archive.RetentionDays)*24*time.Hour,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
