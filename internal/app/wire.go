package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	s3blob "github.com/crossarb/crossarb/internal/blob/s3"
	"github.com/crossarb/crossarb/internal/cache/redis"
	"github.com/crossarb/crossarb/internal/config"
	"github.com/crossarb/crossarb/internal/domain"
	"github.com/crossarb/crossarb/internal/exchange"
	"github.com/crossarb/crossarb/internal/notify"
	"github.com/crossarb/crossarb/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	Registry *exchange.Registry
	Enabled  []string

	// Stores
	OpportunityStore domain.OpportunityStore
	TradeStore       domain.TradeStore

	// Caches
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
	Alerter  *notify.Alerter
}

// needsPostgres returns true for modes that persist opportunities and trades.
func needsPostgres(mode string) bool {
	return mode == "live" || mode == "simulation" || mode == "monitor"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Exchange adapters ---
	deps.Registry = exchange.NewRegistry()
	for name, exCfg := range cfg.Exchanges {
		if !exCfg.Enabled {
			continue
		}
		adapter, err := buildAdapter(name, exCfg)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.Registry.Register(adapter)
		deps.Enabled = append(deps.Enabled, name)
	}
	sort.Strings(deps.Enabled)

	// --- PostgreSQL ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
	}

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

	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		if deps.OpportunityStore != nil && deps.TradeStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.OpportunityStore,
				deps.TradeStore,
				cfg.Performance.ArchiveRetention.Duration,
				cfg.Performance.ArchiveInterval.Duration,
				logger,
			)
		}
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
	deps.Alerter = notify.NewAlerter(deps.Notifier)

	return deps, cleanup, nil
}

// buildAdapter maps a configured venue name to its adapter implementation.
func buildAdapter(name string, cfg config.ExchangeConfig) (exchange.Adapter, error) {
	switch name {
	case "binance":
		return exchange.NewBinance(cfg.WsURL, cfg.RestURL, cfg.ApiKey, cfg.ApiSecret), nil
	case "wazirx":
		return exchange.NewWazirX(cfg.WsURL, cfg.RestURL, cfg.ApiKey, cfg.ApiSecret), nil
	case "coindcx":
		return exchange.NewCoinDCX(cfg.WsURL, cfg.RestURL, cfg.ApiKey, cfg.ApiSecret), nil
	case "kraken":
		return exchange.NewKraken(cfg.WsURL, cfg.RestURL, cfg.ApiKey, cfg.ApiSecret), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", name)
	}
}
