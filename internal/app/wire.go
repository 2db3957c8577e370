package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"

	s3blob "github.com/madschristensen99/rushTrade/internal/blob/s3"
	"github.com/madschristensen99/rushTrade/internal/cache/redis"
	"github.com/madschristensen99/rushTrade/internal/chain"
	"github.com/madschristensen99/rushTrade/internal/config"
	"github.com/madschristensen99/rushTrade/internal/crypto"
	"github.com/madschristensen99/rushTrade/internal/domain"
	"github.com/madschristensen99/rushTrade/internal/notify"
	"github.com/madschristensen99/rushTrade/internal/store/postgres"
	"github.com/madschristensen99/rushTrade/internal/stream/kafka"
)

// Dependencies holds every constructed backend a mode can draw from. The
// optional members (FillStream, Archiver, Notifier) stay nil when their
// feature is disabled in configuration; everything else is always present.
type Dependencies struct {
	PG    *postgres.Client
	Redis *redis.Client

	Orders  domain.OrderStore
	Fills   domain.FillStore
	Markets domain.MarketStore
	Audit   domain.AuditStore

	Books   domain.BookCache
	Stats   domain.StatsCache
	Locks   domain.LockManager
	Limiter domain.RateLimiter
	Bus     domain.SignalBus

	Chain  *chain.Executor
	Signer *crypto.OrderSigner

	FillStream domain.FillStream
	Archiver   domain.Archiver
	Notifier   *notify.Notifier
}

// Wire builds the dependency graph for the configured mode. The returned
// cleanup closes everything in reverse construction order; on error Wire has
// already released whatever it managed to build.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	pg, err := postgres.New(ctx, postgres.ClientConfig{
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
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pg.Close)
	deps.PG = pg

	if cfg.Postgres.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: migrations: %w", err)
		}
	}

	deps.Orders = postgres.NewOrderStore(pg.Pool())
	deps.Fills = postgres.NewFillStore(pg.Pool())
	deps.Markets = postgres.NewMarketStore(pg.Pool())
	deps.Audit = postgres.NewAuditStore(pg.Pool())

	rd, err := redis.New(ctx, redis.ClientConfig{
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
	closers = append(closers, func() { _ = rd.Close() })
	deps.Redis = rd

	deps.Books = redis.NewBookCache(rd)
	deps.Stats = redis.NewStatsCache(rd)
	deps.Locks = redis.NewLockManager(rd)
	deps.Bus = redis.NewSignalBus(rd)
	deps.Limiter = redis.NewRateLimiter(rd, cfg.API.RateLimit, cfg.API.RateWindow.Duration)

	// Settlement modes submit transactions and need the operator key; the
	// api mode runs the executor read-only.
	var key *ecdsa.PrivateKey
	if cfg.Mode == "full" || cfg.Mode == "settle" {
		key, err = crypto.LoadOperatorKey(crypto.OperatorKeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
	}

	exec, err := chain.New(chain.Config{
		RPCURL:          cfg.Chain.RPCURL,
		ChainID:         cfg.Chain.ChainID,
		ExchangeAddress: cfg.Chain.ExchangeAddress,
		FactoryAddress:  cfg.Chain.FactoryAddress,
		TokensAddress:   cfg.Chain.TokensAddress,
		CallTimeout:     cfg.Settlement.CallTimeout.Duration,
	}, key, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, exec.Close)
	deps.Chain = exec

	deps.Signer = crypto.NewOrderSigner(cfg.Chain.ChainID, cfg.Chain.ExchangeAddress)

	if cfg.Kafka.Enabled {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		closers = append(closers, func() { _ = pub.Close() })
		deps.FillStream = pub
	}

	if cfg.Archive.Enabled {
		blob, err := s3blob.New(ctx, s3blob.ClientConfig{
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
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(blob), deps.Orders, deps.Fills, deps.Audit, logger)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
