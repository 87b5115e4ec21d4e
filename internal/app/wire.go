package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/vogeb-org/auctiond/internal/blob/s3"
	"github.com/vogeb-org/auctiond/internal/cache/redis"
	"github.com/vogeb-org/auctiond/internal/chain"
	"github.com/vogeb-org/auctiond/internal/config"
	"github.com/vogeb-org/auctiond/internal/crypto"
	"github.com/vogeb-org/auctiond/internal/domain"
	"github.com/vogeb-org/auctiond/internal/ledger"
	"github.com/vogeb-org/auctiond/internal/notify"
	"github.com/vogeb-org/auctiond/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	AuctionStore domain.AuctionStore
	AuditStore   domain.AuditStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Chain collaborators (nil in archive mode)
	Assets   domain.AssetTransferor
	Payments domain.PaymentMover

	// The settlement engine itself (nil in archive mode)
	Ledger *ledger.Ledger

	// Blob storage (nil unless archival is enabled)
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsChain returns true for modes that settle auctions and therefore need
// the host-ledger connection and operator key.
func needsChain(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// needsArchiver returns true for modes that run the archival loop.
func needsArchiver(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
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
	deps.AuctionStore = postgres.NewAuctionStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

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

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, int64(cfg.Redis.StreamMaxLen))

	// --- Chain collaborators and the settlement engine ---
	if needsChain(cfg.Mode) {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey: cfg.Chain.PrivateKey,
			SealedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:   cfg.Chain.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}

		chainClient, err := chain.Dial(ctx, chain.Config{
			RPCURL:      cfg.Chain.RPCURL,
			ChainID:     cfg.Chain.ChainID,
			PrivateKey:  key,
			CallTimeout: cfg.Chain.CallTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, chainClient.Close)

		assets, err := chain.NewAssetBridge(chainClient)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: asset bridge: %w", err)
		}
		deps.Assets = assets

		if cfg.Chain.PaymentVault == "" {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain.payment_vault must be set in %s mode", cfg.Mode)
		}
		payments, err := chain.NewPaymentVault(chainClient, common.HexToAddress(cfg.Chain.PaymentVault))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: payment vault: %w", err)
		}
		deps.Payments = payments

		eng, err := ledger.New(ledger.Config{
			MinDuration:    cfg.Engine.MinDuration.Duration,
			MaxDuration:    cfg.Engine.MaxDuration.Duration,
			PlatformFeeBps: cfg.Engine.PlatformFeeBps,
			FeeRecipient:   cfg.FeeRecipientAddress(),
		}, assets, payments, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ledger: %w", err)
		}
		eng.WithStore(deps.AuctionStore).
			WithAudit(deps.AuditStore).
			WithSignalBus(deps.SignalBus).
			WithPriceCache(deps.PriceCache)

		if err := eng.Load(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ledger load: %w", err)
		}
		deps.Ledger = eng
	}

	// --- S3 blob storage and the archiver ---
	if needsArchiver(cfg.Mode) && cfg.Archive.Enabled {
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
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.AuctionStore, deps.AuditStore, deps.AuditStore)
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger).
		WithRateLimiter(deps.RateLimiter)

	return deps, cleanup, nil
}
