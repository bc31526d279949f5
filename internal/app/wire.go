package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/anchorbot/internal/blob/s3"
	"github.com/alanyoungcy/anchorbot/internal/broker"
	"github.com/alanyoungcy/anchorbot/internal/cache/local"
	redcache "github.com/alanyoungcy/anchorbot/internal/cache/redis"
	"github.com/alanyoungcy/anchorbot/internal/config"
	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/engine"
	"github.com/alanyoungcy/anchorbot/internal/eventchain"
	"github.com/alanyoungcy/anchorbot/internal/marketdata"
	"github.com/alanyoungcy/anchorbot/internal/metrics"
	"github.com/alanyoungcy/anchorbot/internal/orchestrator"
	"github.com/alanyoungcy/anchorbot/internal/store/memory"
	"github.com/alanyoungcy/anchorbot/internal/store/postgres"
	"github.com/alanyoungcy/anchorbot/internal/worker"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Positions domain.PositionStore
	Orders    domain.OrderStore
	Trades    domain.TradeStore
	Events    domain.EventStore
	Configs   domain.ConfigStore

	// Cache layer
	Locks      domain.LockManager
	QuoteCache domain.QuoteCache
	Bus        domain.SignalBus

	// Core
	Chain        *eventchain.Chain
	Resolver     *engine.Resolver
	Metrics      *metrics.Recorder
	Quotes       domain.QuoteProvider
	Broker       domain.Broker
	Orchestrator *orchestrator.Orchestrator
	Worker       *worker.Worker

	// Archiver is nil when S3 is disabled.
	Archiver domain.Archiver
}

// Wire constructs the concrete dependency implementations from the given
// configuration. The storage backend, cache layer, and object storage are
// all selected here; nothing downstream knows which implementation it got.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Storage backend ---
	switch cfg.Storage {
	case "postgres":
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
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Orders = postgres.NewOrderStore(pool)
		deps.Trades = postgres.NewTradeStore(pool)
		deps.Events = postgres.NewEventStore(pool)
		deps.Configs = postgres.NewConfigStore(pool)

	case "memory":
		deps.Positions = memory.NewPositionStore()
		deps.Orders = memory.NewOrderStore()
		deps.Trades = memory.NewTradeStore()
		deps.Events = memory.NewEventStore()
		deps.Configs = memory.NewConfigStore()

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown storage backend %q", cfg.Storage)
	}

	// --- Cache layer: Redis when enabled, in-process otherwise ---
	if cfg.Redis.Enabled {
		redisClient, err := redcache.New(ctx, redcache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redcache.NewLockManager(redisClient)
		deps.QuoteCache = redcache.NewQuoteCache(redisClient, cfg.MarketData.CacheTTL.Duration)
		deps.Bus = redcache.NewSignalBus(redisClient)
	} else {
		deps.Locks = local.NewLockManager()
		deps.QuoteCache = local.NewQuoteCache()
		deps.Bus = local.NewSignalBus()
	}

	// --- S3 event archival (optional) ---
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

		deps.Archiver = s3blob.NewEventArchiver(s3blob.NewWriter(s3Client), deps.Events, logger)
	}

	// --- Core assembly ---
	deps.Metrics = metrics.New()
	deps.Chain = eventchain.New(deps.Events, deps.Bus, logger)
	deps.Resolver = engine.NewResolver(deps.Configs, engineDefaults(cfg.Defaults))

	deps.Quotes = marketdata.NewHTTPProvider(marketdata.HTTPProviderConfig{
		BaseURL:  cfg.MarketData.BaseURL,
		APIKey:   cfg.MarketData.APIKey,
		Timeout:  cfg.MarketData.Timeout.Duration,
		CacheTTL: cfg.MarketData.CacheTTL.Duration,
	}, deps.QuoteCache, logger)

	deps.Broker = broker.NewPaper(broker.PaperConfig{
		SlippageBps:    int64(cfg.Broker.SlippageBps),
		PartialFillPct: decimal.NewFromFloat(cfg.Broker.PartialFillPct),
	}, logger)

	deps.Orchestrator = orchestrator.New(orchestrator.Deps{
		Positions: deps.Positions,
		Orders:    deps.Orders,
		Trades:    deps.Trades,
		Chain:     deps.Chain,
		Quotes:    deps.Quotes,
		Broker:    deps.Broker,
		Resolver:  deps.Resolver,
		Locks:     deps.Locks,
		Metrics:   deps.Metrics,
		Logger:    logger,
	}, orchestrator.Options{
		QuoteTimeout: cfg.MarketData.Timeout.Duration,
	})

	deps.Worker = worker.New(worker.Config{
		Enabled:  cfg.Worker.Enabled,
		Interval: cfg.Worker.Interval.Duration,
	}, deps.Orchestrator, deps.Metrics, logger)

	return deps, cleanup, nil
}

// engineDefaults converts the configured global fallbacks into engine
// defaults. Zero daily limits mean "disabled" and map to nil.
func engineDefaults(d config.DefaultsConfig) engine.Defaults {
	out := engine.Defaults{
		Trigger: domain.TriggerConfig{
			UpThresholdPct:   decimal.NewFromFloat(d.Trigger.UpThresholdPct),
			DownThresholdPct: decimal.NewFromFloat(d.Trigger.DownThresholdPct),
		},
		Guardrail: domain.GuardrailConfig{
			MinStockPct:           decimal.NewFromFloat(d.Guardrail.MinStockPct),
			MaxStockPct:           decimal.NewFromFloat(d.Guardrail.MaxStockPct),
			MaxTradePctOfPosition: decimal.NewFromFloat(d.Guardrail.MaxTradePctOfPosition),
		},
		OrderPolicy: domain.OrderPolicyConfig{
			MinQuantity:     decimal.NewFromFloat(d.Policy.MinQuantity),
			MinNotional:     decimal.NewFromFloat(d.Policy.MinNotional),
			LotSize:         decimal.NewFromFloat(d.Policy.LotSize),
			QuantityStep:    decimal.NewFromFloat(d.Policy.QuantityStep),
			ActionBelowMin:  domain.BelowMinAction(d.Policy.ActionBelowMin),
			RebalanceRatio:  decimal.NewFromFloat(d.Policy.RebalanceRatio),
			AllowAfterHours: d.Policy.AllowAfterHours,
		},
		CommissionRate: decimal.NewFromFloat(d.CommissionRate),
	}

	if d.Guardrail.MaxDailyNotional > 0 {
		v := decimal.NewFromFloat(d.Guardrail.MaxDailyNotional)
		out.Guardrail.MaxDailyNotional = &v
	}
	if d.Guardrail.MaxOrdersPerDay > 0 {
		v := d.Guardrail.MaxOrdersPerDay
		out.Guardrail.MaxOrdersPerDay = &v
	}
	return out
}
