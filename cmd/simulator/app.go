package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/alphavantage"
	"github.com/papertrade/simulator/internal/bot"
	"github.com/papertrade/simulator/internal/config"
	"github.com/papertrade/simulator/internal/events"
	"github.com/papertrade/simulator/internal/ledger"
	"github.com/papertrade/simulator/internal/quote"
	"github.com/papertrade/simulator/internal/store"
)

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(*envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	var logger *zap.Logger
	if cfg.IsLocal() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

// app holds the wired services shared by serve and exec.
type app struct {
	store    store.Store
	provider *quote.Provider
	ledger   *ledger.Service
	router   *bot.Router
	cleanup  []func()
}

func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// newApp connects the configured backends. Extra publishers (the
// websocket hub) receive trade events alongside Kafka.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, extra ...events.Publisher) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		a.cleanup = append(a.cleanup, func() { rdb.Close() })
	}

	// --- Store ---
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		a.cleanup = append(a.cleanup, pool.Close)
		a.store = store.NewPostgresStore(pool)
		logger.Info("connected to PostgreSQL")

		if rdb != nil {
			a.store = store.NewCachedStore(a.store, rdb, cfg.StoreCacheTTL, logger)
			logger.Info("redis store cache enabled", zap.Duration("ttl", cfg.StoreCacheTTL))
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		a.store = store.NewMemoryStore()
	}

	// --- Quotes ---
	var backend quote.Backend
	switch {
	case rdb != nil:
		backend = quote.NewRedisBackend(rdb)
	case cfg.QuoteCacheMaxSymbols > 0:
		b, err := quote.NewBoundedBackend(int64(cfg.QuoteCacheMaxSymbols))
		if err != nil {
			return nil, err
		}
		a.cleanup = append(a.cleanup, b.Close)
		backend = b
	default:
		backend = quote.NewMemoryBackend()
	}
	source := alphavantage.New(cfg.AlphaVantageURL, cfg.AlphaVantageKey, cfg.QuoteTimeout)
	cache := quote.NewCache(backend, cfg.QuoteCacheTTL, logger)
	a.provider = quote.NewProvider(source, cache, logger)

	// --- Events ---
	pubs := events.Multi(extra)
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.cleanup = append(a.cleanup, func() {
			if err := kp.Close(); err != nil {
				logger.Warn("kafka close failed", zap.Error(err))
			}
		})
		pubs = append(pubs, kp)
		logger.Info("kafka trade events enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	a.ledger = ledger.NewService(a.store, cfg.InitialBalance, pubs, logger)
	a.router = bot.NewRouter(a.ledger, a.provider, bot.Options{
		Currency:     cfg.Currency,
		HistoryLimit: cfg.HistoryLimit,
	}, logger)

	ok = true
	return a, nil
}

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second
