package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/folio/internal/config"
	"github.com/sawpanic/folio/internal/data/cache"
	"github.com/sawpanic/folio/internal/infrastructure/db"
	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/metrics"
	"github.com/sawpanic/folio/internal/service"
)

// app owns every long-lived dependency built from configuration.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *metrics.Registry
	database *db.Manager
	redis    *redis.Client
	history  marketdata.HistorySource
	cached   *marketdata.CachedProvider
	service  *service.Service
}

// newApp wires the configured market data provider behind the cache and builds the service.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  log.Logger,
		metrics: metrics.New(),
	}

	database, err := db.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.database = database

	inner, history, err := a.buildProvider()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.history = history

	cacheOpts := []marketdata.CachedOption{
		marketdata.WithObserver(a.metrics),
		marketdata.WithCacheLogger(a.logger),
		marketdata.WithTable(newMarketTable(cfg.MarketData)),
		marketdata.WithFetchTimeout(cfg.Server.RequestTimeout),
	}
	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, continuing with the in-process cache only")
		}
		cacheOpts = append(cacheOpts, marketdata.WithStore(marketdata.NewRedisStore(a.redis)))
	}
	a.cached = marketdata.NewCachedProvider(inner, cfg.MarketData.TTL, cacheOpts...)

	a.service = service.New(a.cached,
		service.WithConstraints(cfg.Optimizer.Constraints()),
		service.WithRiskFreeRate(cfg.Optimizer.RiskFreeRate),
		service.WithRecorder(a.metrics),
		service.WithLogger(a.logger),
	)

	a.logger.Info().
		Str("provider", cfg.MarketData.Provider).
		Str("range", string(cfg.MarketData.Range)).
		Dur("ttl", cfg.MarketData.TTL).
		Bool("redis", cfg.Redis.Enabled).
		Bool("database", database.IsEnabled()).
		Msg("Application initialized")
	return a, nil
}

// newMarketTable builds the in-process return cache with a janitor sweeping expired
// entries once per TTL. Close stops it.
func newMarketTable(md config.MarketDataConfig) *cache.TTLCache {
	ttl := md.TTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return cache.NewTTLCache(md.CacheMaxEntries, ttl, cache.WithCleanupInterval(ttl))
}

// buildProvider returns the configured provider and, for live sources, its history view.
func (a *app) buildProvider() (marketdata.Provider, marketdata.HistorySource, error) {
	md := a.cfg.MarketData
	switch md.Provider {
	case config.ProviderSynthetic:
		return marketdata.NewSyntheticProvider(), nil, nil
	case config.ProviderYahoo:
		y := marketdata.NewYahooProvider(md.Yahoo, nil, a.logger, a.metrics.BreakerTransition)
		return y, y, nil
	case config.ProviderPostgres:
		if !a.database.IsEnabled() {
			return nil, nil, fmt.Errorf("postgres provider requires database.enabled")
		}
		p := marketdata.NewPostgresProvider(a.database.DB(), a.database.QueryTimeout(), a.logger)
		return p, p, nil
	case config.ProviderCSV:
		c := marketdata.NewCSVProvider(md.CSVDir, a.logger)
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unknown marketdata provider %q", md.Provider)
	}
}

// Close releases connections and stops the cache janitor.
func (a *app) Close() {
	if a.cached != nil {
		a.cached.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
