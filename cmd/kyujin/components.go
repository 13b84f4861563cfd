package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/kyujin/internal/aggregator"
	"github.com/hyperjump/kyujin/internal/analytics"
	"github.com/hyperjump/kyujin/internal/cache"
	"github.com/hyperjump/kyujin/internal/config"
	"github.com/hyperjump/kyujin/internal/search"
	"github.com/hyperjump/kyujin/internal/source"
	"github.com/hyperjump/kyujin/internal/watcher"
)

// Components holds initialized services.
type Components struct {
	Service  *search.Service
	Metrics  *analytics.Metrics
	Recorder *analytics.Recorder
	// History is nil when analytics storage is disabled.
	History analytics.Reader
	Sweeper *cache.Sweeper
	redis   *redis.Client
	logger  *zap.Logger
}

// Close drains the analytics queue and releases caches and database handles.
func (c *Components) Close(ctx context.Context) {
	if c.Sweeper != nil {
		c.Sweeper.Stop()
	}
	if c.Recorder != nil {
		if err := c.Recorder.Close(ctx); err != nil {
			c.logger.Warn("analytics close failed", zap.Error(err))
		}
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{logger: logger}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	scorer, dd, err := watcher.BuildPipeline(cfg)
	if err != nil {
		return nil, err
	}

	c.Metrics = analytics.NewMetrics(nil)
	orch := aggregator.New(scorer, dd,
		aggregator.WithLogger(logger),
		aggregator.WithRetryPolicy(cfg.Search.SourceRetry),
		aggregator.WithSourceObserver(c.Metrics),
	)

	store, err := c.openCacheStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	resultCache := cache.New(store, cfg.Cache.TTL, cache.WithLogger(logger))

	sinks := []analytics.Sink{c.Metrics}
	sink, err := openAnalyticsSink(ctx, &cfg.Analytics)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	if sink != nil {
		sinks = append(sinks, sink)
		if r, ok := sink.(analytics.Reader); ok {
			c.History = r
		}
	}
	c.Recorder = analytics.NewRecorder(logger, cfg.Analytics.BufferSize, sinks...)

	c.Service = search.NewService(registry, orch,
		search.Config{
			DefaultSources: cfg.Search.DefaultSources,
			DefaultTimeout: cfg.Search.DefaultTimeout,
			MaxTimeout:     cfg.Search.MaxTimeout,
			Retry:          cfg.Search.SearchRetry,
			SnippetLength:  cfg.Search.SnippetLength,
		},
		search.WithCache(resultCache),
		search.WithRecorder(c.Recorder),
		search.WithLogger(logger),
	)
	logger.Info("components initialized",
		zap.Strings("sources", registry.Names()),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("analytics", cfg.Analytics.Driver),
	)
	return c, nil
}

// buildRegistry registers every configured source, each behind its client-side rate limit.
// Adzuna is always registered so a missing key surfaces as a per-source error.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*source.Registry, error) {
	client := &http.Client{}
	adapters := []source.Adapter{source.NewAdzuna(cfg.Sources.Adzuna, client)}
	if len(cfg.Sources.CareerPages) > 0 {
		adapters = append(adapters, source.NewCareerPages(cfg.Sources.CareerPages, client, logger))
	}
	if cfg.Sources.StaticFile != "" {
		static, err := source.LoadStatic(source.StaticName, cfg.Sources.StaticFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load static source: %w", err)
		}
		adapters = append(adapters, static)
	}

	registry := source.NewRegistry()
	for _, a := range adapters {
		registry.Register(source.WithRateLimit(a, cfg.Sources.RateLimits[a.Name()]))
	}
	return registry, nil
}

func (c *Components) openCacheStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		c.redis = client
		return cache.NewRedisStore(client), nil
	default:
		store := cache.NewMemoryStore(cfg.Cache.Capacity)
		c.Sweeper = cache.NewSweeper(store, cfg.Cache.SweepSchedule, logger)
		if err := c.Sweeper.Start(); err != nil {
			return nil, fmt.Errorf("failed to start cache sweeper: %w", err)
		}
		return store, nil
	}
}

// openAnalyticsSink opens the configured metric store. It returns nil when analytics
// storage is disabled.
func openAnalyticsSink(ctx context.Context, cfg *config.AnalyticsConfig) (analytics.Sink, error) {
	switch cfg.Driver {
	case config.AnalyticsNone:
		return nil, nil
	case config.AnalyticsPostgres:
		pool, err := analytics.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize analytics: %w", err)
		}
		sink, err := analytics.NewPostgresSink(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize analytics: %w", err)
		}
		return sink, nil
	default:
		sink, err := analytics.NewSQLiteSink(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize analytics: %w", err)
		}
		return sink, nil
	}
}
