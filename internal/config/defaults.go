package config

import (
	"strings"
	"time"

	"github.com/hyperjump/kyujin/internal/cache"
	"github.com/hyperjump/kyujin/internal/ranking"
	"github.com/hyperjump/kyujin/internal/retry"
	"github.com/hyperjump/kyujin/internal/source"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if len(cfg.Search.DefaultSources) == 0 {
		cfg.Search.DefaultSources = []string{source.AdzunaName}
	}
	for i, s := range cfg.Search.DefaultSources {
		cfg.Search.DefaultSources[i] = strings.ToLower(strings.TrimSpace(s))
	}
	if cfg.Search.DefaultTimeout == 0 {
		cfg.Search.DefaultTimeout = 10 * time.Second
	}
	if cfg.Search.MaxTimeout == 0 {
		cfg.Search.MaxTimeout = 30 * time.Second
	}
	if cfg.Search.SourceRetry == (retry.Policy{}) {
		cfg.Search.SourceRetry = retry.DefaultPolicy()
	}
	cfg.Search.SourceRetry = cfg.Search.SourceRetry.Normalize()
	if cfg.Search.SearchRetry == (retry.Policy{}) {
		cfg.Search.SearchRetry = retry.Policy{
			MaxAttempts: 2,
			BaseDelay:   time.Second,
			MaxDelay:    5 * time.Second,
			Multiplier:  2.0,
		}
	}
	cfg.Search.SearchRetry = cfg.Search.SearchRetry.Normalize()
	if cfg.Search.SnippetLength == 0 {
		cfg.Search.SnippetLength = 280
	}

	if cfg.Scoring.Weights.IsZero() {
		cfg.Scoring.Weights = ranking.DefaultWeights()
	}
	if cfg.Scoring.SourcePriors == nil {
		cfg.Scoring.SourcePriors = ranking.DefaultSourcePriors()
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheMemory
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = cache.DefaultTTL
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = cache.DefaultCapacity
	}
	if cfg.Cache.SweepSchedule == "" {
		cfg.Cache.SweepSchedule = cache.DefaultSweepSchedule
	}

	if cfg.Analytics.Driver == "" {
		cfg.Analytics.Driver = AnalyticsSQLite
	}
	if cfg.Analytics.DatabasePath == "" {
		cfg.Analytics.DatabasePath = "/usr/local/var/kyujin/data/analytics.db"
	}
	if cfg.Analytics.BufferSize == 0 {
		cfg.Analytics.BufferSize = 256
	}
}
