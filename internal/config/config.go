// Package config provides configuration loading and structs for the kyujin server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kyujin/internal/ranking"
	"github.com/hyperjump/kyujin/internal/retry"
	"github.com/hyperjump/kyujin/internal/source"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Analytics drivers.
const (
	AnalyticsSQLite   = "sqlite"
	AnalyticsPostgres = "postgres"
	AnalyticsNone     = "none"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Search    SearchConfig    `yaml:"search"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Cache     CacheConfig     `yaml:"cache"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Sources   SourcesConfig   `yaml:"sources"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SearchConfig holds fan-out settings.
type SearchConfig struct {
	DefaultSources []string      `yaml:"default_sources"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
	// SourceRetry wraps every adapter call.
	SourceRetry retry.Policy `yaml:"source_retry"`
	// SearchRetry wraps a whole search when every source failed or timed out.
	SearchRetry   retry.Policy `yaml:"search_retry"`
	SnippetLength int          `yaml:"snippet_length"`
}

// ScoringConfig holds the scorer weights and per-source quality priors.
type ScoringConfig struct {
	Weights      ranking.Weights      `yaml:"weights"`
	SourcePriors ranking.SourcePriors `yaml:"source_priors"`
}

// DedupConfig holds duplicate detection settings.
type DedupConfig struct {
	// FuzzyThreshold enables fuzzy merging at this similarity in (0, 1]. 0 is strict matching.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Backend       string        `yaml:"backend"` // memory | redis
	TTL           time.Duration `yaml:"ttl"`
	Capacity      int           `yaml:"capacity"`
	RedisURL      string        `yaml:"redis_url"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// AnalyticsConfig holds search metric persistence settings.
type AnalyticsConfig struct {
	Driver       string `yaml:"driver"` // sqlite | postgres | none
	DatabasePath string `yaml:"database_path"`
	PostgresDSN  string `yaml:"postgres_dsn"`
	BufferSize   int    `yaml:"buffer_size"`
}

// SourcesConfig configures the listing sources.
type SourcesConfig struct {
	Adzuna      source.AdzunaConfig               `yaml:"adzuna"`
	CareerPages []source.CareerPage               `yaml:"career_pages"`
	StaticFile  string                            `yaml:"static_file"`
	RateLimits  map[string]source.RateLimitConfig `yaml:"rate_limits"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the config file at path, expands paths, applies defaults and
// validates the result. Invalid scoring weights are rejected here.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Analytics.DatabasePath = expandPath(cfg.Analytics.DatabasePath, configDir)
	if cfg.Sources.StaticFile != "" {
		cfg.Sources.StaticFile = expandPath(cfg.Sources.StaticFile, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within [1, 65535], got %d", c.Server.Port)
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring.weights: %w", err)
	}
	if err := c.Scoring.SourcePriors.Validate(); err != nil {
		return fmt.Errorf("scoring.source_priors: %w", err)
	}
	if t := c.Dedup.FuzzyThreshold; t < 0 || t > 1 {
		return fmt.Errorf("dedup.fuzzy_threshold must be within [0, 1], got %v", t)
	}
	if c.Search.DefaultTimeout <= 0 || c.Search.MaxTimeout <= 0 {
		return fmt.Errorf("search timeouts must be positive")
	}
	if c.Search.DefaultTimeout > c.Search.MaxTimeout {
		return fmt.Errorf("search.default_timeout %s exceeds search.max_timeout %s", c.Search.DefaultTimeout, c.Search.MaxTimeout)
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	switch c.Analytics.Driver {
	case AnalyticsSQLite, AnalyticsNone:
	case AnalyticsPostgres:
		if c.Analytics.PostgresDSN == "" {
			return fmt.Errorf("analytics.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown analytics.driver %q", c.Analytics.Driver)
	}
	for name, rl := range c.Sources.RateLimits {
		if rl.RequestsPerSecond < 0 || rl.Burst < 0 {
			return fmt.Errorf("sources.rate_limits.%s must not be negative", name)
		}
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
