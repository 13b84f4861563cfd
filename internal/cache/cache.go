package cache

import (
	"context"
	"time"

	"github.com/hyperjump/kyujin/internal/models"
	"go.uber.org/zap"
)

// DefaultTTL is how long a result set stays fresh when no TTL is configured.
const DefaultTTL = 10 * time.Minute

// ResultCache maps search criteria to their last successful outcome. Store failures degrade
// to cache misses; they never fail a search.
type ResultCache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *ResultCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

// New creates a ResultCache over store. A non-positive ttl uses DefaultTTL.
func New(store Store, ttl time.Duration, opts ...Option) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &ResultCache{store: store, ttl: ttl, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time to live.
func (c *ResultCache) TTL() time.Duration { return c.ttl }

// Get returns a copy of the cached outcome for criteria. An expired entry is evicted and
// reported as a miss.
func (c *ResultCache) Get(ctx context.Context, criteria models.SearchCriteria) (*models.AggregationOutcome, bool) {
	key := Fingerprint(criteria)
	e, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Result cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok || e.Outcome == nil {
		return nil, false
	}
	if now := c.now(); e.Expired(now) {
		if err := c.store.DeleteExpired(ctx, key, now); err != nil {
			c.logger.Warn("Result cache eviction failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return e.Outcome.Clone(), true
}

// Put replaces the entry for criteria with a copy of outcome.
func (c *ResultCache) Put(ctx context.Context, criteria models.SearchCriteria, outcome *models.AggregationOutcome) {
	if outcome == nil {
		return
	}
	key := Fingerprint(criteria)
	now := c.now()
	e := Entry{
		Fingerprint: key,
		Outcome:     outcome.Clone(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
	}
	if err := c.store.Set(ctx, key, e); err != nil {
		c.logger.Warn("Result cache write failed", zap.String("key", key), zap.Error(err))
	}
}
