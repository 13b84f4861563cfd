// Package cache stores aggregation outcomes keyed by a fingerprint of normalized search
// criteria, with expiry enforced on every read.
package cache

import (
	"context"
	"time"

	"github.com/hyperjump/kyujin/internal/models"
)

// Entry is one cached result set. Entries are never mutated after they are stored.
type Entry struct {
	Fingerprint string                     `json:"fingerprint"`
	Outcome     *models.AggregationOutcome `json:"outcome"`
	CreatedAt   time.Time                  `json:"createdAt"`
	ExpiresAt   time.Time                  `json:"expiresAt"`
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the backing storage of a ResultCache. Implementations must be safe for concurrent
// use; concurrent Sets of one key resolve as last writer wins.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	// DeleteExpired removes key only if the entry stored at the time of removal is expired
	// at now, so an entry written after the caller's read survives.
	DeleteExpired(ctx context.Context, key string, now time.Time) error
}

// Purger is implemented by stores that need expired entries removed periodically.
type Purger interface {
	Purge(now time.Time) int
}
