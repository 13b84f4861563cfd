package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hyperjump/kyujin/internal/models"
	"golang.org/x/time/rate"
)

// defaultBackoff is applied after a 429 that carried no Retry-After header.
const defaultBackoff = 30 * time.Second

// ErrThrottled is returned when the token bucket cannot grant a request before the
// caller's deadline.
var ErrThrottled = errors.New("rate limited locally")

// RateLimitConfig holds the client-side throttle for one source.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Burst is the maximum burst size.
	Burst int `yaml:"burst"`
}

// RateLimited throttles an adapter with a token bucket and backs off after the upstream
// answers 429.
type RateLimited struct {
	Adapter
	limiter *rate.Limiter

	mu      sync.Mutex
	retryAt time.Time
	now     func() time.Time
}

// WithRateLimit wraps a. A non-positive rate disables the token bucket but keeps the 429 backoff.
func WithRateLimit(a Adapter, cfg RateLimitConfig) *RateLimited {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{
		Adapter: a,
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

// Fetch waits for a token, then delegates. While backing off it fails fast with a
// rate-limit error instead of calling the upstream.
func (r *RateLimited) Fetch(ctx context.Context, p Params) ([]models.RawListing, error) {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()
	if now := r.now(); now.Before(retryAt) {
		return nil, fmt.Errorf("%s is rate limited, retry after %s", r.Name(), retryAt.Sub(now).Round(time.Second))
	}

	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s throttle: %w", r.Name(), err)
		}
		return nil, fmt.Errorf("%s %w: %v", r.Name(), ErrThrottled, err)
	}

	listings, err := r.Adapter.Fetch(ctx, p)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		r.recordRateLimit(se.RetryAfter)
	}
	return listings, err
}

func (r *RateLimited) recordRateLimit(after time.Duration) {
	if after <= 0 {
		after = defaultBackoff
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryAt = r.now().Add(after)
}
