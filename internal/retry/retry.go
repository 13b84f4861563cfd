// Package retry provides a stateless exponential-backoff executor for transient failures.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `yaml:"base_delay"`
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration `yaml:"max_delay"`
	// Multiplier is the backoff growth factor.
	Multiplier float64 `yaml:"backoff_multiplier"`
}

// DefaultPolicy returns the policy used around each source adapter call.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  2.0,
	}
}

// Normalize fills zero or invalid fields with defaults.
func (p Policy) Normalize() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	return p
}

// Delay returns the wait before retry number attempt (1-based):
// min(BaseDelay * Multiplier^(attempt-1), MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// OnRetry observes a retry before the backoff sleep. attempt is the 1-based number of the
// attempt that just failed.
type OnRetry func(attempt int, delay time.Duration, err error)

// Execute runs op up to p.MaxAttempts times and returns the first success.
// If every attempt fails, the last error is returned unmodified. If ctx ends during a backoff
// the last operation error is returned; if ctx is already done before the first attempt,
// ctx.Err() is returned.
func Execute[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), onRetry OnRetry) (T, error) {
	p = p.Normalize()
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
		lastErr = err

		if attempt == p.MaxAttempts || ctx.Err() != nil {
			break
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		if !sleep(ctx, delay) {
			break
		}
	}
	return zero, lastErr
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Execute stops immediately and returns err itself.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do is Execute for operations without a result value.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, onRetry OnRetry) error {
	_, err := Execute(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, onRetry)
	return err
}

// sleep waits for d or until ctx is done; it reports whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
