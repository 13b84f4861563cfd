// Package source defines the listing-source adapter contract and the bundled adapters.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kyujin/internal/models"
)

// Adapter fetches raw listings from one external source. Implementations must honor ctx
// cancellation and must not hold shared mutable state across calls.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, p Params) ([]models.RawListing, error)
}

// Params is the source-agnostic view of a search passed to adapters.
type Params struct {
	Query            string
	Location         string
	JobType          models.JobType
	MaxResults       int
	PostedWithinDays int
}

// NewParams derives adapter parameters from normalized criteria.
func NewParams(c models.SearchCriteria) Params {
	return Params{
		Query:            c.Query,
		Location:         c.Location,
		JobType:          c.JobType,
		MaxResults:       c.EffectiveMaxResults(),
		PostedWithinDays: c.PostedWithinDays,
	}
}

// StatusError is returned when a source answers with a non-success HTTP status.
// Its message carries the status code so callers can recognize rate limiting.
type StatusError struct {
	Source     string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s returned status %d", e.Source, e.StatusCode)
	if e.StatusCode == http.StatusTooManyRequests {
		msg += " (too many requests)"
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// newStatusError builds a StatusError from a response, truncating the body.
func newStatusError(source string, resp *http.Response, body []byte) *StatusError {
	const maxBody = 200
	b := strings.TrimSpace(string(body))
	if len(b) > maxBody {
		b = b[:maxBody] + "..."
	}
	return &StatusError{
		Source:     source,
		StatusCode: resp.StatusCode,
		Body:       b,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Registry maps source names to adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter under its lower-cased name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(a.Name())] = a
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(name)]
	return a, ok
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up each requested name, returning the adapters found and the names that are
// not registered, both in request order.
func (r *Registry) Resolve(names []string) (found []Adapter, unknown []string) {
	for _, n := range names {
		if a, ok := r.Get(n); ok {
			found = append(found, a)
		} else {
			unknown = append(unknown, n)
		}
	}
	return found, unknown
}

// matchesQuery reports whether every whitespace-separated query term occurs in the listing's
// title or description. Used by adapters whose upstream has no search of its own.
func matchesQuery(l models.RawListing, query string) bool {
	text := strings.ToLower(l.Title + " " + l.Description)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

// matchesLocation reports whether the listing fits a location filter. Remote listings match
// any location.
func matchesLocation(l models.RawListing, location string) bool {
	location = strings.ToLower(strings.TrimSpace(location))
	if location == "" {
		return true
	}
	loc := strings.ToLower(l.Location)
	if loc == "" {
		return false
	}
	return strings.Contains(loc, location) || strings.Contains(location, loc) || strings.Contains(loc, "remote")
}

// capResults truncates listings to limit when limit is positive.
func capResults(listings []models.RawListing, limit int) []models.RawListing {
	if limit > 0 && len(listings) > limit {
		return listings[:limit]
	}
	return listings
}

// FuncAdapter adapts a function to the Adapter interface.
type FuncAdapter struct {
	SourceName string
	FetchFunc  func(ctx context.Context, p Params) ([]models.RawListing, error)
}

// Name implements Adapter.
func (f FuncAdapter) Name() string { return f.SourceName }

// Fetch implements Adapter.
func (f FuncAdapter) Fetch(ctx context.Context, p Params) ([]models.RawListing, error) {
	return f.FetchFunc(ctx, p)
}

// ErrUnknownSource is returned for a requested source that has no registered adapter.
var ErrUnknownSource = errors.New("unknown source")

// Unknown returns an adapter standing in for an unregistered source name. Its Fetch always
// fails with ErrUnknownSource so the failure is reported per source like any other.
func Unknown(name string) Adapter {
	return FuncAdapter{SourceName: name, FetchFunc: func(context.Context, Params) ([]models.RawListing, error) {
		return nil, fmt.Errorf("%w %q", ErrUnknownSource, name)
	}}
}
