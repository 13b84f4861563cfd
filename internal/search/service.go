// Package search ties the result cache, the aggregation orchestrator and analytics together
// into the search operation served over HTTP and the CLI.
package search

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kyujin/internal/aggregator"
	"github.com/hyperjump/kyujin/internal/analytics"
	"github.com/hyperjump/kyujin/internal/apperr"
	"github.com/hyperjump/kyujin/internal/cache"
	"github.com/hyperjump/kyujin/internal/dedup"
	"github.com/hyperjump/kyujin/internal/models"
	"github.com/hyperjump/kyujin/internal/ranking"
	"github.com/hyperjump/kyujin/internal/retry"
	"github.com/hyperjump/kyujin/internal/source"
)

// DefaultSnippetLength is the description excerpt length in returned jobs.
const DefaultSnippetLength = 280

// Config holds the service-level search settings.
type Config struct {
	DefaultSources []string
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	// Retry wraps a whole search in SearchWithRetry.
	Retry         retry.Policy
	SnippetLength int
}

// MetricRecorder receives one metric per search attempt. It must not block.
type MetricRecorder interface {
	Record(m models.SearchMetric)
}

// Service runs searches: cache lookup, fan-out, cache write and analytics.
type Service struct {
	registry     *source.Registry
	orchestrator *aggregator.Orchestrator
	cache        *cache.ResultCache
	recorder     MetricRecorder
	cfg          Config
	logger       *zap.Logger
	now          func() time.Time

	// reloadedAt is the unix-nano time of the last pipeline swap; cached outcomes completed
	// before it were scored with old weights and are ignored.
	reloadedAt atomic.Int64
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables result caching.
func WithCache(c *cache.ResultCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRecorder enables analytics recording.
func WithRecorder(r MetricRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a search service over the adapters in registry.
func NewService(registry *source.Registry, orchestrator *aggregator.Orchestrator, cfg Config, opts ...Option) *Service {
	if cfg.SnippetLength == 0 {
		cfg.SnippetLength = DefaultSnippetLength
	}
	s := &Service{
		registry:     registry,
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timings reports where a search spent its time.
type Timings struct {
	TotalMs  int64 `json:"totalMs"`
	FanOutMs int64 `json:"fanOutMs"`
}

// Counts are the listing counts of an outcome.
type Counts struct {
	TotalFound        int `json:"totalFound"`
	UniqueAfterDedup  int `json:"uniqueAfterDedup"`
	DuplicatesRemoved int `json:"duplicatesRemoved"`
	InvalidDropped    int `json:"invalidDropped"`
	Filtered          int `json:"filtered"`
	Returned          int `json:"returned"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	Counts      Counts                 `json:"counts"`
	Timings     Timings                `json:"timings"`
	Cached      bool                   `json:"cached"`
	Fingerprint string                 `json:"fingerprint"`
	Outcome     models.OutcomeKind     `json:"outcome"`
	Partial     bool                   `json:"partial"`
	Sources     []models.SourceSummary `json:"sources"`
}

// Job is a scored listing with a description excerpt.
type Job struct {
	models.ScoredListing
	Snippet string `json:"snippet,omitempty"`
}

// Response is the result of a search.
type Response struct {
	Jobs     []Job                `json:"jobs"`
	Metadata Metadata             `json:"metadata"`
	Warnings []string             `json:"warnings,omitempty"`
	Errors   []models.SourceError `json:"errors,omitempty"`
}

// Search runs one search. The response is non-nil whenever the fan-out ran, including when
// the error reports that no source succeeded, so callers can surface per-source detail.
func (s *Service) Search(ctx context.Context, c models.SearchCriteria) (*Response, error) {
	start := s.now()
	c, err := ProcessCriteria(c, s.cfg.DefaultSources)
	if err != nil {
		return nil, err
	}
	fp := cache.Fingerprint(c)

	if outcome, ok := s.cachedOutcome(ctx, c); ok {
		elapsed := s.now().Sub(start)
		s.logger.Debug("Search served from cache",
			zap.String("query", c.Query),
			zap.String("fingerprint", fp),
		)
		s.record(analytics.NewMetric(c, outcome, elapsed, true, string(outcome.Kind)))
		return s.buildResponse(c, outcome, fp, true, elapsed), nil
	}

	adapters := s.adapters(c.Sources)
	timeout := c.Timeout(s.cfg.DefaultTimeout, s.cfg.MaxTimeout)
	outcome, err := s.orchestrator.Search(ctx, c, adapters, timeout)
	elapsed := s.now().Sub(start)
	if outcome == nil {
		s.record(analytics.NewMetric(c, nil, elapsed, false, apperr.KindOf(err).String()))
		return nil, err
	}

	if err == nil && outcome.Kind.Succeeded() && s.cache != nil {
		s.cache.Put(ctx, c, outcome)
	}
	s.record(analytics.NewMetric(c, outcome, elapsed, false, string(outcome.Kind)))

	if err != nil {
		s.logger.Warn("Search failed",
			zap.String("query", c.Query),
			zap.String("outcome", string(outcome.Kind)),
			zap.Strings("failed", outcome.FailedSources()),
		)
	} else {
		s.logger.Info("Search completed",
			zap.String("query", c.Query),
			zap.String("outcome", string(outcome.Kind)),
			zap.Int("results", len(outcome.Listings)),
			zap.Duration("duration", elapsed),
		)
	}
	return s.buildResponse(c, outcome, fp, false, elapsed), err
}

// SearchWithRetry retries the whole search when every source timed out or failed. Validation
// and rate-limit failures are returned immediately. The response of the last attempt is
// returned with its error.
func (s *Service) SearchWithRetry(ctx context.Context, c models.SearchCriteria, onRetry retry.OnRetry) (*Response, error) {
	var last *Response
	resp, err := retry.Execute(ctx, s.cfg.Retry, func(ctx context.Context) (*Response, error) {
		resp, err := s.Search(ctx, c)
		last = resp
		if err != nil && !retryableSearchError(err) {
			return nil, retry.Permanent(err)
		}
		return resp, err
	}, onRetry)
	if err != nil {
		return last, err
	}
	return resp, nil
}

func retryableSearchError(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindTimeout, apperr.KindSourceFailure:
		return true
	}
	return false
}

// Reload swaps the scorer and deduplicator. Cached outcomes produced before the swap are
// no longer served.
func (s *Service) Reload(scorer *ranking.Scorer, dd *dedup.Deduplicator) {
	s.orchestrator.SetPipeline(scorer, dd)
	s.reloadedAt.Store(s.now().UnixNano())
	s.logger.Info("Search pipeline reloaded",
		zap.Float64("dedup_threshold", s.orchestrator.Pipeline().Dedup.Threshold()),
	)
}

// SourceInfo describes a registered source.
type SourceInfo struct {
	Name    string  `json:"name"`
	Prior   float64 `json:"prior"`
	Default bool    `json:"default"`
}

// Sources lists the registered sources with their quality priors.
func (s *Service) Sources() []SourceInfo {
	priors := s.orchestrator.Pipeline().Scorer.Priors()
	defaults := make(map[string]bool, len(s.cfg.DefaultSources))
	for _, d := range s.cfg.DefaultSources {
		defaults[d] = true
	}
	names := s.registry.Names()
	out := make([]SourceInfo, 0, len(names))
	for _, n := range names {
		out = append(out, SourceInfo{Name: n, Prior: priors.Prior(n), Default: defaults[n]})
	}
	return out
}

// DefaultSources returns the sources used when a request names none.
func (s *Service) DefaultSources() []string {
	return append([]string(nil), s.cfg.DefaultSources...)
}

func (s *Service) cachedOutcome(ctx context.Context, c models.SearchCriteria) (*models.AggregationOutcome, bool) {
	if s.cache == nil {
		return nil, false
	}
	outcome, ok := s.cache.Get(ctx, c)
	if !ok {
		return nil, false
	}
	if r := s.reloadedAt.Load(); r != 0 && outcome.CompletedAt.UnixNano() < r {
		return nil, false
	}
	return outcome, true
}

func (s *Service) adapters(names []string) []source.Adapter {
	found, unknown := s.registry.Resolve(names)
	for _, n := range unknown {
		found = append(found, source.Unknown(n))
	}
	return found
}

func (s *Service) record(m models.SearchMetric) {
	if s.recorder != nil {
		s.recorder.Record(m)
	}
}

func (s *Service) buildResponse(c models.SearchCriteria, o *models.AggregationOutcome, fp string, cached bool, elapsed time.Duration) *Response {
	terms := append([]string{c.Query}, c.IncludeKeywords...)
	jobs := make([]Job, len(o.Listings))
	for i, l := range o.Listings {
		jobs[i] = Job{ScoredListing: l, Snippet: Highlight(l.Description, terms, s.cfg.SnippetLength)}
	}

	fanOut := o.Duration
	if cached {
		fanOut = 0
	}
	return &Response{
		Jobs: jobs,
		Metadata: Metadata{
			Counts: Counts{
				TotalFound:        o.TotalFound,
				UniqueAfterDedup:  o.UniqueAfterDedup,
				DuplicatesRemoved: o.DuplicatesRemoved,
				InvalidDropped:    o.InvalidDropped,
				Filtered:          o.Filtered,
				Returned:          len(jobs),
			},
			Timings:     Timings{TotalMs: elapsed.Milliseconds(), FanOutMs: fanOut.Milliseconds()},
			Cached:      cached,
			Fingerprint: fp,
			Outcome:     o.Kind,
			Partial:     o.Partial,
			Sources:     o.Sources,
		},
		Warnings: warnings(o),
		Errors:   o.Errors,
	}
}

func warnings(o *models.AggregationOutcome) []string {
	var out []string
	if o.Partial {
		failed := o.FailedSources()
		out = append(out, fmt.Sprintf("partial results: %d of %d sources failed", len(failed), len(o.Sources)))
	}
	for _, e := range o.Errors {
		out = append(out, fmt.Sprintf("%s: %s", e.Source, e.Message))
	}
	return out
}
