// Package aggregator fans a search out to listing sources under one shared deadline and turns
// whatever comes back into a deduplicated, ranked outcome with per-source diagnostics.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kyujin/internal/apperr"
	"github.com/hyperjump/kyujin/internal/dedup"
	"github.com/hyperjump/kyujin/internal/models"
	"github.com/hyperjump/kyujin/internal/ranking"
	"github.com/hyperjump/kyujin/internal/retry"
	"github.com/hyperjump/kyujin/internal/source"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SourceObserver is notified of every per-source result, e.g. to export metrics.
type SourceObserver interface {
	ObserveSource(r models.SourceResult)
}

// Pipeline is the post-fan-out stage: deduplication and scoring. It is replaced as a whole on
// configuration reload.
type Pipeline struct {
	Scorer *ranking.Scorer
	Dedup  *dedup.Deduplicator
}

// Orchestrator runs source fan-outs. It is safe for concurrent use.
type Orchestrator struct {
	policy    retry.Policy
	pipeline  atomic.Pointer[Pipeline]
	observers []SourceObserver
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRetryPolicy sets the policy wrapped around each adapter call.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.policy = p.Normalize() }
}

// WithSourceObserver registers an observer for per-source results.
func WithSourceObserver(obs SourceObserver) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator that scores with scorer and merges duplicates with dd.
func New(scorer *ranking.Scorer, dd *dedup.Deduplicator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		policy: retry.DefaultPolicy(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.SetPipeline(scorer, dd)
	return o
}

// SetPipeline atomically replaces the scorer and deduplicator used by subsequent searches.
func (o *Orchestrator) SetPipeline(scorer *ranking.Scorer, dd *dedup.Deduplicator) {
	if scorer == nil {
		scorer = ranking.MustDefaultScorer()
	}
	if dd == nil {
		dd, _ = dedup.New(scorer.Priors(), 0)
	}
	o.pipeline.Store(&Pipeline{Scorer: scorer, Dedup: dd})
}

// Pipeline returns the scorer and deduplicator currently in use.
func (o *Orchestrator) Pipeline() Pipeline {
	return *o.pipeline.Load()
}

// Search fans out to adapters concurrently under a single deadline of timeout (no extra
// deadline when timeout <= 0), then filters, deduplicates and ranks what arrived.
//
// The outcome is always returned, including on failure, so per-source errors can be
// reported. The error is nil for full and partial outcomes and an *apperr.Error of kind
// RateLimited, Timeout or SourceFailure when no source produced listings.
func (o *Orchestrator) Search(ctx context.Context, c models.SearchCriteria, adapters []source.Adapter, timeout time.Duration) (*models.AggregationOutcome, error) {
	start := o.now()
	if len(adapters) == 0 {
		return nil, apperr.Validation("no sources requested")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	fanCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		fanCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	params := source.NewParams(c)
	results := make([]models.SourceResult, len(adapters))
	// Failures are captured per source, so the group only joins.
	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			results[i] = o.fetchSource(fanCtx, a, params)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		for _, obs := range o.observers {
			obs.ObserveSource(r)
		}
	}

	outcome := o.assemble(c, results)
	outcome.Duration = o.now().Sub(start)
	outcome.CompletedAt = o.now()
	return outcome, outcomeError(outcome)
}

// fetchSource runs one adapter under the retry policy and turns the result into a tagged
// SourceResult. The adapter call is raced against ctx so a source that ignores cancellation
// cannot hold the fan-out past the deadline; its late result is discarded.
func (o *Orchestrator) fetchSource(ctx context.Context, a source.Adapter, p source.Params) models.SourceResult {
	name := a.Name()
	start := o.now()
	attempts := 0
	listings, err := retry.Execute(ctx, o.policy, func(ctx context.Context) ([]models.RawListing, error) {
		attempts++
		listings, err := callAdapter(ctx, a, p)
		if err != nil && (errors.Is(err, source.ErrUnknownSource) || errors.Is(err, source.ErrMissingCredentials) || IsRateLimited(err)) {
			return nil, retry.Permanent(err)
		}
		return listings, err
	}, func(attempt int, delay time.Duration, err error) {
		o.logger.Debug("Retrying source",
			zap.String("source", name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	})

	r := models.SourceResult{
		Source:   name,
		Attempts: attempts,
		Duration: o.now().Sub(start),
	}
	if err == nil {
		for i := range listings {
			if listings[i].Source == "" {
				listings[i].Source = name
			}
		}
		r.Status = models.SourceOK
		r.Listings = listings
		return r
	}

	r.Status, r.Err = classifySourceError(ctx, name, err)
	o.logger.Warn("Source failed",
		zap.String("source", name),
		zap.String("status", string(r.Status)),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return r
}

type fetchResult struct {
	listings []models.RawListing
	err      error
}

func callAdapter(ctx context.Context, a source.Adapter, p source.Params) ([]models.RawListing, error) {
	ch := make(chan fetchResult, 1)
	go func() {
		listings, err := a.Fetch(ctx, p)
		ch <- fetchResult{listings: listings, err: err}
	}()
	select {
	case r := <-ch:
		return r.listings, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func classifySourceError(ctx context.Context, name string, err error) (models.SourceStatus, *models.SourceError) {
	se := &models.SourceError{Source: name, Message: err.Error()}
	switch {
	case IsRateLimited(err):
		se.Code = models.CodeRateLimited
		return models.SourceRateLimited, se
	case ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		se.Code = models.CodeTimeout
		se.Message = fmt.Sprintf("%s did not respond before the search deadline", name)
		return models.SourceTimeout, se
	case errors.Is(err, source.ErrUnknownSource):
		se.Code = models.CodeUnknownSource
		return models.SourceFailed, se
	default:
		se.Code = models.CodeFetchFailed
		return models.SourceFailed, se
	}
}

// rateLimitVocabulary lists the error text fragments that signal blocking or throttling.
var rateLimitVocabulary = []string{
	"rate limit",
	"rate-limit",
	"ratelimit",
	"too many requests",
	"status 429",
	"captcha",
	"blocked",
}

// IsRateLimited reports whether err signals that a source is blocking or throttling us.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var se *source.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, v := range rateLimitVocabulary {
		if strings.Contains(msg, v) {
			return true
		}
	}
	return false
}

// Classify derives the aggregate outcome kind from per-source results. When every source
// failed, the outcome is rate limited only if every failure carries the rate-limit
// signature; otherwise any timeout makes it a timeout, and anything else a source failure.
func Classify(results []models.SourceResult) models.OutcomeKind {
	var ok, limited, timedOut int
	for _, r := range results {
		switch r.Status {
		case models.SourceOK:
			ok++
		case models.SourceRateLimited:
			limited++
		case models.SourceTimeout:
			timedOut++
		}
	}
	switch {
	case ok == len(results) && ok > 0:
		return models.OutcomeFull
	case ok > 0:
		return models.OutcomePartial
	case limited > 0 && limited == len(results):
		return models.OutcomeRateLimited
	case timedOut > 0:
		return models.OutcomeTimeout
	default:
		return models.OutcomeSourceFailure
	}
}

func (o *Orchestrator) assemble(c models.SearchCriteria, results []models.SourceResult) *models.AggregationOutcome {
	out := &models.AggregationOutcome{
		Kind:    Classify(results),
		Sources: make([]models.SourceSummary, 0, len(results)),
	}
	out.Partial = out.Kind == models.OutcomePartial

	var cutoff time.Time
	if c.PostedWithinDays > 0 {
		cutoff = o.now().AddDate(0, 0, -c.PostedWithinDays)
	}

	var collected []models.RawListing
	seen := make(map[string]struct{})
	keyDuplicates := 0
	for _, r := range results {
		out.Sources = append(out.Sources, models.SourceSummary{
			Source:     r.Source,
			Status:     r.Status,
			Count:      len(r.Listings),
			Attempts:   r.Attempts,
			DurationMs: r.Duration.Milliseconds(),
		})
		if r.Err != nil {
			out.Errors = append(out.Errors, *r.Err)
			continue
		}
		out.TotalFound += len(r.Listings)
		for _, l := range r.Listings {
			if err := l.Validate(); err != nil {
				out.InvalidDropped++
				o.logger.Debug("Dropping invalid listing", zap.String("source", r.Source), zap.Error(err))
				continue
			}
			if !keep(l, c, cutoff) {
				out.Filtered++
				continue
			}
			if _, dup := seen[l.Key()]; dup {
				keyDuplicates++
				continue
			}
			seen[l.Key()] = struct{}{}
			collected = append(collected, l)
		}
	}

	p := o.Pipeline()
	unique, removed := p.Dedup.Merge(collected)
	out.UniqueAfterDedup = len(unique)
	out.DuplicatesRemoved = removed + keyDuplicates

	ranked := p.Scorer.Rank(unique, c)
	if limit := c.EffectiveMaxResults(); len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out.Listings = ranked
	return out
}

// keep applies the job-type and posted-within filters. Listings without the relevant tag or
// date are kept.
func keep(l models.RawListing, c models.SearchCriteria, cutoff time.Time) bool {
	if c.JobType != "" && l.JobType != "" && l.JobType != c.JobType {
		return false
	}
	if !cutoff.IsZero() && !l.PostedAt.IsZero() && l.PostedAt.Before(cutoff) {
		return false
	}
	return true
}

func outcomeError(o *models.AggregationOutcome) error {
	failed := o.FailedSources()
	switch o.Kind {
	case models.OutcomeRateLimited:
		return apperr.New(apperr.KindRateLimited, "sources are rate limiting or blocking requests", failed...)
	case models.OutcomeTimeout:
		return apperr.New(apperr.KindTimeout, "search deadline exceeded before any source responded", failed...)
	case models.OutcomeSourceFailure:
		return apperr.New(apperr.KindSourceFailure, "all sources failed", failed...)
	}
	return nil
}
