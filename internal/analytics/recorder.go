// Package analytics records one immutable metric per search attempt without ever blocking or
// failing the search that produced it.
package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kyujin/internal/models"
	"go.uber.org/zap"
)

// DefaultBufferSize is the number of metrics the recorder queues before dropping.
const DefaultBufferSize = 256

// sinkTimeout bounds a single append so a hung sink cannot stall the worker forever.
const sinkTimeout = 5 * time.Second

// Sink persists metrics. Implementations must tolerate concurrent appends.
type Sink interface {
	Append(ctx context.Context, m models.SearchMetric) error
	Close() error
}

// Reader lists stored metrics, newest first.
type Reader interface {
	List(ctx context.Context, since time.Time, limit int) ([]models.SearchMetric, error)
}

// Recorder queues metrics and appends them to its sinks from a background worker.
type Recorder struct {
	sinks  []Sink
	queue  chan models.SearchMetric
	logger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

// NewRecorder starts a recorder writing to sinks. bufferSize <= 0 uses DefaultBufferSize.
func NewRecorder(logger *zap.Logger, bufferSize int, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	r := &Recorder{
		sinks:  sinks,
		queue:  make(chan models.SearchMetric, bufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues m and returns immediately. When the queue is full or the recorder is closed
// the metric is dropped and logged.
func (r *Recorder) Record(m models.SearchMetric) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Debug("Recorder closed, dropping metric", zap.String("id", m.ID))
		return
	}
	select {
	case r.queue <- m:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("Analytics queue full, dropping metric",
			zap.String("id", m.ID),
			zap.Int64("dropped", n),
		)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for m := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			if err := s.Append(ctx, m); err != nil {
				r.logger.Warn("Analytics sink append failed",
					zap.String("id", m.ID),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}

// Close stops accepting metrics, drains the queue until ctx ends, then closes the sinks.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		r.logger.Warn("Analytics drain interrupted", zap.Int("pending", len(r.queue)))
		return ctx.Err()
	}
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			r.logger.Warn("Analytics sink close failed", zap.Error(err))
		}
	}
	return nil
}

// Dropped returns the number of metrics dropped because the queue was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// NewMetric builds the metric for one search attempt.
func NewMetric(c models.SearchCriteria, outcome *models.AggregationOutcome, duration time.Duration, cached bool, kind string) models.SearchMetric {
	m := models.SearchMetric{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Query:     c.Query,
		Location:  c.Location,
		Sources:   append([]string(nil), c.Sources...),
		Duration:  duration,
		Cached:    cached,
		Outcome:   kind,
	}
	if outcome != nil {
		m.ListingsFound = len(outcome.Listings)
		m.SuccessfulSources = outcome.SucceededSources()
		m.FailedSources = outcome.FailedSources()
		m.ErrorCount = len(outcome.Errors)
	}
	return m
}
