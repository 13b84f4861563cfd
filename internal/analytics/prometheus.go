package analytics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperjump/kyujin/internal/models"
)

const metricsNamespace = "kyujin"

// Metrics exposes search and per-source counters to Prometheus. It is both a Sink for
// search metrics and an observer of individual source results.
type Metrics struct {
	gatherer prometheus.Gatherer

	SearchesTotal      *prometheus.CounterVec
	SearchDuration     *prometheus.HistogramVec
	ListingsReturned   prometheus.Histogram
	SourceFetchesTotal *prometheus.CounterVec
	SourceDuration     *prometheus.HistogramVec
	SourceListings     *prometheus.CounterVec
	SourceAttempts     *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics on reg. A nil reg uses a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "searches_total",
				Help:      "Total number of searches by outcome and cache state",
			},
			[]string{"outcome", "cached"},
		),
		SearchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "search_duration_seconds",
				Help:      "End-to-end search duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~41s
			},
			[]string{"cached"},
		),
		ListingsReturned: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "search_listings_returned",
				Help:      "Number of listings returned per search",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
			},
		),
		SourceFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "source",
				Name:      "fetches_total",
				Help:      "Total number of source fetches by status",
			},
			[]string{"source", "status"},
		),
		SourceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "source",
				Name:      "fetch_duration_seconds",
				Help:      "Source fetch duration in seconds, retries included",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"source"},
		),
		SourceListings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "source",
				Name:      "listings_total",
				Help:      "Total number of raw listings returned by each source",
			},
			[]string{"source"},
		),
		SourceAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "source",
				Name:      "attempts_total",
				Help:      "Total number of fetch attempts per source",
			},
			[]string{"source"},
		),
	}
}

// ObserveSource records one source result from a fan-out.
func (m *Metrics) ObserveSource(r models.SourceResult) {
	m.SourceFetchesTotal.WithLabelValues(r.Source, string(r.Status)).Inc()
	m.SourceDuration.WithLabelValues(r.Source).Observe(r.Duration.Seconds())
	m.SourceListings.WithLabelValues(r.Source).Add(float64(len(r.Listings)))
	if r.Attempts > 0 {
		m.SourceAttempts.WithLabelValues(r.Source).Add(float64(r.Attempts))
	}
}

// Append records a search metric.
func (m *Metrics) Append(_ context.Context, sm models.SearchMetric) error {
	cached := "false"
	if sm.Cached {
		cached = "true"
	}
	m.SearchesTotal.WithLabelValues(sm.Outcome, cached).Inc()
	m.SearchDuration.WithLabelValues(cached).Observe(sm.Duration.Seconds())
	m.ListingsReturned.Observe(float64(sm.ListingsFound))
	return nil
}

// Close is a no-op.
func (m *Metrics) Close() error { return nil }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
