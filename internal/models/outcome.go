package models

import "time"

// SourceStatus is the discriminant of a SourceResult.
type SourceStatus string

const (
	SourceOK          SourceStatus = "ok"
	SourceFailed      SourceStatus = "failed"
	SourceTimeout     SourceStatus = "timeout"
	SourceRateLimited SourceStatus = "rate_limited"
)

// Error codes attached to SourceError.Code.
const (
	CodeTimeout       = "timeout"
	CodeRateLimited   = "rate_limited"
	CodeFetchFailed   = "fetch_failed"
	CodeUnknownSource = "unknown_source"
)

// SourceError is a structured per-source failure.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SourceResult is what one source produced during a fan-out: listings on success,
// a SourceError otherwise. Exactly one of Listings or Err is meaningful, selected by Status.
type SourceResult struct {
	Source   string
	Status   SourceStatus
	Listings []RawListing
	Err      *SourceError
	Attempts int
	Duration time.Duration
}

// OK reports whether the source succeeded.
func (r SourceResult) OK() bool { return r.Status == SourceOK }

// SourceSummary is the per-source status reported alongside an outcome.
type SourceSummary struct {
	Source     string       `json:"source"`
	Status     SourceStatus `json:"status"`
	Count      int          `json:"count"`
	Attempts   int          `json:"attempts,omitempty"`
	DurationMs int64        `json:"durationMs"`
}

// OutcomeKind is the aggregate classification of a fan-out.
type OutcomeKind string

const (
	OutcomeFull          OutcomeKind = "full"
	OutcomePartial       OutcomeKind = "partial"
	OutcomeSourceFailure OutcomeKind = "source_failure"
	OutcomeRateLimited   OutcomeKind = "rate_limited"
	OutcomeTimeout       OutcomeKind = "timeout"
)

// Succeeded reports whether the outcome carries usable results.
func (k OutcomeKind) Succeeded() bool {
	return k == OutcomeFull || k == OutcomePartial
}

// AggregationOutcome is the deduplicated, scored result of one fan-out plus diagnostics.
type AggregationOutcome struct {
	Kind              OutcomeKind     `json:"kind"`
	Listings          []ScoredListing `json:"listings"`
	Sources           []SourceSummary `json:"sources"`
	Errors            []SourceError   `json:"errors,omitempty"`
	TotalFound        int             `json:"totalFound"`
	UniqueAfterDedup  int             `json:"uniqueAfterDedup"`
	DuplicatesRemoved int             `json:"duplicatesRemoved"`
	InvalidDropped    int             `json:"invalidDropped,omitempty"`
	Filtered          int             `json:"filtered,omitempty"`
	Partial           bool            `json:"partial"`
	Duration          time.Duration   `json:"duration"`
	CompletedAt       time.Time       `json:"completedAt"`
}

// SucceededSources returns the names of sources that returned listings.
func (o *AggregationOutcome) SucceededSources() []string {
	var out []string
	for _, s := range o.Sources {
		if s.Status == SourceOK {
			out = append(out, s.Source)
		}
	}
	return out
}

// FailedSources returns the names of sources that failed.
func (o *AggregationOutcome) FailedSources() []string {
	var out []string
	for _, s := range o.Sources {
		if s.Status != SourceOK {
			out = append(out, s.Source)
		}
	}
	return out
}

// Clone returns a deep copy so cached outcomes are never shared with a request.
func (o *AggregationOutcome) Clone() *AggregationOutcome {
	if o == nil {
		return nil
	}
	c := *o
	c.Listings = make([]ScoredListing, len(o.Listings))
	for i, l := range o.Listings {
		if l.Salary != nil {
			s := *l.Salary
			l.Salary = &s
		}
		c.Listings[i] = l
	}
	c.Sources = append([]SourceSummary(nil), o.Sources...)
	c.Errors = append([]SourceError(nil), o.Errors...)
	return &c
}

// SearchMetric is one immutable analytics record per search attempt.
type SearchMetric struct {
	ID                string        `json:"id"`
	Timestamp         time.Time     `json:"timestamp"`
	Query             string        `json:"query"`
	Location          string        `json:"location,omitempty"`
	Sources           []string      `json:"sources"`
	Duration          time.Duration `json:"duration"`
	ListingsFound     int           `json:"listingsFound"`
	SuccessfulSources []string      `json:"successfulSources"`
	FailedSources     []string      `json:"failedSources"`
	ErrorCount        int           `json:"errorCount"`
	Cached            bool          `json:"cached"`
	Outcome           string        `json:"outcome"`
}
