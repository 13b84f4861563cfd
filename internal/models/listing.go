package models

import (
	"fmt"
	"net/url"
	"time"
)

// PayPeriod is the period a listing's salary figures are quoted in.
type PayPeriod string

const (
	PayHourly  PayPeriod = "hourly"
	PayDaily   PayPeriod = "daily"
	PayWeekly  PayPeriod = "weekly"
	PayMonthly PayPeriod = "monthly"
	PayYearly  PayPeriod = "yearly"
)

// Annualize converts amount quoted per p into a yearly figure.
// An empty or unknown period is treated as yearly.
func (p PayPeriod) Annualize(amount float64) float64 {
	switch p {
	case PayHourly:
		return amount * 2080
	case PayDaily:
		return amount * 260
	case PayWeekly:
		return amount * 52
	case PayMonthly:
		return amount * 12
	default:
		return amount
	}
}

// Salary is the structured pay data a source attached to a listing.
type Salary struct {
	Min      float64   `json:"min,omitempty"`
	Max      float64   `json:"max,omitempty"`
	Currency string    `json:"currency,omitempty"`
	Period   PayPeriod `json:"period,omitempty"`
}

// AnnualRange returns the annualized band. ok is false when the salary carries no figures.
func (s *Salary) AnnualRange() (lo, hi float64, ok bool) {
	if s == nil || (s.Min <= 0 && s.Max <= 0) {
		return 0, 0, false
	}
	lo, hi = s.Min, s.Max
	if lo <= 0 {
		lo = hi
	}
	if hi <= 0 {
		hi = lo
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return s.Period.Annualize(lo), s.Period.Annualize(hi), true
}

// RawListing is one posting as returned by a source adapter.
type RawListing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Salary      *Salary   `json:"salary,omitempty"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	JobType     JobType   `json:"jobType,omitempty"`
	PostedAt    time.Time `json:"postedAt"`
	ScrapedAt   time.Time `json:"scrapedAt"`
}

// Key returns the (source, id) identity of the listing.
func (l RawListing) Key() string {
	return l.Source + ":" + l.ID
}

// Validate checks the invariants every adapter must honor.
func (l RawListing) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("listing has no id")
	}
	if l.Source == "" {
		return fmt.Errorf("listing %s has no source", l.ID)
	}
	if l.Title == "" {
		return fmt.Errorf("listing %s has no title", l.Key())
	}
	u, err := url.Parse(l.URL)
	if err != nil {
		return fmt.Errorf("listing %s has invalid url: %w", l.Key(), err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("listing %s has invalid url %q", l.Key(), l.URL)
	}
	if !l.PostedAt.IsZero() && !l.ScrapedAt.IsZero() && l.PostedAt.After(l.ScrapedAt.Add(24*time.Hour)) {
		return fmt.Errorf("listing %s posted after it was fetched", l.Key())
	}
	return nil
}

// ScoreComponent is one named factor of a listing's score.
type ScoreComponent struct {
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// NewScoreComponent builds a component from a raw sub-score and its weight.
func NewScoreComponent(score, weight float64) ScoreComponent {
	return ScoreComponent{Score: score, Weight: weight, Contribution: score * weight}
}

// ScoreBreakdown itemizes the four weighted factors behind a total score.
type ScoreBreakdown struct {
	Location ScoreComponent `json:"location"`
	Title    ScoreComponent `json:"title"`
	Salary   ScoreComponent `json:"salary"`
	Source   ScoreComponent `json:"source"`
}

// Total sums the weighted contributions.
func (b ScoreBreakdown) Total() float64 {
	return b.Location.Contribution + b.Title.Contribution + b.Salary.Contribution + b.Source.Contribution
}

// ScoredListing is a listing with its relevance score and breakdown attached.
type ScoredListing struct {
	RawListing
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}
