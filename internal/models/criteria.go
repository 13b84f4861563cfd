// Package models defines core data structures for search criteria, listings, scores, and outcomes.
package models

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/kyujin/internal/apperr"
)

const (
	// MaxPostedWithinDays bounds the "posted within N days" filter.
	MaxPostedWithinDays = 365
	// MaxResultsLimit bounds the number of listings a single search may return.
	MaxResultsLimit = 100
	// DefaultMaxResults is used when the caller leaves MaxResults unset.
	DefaultMaxResults = 50
)

// JobType is an optional employment-type filter and listing tag.
type JobType string

const (
	JobTypeFullTime   JobType = "full_time"
	JobTypePartTime   JobType = "part_time"
	JobTypeContract   JobType = "contract"
	JobTypeInternship JobType = "internship"
	JobTypeTemporary  JobType = "temporary"
)

// Valid reports whether t is empty or one of the known job types.
func (t JobType) Valid() bool {
	switch t {
	case "", JobTypeFullTime, JobTypePartTime, JobTypeContract, JobTypeInternship, JobTypeTemporary:
		return true
	}
	return false
}

// ParseJobType maps free-form source tags ("Full-time", "permanent", "CONTRACTOR") to a JobType.
// Unknown tags map to "".
func ParseJobType(s string) JobType {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case "full_time", "fulltime", "permanent":
		return JobTypeFullTime
	case "part_time", "parttime":
		return JobTypePartTime
	case "contract", "contractor", "freelance":
		return JobTypeContract
	case "internship", "intern":
		return JobTypeInternship
	case "temporary", "temp", "seasonal":
		return JobTypeTemporary
	}
	return ""
}

// SalaryRange is the salary band a searcher is looking for, in annual terms.
type SalaryRange struct {
	Min      float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max      float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Currency string  `json:"currency,omitempty" yaml:"currency,omitempty"`
}

// Bounds returns the band with open ends filled in: an unset Min is 0 and an unset Max is
// +Inf. ok is false when neither bound is set.
func (r *SalaryRange) Bounds() (lo, hi float64, ok bool) {
	if r == nil || (r.Min <= 0 && r.Max <= 0) {
		return 0, 0, false
	}
	lo, hi = math.Max(r.Min, 0), r.Max
	if hi <= 0 {
		hi = math.Inf(1)
	}
	return lo, hi, true
}

// SearchCriteria is a search request. It is owned by the caller and passed by value.
type SearchCriteria struct {
	Query              string       `json:"query"`
	Location           string       `json:"location,omitempty"`
	PreferredLocations []string     `json:"preferredLocations,omitempty"`
	Sources            []string     `json:"sources,omitempty"`
	JobType            JobType      `json:"jobType,omitempty"`
	Salary             *SalaryRange `json:"salary,omitempty"`
	IncludeKeywords    []string     `json:"includeKeywords,omitempty"`
	ExcludeKeywords    []string     `json:"excludeKeywords,omitempty"`
	PostedWithinDays   int          `json:"postedWithinDays,omitempty"`
	MaxResults         int          `json:"maxResults,omitempty"`
	TimeoutMs          int          `json:"timeoutMs,omitempty"`
}

// Validate checks the bounds the search core relies on.
func (c SearchCriteria) Validate() error {
	if strings.TrimSpace(c.Query) == "" {
		return apperr.Validation("query is required")
	}
	if c.PostedWithinDays < 0 || c.PostedWithinDays > MaxPostedWithinDays {
		return apperr.Validation("postedWithinDays must be between 0 and %d", MaxPostedWithinDays)
	}
	if c.MaxResults < 0 || c.MaxResults > MaxResultsLimit {
		return apperr.Validation("maxResults must be between 0 and %d", MaxResultsLimit)
	}
	if c.TimeoutMs < 0 {
		return apperr.Validation("timeoutMs must not be negative")
	}
	if !c.JobType.Valid() {
		return apperr.Validation("unknown jobType %q", c.JobType)
	}
	if c.Salary != nil {
		if c.Salary.Min < 0 || c.Salary.Max < 0 {
			return apperr.Validation("salary bounds must not be negative")
		}
		if c.Salary.Max > 0 && c.Salary.Min > c.Salary.Max {
			return apperr.Validation("salary min must not exceed max")
		}
	}
	return nil
}

// Normalize returns a copy with case-folded, whitespace-collapsed strings and sorted,
// de-duplicated lists, so semantically identical criteria compare equal.
func (c SearchCriteria) Normalize() SearchCriteria {
	out := c
	out.Query = foldSpace(c.Query)
	out.Location = foldSpace(c.Location)
	out.PreferredLocations = normalizeList(c.PreferredLocations)
	out.Sources = normalizeList(c.Sources)
	out.IncludeKeywords = normalizeList(c.IncludeKeywords)
	out.ExcludeKeywords = normalizeList(c.ExcludeKeywords)
	out.JobType = JobType(strings.ToLower(strings.TrimSpace(string(c.JobType))))
	if c.Salary != nil {
		s := *c.Salary
		s.Currency = strings.ToUpper(strings.TrimSpace(s.Currency))
		if s.Min <= 0 && s.Max <= 0 {
			out.Salary = nil
		} else {
			out.Salary = &s
		}
	}
	return out
}

// EffectiveMaxResults returns MaxResults clamped to [1, MaxResultsLimit], defaulting when unset.
func (c SearchCriteria) EffectiveMaxResults() int {
	switch {
	case c.MaxResults <= 0:
		return DefaultMaxResults
	case c.MaxResults > MaxResultsLimit:
		return MaxResultsLimit
	}
	return c.MaxResults
}

// Timeout returns the per-search timeout bounded by max; fallback applies when unset.
func (c SearchCriteria) Timeout(fallback, max time.Duration) time.Duration {
	d := time.Duration(c.TimeoutMs) * time.Millisecond
	if d <= 0 {
		d = fallback
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

// foldSpace lowercases s and collapses runs of whitespace into single spaces.
func foldSpace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = foldSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
