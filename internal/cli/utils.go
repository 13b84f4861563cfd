// Package cli provides CLI output helpers for Kyujin.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperjump/kyujin/internal/models"
	"github.com/hyperjump/kyujin/internal/search"
	"github.com/hyperjump/kyujin/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per job.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

// WriteSearchResults writes a search response to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *search.Response, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		return writeSearchResultsCompact(w, response)
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSearchResultsText(w io.Writer, response *search.Response) {
	md := response.Metadata
	cached := ""
	if md.Cached {
		cached = ", cached"
	}
	fmt.Fprintf(w, "\nFound %d jobs in %dms (%d fetched, %d duplicates removed, outcome %s%s)\n",
		md.Counts.Returned, md.Timings.TotalMs, md.Counts.TotalFound, md.Counts.DuplicatesRemoved, md.Outcome, cached)
	for _, warning := range response.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	fmt.Fprintln(w)
	for i, job := range response.Jobs {
		writeOneJob(w, i+1, job)
	}
}

func writeOneJob(w io.Writer, rank int, job search.Job) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	b := job.Breakdown
	fmt.Fprintf(w, "#%d | Score: %.1f (Location: %.0f, Title: %.0f, Salary: %.0f, Source: %.0f)\n",
		rank, job.Score, b.Location.Score, b.Title.Score, b.Salary.Score, b.Source.Score)
	fmt.Fprintf(w, "%s\n", job.Title)
	if job.Company != "" || job.Location != "" {
		fmt.Fprintf(w, "%s\n", strings.Join(nonEmpty(job.Company, job.Location), " · "))
	}
	if s := formatSalary(job.Salary); s != "" {
		fmt.Fprintf(w, "Salary: %s\n", s)
	}
	fmt.Fprintf(w, "Source: %s | %s\n", job.Source, job.URL)
	if job.Snippet != "" {
		fmt.Fprintf(w, "\n%s\n", job.Snippet)
	}
	fmt.Fprintln(w)
}

func writeSearchResultsCompact(w io.Writer, response *search.Response) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, job := range response.Jobs {
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%s\t%s\t%s\n",
			job.Score, job.Source, utils.Truncate(job.Title, 60), utils.Truncate(job.Company, 30), utils.Truncate(job.Location, 30), job.URL)
	}
	return tw.Flush()
}

// WriteMetrics writes search history records to w.
func WriteMetrics(w io.Writer, metrics []models.SearchMetric, format OutputFormat) error {
	if format == OutputJSON {
		if metrics == nil {
			metrics = []models.SearchMetric{}
		}
		return writeJSON(w, metrics)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tQUERY\tOUTCOME\tLISTINGS\tDURATION\tCACHED\tFAILED")
	for _, m := range metrics {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%t\t%s\n",
			m.Timestamp.Local().Format(time.DateTime),
			utils.Truncate(m.Query, 40),
			m.Outcome,
			m.ListingsFound,
			m.Duration.Round(time.Millisecond),
			m.Cached,
			strings.Join(m.FailedSources, ","),
		)
	}
	return tw.Flush()
}

func formatSalary(s *models.Salary) string {
	if s == nil {
		return ""
	}
	var amount string
	switch {
	case s.Min > 0 && s.Max > 0 && s.Min != s.Max:
		amount = fmt.Sprintf("%.0f-%.0f", s.Min, s.Max)
	case s.Min > 0:
		amount = fmt.Sprintf("%.0f", s.Min)
	case s.Max > 0:
		amount = fmt.Sprintf("up to %.0f", s.Max)
	default:
		return ""
	}
	return strings.Join(nonEmpty(amount, s.Currency, string(s.Period)), " ")
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
