package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hyperjump/kyujin/internal/models"
	"gopkg.in/yaml.v3"
)

// StaticName is the default source identifier of the fixture adapter.
const StaticName = "static"

// Static serves a fixed set of listings, filtered by query and location. It backs demo
// configurations and tests.
type Static struct {
	name     string
	listings []models.RawListing
	now      func() time.Time
}

// NewStatic returns a fixture adapter. Listings without a source are stamped with name.
func NewStatic(name string, listings []models.RawListing) *Static {
	if name == "" {
		name = StaticName
	}
	out := make([]models.RawListing, len(listings))
	for i, l := range listings {
		if l.Source == "" {
			l.Source = name
		}
		out[i] = l
	}
	return &Static{name: name, listings: out, now: time.Now}
}

// Name implements Adapter.
func (s *Static) Name() string { return s.name }

// Fetch returns copies of the listings matching p.
func (s *Static) Fetch(ctx context.Context, p Params) ([]models.RawListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scraped := s.now().UTC()
	cutoff := time.Time{}
	if p.PostedWithinDays > 0 {
		cutoff = scraped.AddDate(0, 0, -p.PostedWithinDays)
	}
	var out []models.RawListing
	for _, l := range s.listings {
		if !matchesQuery(l, p.Query) || !matchesLocation(l, p.Location) {
			continue
		}
		if !cutoff.IsZero() && !l.PostedAt.IsZero() && l.PostedAt.Before(cutoff) {
			continue
		}
		if l.Salary != nil {
			salary := *l.Salary
			l.Salary = &salary
		}
		if l.ScrapedAt.IsZero() {
			l.ScrapedAt = scraped
		}
		out = append(out, l)
	}
	return capResults(out, p.MaxResults), nil
}

// fixture is the on-disk form of a static listing.
type fixture struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Company     string    `yaml:"company"`
	Location    string    `yaml:"location"`
	Description string    `yaml:"description"`
	URL         string    `yaml:"url"`
	Source      string    `yaml:"source"`
	JobType     string    `yaml:"job_type"`
	PostedAt    time.Time `yaml:"posted_at"`
	Salary      *struct {
		Min      float64 `yaml:"min"`
		Max      float64 `yaml:"max"`
		Currency string  `yaml:"currency"`
		Period   string  `yaml:"period"`
	} `yaml:"salary"`
}

// LoadStatic reads a YAML (or JSON) fixture file holding a list of listings.
func LoadStatic(name, path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	var fixtures []fixture
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file: %w", err)
	}
	listings := make([]models.RawListing, 0, len(fixtures))
	for _, f := range fixtures {
		l := models.RawListing{
			ID:          f.ID,
			Title:       f.Title,
			Company:     f.Company,
			Location:    f.Location,
			Description: f.Description,
			URL:         f.URL,
			Source:      f.Source,
			JobType:     models.ParseJobType(f.JobType),
			PostedAt:    f.PostedAt,
		}
		if f.Salary != nil {
			l.Salary = &models.Salary{
				Min:      f.Salary.Min,
				Max:      f.Salary.Max,
				Currency: f.Salary.Currency,
				Period:   models.PayPeriod(f.Salary.Period),
			}
		}
		listings = append(listings, l)
	}
	return NewStatic(name, listings), nil
}
