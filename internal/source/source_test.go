package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hyperjump/kyujin/internal/models"
)

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(NewStatic("static", nil), NewAdzuna(AdzunaConfig{}, nil))
	found, unknown := r.Resolve([]string{"Adzuna", "indeed", "static"})
	if len(found) != 2 || found[0].Name() != AdzunaName || found[1].Name() != StaticName {
		t.Errorf("found = %v", found)
	}
	if len(unknown) != 1 || unknown[0] != "indeed" {
		t.Errorf("unknown = %v, want [indeed]", unknown)
	}
	if names := r.Names(); strings.Join(names, ",") != "adzuna,static" {
		t.Errorf("Names() = %v", names)
	}
}

func TestAdzuna_Fetch(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/de/search/1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery.Store(r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"count": 2, "results": [
			{"id": "101", "title": "Go Engineer", "company": {"display_name": "Acme"},
			 "location": {"display_name": "Berlin"}, "salary_min": 60000, "salary_max": 80000,
			 "redirect_url": "https://adzuna.example/101", "created": "2024-05-01T10:00:00Z",
			 "contract_time": "full_time", "contract_type": "permanent"},
			{"id": "102", "title": "Go Contractor", "company": {"display_name": "Beta"},
			 "location": {"display_name": "Hamburg"}, "redirect_url": "https://adzuna.example/102",
			 "created": "2024-05-02T10:00:00Z", "contract_time": "full_time", "contract_type": "contract"}
		]}`)
	}))
	defer srv.Close()

	a := NewAdzuna(AdzunaConfig{AppID: "id", AppKey: "key", Country: "de", BaseURL: srv.URL}, srv.Client())
	listings, err := a.Fetch(context.Background(), Params{
		Query: "go", Location: "berlin", JobType: models.JobTypeFullTime, MaxResults: 10, PostedWithinDays: 7,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("got %d listings, want 2", len(listings))
	}

	q := gotQuery.Load().(url.Values)
	for key, want := range map[string]string{
		"what": "go", "where": "berlin", "max_days_old": "7", "full_time": "1", "results_per_page": "10",
	} {
		if got := q[key]; len(got) != 1 || got[0] != want {
			t.Errorf("query param %s = %v, want %s", key, got, want)
		}
	}

	first := listings[0]
	if first.Source != AdzunaName || first.ID != "101" || first.Company != "Acme" {
		t.Errorf("unexpected listing %+v", first)
	}
	if first.Salary == nil || first.Salary.Currency != "EUR" || first.Salary.Period != models.PayYearly {
		t.Errorf("salary = %+v", first.Salary)
	}
	if first.JobType != models.JobTypeFullTime || listings[1].JobType != models.JobTypeContract {
		t.Errorf("job types = %s, %s", first.JobType, listings[1].JobType)
	}
	if !first.PostedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("PostedAt = %v", first.PostedAt)
	}
	if err := first.Validate(); err != nil {
		t.Errorf("listing invalid: %v", err)
	}
	if listings[1].Salary != nil {
		t.Error("listing without salary figures must have nil salary")
	}
}

func TestAdzuna_StatusErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "slow down")
	}))
	defer srv.Close()

	a := NewAdzuna(AdzunaConfig{AppID: "id", AppKey: "key", BaseURL: srv.URL}, srv.Client())
	_, err := a.Fetch(context.Background(), Params{Query: "go"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusTooManyRequests || se.RetryAfter != 12*time.Second {
		t.Errorf("StatusError = %+v", se)
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "too many requests") {
		t.Errorf("error text %q lacks status", err.Error())
	}
}

func TestAdzuna_MissingCredentials(t *testing.T) {
	_, err := NewAdzuna(AdzunaConfig{}, nil).Fetch(context.Background(), Params{Query: "go"})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Fetch() error = %v, want ErrMissingCredentials", err)
	}
}

const careerPageHTML = `<html><head>
<script type="application/ld+json">{"@context": "https://schema.org", "@type": "Organization", "name": "Acme"}</script>
<script type="application/ld+json">{"@context": "https://schema.org", "@graph": [
  {"@type": "JobPosting", "title": "Senior Go Engineer", "identifier": {"@type": "PropertyValue", "value": "GO-1"},
   "description": "<p>Build <b>distributed</b> systems in Go.</p>", "datePosted": "2024-04-30",
   "employmentType": ["FULL_TIME"], "url": "https://acme.example/jobs/go-1",
   "hiringOrganization": {"@type": "Organization", "name": "Acme Corp"},
   "jobLocation": {"@type": "Place", "address": {"addressLocality": "Berlin", "addressCountry": {"name": "DE"}}},
   "baseSalary": {"@type": "MonetaryAmount", "currency": "eur",
     "value": {"@type": "QuantitativeValue", "minValue": 70000, "maxValue": 90000, "unitText": "YEAR"}}},
  {"@type": "JobPosting", "title": "Office Manager", "jobLocationType": "TELECOMMUTE",
   "baseSalary": {"currency": "EUR", "value": {"value": 25, "unitText": "HOUR"}}}
]}</script>
<script type="application/ld+json">not json</script>
</head><body></body></html>`

func TestExtractJobPostings(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(careerPageHTML))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	page := CareerPage{Company: "Acme", URL: "https://acme.example/careers"}
	listings := ExtractJobPostings(doc, page, now)
	if len(listings) != 2 {
		t.Fatalf("got %d postings, want 2", len(listings))
	}

	goJob := listings[0]
	if goJob.ID != "GO-1" || goJob.Company != "Acme Corp" || goJob.Location != "Berlin, DE" {
		t.Errorf("unexpected posting %+v", goJob)
	}
	if goJob.Description != "Build distributed systems in Go." {
		t.Errorf("Description = %q", goJob.Description)
	}
	if goJob.JobType != models.JobTypeFullTime {
		t.Errorf("JobType = %q", goJob.JobType)
	}
	if goJob.Salary == nil || goJob.Salary.Min != 70000 || goJob.Salary.Currency != "EUR" || goJob.Salary.Period != models.PayYearly {
		t.Errorf("Salary = %+v", goJob.Salary)
	}
	if err := goJob.Validate(); err != nil {
		t.Errorf("posting invalid: %v", err)
	}

	office := listings[1]
	if office.Location != "Remote" || office.URL != page.URL || office.Company != "Acme" || office.ID == "" {
		t.Errorf("unexpected fallback fields %+v", office)
	}
	if office.Salary == nil || office.Salary.Period != models.PayHourly || office.Salary.Min != 25 {
		t.Errorf("Salary = %+v", office.Salary)
	}
}

func TestCareerPages_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/careers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, careerPageHTML)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked by captcha", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	t.Run("skips failing pages", func(t *testing.T) {
		c := NewCareerPages([]CareerPage{
			{Company: "Acme", URL: srv.URL + "/careers"},
			{Company: "Other", URL: srv.URL + "/broken"},
		}, srv.Client(), nil)
		listings, err := c.Fetch(context.Background(), Params{Query: "go engineer", MaxResults: 10})
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if len(listings) != 1 || listings[0].Title != "Senior Go Engineer" {
			t.Errorf("listings = %+v", listings)
		}
	})

	t.Run("fails when every page fails", func(t *testing.T) {
		c := NewCareerPages([]CareerPage{{Company: "Other", URL: srv.URL + "/broken"}}, srv.Client(), nil)
		_, err := c.Fetch(context.Background(), Params{Query: "go"})
		if err == nil || !strings.Contains(err.Error(), "captcha") {
			t.Errorf("Fetch() error = %v, want captcha failure", err)
		}
	})
}

func TestStatic_Fetch(t *testing.T) {
	now := time.Now().UTC()
	s := NewStatic("", []models.RawListing{
		{ID: "1", Title: "Go Engineer", Location: "Berlin", URL: "https://x.example/1", PostedAt: now.AddDate(0, 0, -2)},
		{ID: "2", Title: "Go Developer", Location: "Remote", URL: "https://x.example/2", PostedAt: now.AddDate(0, 0, -40)},
		{ID: "3", Title: "Barista", Location: "Berlin", URL: "https://x.example/3"},
	})

	tests := []struct {
		name   string
		params Params
		want   []string
	}{
		{"query filter", Params{Query: "go"}, []string{"1", "2"}},
		{"location keeps remote", Params{Query: "go", Location: "paris"}, []string{"2"}},
		{"posted within", Params{Query: "go", PostedWithinDays: 30}, []string{"1"}},
		{"max results", Params{Query: "go", MaxResults: 1}, []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Fetch(context.Background(), tt.params)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, l := range got {
				if l.Source != StaticName || l.ScrapedAt.IsZero() {
					t.Errorf("listing %s not stamped: %+v", l.ID, l)
				}
				ids = append(ids, l.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.yaml")
	data := `- id: "a1"
  title: Go Engineer
  company: Acme
  location: Berlin
  url: https://acme.example/a1
  job_type: Full-time
  posted_at: 2024-05-01T00:00:00Z
  salary:
    min: 50
    max: 60
    currency: EUR
    period: hourly
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadStatic("fixtures", path)
	if err != nil {
		t.Fatalf("LoadStatic() error = %v", err)
	}
	got, err := s.Fetch(context.Background(), Params{Query: "engineer"})
	if err != nil || len(got) != 1 {
		t.Fatalf("Fetch() = %v, %v", got, err)
	}
	l := got[0]
	if l.Source != "fixtures" || l.JobType != models.JobTypeFullTime || l.Salary.Period != models.PayHourly {
		t.Errorf("unexpected listing %+v", l)
	}

	if _, err := LoadStatic("x", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRateLimited_BacksOffAfter429(t *testing.T) {
	var calls int32
	inner := FuncAdapter{SourceName: "board", FetchFunc: func(ctx context.Context, p Params) ([]models.RawListing, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &StatusError{Source: "board", StatusCode: http.StatusTooManyRequests, RetryAfter: time.Minute}
	}}
	rl := WithRateLimit(inner, RateLimitConfig{RequestsPerSecond: 100, Burst: 10})
	now := time.Now()
	rl.now = func() time.Time { return now }

	if _, err := rl.Fetch(context.Background(), Params{}); err == nil {
		t.Fatal("expected upstream error")
	}
	_, err := rl.Fetch(context.Background(), Params{})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("second Fetch() error = %v, want rate limited", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("upstream called %d times during backoff, want 1", calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := rl.Fetch(context.Background(), Params{}); err == nil {
		t.Fatal("expected upstream error after backoff")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("upstream not called after backoff elapsed")
	}
}

func TestRateLimited_WaitHonorsContext(t *testing.T) {
	inner := FuncAdapter{SourceName: "board", FetchFunc: func(ctx context.Context, p Params) ([]models.RawListing, error) {
		return nil, nil
	}}
	rl := WithRateLimit(inner, RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	if _, err := rl.Fetch(context.Background(), Params{}); err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rl.Fetch(ctx, Params{})
	if !errors.Is(err, ErrThrottled) {
		t.Errorf("Fetch() error = %v, want ErrThrottled", err)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if _, err := rl.Fetch(cancelled, Params{}); errors.Is(err, ErrThrottled) || !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch(cancelled) error = %v, want context.Canceled", err)
	}
}
