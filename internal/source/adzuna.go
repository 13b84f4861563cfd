package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/kyujin/internal/models"
)

const (
	// AdzunaName is the source identifier of the Adzuna adapter.
	AdzunaName = "adzuna"

	defaultAdzunaBaseURL = "https://api.adzuna.com/v1/api/jobs"
	adzunaMaxPageSize    = 50
	defaultAdzunaPages   = 2
	adzunaHTTPTimeout    = 15 * time.Second
)

// ErrMissingCredentials is returned by adapters that cannot run without credentials.
var ErrMissingCredentials = errors.New("source credentials not configured")

// AdzunaConfig configures the Adzuna job search API adapter.
type AdzunaConfig struct {
	AppID    string `yaml:"app_id"`
	AppKey   string `yaml:"app_key"`
	Country  string `yaml:"country"`   // "gb", "us", "de", ...
	BaseURL  string `yaml:"base_url"`  // default: https://api.adzuna.com/v1/api/jobs
	MaxPages int    `yaml:"max_pages"` // default: 2
}

// Adzuna fetches listings from the Adzuna public API.
type Adzuna struct {
	cfg    AdzunaConfig
	client *http.Client
	now    func() time.Time
}

// NewAdzuna returns an Adzuna adapter. client may be nil.
func NewAdzuna(cfg AdzunaConfig, client *http.Client) *Adzuna {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAdzunaBaseURL
	}
	if cfg.Country == "" {
		cfg.Country = "gb"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultAdzunaPages
	}
	if client == nil {
		client = &http.Client{Timeout: adzunaHTTPTimeout}
	}
	return &Adzuna{cfg: cfg, client: client, now: time.Now}
}

// Name implements Adapter.
func (a *Adzuna) Name() string { return AdzunaName }

type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// Fetch pages through the search endpoint until MaxResults listings are collected, the
// upstream runs dry, or MaxPages is reached.
func (a *Adzuna) Fetch(ctx context.Context, p Params) ([]models.RawListing, error) {
	if a.cfg.AppID == "" || a.cfg.AppKey == "" {
		return nil, fmt.Errorf("%s: %w", AdzunaName, ErrMissingCredentials)
	}
	want := p.MaxResults
	if want <= 0 {
		want = models.DefaultMaxResults
	}
	pageSize := min(want, adzunaMaxPageSize)

	var out []models.RawListing
	for page := 1; page <= a.cfg.MaxPages && len(out) < want; page++ {
		batch, err := a.fetchPage(ctx, p, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		out = append(out, batch...)
		if len(batch) < pageSize {
			break
		}
	}
	return capResults(out, want), nil
}

func (a *Adzuna) fetchPage(ctx context.Context, p Params, page, pageSize int) ([]models.RawListing, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.Country, page)

	params := url.Values{}
	params.Set("app_id", a.cfg.AppID)
	params.Set("app_key", a.cfg.AppKey)
	params.Set("results_per_page", strconv.Itoa(pageSize))
	params.Set("what", p.Query)
	if p.Location != "" {
		params.Set("where", p.Location)
	}
	if p.PostedWithinDays > 0 {
		params.Set("max_days_old", strconv.Itoa(p.PostedWithinDays))
	}
	switch p.JobType {
	case models.JobTypeFullTime:
		params.Set("full_time", "1")
	case models.JobTypePartTime:
		params.Set("part_time", "1")
	case models.JobTypeContract:
		params.Set("contract", "1")
	}
	params.Set("sort_by", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(AdzunaName, resp, body)
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	scraped := a.now().UTC()
	currency := adzunaCurrency(a.cfg.Country)
	listings := make([]models.RawListing, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		l := models.RawListing{
			ID:          r.ID,
			Title:       strings.TrimSpace(r.Title),
			Company:     r.Company.DisplayName,
			Location:    r.Location.DisplayName,
			Description: r.Description,
			URL:         r.RedirectURL,
			Source:      AdzunaName,
			JobType:     adzunaJobType(r.ContractTime, r.ContractType),
			ScrapedAt:   scraped,
		}
		if r.SalaryMin > 0 || r.SalaryMax > 0 {
			l.Salary = &models.Salary{Min: r.SalaryMin, Max: r.SalaryMax, Currency: currency, Period: models.PayYearly}
		}
		if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
			l.PostedAt = t.UTC()
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// adzunaJobType prefers contract_type "contract" over contract_time, since a contract role
// is usually also tagged full_time.
func adzunaJobType(contractTime, contractType string) models.JobType {
	if t := models.ParseJobType(contractType); t == models.JobTypeContract {
		return t
	}
	return models.ParseJobType(contractTime)
}

func adzunaCurrency(country string) string {
	switch strings.ToLower(country) {
	case "gb":
		return "GBP"
	case "us":
		return "USD"
	case "ca":
		return "CAD"
	case "au":
		return "AUD"
	case "nz":
		return "NZD"
	case "in":
		return "INR"
	case "br":
		return "BRL"
	case "pl":
		return "PLN"
	case "ch":
		return "CHF"
	case "sg":
		return "SGD"
	case "za":
		return "ZAR"
	case "mx":
		return "MXN"
	default:
		return "EUR"
	}
}
