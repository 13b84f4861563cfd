package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hyperjump/kyujin/internal/models"
	"go.uber.org/zap"
)

const (
	// CareerPageName is the source identifier of the company career page adapter.
	CareerPageName = "careerpage"

	careerPageTimeout = 20 * time.Second
	maxPageBytes      = 5 << 20
	userAgent         = "Mozilla/5.0 (compatible; kyujin/1.0)"
)

// CareerPage is one company jobs page to read schema.org JobPosting data from.
type CareerPage struct {
	Company string `yaml:"company"`
	URL     string `yaml:"url"`
}

// CareerPages reads schema.org JobPosting JSON-LD blocks from configured company career pages.
type CareerPages struct {
	pages  []CareerPage
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewCareerPages returns a career page adapter. client and logger may be nil.
func NewCareerPages(pages []CareerPage, client *http.Client, logger *zap.Logger) *CareerPages {
	if client == nil {
		client = &http.Client{Timeout: careerPageTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CareerPages{pages: pages, client: client, logger: logger, now: time.Now}
}

// Name implements Adapter.
func (c *CareerPages) Name() string { return CareerPageName }

// Fetch reads every configured page and keeps postings that match the query and location.
// Pages that fail are logged and skipped; the call fails only when every page failed.
func (c *CareerPages) Fetch(ctx context.Context, p Params) ([]models.RawListing, error) {
	if len(c.pages) == 0 {
		return nil, fmt.Errorf("%s: no career pages configured", CareerPageName)
	}
	var (
		out  []models.RawListing
		errs []error
	)
	for _, page := range c.pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		listings, err := c.fetchPage(ctx, page)
		if err != nil {
			c.logger.Warn("Career page fetch failed",
				zap.String("url", page.URL),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		for _, l := range listings {
			if matchesQuery(l, p.Query) && matchesLocation(l, p.Location) &&
				(p.JobType == "" || l.JobType == "" || l.JobType == p.JobType) {
				out = append(out, l)
			}
		}
	}
	if len(errs) == len(c.pages) {
		return nil, errors.Join(errs...)
	}
	return capResults(out, p.MaxResults), nil
}

func (c *CareerPages) fetchPage(ctx context.Context, page CareerPage) ([]models.RawListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", page.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, newStatusError(CareerPageName, resp, body)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return ExtractJobPostings(doc, page, c.now().UTC()), nil
}

// ExtractJobPostings returns the JobPosting entries found in the document's JSON-LD blocks.
// Blocks that are not valid JSON are skipped.
func ExtractJobPostings(doc *goquery.Document, page CareerPage, scrapedAt time.Time) []models.RawListing {
	var out []models.RawListing
	doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return
		}
		for _, node := range jobPostingNodes(v) {
			if l, ok := postingToListing(node, page, scrapedAt); ok {
				out = append(out, l)
			}
		}
	})
	return out
}

// jobPostingNodes walks arrays and @graph containers collecting JobPosting objects.
func jobPostingNodes(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, jobPostingNodes(item)...)
		}
		return out
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			return jobPostingNodes(graph)
		}
		if hasType(t["@type"], "JobPosting") {
			return []map[string]any{t}
		}
	}
	return nil
}

func hasType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func postingToListing(n map[string]any, page CareerPage, scrapedAt time.Time) (models.RawListing, bool) {
	title := strings.TrimSpace(str(n["title"]))
	if title == "" {
		return models.RawListing{}, false
	}
	link := str(n["url"])
	if link == "" {
		link = page.URL
	}
	company := page.Company
	if org, ok := n["hiringOrganization"].(map[string]any); ok && str(org["name"]) != "" {
		company = str(org["name"])
	}
	id := identifier(n["identifier"])
	if id == "" {
		sum := sha1.Sum([]byte(link + "\x00" + title))
		id = hex.EncodeToString(sum[:8])
	}

	l := models.RawListing{
		ID:          id,
		Title:       title,
		Company:     company,
		Location:    postingLocation(n),
		Description: stripHTML(str(n["description"])),
		URL:         link,
		Source:      CareerPageName,
		JobType:     postingJobType(n["employmentType"]),
		Salary:      postingSalary(n["baseSalary"]),
		ScrapedAt:   scrapedAt,
	}
	if posted := str(n["datePosted"]); posted != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, posted); err == nil {
				l.PostedAt = t.UTC()
				break
			}
		}
	}
	return l, true
}

func postingLocation(n map[string]any) string {
	if strings.EqualFold(str(n["jobLocationType"]), "TELECOMMUTE") {
		return "Remote"
	}
	var places []any
	switch t := n["jobLocation"].(type) {
	case []any:
		places = t
	case map[string]any:
		places = []any{t}
	}
	for _, p := range places {
		place, ok := p.(map[string]any)
		if !ok {
			continue
		}
		addr, ok := place["address"].(map[string]any)
		if !ok {
			if s := str(place["address"]); s != "" {
				return s
			}
			continue
		}
		var parts []string
		for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
			v := addr[key]
			if country, ok := v.(map[string]any); ok {
				v = country["name"]
			}
			if s := strings.TrimSpace(str(v)); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	return ""
}

func postingJobType(v any) models.JobType {
	switch t := v.(type) {
	case string:
		return models.ParseJobType(t)
	case []any:
		for _, item := range t {
			if jt := models.ParseJobType(str(item)); jt != "" {
				return jt
			}
		}
	}
	return ""
}

func postingSalary(v any) *models.Salary {
	base, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	s := &models.Salary{Currency: strings.ToUpper(str(base["currency"]))}
	switch val := base["value"].(type) {
	case map[string]any:
		s.Min = num(val["minValue"])
		s.Max = num(val["maxValue"])
		if s.Min == 0 && s.Max == 0 {
			s.Min = num(val["value"])
		}
		s.Period = payPeriod(str(val["unitText"]))
	default:
		s.Min = num(val)
	}
	if s.Period == "" {
		s.Period = payPeriod(str(base["unitText"]))
	}
	if s.Min <= 0 && s.Max <= 0 {
		return nil
	}
	return s
}

func payPeriod(unit string) models.PayPeriod {
	switch strings.ToUpper(unit) {
	case "HOUR":
		return models.PayHourly
	case "DAY":
		return models.PayDaily
	case "WEEK":
		return models.PayWeekly
	case "MONTH":
		return models.PayMonthly
	case "YEAR":
		return models.PayYearly
	}
	return ""
}

func identifier(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return str(t["value"])
	default:
		return str(t)
	}
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(strings.ReplaceAll(t, ",", ""), 64)
		return f
	}
	return 0
}

// stripHTML returns the text content of an HTML fragment.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
