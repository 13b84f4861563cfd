// Package integration provides end-to-end tests over the HTTP server, the search service and
// real sources backed by local fixtures.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kyujin/internal/aggregator"
	"github.com/hyperjump/kyujin/internal/analytics"
	"github.com/hyperjump/kyujin/internal/cache"
	"github.com/hyperjump/kyujin/internal/config"
	"github.com/hyperjump/kyujin/internal/models"
	"github.com/hyperjump/kyujin/internal/retry"
	"github.com/hyperjump/kyujin/internal/search"
	"github.com/hyperjump/kyujin/internal/server"
	"github.com/hyperjump/kyujin/internal/source"
	"github.com/hyperjump/kyujin/internal/watcher"
)

const adzunaBody = `{"count": 2, "results": [
  {"id": "az-1", "title": "Senior Go Engineer", "description": "Build Go services.",
   "company": {"display_name": "Hyperjump"}, "location": {"display_name": "Berlin"},
   "salary_min": 70000, "salary_max": 90000, "redirect_url": "https://adzuna.example/az-1",
   "created": "2026-01-10T09:00:00Z", "contract_time": "full_time"},
  {"id": "az-2", "title": "Go Developer", "description": "Remote Go role.",
   "company": {"display_name": "Acme"}, "location": {"display_name": "Remote"},
   "redirect_url": "https://adzuna.example/az-2", "created": "2026-01-11T09:00:00Z"}
]}`

const staticFixture = `
- id: "st-1"
  title: Senior Go Engineer
  company: Hyperjump
  location: Berlin
  url: https://static.example/st-1
  source: static
- id: "st-2"
  title: Go Platform Engineer
  company: OtherCo
  location: London
  url: https://static.example/st-2
  source: static
`

type stack struct {
	handler     http.Handler
	adzunaCalls *atomic.Int64
	recorder    *analytics.Recorder
}

func newStack(t *testing.T) *stack {
	t.Helper()
	dir := t.TempDir()

	var calls atomic.Int64
	adzuna := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("what") == "blocked" {
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(adzunaBody))
	}))
	t.Cleanup(adzuna.Close)

	fixture := filepath.Join(dir, "jobs.yaml")
	if err := os.WriteFile(fixture, []byte(staticFixture), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Search.DefaultSources = []string{"adzuna", "static"}
	cfg.Search.SourceRetry = retry.Policy{MaxAttempts: 1}

	static, err := source.LoadStatic(source.StaticName, fixture)
	if err != nil {
		t.Fatal(err)
	}
	registry := source.NewRegistry(
		source.NewAdzuna(source.AdzunaConfig{AppID: "id", AppKey: "key", Country: "de", BaseURL: adzuna.URL}, adzuna.Client()),
		static,
	)

	scorer, dd, err := watcher.BuildPipeline(cfg)
	if err != nil {
		t.Fatal(err)
	}
	metrics := analytics.NewMetrics(nil)
	orch := aggregator.New(scorer, dd,
		aggregator.WithRetryPolicy(cfg.Search.SourceRetry),
		aggregator.WithSourceObserver(metrics),
	)

	sink, err := analytics.NewSQLiteSink(filepath.Join(dir, "analytics.db"))
	if err != nil {
		t.Fatal(err)
	}
	recorder := analytics.NewRecorder(zap.NewNop(), 16, metrics, sink)
	t.Cleanup(func() { _ = recorder.Close(context.Background()) })

	svc := search.NewService(registry, orch,
		search.Config{
			DefaultSources: cfg.Search.DefaultSources,
			DefaultTimeout: 5 * time.Second,
			MaxTimeout:     10 * time.Second,
		},
		search.WithCache(cache.New(cache.NewMemoryStore(100), time.Minute)),
		search.WithRecorder(recorder),
	)
	srv := server.NewServer(svc, &cfg.Server, zap.NewNop(),
		server.WithMetrics(metrics.Handler()),
		server.WithHistory(sink),
	)
	return &stack{handler: srv.Handler(), adzunaCalls: &calls, recorder: recorder}
}

func (s *stack) search(t *testing.T, body string) (int, search.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewBufferString(body)))
	var resp search.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return w.Code, resp
}

func TestIntegration_Search(t *testing.T) {
	s := newStack(t)

	code, resp := s.search(t, `{"query":"go","preferredLocations":["Berlin"],"salary":{"min":75000,"currency":"EUR"}}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	md := resp.Metadata
	if md.Outcome != models.OutcomeFull || md.Cached {
		t.Errorf("metadata = %+v", md)
	}
	if md.Counts.TotalFound != 4 || md.Counts.DuplicatesRemoved != 1 || len(resp.Jobs) != 3 {
		t.Errorf("counts = %+v, jobs = %d", md.Counts, len(resp.Jobs))
	}
	for i := 1; i < len(resp.Jobs); i++ {
		if resp.Jobs[i-1].Score < resp.Jobs[i].Score {
			t.Errorf("jobs not sorted by score: %.2f before %.2f", resp.Jobs[i-1].Score, resp.Jobs[i].Score)
		}
	}
	for _, job := range resp.Jobs {
		if job.Location == "Berlin" && job.Breakdown.Location.Score != 100 {
			t.Errorf("Berlin job location score = %.0f, want 100", job.Breakdown.Location.Score)
		}
	}

	code, again := s.search(t, `{"query":"go","preferredLocations":["Berlin"],"salary":{"min":75000,"currency":"EUR"}}`)
	if code != http.StatusOK || !again.Metadata.Cached {
		t.Errorf("second search: status %d cached %t", code, again.Metadata.Cached)
	}
	if n := s.adzunaCalls.Load(); n != 1 {
		t.Errorf("adzuna called %d times, want 1", n)
	}
	if len(again.Jobs) != len(resp.Jobs) || again.Jobs[0].Key() != resp.Jobs[0].Key() {
		t.Error("cached response differs from the original")
	}
}

func TestIntegration_PartialAndFailure(t *testing.T) {
	s := newStack(t)

	code, resp := s.search(t, `{"query":"go","sources":["static","nope"]}`)
	if code != http.StatusPartialContent || !resp.Metadata.Partial {
		t.Fatalf("status = %d partial = %t", code, resp.Metadata.Partial)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Code != models.CodeUnknownSource || len(resp.Warnings) == 0 {
		t.Errorf("errors = %+v warnings = %v", resp.Errors, resp.Warnings)
	}

	code, resp = s.search(t, `{"query":"blocked","sources":["adzuna"]}`)
	if code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", code)
	}
	if resp.Metadata.Outcome != models.OutcomeRateLimited || len(resp.Errors) != 1 {
		t.Errorf("metadata = %+v errors = %+v", resp.Metadata, resp.Errors)
	}

	code, _ = s.search(t, `{"query":"  "}`)
	if code != http.StatusBadRequest {
		t.Errorf("blank query: status %d, want 400", code)
	}
}

func TestIntegration_HistoryAndMetrics(t *testing.T) {
	s := newStack(t)
	s.search(t, `{"query":"go"}`)
	s.search(t, `{"query":"go"}`)

	var history struct {
		Searches []models.SearchMetric `json:"searches"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		w := httptest.NewRecorder()
		s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/searches?since=1h", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("history status = %d", w.Code)
		}
		if err := json.NewDecoder(w.Body).Decode(&history); err != nil {
			t.Fatal(err)
		}
		if len(history.Searches) == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(history.Searches) != 2 {
		t.Fatalf("history has %d searches, want 2", len(history.Searches))
	}
	if !history.Searches[0].Cached || history.Searches[1].Cached {
		t.Errorf("newest search should be the cached one: %+v", history.Searches)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("kyujin_source_fetches_total")) {
		t.Errorf("metrics: %d %s", w.Code, w.Body.String())
	}
}
