package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kyujin/internal/config"
	"github.com/hyperjump/kyujin/internal/models"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"go engineer", "-limit", "5"},
			expected: []string{"-limit", "5", "go engineer"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "go engineer"},
			expected: []string{"-limit", "5", "go engineer"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"go engineer"},
			expected: []string{"go engineer"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"data", "engineer", "-sources", "adzuna,static"},
			expected: []string{"-sources", "adzuna,static", "data", "engineer"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"golang"}, "golang"},
		{"multiple words", []string{"platform", "engineer"}, "platform engineer"},
		{"single quoted phrase", []string{"platform engineer"}, "platform engineer"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList(" adzuna, ,static,"); !reflect.DeepEqual(got, []string{"adzuna", "static"}) {
		t.Errorf("splitList = %v", got)
	}
	if got := splitList(""); got != nil {
		t.Errorf("splitList(\"\") = %v, want nil", got)
	}
}

func TestSearchFlagsCriteria(t *testing.T) {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	var sf searchFlags
	sf.register(fs)
	args := searchArgsReorder([]string{"go", "engineer",
		"-sources", "adzuna,static", "-prefer", "remote,Berlin", "-type", "contract",
		"-salary-min", "60000", "-currency", "eur", "-exclude", "senior", "-days", "7",
		"-limit", "10", "-timeout", "2s"})
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	c := sf.criteria(buildSearchQuery(fs.Args()))
	if c.Query != "go engineer" || c.JobType != models.JobTypeContract || c.PostedWithinDays != 7 ||
		c.MaxResults != 10 || c.TimeoutMs != 2000 {
		t.Errorf("criteria = %+v", c)
	}
	if !reflect.DeepEqual(c.Sources, []string{"adzuna", "static"}) || len(c.PreferredLocations) != 2 {
		t.Errorf("lists = %v %v", c.Sources, c.PreferredLocations)
	}
	if c.Salary == nil || c.Salary.Min != 60000 || c.Salary.Max != 0 || c.Salary.Currency != "EUR" {
		t.Errorf("salary = %+v", c.Salary)
	}

	var empty searchFlags
	if c := empty.criteria("go"); c.Salary != nil || c.TimeoutMs != 0 {
		t.Errorf("zero flags produced %+v", c)
	}
}

func TestSearchViaHTTP(t *testing.T) {
	var got models.SearchCriteria
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		switch got.Query {
		case "partial":
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write([]byte(`{"jobs":[{"id":"1","source":"static","title":"Go"}],"metadata":{"outcome":"partial","partial":true},"warnings":["partial results: 1 of 2 sources failed"]}`))
		case "blocked":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"jobs":[],"metadata":{"outcome":"rate_limited"},"errors":[{"source":"adzuna","message":"status 429"}],"error":"rate limited","kind":"rate_limited"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"query is required","kind":"validation_error"}`))
		}
	}))
	defer srv.Close()

	resp, err := searchViaHTTP(srv.URL+"/", models.SearchCriteria{Query: "partial", Sources: []string{"static"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Jobs) != 1 || !resp.Metadata.Partial || len(resp.Warnings) != 1 {
		t.Errorf("partial response = %+v", resp)
	}
	if len(got.Sources) != 1 || got.Sources[0] != "static" {
		t.Errorf("server received %+v", got)
	}

	resp, err = searchViaHTTP(srv.URL, models.SearchCriteria{Query: "blocked"})
	if err == nil || !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("blocked error = %v", err)
	}
	if resp == nil || len(resp.Errors) != 1 {
		t.Errorf("blocked response should carry per-source errors: %+v", resp)
	}

	resp, err = searchViaHTTP(srv.URL, models.SearchCriteria{})
	if err == nil || resp != nil || !strings.Contains(err.Error(), "query is required") {
		t.Errorf("validation: resp=%+v err=%v", resp, err)
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	if err := initConfig(path, false); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Search.DefaultTimeout != 10*time.Second {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Server, cfg.Search)
	}
	if err := initConfig(path, false); err == nil {
		t.Error("expected error when config exists")
	}
	if err := initConfig(path, true); err != nil {
		t.Errorf("force overwrite: %v", err)
	}
}

func TestInitializeComponents(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "jobs.yaml")
	if err := os.WriteFile(fixture, []byte(`
- id: "1"
  title: Go Engineer
  company: Hyperjump
  location: Berlin
  url: https://example.com/1
  source: static
`), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Analytics.DatabasePath = filepath.Join(dir, "analytics.db")
	cfg.Sources.StaticFile = fixture
	cfg.Search.DefaultSources = []string{"static"}

	components, err := initializeComponents(t.Context(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer components.Close(t.Context())

	if components.History == nil {
		t.Error("sqlite analytics should expose history")
	}
	names := make([]string, 0)
	for _, s := range components.Service.Sources() {
		names = append(names, s.Name)
	}
	if !reflect.DeepEqual(names, []string{"adzuna", "static"}) {
		t.Errorf("registered sources = %v", names)
	}

	resp, err := components.Service.Search(t.Context(), models.SearchCriteria{Query: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].Source != "static" {
		t.Errorf("jobs = %+v", resp.Jobs)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}
