// Package main is the Kyujin CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kyujin/internal/analytics"
	"github.com/hyperjump/kyujin/internal/cli"
	"github.com/hyperjump/kyujin/internal/config"
	"github.com/hyperjump/kyujin/internal/models"
	"github.com/hyperjump/kyujin/internal/search"
	"github.com/hyperjump/kyujin/internal/server"
	"github.com/hyperjump/kyujin/internal/watcher"
	"github.com/hyperjump/kyujin/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kyujin/config.yaml"
	shutdownTimeout   = 10 * time.Second
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kyujin server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "sources":
		runSources()
	case "metrics":
		runMetrics()
	case "config":
		runConfig()
	case "version", "--version", "-v":
		fmt.Printf("kyujin version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (source fetches, cache hits, config reloads)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode, "kyujin")
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}

	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(resolvedConfigPath, watcher.ReloadConfig(components.Service, logger), watchOpts...)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Warn("config watcher not started; hot reload disabled", zap.Error(err))
	}

	opts := []server.Option{server.WithMetrics(components.Metrics.Handler())}
	if components.History != nil {
		opts = append(opts, server.WithHistory(components.History))
	}
	srv := server.NewServer(components.Service, &cfg.Server, logger, opts...)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Stop(ctx)
	components.Close(ctx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kyujin search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Jobs from every requested source are merged, deduplicated and ranked by a 0-100 score
built from location, title, salary and source quality.
  • Use --sources to pick sources (comma-separated); the configured defaults are used otherwise.
  • Use --prefer to name preferred locations; "remote" matches remote listings.
  • Use --salary-min/--salary-max to score pay against your band.
  • Use --exclude to push listings mentioning a term toward the bottom.

Examples:
  kyujin search golang engineer
  kyujin search --location Berlin --sources adzuna,careerpage backend
  kyujin search --prefer remote,London --salary-min 70000 --currency GBP platform engineer
  kyujin search --output json --limit 50 data engineer
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting (e.g. "go engineer" vs go engineer).
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "kyujin search golang -limit 5"
// would otherwise leave -limit unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// searchFlags are the criteria flags of the search subcommand.
type searchFlags struct {
	location    string
	prefer      string
	sources     string
	jobType     string
	salaryMin   float64
	salaryMax   float64
	currency    string
	include     string
	exclude     string
	postedDays  int
	limit       int
	timeout     time.Duration
	searchRetry bool
}

func (f *searchFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.location, "location", "", "location passed to the sources")
	fs.StringVar(&f.prefer, "prefer", "", "preferred locations, comma-separated (\"remote\" matches remote jobs)")
	fs.StringVar(&f.sources, "sources", "", "sources to query, comma-separated (default from config)")
	fs.StringVar(&f.jobType, "type", "", "job type: full_time, part_time, contract, internship or temporary")
	fs.Float64Var(&f.salaryMin, "salary-min", 0, "minimum desired annual salary")
	fs.Float64Var(&f.salaryMax, "salary-max", 0, "maximum desired annual salary (0 = open-ended)")
	fs.StringVar(&f.currency, "currency", "", "currency of the salary band")
	fs.StringVar(&f.include, "include", "", "extra title keywords, comma-separated")
	fs.StringVar(&f.exclude, "exclude", "", "keywords that push a listing down, comma-separated")
	fs.IntVar(&f.postedDays, "days", 0, "only jobs posted within this many days")
	fs.IntVar(&f.limit, "limit", models.DefaultMaxResults, "maximum number of jobs")
	fs.DurationVar(&f.timeout, "timeout", 0, "deadline for the whole fan-out (default from config)")
	fs.BoolVar(&f.searchRetry, "retry", false, "retry the whole search when every source failed or timed out")
}

func (f *searchFlags) criteria(query string) models.SearchCriteria {
	c := models.SearchCriteria{
		Query:              query,
		Location:           f.location,
		PreferredLocations: splitList(f.prefer),
		Sources:            splitList(f.sources),
		JobType:            models.ParseJobType(f.jobType),
		IncludeKeywords:    splitList(f.include),
		ExcludeKeywords:    splitList(f.exclude),
		PostedWithinDays:   f.postedDays,
		MaxResults:         f.limit,
		TimeoutMs:          int(f.timeout / time.Millisecond),
	}
	if f.salaryMin > 0 || f.salaryMax > 0 {
		c.Salary = &models.SalaryRange{Min: f.salaryMin, Max: f.salaryMax, Currency: strings.ToUpper(f.currency)}
	}
	return c
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used when --server is empty)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = search in-process without a running server)")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one job per line), or json (parseable)")
	var sf searchFlags
	sf.register(fs)
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	criteria := sf.criteria(queryStr)

	var response *search.Response
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, criteria)
	} else {
		response, err = searchInProcess(*configPath, criteria, sf.searchRetry)
	}
	if response != nil {
		if outErr := cli.WriteSearchResults(os.Stdout, response, format); outErr != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", outErr)
			os.Exit(1)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
}

func searchInProcess(configPath string, criteria models.SearchCriteria, withRetry bool) (*search.Response, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		components.Close(closeCtx)
	}()

	if !withRetry {
		return components.Service.Search(ctx, criteria)
	}
	return components.Service.SearchWithRetry(ctx, criteria, func(attempt int, delay time.Duration, err error) {
		fmt.Fprintf(os.Stderr, "attempt %d failed (%v); retrying in %s\n", attempt, err, delay.Round(time.Millisecond))
	})
}

// searchResultBody is the POST /api/v1/search response body.
type searchResultBody struct {
	search.Response
	Error string `json:"error,omitempty"`
}

func searchViaHTTP(serverURL string, criteria models.SearchCriteria) (*search.Response, error) {
	body, err := json.Marshal(criteria)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var result searchResultBody
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return &result.Response, nil
	}
	msg := result.Error
	if msg == "" {
		msg = strings.TrimSpace(string(b))
	}
	err = fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	if result.Jobs == nil && len(result.Errors) == 0 {
		return nil, err
	}
	return &result.Response, err
}

func runSources() {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(strings.TrimRight(*serverURL, "/") + "/api/v1/sources")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	var out struct {
		Sources []search.SourceInfo `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response: %v\n", err)
		os.Exit(1)
	}
	for _, s := range out.Sources {
		def := ""
		if s.Default {
			def = " (default)"
		}
		fmt.Printf("%-12s prior %5.1f%s\n", s.Name, s.Prior, def)
	}
}

func runMetrics() {
	if len(os.Args) < 3 {
		printMetricsUsage()
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("metrics "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	since := fs.Duration("since", 7*24*time.Hour, "include searches from this long ago")
	limit := fs.Int("limit", 0, "maximum number of searches (0 = all)")
	outputFormat := fs.String("output", "text", "output format for list: text or json")
	outPath := fs.String("out", "searches.xlsx", "output file for export")
	_ = fs.Parse(os.Args[3:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	sink, err := openAnalyticsSink(ctx, &cfg.Analytics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	reader, ok := sink.(analytics.Reader)
	if !ok {
		fmt.Fprintln(os.Stderr, "Analytics storage is disabled (analytics.driver: none)")
		os.Exit(1)
	}
	defer sink.Close()

	metrics, err := reader.List(ctx, time.Now().Add(-*since), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List searches failed: %v\n", err)
		os.Exit(1)
	}

	switch sub {
	case "list":
		format, err := cli.ParseOutputFormat(*outputFormat)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := cli.WriteMetrics(os.Stdout, metrics, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "export":
		if err := exportMetrics(*outPath, metrics); err != nil {
			fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported %d searches to %s\n", len(metrics), *outPath)
	default:
		printMetricsUsage()
		os.Exit(1)
	}
}

func exportMetrics(path string, metrics []models.SearchMetric) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := analytics.ExportXLSX(f, metrics); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printMetricsUsage() {
	fmt.Println(`Usage: kyujin metrics <list|export> [flags]

  list     Print recorded searches (--since, --limit, --output text|json)
  export   Write recorded searches to an Excel workbook (--since, --limit, --out)`)
}

func runConfig() {
	if len(os.Args) < 3 || os.Args[2] != "init" {
		fmt.Println("Usage: kyujin config init [--config path] [--force]")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path to write")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[3:])

	if err := initConfig(*configPath, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Config init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote default config to %s\n", *configPath)
}

// initConfig writes the default config to path unless a file is already there.
func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return config.Save(path, config.Default())
}

func printUsage() {
	fmt.Println(`kyujin - Job search aggregator

Usage:
  kyujin server [flags]             Start the HTTP server
  kyujin search [flags] <query>     Search jobs across sources
  kyujin sources [flags]            List the sources a running server knows
  kyujin metrics <list|export>      Show or export recorded searches
  kyujin config init [flags]        Write a default config file
  kyujin version                    Show version
  kyujin help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kyujin/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to search in-process.
  --config string    Config file path (in-process mode)
  --location string  Location passed to the sources
  --prefer string    Preferred locations, comma-separated
  --sources string   Sources to query, comma-separated
  --type string      Job type
  --salary-min, --salary-max, --currency
                     Desired salary band
  --include, --exclude string
                     Keywords that raise or lower the title score
  --days int         Only jobs posted within this many days
  --limit int        Maximum number of jobs (default: 50)
  --timeout duration Deadline for the whole fan-out
  --retry            Retry the whole search when every source failed (in-process mode)
  --output string    text, compact, or json

The config file is watched while the server runs; scoring weights, source priors and
the dedup threshold are reloaded on save.`)
}
