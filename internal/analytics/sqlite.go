package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kyujin/internal/models"
)

// SQLiteSink stores metrics in a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS search_metrics (
		id TEXT PRIMARY KEY,
		ts TIMESTAMP NOT NULL,
		query TEXT NOT NULL,
		location TEXT,
		sources TEXT,
		duration_ms INTEGER NOT NULL,
		listings_found INTEGER NOT NULL,
		successful_sources TEXT,
		failed_sources TEXT,
		error_count INTEGER NOT NULL,
		cached INTEGER NOT NULL,
		outcome TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_search_metrics_ts ON search_metrics(ts);
	`
	_, err := db.Exec(schema)
	return err
}

// Append inserts a metric. Re-appending an existing id is a no-op.
func (s *SQLiteSink) Append(ctx context.Context, m models.SearchMetric) error {
	sources, succeeded, failed, err := encodeSourceLists(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO search_metrics
		 (id, ts, query, location, sources, duration_ms, listings_found, successful_sources,
		  failed_sources, error_count, cached, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Timestamp.UTC(), m.Query, m.Location, sources, m.Duration.Milliseconds(),
		m.ListingsFound, succeeded, failed, m.ErrorCount, m.Cached, m.Outcome,
	)
	if err != nil {
		return fmt.Errorf("failed to insert metric: %w", err)
	}
	return nil
}

// List returns metrics recorded at or after since, newest first. limit <= 0 means no limit.
func (s *SQLiteSink) List(ctx context.Context, since time.Time, limit int) ([]models.SearchMetric, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, query, location, sources, duration_ms, listings_found, successful_sources,
		        failed_sources, error_count, cached, outcome
		 FROM search_metrics WHERE ts >= ? ORDER BY ts DESC LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var out []models.SearchMetric
	for rows.Next() {
		var (
			m                          models.SearchMetric
			location, outcome          sql.NullString
			sources, succeeded, failed sql.NullString
			durationMs                 int64
		)
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.Query, &location, &sources, &durationMs,
			&m.ListingsFound, &succeeded, &failed, &m.ErrorCount, &m.Cached, &outcome); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		m.Location = location.String
		m.Outcome = outcome.String
		m.Duration = time.Duration(durationMs) * time.Millisecond
		if err := decodeSourceLists(&m, sources.String, succeeded.String, failed.String); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func encodeSourceLists(m models.SearchMetric) (sources, succeeded, failed string, err error) {
	enc := func(v []string) (string, error) {
		if v == nil {
			v = []string{}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal source list: %w", err)
		}
		return string(b), nil
	}
	if sources, err = enc(m.Sources); err != nil {
		return
	}
	if succeeded, err = enc(m.SuccessfulSources); err != nil {
		return
	}
	failed, err = enc(m.FailedSources)
	return
}

func decodeSourceLists(m *models.SearchMetric, sources, succeeded, failed string) error {
	for _, f := range []struct {
		raw string
		dst *[]string
	}{
		{sources, &m.Sources},
		{succeeded, &m.SuccessfulSources},
		{failed, &m.FailedSources},
	} {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return fmt.Errorf("failed to unmarshal source list: %w", err)
		}
	}
	return nil
}
