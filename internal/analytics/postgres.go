package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperjump/kyujin/internal/models"
)

// NewPostgresPool creates and verifies a pgxpool connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return pool, nil
}

// PostgresSink stores metrics in PostgreSQL, for deployments that share analytics across
// instances.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates the metrics table if needed and returns a sink over pool.
// The sink owns the pool and closes it on Close.
func NewPostgresSink(ctx context.Context, pool *pgxpool.Pool) (*PostgresSink, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS search_metrics (
			id UUID PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			query TEXT NOT NULL,
			location TEXT,
			sources TEXT[] NOT NULL DEFAULT '{}',
			duration_ms BIGINT NOT NULL,
			listings_found INTEGER NOT NULL,
			successful_sources TEXT[] NOT NULL DEFAULT '{}',
			failed_sources TEXT[] NOT NULL DEFAULT '{}',
			error_count INTEGER NOT NULL,
			cached BOOLEAN NOT NULL,
			outcome TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_search_metrics_ts ON search_metrics(ts);
	`)
	if err != nil {
		return nil, fmt.Errorf("create search_metrics: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Append inserts a metric. Re-appending an existing id is a no-op.
func (s *PostgresSink) Append(ctx context.Context, m models.SearchMetric) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_metrics
		 (id, ts, query, location, sources, duration_ms, listings_found, successful_sources,
		  failed_sources, error_count, cached, outcome)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO NOTHING`,
		m.ID, m.Timestamp.UTC(), m.Query, m.Location, nonNil(m.Sources), m.Duration.Milliseconds(),
		m.ListingsFound, nonNil(m.SuccessfulSources), nonNil(m.FailedSources), m.ErrorCount, m.Cached, m.Outcome,
	)
	if err != nil {
		return fmt.Errorf("insert search metric: %w", err)
	}
	return nil
}

// List returns metrics recorded at or after since, newest first. limit <= 0 means no limit.
func (s *PostgresSink) List(ctx context.Context, since time.Time, limit int) ([]models.SearchMetric, error) {
	query := `SELECT id::text, ts, query, COALESCE(location, ''), sources, duration_ms, listings_found,
	                 successful_sources, failed_sources, error_count, cached, COALESCE(outcome, '')
	          FROM search_metrics WHERE ts >= $1 ORDER BY ts DESC`
	args := []any{since.UTC()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query search metrics: %w", err)
	}
	defer rows.Close()

	var out []models.SearchMetric
	for rows.Next() {
		var (
			m          models.SearchMetric
			durationMs int64
		)
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.Query, &m.Location, &m.Sources, &durationMs,
			&m.ListingsFound, &m.SuccessfulSources, &m.FailedSources, &m.ErrorCount, &m.Cached, &m.Outcome); err != nil {
			return nil, fmt.Errorf("scan search metric: %w", err)
		}
		m.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
