package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the request_logs table. The descending timestamp index
// serves the recent-logs listing; is_malicious and threat_type serve the
// statistics aggregates.
const schema = `
CREATE TABLE IF NOT EXISTS request_logs (
	id           BIGSERIAL PRIMARY KEY,
	timestamp    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	method       VARCHAR(10),
	path         TEXT,
	ip_address   VARCHAR(45),
	user_agent   TEXT,
	is_malicious BOOLEAN,
	confidence   DOUBLE PRECISION,
	threat_type  VARCHAR(50)
);
CREATE INDEX IF NOT EXISTS idx_request_logs_timestamp ON request_logs (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_request_logs_is_malicious ON request_logs (is_malicious);
CREATE INDEX IF NOT EXISTS idx_request_logs_threat_type ON request_logs (threat_type);
`

// PostgresStore persists verdicts in a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres connects to PostgreSQL, runs the migration, and returns
// the store.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Printf("[STARTUP] request_logs store migrated")

	return &PostgresStore{pool: pool}, nil
}

// LogRequest inserts one verdict record and returns its serial id
func (s *PostgresStore) LogRequest(ctx context.Context, rec *Record) (int64, error) {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO request_logs (timestamp, method, path, ip_address, user_agent, is_malicious, confidence, threat_type)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		ts, rec.Method, rec.Path, rec.IPAddress, rec.UserAgent,
		rec.IsMalicious, rec.Confidence, rec.ThreatType).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert request log: %w", err)
	}
	return id, nil
}

// RecentLogs returns up to limit records, newest first
func (s *PostgresStore) RecentLogs(ctx context.Context, limit int, maliciousOnly bool) ([]Record, error) {
	query := `SELECT id, timestamp, method, path, ip_address, user_agent, is_malicious, confidence, threat_type
		 FROM request_logs`
	if maliciousOnly {
		query += ` WHERE is_malicious`
	}
	query += ` ORDER BY timestamp DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query request logs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Method, &rec.Path,
			&rec.IPAddress, &rec.UserAgent, &rec.IsMalicious,
			&rec.Confidence, &rec.ThreatType); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Statistics computes the aggregates with grouped counts by threat type
func (s *PostgresStore) Statistics(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_malicious) FROM request_logs`,
	).Scan(&stats.TotalRequests, &stats.MaliciousRequests)
	if err != nil {
		return nil, fmt.Errorf("count request logs: %w", err)
	}
	if stats.TotalRequests > 0 {
		stats.BlockedPercentage = float64(stats.MaliciousRequests) / float64(stats.TotalRequests) * 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT threat_type, COUNT(*) FROM request_logs
		 WHERE is_malicious
		 GROUP BY threat_type
		 ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("group threats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc ThreatCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan threat count: %w", err)
		}
		stats.TopThreats = append(stats.TopThreats, tc)
	}
	return stats, rows.Err()
}

// Close shuts down the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}
