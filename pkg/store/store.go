// Package store persists verdicts for the statistics and presentation
// collaborators. The analysis core only ever appends records and reads
// aggregates; it never updates rows.
package store

import (
	"context"
	"time"
)

// Record is one logged verdict, matching the request_logs schema
type Record struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	IsMalicious bool      `json:"is_malicious"`
	Confidence  float64   `json:"confidence"`
	ThreatType  string    `json:"threat_type"`
}

// ThreatCount is one grouped row of the threat-type aggregate
type ThreatCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Stats holds the aggregates served to the statistics collaborator
type Stats struct {
	TotalRequests     int64         `json:"total_requests"`
	MaliciousRequests int64         `json:"malicious_requests"`
	BlockedPercentage float64       `json:"blocked_percentage"`
	TopThreats        []ThreatCount `json:"top_threats"`
}

// Store is the verdict logging collaborator
type Store interface {
	// LogRequest appends one verdict record and returns its id
	LogRequest(ctx context.Context, rec *Record) (int64, error)

	// RecentLogs returns up to limit records, newest first
	RecentLogs(ctx context.Context, limit int, maliciousOnly bool) ([]Record, error)

	// Statistics returns the aggregate counters
	Statistics(ctx context.Context) (*Stats, error)

	// Close releases the underlying storage handle
	Close()
}
