package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests, and the
// fallback when no DATABASE_URL is configured.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records []Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// LogRequest appends one record
func (s *MemoryStore) LogRequest(_ context.Context, rec *Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	stored.ID = s.nextID
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	s.nextID++
	s.records = append(s.records, stored)
	return stored.ID, nil
}

// RecentLogs returns up to limit records, newest first
func (s *MemoryStore) RecentLogs(_ context.Context, limit int, maliciousOnly bool) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if maliciousOnly && !s.records[i].IsMalicious {
			continue
		}
		out = append(out, s.records[i])
	}
	return out, nil
}

// Statistics aggregates over all logged records
func (s *MemoryStore) Statistics(_ context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{TotalRequests: int64(len(s.records))}
	byType := make(map[string]int64)
	for _, rec := range s.records {
		if rec.IsMalicious {
			stats.MaliciousRequests++
			byType[rec.ThreatType]++
		}
	}
	if stats.TotalRequests > 0 {
		stats.BlockedPercentage = float64(stats.MaliciousRequests) / float64(stats.TotalRequests) * 100
	}

	for t, c := range byType {
		stats.TopThreats = append(stats.TopThreats, ThreatCount{Type: t, Count: c})
	}
	sort.Slice(stats.TopThreats, func(i, j int) bool {
		if stats.TopThreats[i].Count != stats.TopThreats[j].Count {
			return stats.TopThreats[i].Count > stats.TopThreats[j].Count
		}
		return stats.TopThreats[i].Type < stats.TopThreats[j].Type
	})
	return stats, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() {}
