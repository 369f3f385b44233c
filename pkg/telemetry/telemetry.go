// Package telemetry provides lightweight in-process counters for the
// gateway. Counters live in memory only and reset on restart; durable
// aggregates come from the request log store.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics counts analysis activity since process start
type Metrics struct {
	started   time.Time
	analyzed  atomic.Int64
	malicious atomic.Int64
	retrains  atomic.Int64

	mu       sync.Mutex
	byThreat map[string]int64
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Analyzed      int64            `json:"analyzed"`
	Malicious     int64            `json:"malicious"`
	Retrains      int64            `json:"retrains"`
	ByThreat      map[string]int64 `json:"by_threat"`
}

// New creates a zeroed metrics set
func New() *Metrics {
	return &Metrics{
		started:  time.Now(),
		byThreat: make(map[string]int64),
	}
}

// RecordVerdict counts one analyzed request
func (m *Metrics) RecordVerdict(threatType string, malicious bool) {
	m.analyzed.Add(1)
	if !malicious {
		return
	}
	m.malicious.Add(1)

	m.mu.Lock()
	m.byThreat[threatType]++
	m.mu.Unlock()
}

// RecordRetrain counts one successful model retrain
func (m *Metrics) RecordRetrain() {
	m.retrains.Add(1)
}

// Snapshot copies the current counter values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	byThreat := make(map[string]int64, len(m.byThreat))
	for k, v := range m.byThreat {
		byThreat[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
		Analyzed:      m.analyzed.Load(),
		Malicious:     m.malicious.Load(),
		Retrains:      m.retrains.Load(),
		ByThreat:      byThreat,
	}
}
