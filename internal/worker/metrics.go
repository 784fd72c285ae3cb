package worker

import (
	"sync"
	"time"
)

// Metrics holds cumulative per-worker counters. They are mutated only by
// the owning worker and read through Snapshot.
type Metrics struct {
	mu              sync.Mutex
	processed       int64
	succeeded       int64
	failed          int64
	retriedTotal    int64
	avgDurationMS   float64
	lastProcessedAt time.Time
}

// MetricsSnapshot is the read-only JSON view of worker metrics.
type MetricsSnapshot struct {
	Processed       int64     `json:"processed"`
	Succeeded       int64     `json:"succeeded"`
	Failed          int64     `json:"failed"`
	RetriedTotal    int64     `json:"retried_total"`
	AvgDurationMS   float64   `json:"avg_duration_ms"`
	LastProcessedAt time.Time `json:"last_processed_at,omitzero"`
}

// record updates all counters for one finished job. Called exactly once
// per job from the processMessage cleanup path.
func (m *Metrics) record(succeeded, retried bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processed++
	if succeeded {
		m.succeeded++
	} else {
		m.failed++
	}
	if retried {
		m.retriedTotal++
	}
	// Incremental rolling average.
	m.avgDurationMS += (float64(duration.Milliseconds()) - m.avgDurationMS) / float64(m.processed)
	m.lastProcessedAt = time.Now().UTC()
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MetricsSnapshot{
		Processed:       m.processed,
		Succeeded:       m.succeeded,
		Failed:          m.failed,
		RetriedTotal:    m.retriedTotal,
		AvgDurationMS:   m.avgDurationMS,
		LastProcessedAt: m.lastProcessedAt,
	}
}
