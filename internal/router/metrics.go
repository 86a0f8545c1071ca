package router

import (
	"sync"
	"time"
)

// ModelStats holds observed performance for one provider/model pair.
type ModelStats struct {
	Requests        int64
	Failures        int64
	AvgResponseTime time.Duration
	TotalCost       float64
}

// SuccessRate reports the fraction of requests that completed without
// error. A pair with no recorded requests is treated as fully healthy
// so new models are not starved out.
func (s ModelStats) SuccessRate() float64 {
	if s.Requests == 0 {
		return 1.0
	}
	return float64(s.Requests-s.Failures) / float64(s.Requests)
}

// ErrorRate is the complement of SuccessRate.
func (s ModelStats) ErrorRate() float64 {
	return 1.0 - s.SuccessRate()
}

// Metrics tracks live per-model statistics, keyed by "provider:model".
type Metrics struct {
	mu    sync.Mutex
	stats map[string]ModelStats
}

func NewMetrics() *Metrics {
	return &Metrics{stats: make(map[string]ModelStats)}
}

// Record folds one invocation outcome into the stats for the pair.
// Average response time is updated incrementally.
func (m *Metrics) Record(c Candidate, elapsed time.Duration, tokens int, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats[c.Key()]
	s.Requests++
	if failed {
		s.Failures++
	}
	s.AvgResponseTime += (elapsed - s.AvgResponseTime) / time.Duration(s.Requests)
	s.TotalCost += float64(tokens) * costPerToken[c.Key()]
	m.stats[c.Key()] = s
}

// Stats returns a copy of the recorded stats for the pair.
func (m *Metrics) Stats(c Candidate) ModelStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats[c.Key()]
}

// Snapshot returns a copy of all recorded stats.
func (m *Metrics) Snapshot() map[string]ModelStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ModelStats, len(m.stats))
	for k, v := range m.stats {
		out[k] = v
	}
	return out
}
