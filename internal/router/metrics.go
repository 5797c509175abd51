package router

import (
	"sort"
	"sync"
	"time"
)

// ActionStats aggregates executions of one action.
type ActionStats struct {
	Action        string
	Count         int64
	TotalDuration time.Duration
}

// Metrics keeps per-action running counters. Many workers report completions
// concurrently, so updates go through a single short-lived lock. The values
// are observability only and never affect routing.
type Metrics struct {
	mu     sync.Mutex
	byName map[string]*ActionStats
}

// NewMetrics constructs empty metrics.
func NewMetrics() *Metrics {
	return &Metrics{byName: map[string]*ActionStats{}}
}

// Record adds one execution of the action.
func (m *Metrics) Record(action string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.byName[action]
	if !ok {
		stats = &ActionStats{Action: action}
		m.byName[action] = stats
	}
	stats.Count++
	stats.TotalDuration += duration
}

// Snapshot returns the current counters sorted by action name.
func (m *Metrics) Snapshot() []ActionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActionStats, 0, len(m.byName))
	for _, stats := range m.byName {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Action < out[j].Action })
	return out
}
