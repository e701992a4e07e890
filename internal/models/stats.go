package models

import (
	"sync"
	"sync/atomic"
)

// SourceStats counts replication outcomes for one source account. All fields
// are safe for concurrent use.
type SourceStats struct {
	Opens    atomic.Int64
	Closes   atomic.Int64
	Modifies atomic.Int64
	Skips    atomic.Int64
	Retries  atomic.Int64
	Dropped  atomic.Int64
}

// StatsSnapshot is a point-in-time copy of SourceStats for introspection.
type StatsSnapshot struct {
	Opens    int64 `json:"opens"`
	Closes   int64 `json:"closes"`
	Modifies int64 `json:"modifies"`
	Skips    int64 `json:"skips"`
	Retries  int64 `json:"retries"`
	Dropped  int64 `json:"dropped"`
}

// Snapshot returns the current counter values.
func (s *SourceStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Opens:    s.Opens.Load(),
		Closes:   s.Closes.Load(),
		Modifies: s.Modifies.Load(),
		Skips:    s.Skips.Load(),
		Retries:  s.Retries.Load(),
		Dropped:  s.Dropped.Load(),
	}
}

// StatsRegistry hands out one SourceStats per source account.
type StatsRegistry struct {
	mu sync.Mutex
	m  map[string]*SourceStats
}

// NewStatsRegistry creates an empty registry.
func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{m: make(map[string]*SourceStats)}
}

// Get returns the stats for a source account, creating them on first use.
func (r *StatsRegistry) Get(sourceAccountID string) *SourceStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[sourceAccountID]
	if !ok {
		s = &SourceStats{}
		r.m[sourceAccountID] = s
	}
	return s
}

// Snapshot returns a copy of all counters keyed by source account.
func (r *StatsRegistry) Snapshot() map[string]StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]StatsSnapshot, len(r.m))
	for k, v := range r.m {
		out[k] = v.Snapshot()
	}
	return out
}
