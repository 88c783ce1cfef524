// Package candidate implements C4 CandidateManager: the bounded set of
// borrower addresses under watch, with LRU+priority eviction.
package candidate

import (
	"sync"
	"time"

	"github.com/shadowtick/liquidator/pkg/types"
)

// Candidate is a watched borrower (spec.md §3).
type Candidate struct {
	Address      types.Address
	LastHf       float64
	HasHf        bool
	LastCheckTs  time.Time
	TouchedAt    time.Time
}

// healthyThreshold is the lastHf > 1.1 bar used for eviction preference,
// named directly in spec.md §3's CandidateManager invariant.
const healthyThreshold = 1.1

// Manager is the bounded candidate set. Exclusively owned by the pipeline
// orchestrator per spec.md §3 "Ownership".
type Manager struct {
	maxCandidates int

	mu    sync.Mutex
	byID  map[types.Address]*Candidate
}

// New constructs a Manager bounded at maxCandidates entries.
func New(maxCandidates int) *Manager {
	return &Manager{
		maxCandidates: maxCandidates,
		byID:          make(map[types.Address]*Candidate),
	}
}

// Len reports the current candidate count.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Add inserts a new candidate if absent, evicting if at capacity. Returns
// the candidate and whether it was newly created.
func (m *Manager) Add(addr types.Address, now time.Time) (Candidate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.byID[addr]; ok {
		return *c, false
	}
	if len(m.byID) >= m.maxCandidates {
		m.evictLocked()
	}
	c := &Candidate{Address: addr, TouchedAt: now}
	m.byID[addr] = c
	return *c, true
}

// Update records a fresh HF observation for addr, creating it if absent.
func (m *Manager) Update(addr types.Address, hf float64, now time.Time) Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[addr]
	if !ok {
		if len(m.byID) >= m.maxCandidates {
			m.evictLocked()
		}
		c = &Candidate{Address: addr}
		m.byID[addr] = c
	}
	c.LastHf = hf
	c.HasHf = true
	c.LastCheckTs = now
	c.TouchedAt = now
	return *c
}

// Touch refreshes touchedAt for addr without altering its HF, creating the
// candidate (subject to eviction) if it doesn't exist yet.
func (m *Manager) Touch(addr types.Address, now time.Time) Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[addr]
	if !ok {
		if len(m.byID) >= m.maxCandidates {
			m.evictLocked()
		}
		c = &Candidate{Address: addr}
		m.byID[addr] = c
	}
	c.TouchedAt = now
	return *c
}

// Get returns the candidate for addr, if tracked.
func (m *Manager) Get(addr types.Address) (Candidate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[addr]
	if !ok {
		return Candidate{}, false
	}
	return *c, true
}

// Remove deletes addr from the candidate set (e.g. once known-safe).
func (m *Manager) Remove(addr types.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, addr)
}

// GetStale returns every candidate whose lastCheckTs is older than
// thresholdMs (or has never been checked), for re-evaluation scheduling.
func (m *Manager) GetStale(thresholdMs int64, now time.Time) []Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()

	threshold := time.Duration(thresholdMs) * time.Millisecond
	var stale []Candidate
	for _, c := range m.byID {
		if !c.HasHf || now.Sub(c.LastCheckTs) >= threshold {
			stale = append(stale, *c)
		}
	}
	return stale
}

// evictLocked removes one candidate, preferring healthy+oldest per
// spec.md §3: "eviction prefers entries with lastHf > 1.1 (healthy) and
// oldest touchedAt; if none qualify, evict globally-oldest touchedAt."
// Caller must hold m.mu.
func (m *Manager) evictLocked() {
	if len(m.byID) == 0 {
		return
	}

	var healthyOldest *Candidate
	var globalOldest *Candidate
	for _, c := range m.byID {
		if globalOldest == nil || c.TouchedAt.Before(globalOldest.TouchedAt) {
			globalOldest = c
		}
		if c.HasHf && c.LastHf > healthyThreshold {
			if healthyOldest == nil || c.TouchedAt.Before(healthyOldest.TouchedAt) {
				healthyOldest = c
			}
		}
	}

	victim := globalOldest
	if healthyOldest != nil {
		victim = healthyOldest
	}
	delete(m.byID, victim.Address)
}
