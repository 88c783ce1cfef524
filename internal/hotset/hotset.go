// Package hotset implements C5 HotSetTracker: the hot (HF ≤ θ_hot) / warm
// (θ_hot < HF ≤ θ_warm) partition over watched candidates.
package hotset

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shadowtick/liquidator/pkg/types"
)

// TriggerKind records what caused a HotSetEntry update.
type TriggerKind string

const (
	TriggerEvent          TriggerKind = "event"
	TriggerHead           TriggerKind = "head"
	TriggerPrice          TriggerKind = "price"
	TriggerReserveRecheck TriggerKind = "reserve_recheck"
)

// Entry mirrors spec.md §3's HotSetEntry.
type Entry struct {
	Address            types.Address
	Hf                 float64
	LastUpdatedTs       time.Time
	LastBlock           uint64
	TotalCollateralUsd  float64
	TotalDebtUsd        float64
	TriggerKind         TriggerKind
}

// Tier classifies an entry's HF band.
type Tier int

const (
	TierCold Tier = iota
	TierWarm
	TierHot
)

// Tracker partitions candidates into hot/warm sets, mutually exclusive, each
// independently bounded.
type Tracker struct {
	thetaHot, thetaWarm float64
	maxHot, maxWarm     int

	mu   sync.Mutex
	hot  map[types.Address]*Entry
	warm map[types.Address]*Entry
}

// New constructs a Tracker. Panics if thetaHot >= thetaWarm, matching
// spec.md §3's "rejected at construction" invariant (C5).
func New(thetaHot, thetaWarm float64, maxHot, maxWarm int) *Tracker {
	if thetaHot >= thetaWarm {
		panic(fmt.Sprintf("hotset: thetaHot (%f) must be < thetaWarm (%f)", thetaHot, thetaWarm))
	}
	return &Tracker{
		thetaHot:  thetaHot,
		thetaWarm: thetaWarm,
		maxHot:    maxHot,
		maxWarm:   maxWarm,
		hot:       make(map[types.Address]*Entry),
		warm:      make(map[types.Address]*Entry),
	}
}

func (t *Tracker) tierOf(hf float64) Tier {
	switch {
	case hf <= t.thetaHot:
		return TierHot
	case hf <= t.thetaWarm:
		return TierWarm
	default:
		return TierCold
	}
}

// Update inserts or moves an entry according to its new HF, evicting the
// highest-HF occupant of the destination tier if at capacity (spec.md §3:
// "At capacity, evict the entry with the highest HF").
func (t *Tracker) Update(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.hot, e.Address)
	delete(t.warm, e.Address)

	switch t.tierOf(e.Hf) {
	case TierHot:
		if len(t.hot) >= t.maxHot {
			evictHighest(t.hot)
		}
		cp := e
		t.hot[e.Address] = &cp
	case TierWarm:
		if len(t.warm) >= t.maxWarm {
			evictHighest(t.warm)
		}
		cp := e
		t.warm[e.Address] = &cp
	default:
		// cold: not tracked in either set.
	}
}

func evictHighest(set map[types.Address]*Entry) {
	var victim *Entry
	for _, e := range set {
		if victim == nil || e.Hf > victim.Hf {
			victim = e
		}
	}
	if victim != nil {
		delete(set, victim.Address)
	}
}

// Remove deletes addr from whichever set it occupies, if any.
func (t *Tracker) Remove(addr types.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.hot, addr)
	delete(t.warm, addr)
}

// GetHotSet returns the hot set sorted ascending by HF.
func (t *Tracker) GetHotSet() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedByHf(t.hot)
}

// GetWarmSet returns the warm set sorted ascending by HF.
func (t *Tracker) GetWarmSet() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedByHf(t.warm)
}

// GetTopK returns the k lowest-HF entries across hot and warm combined.
func (t *Tracker) GetTopK(k int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	all := make([]Entry, 0, len(t.hot)+len(t.warm))
	for _, e := range t.hot {
		all = append(all, *e)
	}
	for _, e := range t.warm {
		all = append(all, *e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Hf < all[j].Hf })
	if k >= len(all) {
		return all
	}
	return all[:k]
}

func sortedByHf(set map[types.Address]*Entry) []Entry {
	out := make([]Entry, 0, len(set))
	for _, e := range set {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hf < out[j].Hf })
	return out
}

// Sizes reports the current hot and warm set sizes.
func (t *Tracker) Sizes() (hot, warm int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hot), len(t.warm)
}
