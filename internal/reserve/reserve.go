// Package reserve implements C2 ReserveIndexTracker: per-reserve
// variable/liquidity index snapshots in RAY precision (1e27), gating
// recompute work by bps-delta.
package reserve

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/shadowtick/liquidator/pkg/types"
)

// Snapshot is a single reserve-index observation, stored at RAY precision.
type Snapshot struct {
	Reserve             types.Address
	LiquidityIndex      *uint256.Int
	VariableBorrowIndex *uint256.Int
	BlockNumber         uint64
}

// RecheckResult is the outcome of shouldRecheck.
type RecheckResult struct {
	Should      bool
	MaxDeltaBps int64
	Reason      string
}

// Tracker holds the latest snapshot per reserve. thresholdBps is τ_index from
// spec.md §4.2.
type Tracker struct {
	thresholdBps int64

	mu   sync.RWMutex
	last map[types.Address]Snapshot
}

// New constructs a Tracker with the given recheck threshold in bps.
func New(thresholdBps int64) *Tracker {
	return &Tracker{
		thresholdBps: thresholdBps,
		last:         make(map[types.Address]Snapshot),
	}
}

// Latest returns the last observed snapshot for a reserve, if any.
func (t *Tracker) Latest(reserve types.Address) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.last[reserve]
	return s, ok
}

// ShouldRecheck reports whether a reserve-data update crosses the recheck
// threshold, matching §4.2: "First observation always triggers." It does not
// mutate state; callers commit the new snapshot via Commit once the recheck
// work (or skip) has been decided.
func (t *Tracker) ShouldRecheck(reserve types.Address, newLiquidityIndex, newVariableBorrowIndex *uint256.Int) RecheckResult {
	prev, ok := t.Latest(reserve)
	if !ok {
		return RecheckResult{Should: true, Reason: "no_prior_snapshot"}
	}

	liqBps := rayDeltaBps(prev.LiquidityIndex, newLiquidityIndex)
	varBps := rayDeltaBps(prev.VariableBorrowIndex, newVariableBorrowIndex)

	maxBps := liqBps
	if types.AbsInt64(varBps) > types.AbsInt64(maxBps) {
		maxBps = varBps
	}

	should := types.AbsInt64(maxBps) >= t.thresholdBps
	reason := "below_threshold"
	if should {
		reason = "delta_exceeds_threshold"
	}
	return RecheckResult{Should: should, MaxDeltaBps: maxBps, Reason: reason}
}

// Commit stores the new snapshot, to be called once a caller has decided to
// act on (or deliberately skip) a ShouldRecheck result so the tracker stays
// the source of truth for the next delta computation.
func (t *Tracker) Commit(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[s.Reserve] = s
}

// rayDeltaBps computes deltaBps(old,new) per §4.1's bps-delta definition,
// using RAY-precision uint256 values converted through big.Int so the
// existing BigInt-precise helper can be reused without losing precision on
// the 1e27 scale.
func rayDeltaBps(oldV, newV *uint256.Int) int64 {
	if oldV == nil || newV == nil || oldV.IsZero() {
		return 0
	}
	return types.BpsDelta(oldV.ToBig(), newV.ToBig())
}
