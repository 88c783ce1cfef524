// Package trace implements C14 DecisionTraceStore + MissClassifier: an LRU of
// recent per-user decisions, and the classifier that maps an observed
// competitor liquidation to a reason code.
package trace

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shadowtick/liquidator/pkg/types"
)

// Action tags a DecisionTrace as an execution attempt or a skip.
type Action string

const (
	ActionAttempt Action = "attempt"
	ActionSkip    Action = "skip"
)

// Thresholds mirrors spec.md §3's DecisionTrace.thresholds.
type Thresholds struct {
	MinDebtUsd     float64
	MinProfitUsd   float64
	MaxSlippagePct float64
}

// AttemptMeta mirrors spec.md §3's DecisionTrace.attemptMeta.
type AttemptMeta struct {
	TxHash       string
	KeyIndex     int
	GasPriceGwei float64
}

// DecisionTrace mirrors spec.md §3's data model exactly.
type DecisionTrace struct {
	User          types.Address
	Ts            time.Time
	Block         uint64
	HeadLagBlocks int
	HfAtDecision  float64
	HfPrevBlock   float64
	HasHfPrevBlock bool
	Action        Action
	SkipReason    string
	Thresholds    Thresholds
	EstDebtUsd    float64
	EstProfitUsd  float64
	HasAttemptMeta bool
	AttemptMeta   AttemptMeta
	// CorrelationID joins this trace to the LiquidationPlan (and any
	// cross-process KV mirror entry) it was decided from.
	CorrelationID string
}

// defaultRingCapacity bounds the per-user trace ring named in spec.md §4.12.
const defaultRingCapacity = 16

type userRing struct {
	mu      sync.Mutex
	traces  []DecisionTrace
	capacity int
	maxAge   time.Duration
}

func (r *userRing) add(t DecisionTrace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces = append(r.traces, t)
	if len(r.traces) > r.capacity {
		r.traces = r.traces[len(r.traces)-r.capacity:]
	}
}

func (r *userRing) findNearest(eventTs time.Time, window time.Duration) (DecisionTrace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best DecisionTrace
	var bestDelta time.Duration
	found := false
	for _, t := range r.traces {
		if r.maxAge > 0 && time.Since(t.Ts) > r.maxAge {
			continue
		}
		delta := eventTs.Sub(t.Ts)
		if delta < 0 {
			delta = -delta
		}
		if delta > window {
			continue
		}
		if !found || delta < bestDelta {
			best = t
			bestDelta = delta
			found = true
		}
	}
	return best, found
}

// Store is C14's DecisionTraceStore: an LRU keyed by user, each entry a
// bounded ring of recent traces.
type Store struct {
	mu        sync.Mutex
	byUser    *lru.Cache[types.Address, *userRing]
	ringCap   int
	maxAge    time.Duration
	onRecord  func(DecisionTrace)
}

// New constructs a Store bounded at capacity users.
func New(capacity int, maxAge time.Duration) *Store {
	c, _ := lru.New[types.Address, *userRing](capacity)
	return &Store{byUser: c, ringCap: defaultRingCapacity, maxAge: maxAge}
}

// SetOnRecord registers a callback invoked synchronously after every Record,
// letting an optional durable mirror (internal/audit's Recorder) observe the
// same stream without the in-memory ring knowing it exists. A nil fn clears
// the hook.
func (s *Store) SetOnRecord(fn func(DecisionTrace)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRecord = fn
}

// Record appends a trace to the user's ring, creating it if absent.
func (s *Store) Record(t DecisionTrace) {
	s.mu.Lock()
	ring, ok := s.byUser.Get(t.User)
	if !ok {
		ring = &userRing{capacity: s.ringCap, maxAge: s.maxAge}
		s.byUser.Add(t.User, ring)
	}
	hook := s.onRecord
	s.mu.Unlock()
	ring.add(t)
	if hook != nil {
		hook(t)
	}
}

// FindDecision returns the trace for user nearest in time to eventTs, within
// a bounded window, per spec.md §4.12.
func (s *Store) FindDecision(user types.Address, eventTs time.Time, window time.Duration) (DecisionTrace, bool) {
	s.mu.Lock()
	ring, ok := s.byUser.Get(user)
	s.mu.Unlock()
	if !ok {
		return DecisionTrace{}, false
	}
	return ring.findNearest(eventTs, window)
}

// ClassifiedReason enumerates MissClassifier's output codes (spec.md §4.12).
type ClassifiedReason string

const (
	ReasonOurs                  ClassifiedReason = "ours"
	ReasonNotInWatchSet         ClassifiedReason = "not_in_watch_set"
	ReasonRaced                 ClassifiedReason = "raced"
	ReasonFilteredMinDebt       ClassifiedReason = "filtered.min_debt"
	ReasonFilteredMinProfit     ClassifiedReason = "filtered.min_profit"
	ReasonFilteredSlippage      ClassifiedReason = "filtered.slippage"
	ReasonFilteredPrefund       ClassifiedReason = "filtered.prefund"
	ReasonFilteredPriceStale    ClassifiedReason = "filtered.price_stale"
	ReasonFilteredCallstaticFail ClassifiedReason = "filtered.callstatic_fail"
	ReasonFilteredOther         ClassifiedReason = "filtered.other"
	ReasonLatencyHeadLag        ClassifiedReason = "latency.head_lag"
	ReasonLatencyPricingDelay   ClassifiedReason = "latency.pricing_delay"
	ReasonHfTransient           ClassifiedReason = "hf_transient"
	ReasonUnknown               ClassifiedReason = "unknown"
)

// hfTransientBlockWindow bounds how soon after a user first crosses HF<1 a
// competitor liquidation is still attributed to a fleeting dip we never got
// a trace for, rather than a genuine race (spec.md §8 scenario 3).
const hfTransientBlockWindow = 2

// skipReasonMap translates a RiskGate skip reason to its filtered.* code, per
// spec.md §4.12's examples.
var skipReasonMap = map[string]ClassifiedReason{
	"below_min_debt_usd":     ReasonFilteredMinDebt,
	"insufficient_profit":    ReasonFilteredMinProfit,
	"scaling_anomaly":        ReasonFilteredSlippage,
	"below_min_repay_usd":    ReasonFilteredPrefund,
	"price_stale":            ReasonFilteredPriceStale,
	"price_missing":          ReasonFilteredPriceStale,
}

// CompetitorLiquidation is the observed on-chain event MissClassifier
// classifies.
type CompetitorLiquidation struct {
	User            types.Address
	LiquidatorAddr  types.Address
	Ts              time.Time
	HeadLagBlocks   int
	// BlocksSinceFirstSeen counts blocks since this user's HF was first
	// observed below 1.0, with no DecisionTrace recorded for them yet.
	BlocksSinceFirstSeen int
}

// Classification is Classify's output, carrying the numeric thresholds that
// triggered it per spec.md §4.12: "Notes field carries the numeric
// thresholds."
type Classification struct {
	Reason ClassifiedReason
	Notes  map[string]float64
}

// Classify maps a competitor liquidation to a ClassifiedReason following the
// exact decision order of spec.md §4.12.
func Classify(ev CompetitorLiquidation, ourExecutors map[types.Address]struct{}, everInWatchSet bool, trace DecisionTrace, hasTrace bool, window time.Duration) Classification {
	if _, ok := ourExecutors[ev.LiquidatorAddr]; ok {
		return Classification{Reason: ReasonOurs}
	}

	if !hasTrace {
		if !everInWatchSet {
			return Classification{Reason: ReasonNotInWatchSet}
		}
		if ev.BlocksSinceFirstSeen > 0 && ev.BlocksSinceFirstSeen <= hfTransientBlockWindow {
			return Classification{Reason: ReasonHfTransient, Notes: map[string]float64{
				"blocksSinceFirstSeen": float64(ev.BlocksSinceFirstSeen),
			}}
		}
		return Classification{Reason: ReasonRaced}
	}

	if trace.Action == ActionAttempt {
		return Classification{Reason: ReasonRaced, Notes: map[string]float64{"hfAtDecision": trace.HfAtDecision}}
	}

	if trace.Action == ActionSkip {
		if reason, ok := skipReasonMap[trace.SkipReason]; ok {
			return Classification{Reason: reason, Notes: map[string]float64{
				"minDebtUsd":   trace.Thresholds.MinDebtUsd,
				"minProfitUsd": trace.Thresholds.MinProfitUsd,
			}}
		}
		return Classification{Reason: ReasonFilteredOther}
	}

	if trace.HeadLagBlocks > 2 {
		return Classification{Reason: ReasonLatencyHeadLag, Notes: map[string]float64{"headLagBlocks": float64(trace.HeadLagBlocks)}}
	}
	if trace.HfAtDecision >= 1.0 && trace.HasHfPrevBlock && trace.HfPrevBlock < 1.0 {
		return Classification{Reason: ReasonLatencyPricingDelay, Notes: map[string]float64{
			"hfAtDecision": trace.HfAtDecision,
			"hfPrevBlock":  trace.HfPrevBlock,
		}}
	}

	return Classification{Reason: ReasonUnknown}
}
