// Package budget implements C8 PredictiveBudgetTracker + FallbackOrchestrator:
// per-tick/per-minute/per-hour RPC-cost budgets, and the policy that decides
// how broadly to evaluate users under provider unhealth or price shocks.
package budget

import (
	"sort"
	"time"

	"golang.org/x/time/rate"
)

// DenyReason enumerates the budget axes named in spec.md §4.6.
type DenyReason string

const (
	ReasonNone          DenyReason = ""
	ReasonPerTickCap    DenyReason = "per_tick_cap"
	ReasonPerMinuteRate DenyReason = "per_minute_rate"
	ReasonHourlyBudget  DenyReason = "hourly_budget"
	ReasonPerAssetCap   DenyReason = "per_asset_cap"
)

// Decision is canEvaluateUsers' return value.
type Decision struct {
	Allowed int
	Reason  DenyReason
}

// Config holds the budget axes' static limits.
type Config struct {
	MaxUsersPerTick  int
	TicksPerMinute   float64
	CostPerHfRead    float64
	HourlyUsdBudget  float64
	MaxUsersPerAsset int
}

// Tracker is C8's PredictiveBudgetTracker.
type Tracker struct {
	cfg Config

	tickLimiter  *rate.Limiter
	tickNow      time.Time
	tickAdmitted bool

	hourWindowStart time.Time
	hourlyCostUsed  float64

	perAssetUsers map[string]int
	windowStart   time.Time
}

// New constructs a Tracker.
func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:           cfg,
		tickLimiter:   rate.NewLimiter(rate.Limit(cfg.TicksPerMinute/60.0), 1),
		perAssetUsers: make(map[string]int),
	}
}

// StartTick resets windowed counters on boundary crossings, per spec.md
// §4.6: "resets windowed counters on boundary crossings."
func (t *Tracker) StartTick(now time.Time) {
	if now.Sub(t.hourWindowStart) >= time.Hour {
		t.hourWindowStart = now
		t.hourlyCostUsed = 0
	}
	if now.Sub(t.windowStart) >= time.Minute {
		t.windowStart = now
		t.perAssetUsers = make(map[string]int)
	}
	t.tickNow = now
	t.tickAdmitted = false
}

// CanEvaluateUsers returns how many of the requested n users may be
// evaluated this tick and why any were denied, checking axes in the order
// named in spec.md §4.6.
func (t *Tracker) CanEvaluateUsers(n int, asset string) Decision {
	if n > t.cfg.MaxUsersPerTick {
		return Decision{Allowed: t.cfg.MaxUsersPerTick, Reason: ReasonPerTickCap}
	}
	if !t.tickAdmitted {
		if !t.tickLimiter.AllowN(t.tickNow, 1) {
			return Decision{Allowed: 0, Reason: ReasonPerMinuteRate}
		}
		t.tickAdmitted = true
	}
	projectedCost := float64(n) * t.cfg.CostPerHfRead
	if t.hourlyCostUsed+projectedCost > t.cfg.HourlyUsdBudget {
		remaining := t.cfg.HourlyUsdBudget - t.hourlyCostUsed
		if remaining <= 0 {
			return Decision{Allowed: 0, Reason: ReasonHourlyBudget}
		}
		affordable := int(remaining / t.cfg.CostPerHfRead)
		return Decision{Allowed: affordable, Reason: ReasonHourlyBudget}
	}
	if asset != "" && t.cfg.MaxUsersPerAsset > 0 {
		used := t.perAssetUsers[asset]
		if used+n > t.cfg.MaxUsersPerAsset {
			allowed := t.cfg.MaxUsersPerAsset - used
			if allowed < 0 {
				allowed = 0
			}
			return Decision{Allowed: allowed, Reason: ReasonPerAssetCap}
		}
	}
	t.hourlyCostUsed += projectedCost
	if asset != "" {
		t.perAssetUsers[asset] += n
	}
	return Decision{Allowed: n, Reason: ReasonNone}
}

// RiskRankable is any candidate that carries HF/debt for risk sorting.
type RiskRankable interface {
	RiskHf() float64
	RiskDebtUsd() float64
}

// DownsampleToFit sorts list by risk (ascending HF, descending debt) and
// returns the largest prefix that fits within the current budget.
func DownsampleToFit[T RiskRankable](t *Tracker, list []T, asset string) []T {
	sorted := make([]T, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].RiskHf() != sorted[j].RiskHf() {
			return sorted[i].RiskHf() < sorted[j].RiskHf()
		}
		return sorted[i].RiskDebtUsd() > sorted[j].RiskDebtUsd()
	})
	decision := t.CanEvaluateUsers(len(sorted), asset)
	if decision.Allowed >= len(sorted) {
		return sorted
	}
	return sorted[:decision.Allowed]
}

// ProviderHealth and PriceShock are the FallbackOrchestrator's inputs.
type ProviderHealth struct {
	Healthy bool
}

type PriceShock struct {
	DropBps       int64
	WithinSeconds int64
}

// FallbackMode is the orchestrator's output policy.
type FallbackMode string

const (
	ModeBroader FallbackMode = "broader"
	ModeNearOnly FallbackMode = "near_only"
	ModePassive  FallbackMode = "passive"
)

// FallbackDecision is Evaluate's return value.
type FallbackDecision struct {
	Mode         FallbackMode
	MaxUsers     int
	NearBandOnly bool
}

// FallbackOrchestrator implements §4.6's signal table.
type FallbackOrchestrator struct {
	shockThresholdBps int64
	maxUsersPerTick   int
}

// NewFallbackOrchestrator constructs a FallbackOrchestrator.
func NewFallbackOrchestrator(shockThresholdBps int64, maxUsersPerTick int) *FallbackOrchestrator {
	return &FallbackOrchestrator{shockThresholdBps: shockThresholdBps, maxUsersPerTick: maxUsersPerTick}
}

// Evaluate decides the evaluation breadth per spec.md §4.6:
//
//	unhealthy or recent shock (dropBps >= threshold within 60s) -> broader, capped
//	healthy and nearOnly -> near-band only
//	otherwise -> passive
func (f *FallbackOrchestrator) Evaluate(health ProviderHealth, shock PriceShock, nearOnly bool) FallbackDecision {
	recentShock := shock.WithinSeconds <= 60 && shock.DropBps >= f.shockThresholdBps
	if !health.Healthy || recentShock {
		return FallbackDecision{Mode: ModeBroader, MaxUsers: f.maxUsersPerTick, NearBandOnly: recentShock && health.Healthy}
	}
	if nearOnly {
		return FallbackDecision{Mode: ModeNearOnly, NearBandOnly: true}
	}
	return FallbackDecision{Mode: ModePassive}
}
