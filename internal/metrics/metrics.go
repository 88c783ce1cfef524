// Package metrics defines the counters and histograms enumerated across
// spec.md §4, backed by github.com/prometheus/client_golang. Exposition over
// HTTP is the excluded "Prometheus formatting" collaborator named in §1; this
// package only owns the registry and typed handles passed into components.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the core components touch. It is
// process-scoped but opaque to the core logic that uses it (spec.md §9).
type Registry struct {
	reg *prometheus.Registry

	GasBumpsTotal        *prometheus.CounterVec
	GasBumpsSkippedTotal *prometheus.CounterVec
	DecisionsTotal       *prometheus.CounterVec
	SkipReasonsTotal     *prometheus.CounterVec
	MissClassifiedTotal  *prometheus.CounterVec
	HfCacheHits          prometheus.Counter
	HfCacheMisses        prometheus.Counter
	PriceStaleTotal      prometheus.Counter
	HFComputeSeconds     prometheus.Histogram
	PreSimHitTotal       prometheus.Counter
	PreSimMissTotal      prometheus.Counter
	RevertsTotal         *prometheus.CounterVec
}

// New constructs a Registry with all metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		GasBumpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidator_gas_bumps_total",
			Help: "RBF gas bumps submitted, by stage.",
		}, []string{"stage"}),
		GasBumpsSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidator_gas_bumps_skipped_total",
			Help: "RBF gas bumps skipped, by reason.",
		}, []string{"reason"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidator_decisions_total",
			Help: "Decisions emitted, by action.",
		}, []string{"action"}),
		SkipReasonsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidator_skip_reasons_total",
			Help: "Skip decisions, by reason code.",
		}, []string{"reason"}),
		MissClassifiedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidator_miss_classified_total",
			Help: "Competitor liquidations classified, by reason code.",
		}, []string{"reason"}),
		HfCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liquidator_hf_cache_hits_total",
		}),
		HfCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liquidator_hf_cache_misses_total",
		}),
		PriceStaleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liquidator_price_stale_total",
		}),
		HFComputeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "liquidator_hf_compute_seconds",
			Buckets: prometheus.DefBuckets,
		}),
		PreSimHitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liquidator_presim_hit_total",
		}),
		PreSimMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liquidator_presim_miss_total",
		}),
		RevertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidator_reverts_total",
			Help: "Mined transactions that reverted, by classification category.",
		}, []string{"category"}),
	}
	reg.MustRegister(
		r.GasBumpsTotal, r.GasBumpsSkippedTotal, r.DecisionsTotal, r.SkipReasonsTotal,
		r.MissClassifiedTotal, r.HfCacheHits, r.HfCacheMisses, r.PriceStaleTotal,
		r.HFComputeSeconds, r.PreSimHitTotal, r.PreSimMissTotal, r.RevertsTotal,
	)
	return r
}

// Registerer exposes the underlying registry for a downstream exposition
// collaborator to format; the core never formats metrics itself.
func (r *Registry) Registerer() *prometheus.Registry {
	return r.reg
}
