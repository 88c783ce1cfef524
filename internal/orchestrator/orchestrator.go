// Package orchestrator implements C15 PipelineOrchestrator: binds every
// other component into the per-event, per-block, and per-price-trigger
// pipelines and runs the per-user decision path.
package orchestrator

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shadowtick/liquidator/internal/budget"
	"github.com/shadowtick/liquidator/internal/candidate"
	"github.com/shadowtick/liquidator/internal/gasburst"
	"github.com/shadowtick/liquidator/internal/health"
	"github.com/shadowtick/liquidator/internal/hotset"
	"github.com/shadowtick/liquidator/internal/ingest"
	"github.com/shadowtick/liquidator/internal/keys"
	"github.com/shadowtick/liquidator/internal/metrics"
	"github.com/shadowtick/liquidator/internal/presim"
	"github.com/shadowtick/liquidator/internal/reserve"
	"github.com/shadowtick/liquidator/internal/risk"
	"github.com/shadowtick/liquidator/internal/submit"
	"github.com/shadowtick/liquidator/internal/trace"
	"github.com/shadowtick/liquidator/pkg/types"
)

// CloseFactorMode mirrors internal/config's enum without importing it, to
// keep the orchestrator decoupled from config parsing.
type CloseFactorMode string

// AttemptState is the per-user state machine named in spec.md §4.13.
type AttemptState string

const (
	StateEligible  AttemptState = "eligible"
	StatePlanning  AttemptState = "planning"
	StateSigned    AttemptState = "signed"
	StateSubmitted AttemptState = "submitted"
	StateMined     AttemptState = "mined"
	StateReplaced  AttemptState = "replaced"
	StateReverted  AttemptState = "reverted"
	StateAbandoned AttemptState = "abandoned"
)

// PlanBuilder chooses the debt/collateral asset pair and repay amount for a
// liquidatable account; the chain-specific reserve-selection logic lives in
// the chain package behind this interface.
type PlanBuilder interface {
	BuildPlan(ctx context.Context, user types.Address, data health.AccountData, mode CloseFactorMode) (presim.LiquidationPlan, error)
}

// Signer produces signed calldata for a patched liquidation call.
type Signer interface {
	Sign(ctx context.Context, key keys.Key, nonce uint64, calldata []byte) (signedTx []byte, txHash string, err error)
}

// GasPriceSource reports the network's current suggested gas price, used to
// gate against GasPriceCapGwei and to size the gas-cost-in-USD deduction
// from a liquidation's estimated profit (§4.8 steps 3 and 10).
type GasPriceSource interface {
	SuggestGasPriceGwei(ctx context.Context) (float64, error)
}

// NativePricer resolves the native gas token's USD price, letting the
// orchestrator convert a gas price quote into a USD cost without importing
// the oracle package directly.
type NativePricer interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// ReserveIndexSource reads a reserve's current liquidity/variableBorrow
// indices, feeding ReserveIndexTracker's recheck gate; the chain package
// implements this with an eth_call to the pool's getReserveData.
type ReserveIndexSource interface {
	GetReserveIndices(ctx context.Context, reserveAddr types.Address, blockTag uint64) (reserve.Snapshot, error)
}

// Deps bundles every collaborator PipelineOrchestrator binds together.
type Deps struct {
	Candidates    *candidate.Manager
	HotSet        *hotset.Tracker
	Reserves      *reserve.Tracker
	Health        *health.Engine
	BudgetTracker *budget.Tracker
	Fallback      *budget.FallbackOrchestrator
	PreSim        *presim.PreSimCache
	Templates     *presim.TemplateCache
	Keys          *keys.Manager
	Nonces        *keys.NonceManager
	Sender        *submit.PrivateTxSender
	GasBurst      *gasburst.Manager
	Traces        *trace.Store
	PlanBuilder   PlanBuilder
	Signer        Signer
	GasPrice      GasPriceSource
	NativePrice   NativePricer
	ReserveSource ReserveIndexSource
	Metrics       *metrics.Registry
	Log           zerolog.Logger
}

// Config carries the orchestrator's own tunables.
type Config struct {
	ExecutionThreshold    float64
	CloseFactorMode       CloseFactorMode
	InFlightLockTTL       time.Duration
	EmergencyScanMaxUsers int
	PriceDebounce         time.Duration
	DustWei               *big.Int
	MinDebtUsd            float64
	MinRepayUsd           float64
	MinProfitAfterGasUsd  float64
	GasPriceCapGwei       float64
	FeeBps                float64
	DailyLossLimitUsd     float64
	GasUnitsEstimate      uint64
	NativeSymbol          string
}

// Orchestrator is C15.
type Orchestrator struct {
	deps Deps
	cfg  Config

	mu             sync.Mutex
	inFlight       map[types.Address]time.Time
	attemptedBlock map[attemptKey]struct{}
	rollingPnl     float64
	lastHeadBlock  uint64

	priceMu        sync.Mutex
	lastPriceTrig  map[string]time.Time
}

type attemptKey struct {
	user  types.Address
	block uint64
}

// decisionMeta carries the per-evaluation context threaded into every
// DecisionTrace recorded for one EvaluateUser call: a correlation ID
// (stamped on the LiquidationPlan too, for cross-process KV mirrors) and the
// head-lag/previous-HF figures MissClassifier's latency branches key off.
type decisionMeta struct {
	correlationID  string
	headLagBlocks  int
	hfPrevBlock    float64
	hasHfPrevBlock bool
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	return &Orchestrator{
		deps:           deps,
		cfg:            cfg,
		inFlight:       make(map[types.Address]time.Time),
		attemptedBlock: make(map[attemptKey]struct{}),
		lastPriceTrig:  make(map[string]time.Time),
	}
}

// EventPipeline handles a single ingested signal: touching candidates and
// gating reserve-data recompute, per spec.md §4.13.
func (o *Orchestrator) EventPipeline(ctx context.Context, sig ingest.Signal) {
	now := time.Now()
	switch sig.Kind {
	case ingest.SignalEvent:
		for _, u := range sig.Event.Users {
			o.deps.Candidates.Touch(u, now)
			go o.EvaluateUser(ctx, u, sig.Block, hotset.TriggerEvent)
		}
	case ingest.SignalCoalescedReserveBatch:
		for _, ev := range sig.ReserveBatch {
			for _, u := range ev.Users {
				o.deps.Candidates.Touch(u, now)
			}
			if o.deps.ReserveSource == nil {
				continue
			}
			snap, err := o.deps.ReserveSource.GetReserveIndices(ctx, ev.Reserve, sig.Block)
			if err != nil {
				o.deps.Log.Warn().Err(err).Str("reserve", ev.Reserve.String()).Msg("orchestrator: GetReserveIndices failed")
				continue
			}
			result := o.CommitReserveUpdate(snap)
			if result.Should {
				for _, u := range ev.Users {
					go o.EvaluateUser(ctx, u, sig.Block, hotset.TriggerReserveRecheck)
				}
			}
		}
	}
}

// CommitReserveUpdate runs a reserve-data update through ReserveIndexTracker,
// committing the new snapshot and returning whether the delta crossed the
// recheck threshold.
func (o *Orchestrator) CommitReserveUpdate(snap reserve.Snapshot) reserve.RecheckResult {
	result := o.deps.Reserves.ShouldRecheck(snap.Reserve, snap.LiquidityIndex, snap.VariableBorrowIndex)
	o.deps.Reserves.Commit(snap)
	return result
}

// HeadPipeline recomputes the hot set's lowest-HF entries first, budget
// permitting, per spec.md §4.13.
func (o *Orchestrator) HeadPipeline(ctx context.Context, block uint64) {
	o.mu.Lock()
	if block > o.lastHeadBlock {
		o.lastHeadBlock = block
	}
	o.mu.Unlock()

	o.deps.Health.InvalidateBlock(block)

	hot := o.deps.HotSet.GetHotSet()
	users := make([]types.Address, 0, len(hot))
	for _, e := range hot {
		users = append(users, e.Address)
	}

	o.deps.BudgetTracker.StartTick(time.Now())
	decision := o.deps.BudgetTracker.CanEvaluateUsers(len(users), "")
	if decision.Allowed < len(users) {
		users = users[:decision.Allowed]
	}
	for _, u := range users {
		go o.EvaluateUser(ctx, u, block, hotset.TriggerHead)
	}

	stale := o.deps.Candidates.GetStale(60_000, time.Now())
	for _, c := range stale {
		go o.EvaluateUser(ctx, c.Address, block, hotset.TriggerHead)
	}
}

// PricePipeline runs a debounced emergency scan over near-band users of
// asset on a qualifying price drop, per spec.md §4.13.
func (o *Orchestrator) PricePipeline(ctx context.Context, asset string, dropBps int64, threshold int64, block uint64, nearBandUsers []types.Address) {
	if dropBps < threshold {
		return
	}

	o.priceMu.Lock()
	last, ok := o.lastPriceTrig[asset]
	if ok && time.Since(last) < o.cfg.PriceDebounce {
		o.priceMu.Unlock()
		return
	}
	o.lastPriceTrig[asset] = time.Now()
	o.priceMu.Unlock()

	users := nearBandUsers
	if len(users) > o.cfg.EmergencyScanMaxUsers {
		users = users[:o.cfg.EmergencyScanMaxUsers]
	}
	for _, u := range users {
		go o.EvaluateUser(ctx, u, block, hotset.TriggerPrice)
	}
}

// tryAcquireInFlight enforces the single-writer-per-user policy of spec.md
// §5, with a TTL in case a stuck goroutine never releases.
func (o *Orchestrator) tryAcquireInFlight(user types.Address) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if until, ok := o.inFlight[user]; ok && time.Now().Before(until) {
		return false
	}
	o.inFlight[user] = time.Now().Add(o.cfg.InFlightLockTTL)
	return true
}

func (o *Orchestrator) releaseInFlight(user types.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, user)
}

func (o *Orchestrator) alreadyAttempted(user types.Address, block uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := attemptKey{user: user, block: block}
	if _, ok := o.attemptedBlock[key]; ok {
		return true
	}
	o.attemptedBlock[key] = struct{}{}
	return false
}

// newDecisionMeta snapshots the context a DecisionTrace needs beyond its
// own action/reason: a fresh correlation ID, how many blocks behind the
// latest known chain head this evaluation's block is, and the user's
// previously observed HF (if any), so MissClassifier can tell a genuine
// head-lag miss or HF-transient miss from an ordinary skip/attempt.
func (o *Orchestrator) newDecisionMeta(user types.Address, block uint64) decisionMeta {
	o.mu.Lock()
	head := o.lastHeadBlock
	o.mu.Unlock()
	headLag := 0
	if head > block {
		headLag = int(head - block)
	}

	prevHf, hasPrevHf := 0.0, false
	if c, ok := o.deps.Candidates.Get(user); ok && c.HasHf {
		prevHf, hasPrevHf = c.LastHf, true
	}

	return decisionMeta{
		correlationID:  uuid.New().String(),
		headLagBlocks:  headLag,
		hfPrevBlock:    prevHf,
		hasHfPrevBlock: hasPrevHf,
	}
}

// addPnl folds a realized (or estimated, pre-confirmation) profit figure
// into the rolling 24h PnL window RiskGate's daily-loss-limit check reads.
func (o *Orchestrator) addPnl(deltaUsd float64) {
	o.mu.Lock()
	o.rollingPnl += deltaUsd
	o.mu.Unlock()
}

// ResetDailyPnl zeroes the rolling 24h PnL window. cmd/liquidator schedules
// this via cron once a day, per spec.md's RiskGate check 11 daily reset.
func (o *Orchestrator) ResetDailyPnl() {
	o.mu.Lock()
	o.rollingPnl = 0
	o.mu.Unlock()
}

// EvaluateUser runs the per-user decision path of spec.md §4.13: HF compute
// -> PreSim lookup/plan -> RiskGate -> sign -> submit -> RBF tracking,
// recording a DecisionTrace regardless of outcome.
func (o *Orchestrator) EvaluateUser(ctx context.Context, user types.Address, block uint64, trigger hotset.TriggerKind) {
	if !o.tryAcquireInFlight(user) {
		return
	}
	defer o.releaseInFlight(user)

	now := time.Now()
	meta := o.newDecisionMeta(user, block)

	hf, ok, err := o.deps.Health.GetHealthFactor(ctx, user, block)
	if err != nil || !ok {
		o.recordSkip(meta, user, now, block, 0, "price_missing")
		return
	}

	o.deps.Candidates.Update(user, hf, now)
	o.deps.HotSet.Update(hotset.Entry{Address: user, Hf: hf, LastUpdatedTs: now, LastBlock: block, TriggerKind: trigger})

	if hf >= o.cfg.ExecutionThreshold {
		return
	}

	data, ok := o.lookupAccountData(ctx, user, block)
	if !ok {
		o.recordSkip(meta, user, now, block, hf, "price_missing")
		return
	}

	plan, planErr := o.deps.PlanBuilder.BuildPlan(ctx, user, data, o.cfg.CloseFactorMode)
	if planErr != nil {
		o.recordSkip(meta, user, now, block, hf, "callstatic_fail")
		return
	}
	plan.CorrelationID = meta.correlationID
	o.deps.PreSim.Set(plan)

	gasPriceGwei, gasCostUsd := o.gasCost(ctx)
	fees := plan.EstimatedProfitUsd * o.cfg.FeeBps / 10_000
	net := plan.EstimatedProfitUsd - fees - gasCostUsd

	duplicate := o.alreadyAttempted(user, block)
	decision := risk.Evaluate(risk.Input{
		ExecutionEnabled:          true,
		User:                      user,
		Block:                     block,
		AlreadyAttemptedThisBlock: duplicate,
		GasPriceGwei:              gasPriceGwei,
		GasPriceCapGwei:           o.cfg.GasPriceCapGwei,
		Hf:                        hf,
		ExecutionThreshold:        o.cfg.ExecutionThreshold,
		CollateralBase:            data.TotalCollateralBase,
		DebtBase:                  data.TotalDebtBase,
		DustWei:                   o.cfg.DustWei,
		DebtUsd:                   plan.DebtUsd,
		MinDebtUsd:                o.cfg.MinDebtUsd,
		RepayUsd:                  plan.RepayUsd,
		MinRepayUsd:               o.cfg.MinRepayUsd,
		Price:                     risk.PriceOK,
		HumanAmount:               0,
		Net:                       net,
		MinProfitAfterGasUsd:      o.cfg.MinProfitAfterGasUsd,
		RollingPnl24hUsd:          o.rollingPnl,
		DailyLossLimitUsd:         o.cfg.DailyLossLimitUsd,
	})

	o.deps.Metrics.DecisionsTotal.WithLabelValues(string(decisionAction(decision.Reason))).Inc()
	if decision.Reason != risk.ReasonOK {
		o.deps.Metrics.SkipReasonsTotal.WithLabelValues(string(decision.Reason)).Inc()
		o.recordSkip(meta, user, now, block, hf, string(decision.Reason))
		return
	}

	o.attempt(ctx, meta, user, block, hf, net, plan)
}

func decisionAction(reason risk.SkipReason) trace.Action {
	if reason == risk.ReasonOK {
		return trace.ActionAttempt
	}
	return trace.ActionSkip
}

// gasCost returns the current suggested gas price in gwei and its USD cost
// for a liquidation-sized transaction (§4.8's "gasCostUsd" term), falling
// back to zero cost if either collaborator is unset or errors so a missing
// gas oracle never blocks evaluation outright.
func (o *Orchestrator) gasCost(ctx context.Context) (gasPriceGwei, gasCostUsd float64) {
	if o.deps.GasPrice == nil {
		return 0, 0
	}
	gwei, err := o.deps.GasPrice.SuggestGasPriceGwei(ctx)
	if err != nil {
		return 0, 0
	}
	if o.deps.NativePrice == nil || o.cfg.GasUnitsEstimate == 0 {
		return gwei, 0
	}
	nativeUsd, err := o.deps.NativePrice.GetPrice(ctx, o.cfg.NativeSymbol)
	if err != nil {
		return gwei, 0
	}
	gasCostNative := gwei * 1e-9 * float64(o.cfg.GasUnitsEstimate)
	return gwei, gasCostNative * nativeUsd
}

func (o *Orchestrator) lookupAccountData(ctx context.Context, user types.Address, block uint64) (health.AccountData, bool) {
	batch := o.deps.Health.Batch(ctx, []types.Address{user}, block)
	d, ok := batch[user]
	return d, ok
}

func (o *Orchestrator) recordSkip(meta decisionMeta, user types.Address, ts time.Time, block uint64, hf float64, reason string) {
	o.deps.Traces.Record(trace.DecisionTrace{
		User:           user,
		Ts:             ts,
		Block:          block,
		HeadLagBlocks:  meta.headLagBlocks,
		HfAtDecision:   hf,
		HfPrevBlock:    meta.hfPrevBlock,
		HasHfPrevBlock: meta.hasHfPrevBlock,
		Action:         trace.ActionSkip,
		SkipReason:     reason,
		Thresholds: trace.Thresholds{
			MinDebtUsd:   o.cfg.MinDebtUsd,
			MinProfitUsd: o.cfg.MinProfitAfterGasUsd,
		},
		CorrelationID: meta.correlationID,
	})
}

func (o *Orchestrator) attempt(ctx context.Context, meta decisionMeta, user types.Address, block uint64, hf, net float64, plan presim.LiquidationPlan) {
	key := o.deps.Keys.SelectKey(user)
	tmpl, err := o.deps.Templates.GetTemplate(plan.Key.DebtAsset, plan.Key.CollateralAsset, block)
	if err != nil {
		o.recordSkip(meta, user, time.Now(), block, hf, "callstatic_fail")
		return
	}
	calldata, err := presim.PatchUserAndRepay(tmpl, user, plan.RepayAmount)
	if err != nil {
		o.recordSkip(meta, user, time.Now(), block, hf, "callstatic_fail")
		return
	}

	nonce, release, err := o.deps.Nonces.AcquireNonce(ctx, key.Address, key.Index)
	if err != nil {
		o.recordSkip(meta, user, time.Now(), block, hf, "callstatic_fail")
		return
	}

	signedTx, txHash, err := o.deps.Signer.Sign(ctx, key, nonce, calldata)
	if err != nil {
		release(false, err)
		o.recordSkip(meta, user, time.Now(), block, hf, "sign_failed")
		return
	}

	res, err := o.deps.Sender.Submit(ctx, signedTx)
	if err != nil {
		release(false, err)
		o.recordSkip(meta, user, time.Now(), block, hf, "broadcast_failed")
		return
	}
	release(true, nil)
	o.addPnl(net)

	o.deps.GasBurst.TrackTransaction(ctx, res.TxHash, nonce, key.Index, gasburst.GasParams{})

	o.deps.Traces.Record(trace.DecisionTrace{
		User:           user,
		Ts:             time.Now(),
		Block:          block,
		HeadLagBlocks:  meta.headLagBlocks,
		HfAtDecision:   hf,
		HfPrevBlock:    meta.hfPrevBlock,
		HasHfPrevBlock: meta.hasHfPrevBlock,
		Action:         trace.ActionAttempt,
		EstProfitUsd:   plan.EstimatedProfitUsd,
		HasAttemptMeta: true,
		AttemptMeta:    trace.AttemptMeta{TxHash: txHash, KeyIndex: key.Index},
		CorrelationID:  meta.correlationID,
	})
}
