// Package risk implements C10 ProfitCalculator + RiskGate: the canonical
// profit formula and the ordered gate of structured skip reasons.
package risk

import (
	"math/big"

	"github.com/shadowtick/liquidator/pkg/types"
)

// SkipReason enumerates the RiskGate's structured reasons, in the exact
// check order of spec.md §4.8.
type SkipReason string

const (
	ReasonOK                  SkipReason = "ok"
	ReasonExecutionDisabled   SkipReason = "execution_disabled"
	ReasonDuplicateBlock      SkipReason = "duplicate_block"
	ReasonGasPriceTooHigh     SkipReason = "gas_price_too_high"
	ReasonHfNotBelowThreshold SkipReason = "hf_not_below_threshold"
	ReasonDustPosition        SkipReason = "dust_position"
	ReasonBelowMinDebtUsd     SkipReason = "below_min_debt_usd"
	ReasonBelowMinRepayUsd    SkipReason = "below_min_repay_usd"
	ReasonPriceStale          SkipReason = "price_stale"
	ReasonPriceMissing        SkipReason = "price_missing"
	ReasonScalingAnomaly      SkipReason = "scaling_anomaly"
	ReasonInsufficientProfit  SkipReason = "insufficient_profit"
	ReasonDailyLossLimit      SkipReason = "daily_loss_limit"
)

// CanonicalProfit computes the post-event reconciled profit per spec.md
// §4.8: "collateralAmount already includes liquidation bonus."
func CanonicalProfit(collateralValueUsd, principalValueUsd, feeBps, gasCostUsd float64) (net float64) {
	rawSpread := collateralValueUsd - principalValueUsd
	gross := rawSpread
	fees := gross * feeBps / 10_000
	return gross - fees - gasCostUsd
}

// EstimateProfit computes the pre-trade gating estimate per §4.8.
func EstimateProfit(debtUsd, bonusPct, gasCostUsd, fees float64) float64 {
	estProfit := debtUsd * bonusPct
	return estProfit - gasCostUsd - fees
}

// PriceStatus is the oracle's outcome for a gated evaluation, letting the
// gate distinguish stale-from-missing without importing the oracle package.
type PriceStatus int

const (
	PriceOK PriceStatus = iota
	PriceStale
	PriceMissing
)

// Input bundles everything the RiskGate's ordered checks need.
type Input struct {
	ExecutionEnabled bool

	User  types.Address
	Block uint64

	AlreadyAttemptedThisBlock bool

	GasPriceGwei    float64
	GasPriceCapGwei float64

	Hf                 float64
	ExecutionThreshold float64

	CollateralBase *big.Int
	DebtBase       *big.Int
	DustWei        *big.Int

	DebtUsd    float64
	MinDebtUsd float64

	RepayUsd    float64
	MinRepayUsd float64

	Price PriceStatus

	HumanAmount float64 // heuristic scaling-anomaly input

	Net                 float64
	MinProfitAfterGasUsd float64

	RollingPnl24hUsd float64
	DailyLossLimitUsd float64 // L, a positive magnitude
}

// Decision is the RiskGate's output: the first failing reason, or ok.
type Decision struct {
	Reason SkipReason
}

// Evaluate runs the ordered checks of spec.md §4.8 and returns the first
// failing reason, or ReasonOK if every check passes.
func Evaluate(in Input) Decision {
	if !in.ExecutionEnabled {
		return Decision{Reason: ReasonExecutionDisabled}
	}
	if in.AlreadyAttemptedThisBlock {
		return Decision{Reason: ReasonDuplicateBlock}
	}
	if in.GasPriceGwei > in.GasPriceCapGwei {
		return Decision{Reason: ReasonGasPriceTooHigh}
	}
	if in.Hf >= in.ExecutionThreshold {
		return Decision{Reason: ReasonHfNotBelowThreshold}
	}
	if minBigInt(in.CollateralBase, in.DebtBase).Cmp(in.DustWei) <= 0 {
		return Decision{Reason: ReasonDustPosition}
	}
	if in.DebtUsd < in.MinDebtUsd {
		return Decision{Reason: ReasonBelowMinDebtUsd}
	}
	if in.RepayUsd < in.MinRepayUsd {
		return Decision{Reason: ReasonBelowMinRepayUsd}
	}
	switch in.Price {
	case PriceStale:
		return Decision{Reason: ReasonPriceStale}
	case PriceMissing:
		return Decision{Reason: ReasonPriceMissing}
	}
	if in.HumanAmount > 1_000_000 && in.RepayUsd < 0.01 {
		return Decision{Reason: ReasonScalingAnomaly}
	}
	if in.Net < in.MinProfitAfterGasUsd {
		return Decision{Reason: ReasonInsufficientProfit}
	}
	if in.RollingPnl24hUsd <= -in.DailyLossLimitUsd {
		return Decision{Reason: ReasonDailyLossLimit}
	}
	return Decision{Reason: ReasonOK}
}

func minBigInt(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
