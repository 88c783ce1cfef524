package risk

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseInput() Input {
	return Input{
		ExecutionEnabled:   true,
		GasPriceGwei:       1,
		GasPriceCapGwei:    50,
		Hf:                 0.9,
		ExecutionThreshold: 1.0,
		CollateralBase:     big.NewInt(1_000_000),
		DebtBase:           big.NewInt(1_000_000),
		DustWei:            big.NewInt(1),
		DebtUsd:            1000,
		MinDebtUsd:         100,
		RepayUsd:           500,
		MinRepayUsd:        50,
		Price:              PriceOK,
		HumanAmount:        10,
		Net:                100,
		MinProfitAfterGasUsd: 10,
		RollingPnl24hUsd:   0,
		DailyLossLimitUsd:  1000,
	}
}

func TestOrderedChecksStopAtFirstFailure(t *testing.T) {
	in := baseInput()
	in.ExecutionEnabled = false
	in.AlreadyAttemptedThisBlock = true
	assert.Equal(t, ReasonExecutionDisabled, Evaluate(in).Reason)
}

func TestDuplicateBlockBeforeGasPrice(t *testing.T) {
	in := baseInput()
	in.AlreadyAttemptedThisBlock = true
	in.GasPriceGwei = 1000
	assert.Equal(t, ReasonDuplicateBlock, Evaluate(in).Reason)
}

func TestGasPriceTooHigh(t *testing.T) {
	in := baseInput()
	in.GasPriceGwei = 100
	assert.Equal(t, ReasonGasPriceTooHigh, Evaluate(in).Reason)
}

func TestHfNotBelowThreshold(t *testing.T) {
	in := baseInput()
	in.Hf = 1.5
	assert.Equal(t, ReasonHfNotBelowThreshold, Evaluate(in).Reason)
}

func TestDustPosition(t *testing.T) {
	in := baseInput()
	in.CollateralBase = big.NewInt(0)
	in.DustWei = big.NewInt(10)
	assert.Equal(t, ReasonDustPosition, Evaluate(in).Reason)
}

func TestDustPositionAtExactThreshold(t *testing.T) {
	in := baseInput()
	in.CollateralBase = big.NewInt(10)
	in.DebtBase = big.NewInt(20)
	in.DustWei = big.NewInt(10)
	assert.Equal(t, ReasonDustPosition, Evaluate(in).Reason)
}

func TestBelowMinDebtUsd(t *testing.T) {
	in := baseInput()
	in.DebtUsd = 1
	assert.Equal(t, ReasonBelowMinDebtUsd, Evaluate(in).Reason)
}

func TestBelowMinRepayUsd(t *testing.T) {
	in := baseInput()
	in.RepayUsd = 1
	assert.Equal(t, ReasonBelowMinRepayUsd, Evaluate(in).Reason)
}

func TestPriceStaleAndMissing(t *testing.T) {
	in := baseInput()
	in.Price = PriceStale
	assert.Equal(t, ReasonPriceStale, Evaluate(in).Reason)

	in.Price = PriceMissing
	assert.Equal(t, ReasonPriceMissing, Evaluate(in).Reason)
}

func TestScalingAnomaly(t *testing.T) {
	in := baseInput()
	in.HumanAmount = 2_000_000
	in.RepayUsd = 0.005
	in.MinRepayUsd = 0
	assert.Equal(t, ReasonScalingAnomaly, Evaluate(in).Reason)
}

func TestInsufficientProfit(t *testing.T) {
	in := baseInput()
	in.Net = 1
	assert.Equal(t, ReasonInsufficientProfit, Evaluate(in).Reason)
}

func TestDailyLossLimit(t *testing.T) {
	in := baseInput()
	in.RollingPnl24hUsd = -2000
	assert.Equal(t, ReasonDailyLossLimit, Evaluate(in).Reason)
}

func TestOkWhenAllChecksPass(t *testing.T) {
	in := baseInput()
	assert.Equal(t, ReasonOK, Evaluate(in).Reason)
}

func TestCanonicalProfitFormula(t *testing.T) {
	net := CanonicalProfit(1100, 1000, 100, 5)
	assert.InDelta(t, 94.0, net, 1e-9)
}

func TestEstimateProfitFormula(t *testing.T) {
	est := EstimateProfit(1000, 0.05, 2, 1)
	assert.InDelta(t, 47.0, est, 1e-9)
}
