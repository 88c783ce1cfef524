package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRiskItem struct {
	hf  float64
	debt float64
}

func (f fakeRiskItem) RiskHf() float64      { return f.hf }
func (f fakeRiskItem) RiskDebtUsd() float64 { return f.debt }

func TestCanEvaluateUsersPerTickCap(t *testing.T) {
	tr := New(Config{MaxUsersPerTick: 5, TicksPerMinute: 120, CostPerHfRead: 0.0001, HourlyUsdBudget: 100})
	d := tr.CanEvaluateUsers(10, "")
	assert.Equal(t, ReasonPerTickCap, d.Reason)
	assert.Equal(t, 5, d.Allowed)
}

func TestCanEvaluateUsersHourlyBudget(t *testing.T) {
	tr := New(Config{MaxUsersPerTick: 1000, TicksPerMinute: 120, CostPerHfRead: 1.0, HourlyUsdBudget: 10})
	tr.StartTick(time.Now())
	d := tr.CanEvaluateUsers(5, "")
	assert.Equal(t, ReasonNone, d.Reason)
	assert.Equal(t, 5, d.Allowed)

	d2 := tr.CanEvaluateUsers(20, "")
	assert.Equal(t, ReasonHourlyBudget, d2.Reason)
	assert.Equal(t, 5, d2.Allowed)
}

func TestCanEvaluateUsersPerAssetCap(t *testing.T) {
	tr := New(Config{MaxUsersPerTick: 1000, TicksPerMinute: 1200, CostPerHfRead: 0.0001, HourlyUsdBudget: 1000, MaxUsersPerAsset: 3})
	tr.StartTick(time.Now())
	d := tr.CanEvaluateUsers(2, "WETH")
	assert.Equal(t, ReasonNone, d.Reason)

	d2 := tr.CanEvaluateUsers(5, "WETH")
	assert.Equal(t, ReasonPerAssetCap, d2.Reason)
	assert.Equal(t, 1, d2.Allowed)
}

func TestStartTickResetsHourlyWindow(t *testing.T) {
	tr := New(Config{MaxUsersPerTick: 1000, TicksPerMinute: 1200, CostPerHfRead: 1.0, HourlyUsdBudget: 5})
	now := time.Now()
	tr.StartTick(now)
	tr.CanEvaluateUsers(5, "")

	tr.StartTick(now.Add(2 * time.Hour))
	d := tr.CanEvaluateUsers(5, "")
	assert.Equal(t, ReasonNone, d.Reason)
}

func TestDownsampleToFitSortsByRiskThenCaps(t *testing.T) {
	tr := New(Config{MaxUsersPerTick: 2, TicksPerMinute: 1200, CostPerHfRead: 0.0001, HourlyUsdBudget: 1000})
	list := []fakeRiskItem{
		{hf: 1.5, debt: 100},
		{hf: 0.9, debt: 50},
		{hf: 0.9, debt: 200},
	}
	out := DownsampleToFit(tr, list, "")
	assert.Len(t, out, 2)
	assert.Equal(t, 200.0, out[0].debt)
	assert.Equal(t, 50.0, out[1].debt)
}

func TestFallbackOrchestratorUnhealthyIsBroader(t *testing.T) {
	f := NewFallbackOrchestrator(100, 500)
	d := f.Evaluate(ProviderHealth{Healthy: false}, PriceShock{}, false)
	assert.Equal(t, ModeBroader, d.Mode)
	assert.Equal(t, 500, d.MaxUsers)
}

func TestFallbackOrchestratorRecentShockIsBroader(t *testing.T) {
	f := NewFallbackOrchestrator(100, 500)
	d := f.Evaluate(ProviderHealth{Healthy: true}, PriceShock{DropBps: 150, WithinSeconds: 30}, false)
	assert.Equal(t, ModeBroader, d.Mode)
}

func TestFallbackOrchestratorNearOnly(t *testing.T) {
	f := NewFallbackOrchestrator(100, 500)
	d := f.Evaluate(ProviderHealth{Healthy: true}, PriceShock{}, true)
	assert.Equal(t, ModeNearOnly, d.Mode)
}

func TestFallbackOrchestratorPassive(t *testing.T) {
	f := NewFallbackOrchestrator(100, 500)
	d := f.Evaluate(ProviderHealth{Healthy: true}, PriceShock{}, false)
	assert.Equal(t, ModePassive, d.Mode)
}
