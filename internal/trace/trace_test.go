package trace

import (
	"fmt"
	"testing"
	"time"

	"github.com/shadowtick/liquidator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(n int) types.Address {
	return types.NormalizeAddress(fmt.Sprintf("0x%040d", n))
}

func TestRecordAndFindDecisionNearest(t *testing.T) {
	s := New(10, time.Hour)
	user := addr(1)
	base := time.Now()

	s.Record(DecisionTrace{User: user, Ts: base, Action: ActionSkip, SkipReason: "below_min_debt_usd"})
	s.Record(DecisionTrace{User: user, Ts: base.Add(5 * time.Second), Action: ActionAttempt})

	found, ok := s.FindDecision(user, base.Add(4*time.Second), time.Minute)
	require.True(t, ok)
	assert.Equal(t, ActionAttempt, found.Action)
}

func TestFindDecisionOutsideWindow(t *testing.T) {
	s := New(10, time.Hour)
	user := addr(1)
	base := time.Now()
	s.Record(DecisionTrace{User: user, Ts: base, Action: ActionSkip})

	_, ok := s.FindDecision(user, base.Add(time.Hour), time.Minute)
	assert.False(t, ok)
}

func TestRingBoundedCapacity(t *testing.T) {
	s := New(10, time.Hour)
	s.ringCap = 3
	user := addr(1)
	base := time.Now()
	for i := 0; i < 10; i++ {
		s.Record(DecisionTrace{User: user, Ts: base.Add(time.Duration(i) * time.Second), Action: ActionSkip})
	}
	ring, ok := s.byUser.Get(user)
	require.True(t, ok)
	assert.Len(t, ring.traces, 3)
}

func TestClassifyOurs(t *testing.T) {
	us := addr(99)
	ev := CompetitorLiquidation{User: addr(1), LiquidatorAddr: us}
	result := Classify(ev, map[types.Address]struct{}{us: {}}, true, DecisionTrace{}, false, time.Minute)
	assert.Equal(t, ReasonOurs, result.Reason)
}

func TestClassifyNotInWatchSet(t *testing.T) {
	ev := CompetitorLiquidation{User: addr(1), LiquidatorAddr: addr(2)}
	result := Classify(ev, map[types.Address]struct{}{}, false, DecisionTrace{}, false, time.Minute)
	assert.Equal(t, ReasonNotInWatchSet, result.Reason)
}

func TestClassifyRacedWhenNoTraceButWatched(t *testing.T) {
	ev := CompetitorLiquidation{User: addr(1), LiquidatorAddr: addr(2)}
	result := Classify(ev, map[types.Address]struct{}{}, true, DecisionTrace{}, false, time.Minute)
	assert.Equal(t, ReasonRaced, result.Reason)
}

func TestClassifyRacedWhenAttempted(t *testing.T) {
	ev := CompetitorLiquidation{User: addr(1), LiquidatorAddr: addr(2)}
	tr := DecisionTrace{Action: ActionAttempt, HfAtDecision: 0.9}
	result := Classify(ev, map[types.Address]struct{}{}, true, tr, true, time.Minute)
	assert.Equal(t, ReasonRaced, result.Reason)
}

func TestClassifyHfTransientWhenNoTraceButRecentlySeen(t *testing.T) {
	ev := CompetitorLiquidation{User: addr(1), LiquidatorAddr: addr(2), BlocksSinceFirstSeen: 2}
	result := Classify(ev, map[types.Address]struct{}{}, true, DecisionTrace{}, false, time.Minute)
	assert.Equal(t, ReasonHfTransient, result.Reason)
	assert.Equal(t, 2.0, result.Notes["blocksSinceFirstSeen"])
}

func TestClassifyRacedWhenNoTraceAndNotRecentlySeen(t *testing.T) {
	ev := CompetitorLiquidation{User: addr(1), LiquidatorAddr: addr(2), BlocksSinceFirstSeen: 5}
	result := Classify(ev, map[types.Address]struct{}{}, true, DecisionTrace{}, false, time.Minute)
	assert.Equal(t, ReasonRaced, result.Reason)
}

func TestClassifyFilteredMinDebt(t *testing.T) {
	ev := CompetitorLiquidation{User: addr(1), LiquidatorAddr: addr(2)}
	tr := DecisionTrace{Action: ActionSkip, SkipReason: "below_min_debt_usd", Thresholds: Thresholds{MinDebtUsd: 100}}
	result := Classify(ev, map[types.Address]struct{}{}, true, tr, true, time.Minute)
	assert.Equal(t, ReasonFilteredMinDebt, result.Reason)
	assert.Equal(t, 100.0, result.Notes["minDebtUsd"])
}

func TestClassifyLatencyHeadLag(t *testing.T) {
	ev := CompetitorLiquidation{User: addr(1), LiquidatorAddr: addr(2)}
	tr := DecisionTrace{Action: "other", HeadLagBlocks: 5}
	result := Classify(ev, map[types.Address]struct{}{}, true, tr, true, time.Minute)
	assert.Equal(t, ReasonLatencyHeadLag, result.Reason)
}

func TestClassifyLatencyPricingDelay(t *testing.T) {
	ev := CompetitorLiquidation{User: addr(1), LiquidatorAddr: addr(2)}
	tr := DecisionTrace{Action: "other", HeadLagBlocks: 0, HfAtDecision: 1.1, HasHfPrevBlock: true, HfPrevBlock: 0.8}
	result := Classify(ev, map[types.Address]struct{}{}, true, tr, true, time.Minute)
	assert.Equal(t, ReasonLatencyPricingDelay, result.Reason)
}

func TestClassifyUnknownFallback(t *testing.T) {
	ev := CompetitorLiquidation{User: addr(1), LiquidatorAddr: addr(2)}
	tr := DecisionTrace{Action: "other"}
	result := Classify(ev, map[types.Address]struct{}{}, true, tr, true, time.Minute)
	assert.Equal(t, ReasonUnknown, result.Reason)
}
