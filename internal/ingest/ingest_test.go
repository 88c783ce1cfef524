package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shadowtick/liquidator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	heads chan uint64
	logs  chan PoolEvent
	block uint64
}

func newFakeSource() *fakeSource {
	return &fakeSource{heads: make(chan uint64, 10), logs: make(chan PoolEvent, 10)}
}

func (f *fakeSource) SubscribeHeads(ctx context.Context) (<-chan uint64, error) { return f.heads, nil }
func (f *fakeSource) SubscribeLogs(ctx context.Context) (<-chan PoolEvent, error) {
	return f.logs, nil
}
func (f *fakeSource) BackfillLogs(ctx context.Context, from, to uint64, chunk int) ([]PoolEvent, error) {
	return nil, nil
}
func (f *fakeSource) GetBlockNumber(ctx context.Context) (uint64, error) { return f.block, nil }

func addr(n int) types.Address {
	return types.NormalizeAddress(fmt.Sprintf("0x%040d", n))
}

func TestHeadDebounce(t *testing.T) {
	src := newFakeSource()
	ing := New(src, Config{CoalesceWindow: 50 * time.Millisecond}, zerolog.Nop(), 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ing.Start(ctx))
	src.heads <- 100
	src.heads <- 100
	src.heads <- 101

	var got []uint64
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case s := <-ing.Signals():
			got = append(got, s.Block)
		case <-timeout:
			t.Fatal("timed out waiting for head signals")
		}
	}
	assert.Equal(t, []uint64{100, 101}, got)
}

func TestDedupByLocator(t *testing.T) {
	src := newFakeSource()
	ing := New(src, Config{CoalesceWindow: 50 * time.Millisecond}, zerolog.Nop(), 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ing.Start(ctx))

	ev := PoolEvent{Kind: EventBorrow, Loc: LogLocator{Block: 5, LogIndex: 1}, Users: []types.Address{addr(1)}}
	src.logs <- ev
	src.logs <- ev

	select {
	case s := <-ing.Signals():
		assert.Equal(t, SignalEvent, s.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected one event signal")
	}

	select {
	case s := <-ing.Signals():
		t.Fatalf("unexpected second signal for duplicate event: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReserveDataCoalescing(t *testing.T) {
	src := newFakeSource()
	ing := New(src, Config{CoalesceWindow: 30 * time.Millisecond, MaxBatchSize: 10}, zerolog.Nop(), 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ing.Start(ctx))

	for i := 0; i < 3; i++ {
		src.logs <- PoolEvent{
			Kind: EventReserveDataUpdated,
			Loc:  LogLocator{Block: uint64(i), LogIndex: 0},
		}
	}

	select {
	case s := <-ing.Signals():
		assert.Equal(t, SignalCoalescedReserveBatch, s.Kind)
		assert.Len(t, s.ReserveBatch, 3)
	case <-time.After(time.Second):
		t.Fatal("expected coalesced batch signal")
	}
}

func TestCoalesceFlushesAtMaxBatchSize(t *testing.T) {
	src := newFakeSource()
	ing := New(src, Config{CoalesceWindow: time.Minute, MaxBatchSize: 2}, zerolog.Nop(), 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ing.Start(ctx))

	src.logs <- PoolEvent{Kind: EventReserveDataUpdated, Loc: LogLocator{Block: 1, LogIndex: 0}}
	src.logs <- PoolEvent{Kind: EventReserveDataUpdated, Loc: LogLocator{Block: 2, LogIndex: 0}}

	select {
	case s := <-ing.Signals():
		assert.Equal(t, SignalCoalescedReserveBatch, s.Kind)
		assert.Len(t, s.ReserveBatch, 2)
	case <-time.After(time.Second):
		t.Fatal("expected immediate flush at max batch size")
	}
}

func TestHealthyRequiresRecentMessage(t *testing.T) {
	src := newFakeSource()
	ing := New(src, Config{CoalesceWindow: time.Second}, zerolog.Nop(), 10)
	assert.False(t, ing.Healthy(time.Minute), "should be unhealthy before any message")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ing.Start(ctx))
	src.heads <- 1
	<-ing.Signals()
	assert.True(t, ing.Healthy(time.Minute))
}
