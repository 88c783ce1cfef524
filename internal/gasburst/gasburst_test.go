package gasburst

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shadowtick/liquidator/internal/metrics"
	"github.com/shadowtick/liquidator/internal/revert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceipts struct {
	mu    sync.Mutex
	mined map[string]bool
}

func (f *fakeReceipts) GetTransactionReceipt(ctx context.Context, txHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mined[txHash], nil
}

func (f *fakeReceipts) markMined(hash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mined[hash] = true
}

type fakeResubmitter struct {
	mu     sync.Mutex
	calls  int
	hashes []string
	err    error
}

func (f *fakeResubmitter) ResignAndBroadcast(ctx context.Context, nonce uint64, keyRef int, params GasParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	hash := fmt.Sprintf("0xbump%d", f.calls)
	f.hashes = append(f.hashes, hash)
	return hash, nil
}

func TestStopsWhenMinedBeforeFirstCheckpoint(t *testing.T) {
	receipts := &fakeReceipts{mined: map[string]bool{"0xorig": true}}
	resubmit := &fakeResubmitter{}
	m := New(Config{FirstCheck: 10 * time.Millisecond, SecondCheck: 20 * time.Millisecond, BumpPct: 10, MaxBumps: 2}, receipts, resubmit, metrics.New())

	m.TrackTransaction(context.Background(), "0xorig", 1, 0, GasParams{IsEip1559: true, MaxFeePerGas: big.NewInt(100)})
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, resubmit.calls)
	assert.False(t, m.IsTracked("0xorig"))
}

func TestBumpsWhenStillPending(t *testing.T) {
	receipts := &fakeReceipts{mined: map[string]bool{}}
	resubmit := &fakeResubmitter{}
	m := New(Config{FirstCheck: 5 * time.Millisecond, SecondCheck: 500 * time.Millisecond, BumpPct: 10, MaxBumps: 2}, receipts, resubmit, metrics.New())

	m.TrackTransaction(context.Background(), "0xorig", 1, 0, GasParams{IsEip1559: true, MaxFeePerGas: big.NewInt(100), MaxPriorityFeePerGas: big.NewInt(10)})
	time.Sleep(50 * time.Millisecond)

	require.GreaterOrEqual(t, resubmit.calls, 1)
	assert.True(t, m.IsTracked(resubmit.hashes[0]))
}

func TestStopsAfterMaxBumps(t *testing.T) {
	receipts := &fakeReceipts{mined: map[string]bool{}}
	resubmit := &fakeResubmitter{}
	m := New(Config{FirstCheck: 5 * time.Millisecond, SecondCheck: 10 * time.Millisecond, BumpPct: 10, MaxBumps: 1}, receipts, resubmit, metrics.New())

	m.TrackTransaction(context.Background(), "0xorig", 1, 0, GasParams{GasPrice: big.NewInt(50)})
	time.Sleep(80 * time.Millisecond)

	assert.LessOrEqual(t, resubmit.calls, 1)
}

type fakeRevertChecker struct {
	reverted map[string]string
}

func (f *fakeRevertChecker) GetRevertStatus(ctx context.Context, txHash string) (bool, string, error) {
	data, ok := f.reverted[txHash]
	return ok, data, nil
}

func TestClassifiesRevertOnMinedFailure(t *testing.T) {
	receipts := &fakeReceipts{mined: map[string]bool{"0xorig": true}}
	resubmit := &fakeResubmitter{}
	m := New(Config{FirstCheck: 10 * time.Millisecond, SecondCheck: 20 * time.Millisecond, BumpPct: 10, MaxBumps: 2}, receipts, resubmit, metrics.New())
	m.SetRevertChecker(&fakeRevertChecker{reverted: map[string]string{"0xorig": "0x0c1e0e13"}})

	var gotHash, gotCode string
	done := make(chan struct{})
	m.OnRevert(func(txHash string, c revert.Classification) {
		gotHash, gotCode = txHash, c.Code
		close(done)
	})

	m.TrackTransaction(context.Background(), "0xorig", 1, 0, GasParams{IsEip1559: true, MaxFeePerGas: big.NewInt(100)})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onRevert callback never fired")
	}
	assert.Equal(t, "0xorig", gotHash)
	assert.Equal(t, "user_not_liquidatable", gotCode)
}

func TestNoRevertCallbackWhenReceiptSucceeds(t *testing.T) {
	receipts := &fakeReceipts{mined: map[string]bool{"0xorig": true}}
	resubmit := &fakeResubmitter{}
	m := New(Config{FirstCheck: 10 * time.Millisecond, SecondCheck: 20 * time.Millisecond, BumpPct: 10, MaxBumps: 2}, receipts, resubmit, metrics.New())
	m.SetRevertChecker(&fakeRevertChecker{reverted: map[string]string{}})

	called := false
	m.OnRevert(func(txHash string, c revert.Classification) { called = true })

	m.TrackTransaction(context.Background(), "0xorig", 1, 0, GasParams{IsEip1559: true, MaxFeePerGas: big.NewInt(100)})
	time.Sleep(50 * time.Millisecond)
	assert.False(t, called)
}

func TestGasParamsBumpEip1559(t *testing.T) {
	p := GasParams{IsEip1559: true, MaxFeePerGas: big.NewInt(100), MaxPriorityFeePerGas: big.NewInt(10)}
	bumped := p.Bump(10)
	assert.Equal(t, big.NewInt(110), bumped.MaxFeePerGas)
	assert.Equal(t, big.NewInt(11), bumped.MaxPriorityFeePerGas)
}

func TestGasParamsBumpLegacy(t *testing.T) {
	p := GasParams{GasPrice: big.NewInt(200)}
	bumped := p.Bump(25)
	assert.Equal(t, big.NewInt(250), bumped.GasPrice)
}
