package oracle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	calls int64
	price float64
	ts    time.Time
	err   error
}

func (f *fakeFeed) Fetch(ctx context.Context, symbol string, block uint64) (PricePoint, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return PricePoint{}, f.err
	}
	return PricePoint{Symbol: symbol, Price: f.price, Ts: f.ts, Source: SourceOracleUSD}, nil
}

func TestGetPriceDefersUntilReady(t *testing.T) {
	feed := &fakeFeed{price: 2500, ts: time.Now()}
	o := New(feed, time.Minute, 50)

	done := make(chan PricePoint, 1)
	go func() {
		p, err := o.GetPrice(context.Background(), "WETH")
		require.NoError(t, err)
		done <- p
	}()

	time.Sleep(20 * time.Millisecond)
	o.MarkReady(context.Background())

	select {
	case p := <-done:
		assert.Equal(t, "WETH", p.Symbol)
	case <-time.After(time.Second):
		t.Fatal("GetPrice never resolved after MarkReady")
	}
}

func TestGetPriceStalePrice(t *testing.T) {
	feed := &fakeFeed{price: 1, ts: time.Now().Add(-time.Hour)}
	o := New(feed, time.Minute, 50)
	o.MarkReady(context.Background())

	_, err := o.GetPrice(context.Background(), "WETH")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStalePrice))
}

func TestGetPriceInvalidPrice(t *testing.T) {
	feed := &fakeFeed{price: 0, ts: time.Now()}
	o := New(feed, time.Minute, 50)
	o.MarkReady(context.Background())

	_, err := o.GetPrice(context.Background(), "WETH")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPrice))
}

func TestAliasResolution(t *testing.T) {
	feed := &fakeFeed{price: 1, ts: time.Now()}
	o := New(feed, time.Minute, 50)
	o.RegisterAlias("USDbC", "USDC")
	o.MarkReady(context.Background())

	p, err := o.GetPrice(context.Background(), "USDbC")
	require.NoError(t, err)
	assert.Equal(t, SourceAlias, p.Source)
	assert.Equal(t, "USDC", p.Symbol)
}

func TestRatioResolution(t *testing.T) {
	feed := &fakeFeed{price: 2500, ts: time.Now()}
	o := New(feed, time.Minute, 50)
	o.RegisterRatio("wstETH", "WETH", func(ctx context.Context) (float64, error) {
		return 1.15, nil
	})
	o.MarkReady(context.Background())

	p, err := o.GetPrice(context.Background(), "wstETH")
	require.NoError(t, err)
	assert.InDelta(t, 2875.0, p.Price, 1e-9)
	assert.Equal(t, SourceOracleRatio, p.Source)
}

func TestDevModeStubsBeforeReady(t *testing.T) {
	feed := &fakeFeed{price: 1, ts: time.Now()}
	o := New(feed, time.Minute, 50, WithDevModeStubs())

	p, err := o.GetPrice(context.Background(), "WETH")
	require.NoError(t, err)
	assert.Equal(t, SourceStub, p.Source)
}

func TestDriftExceededWithNoHotCache(t *testing.T) {
	feed := &fakeFeed{price: 1, ts: time.Now()}
	o := New(feed, time.Minute, 50)
	assert.True(t, o.DriftExceeded("WETH", 2500))
}

func TestDriftExceededThreshold(t *testing.T) {
	feed := &fakeFeed{price: 2500, ts: time.Now()}
	o := New(feed, time.Minute, 50)
	o.MarkReady(context.Background())
	_, err := o.GetPrice(context.Background(), "WETH")
	require.NoError(t, err)

	assert.False(t, o.DriftExceeded("WETH", 2505))
	assert.True(t, o.DriftExceeded("WETH", 2600))
}
