package health

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/shadowtick/liquidator/internal/metrics"
	"github.com/shadowtick/liquidator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(n int) types.Address {
	return types.NormalizeAddress(fmt.Sprintf("0x%040d", n))
}

type fakeReader struct {
	calls int
	data  map[types.Address]AccountData
	fail  map[types.Address]error
}

func (f *fakeReader) BatchGetUserAccountData(ctx context.Context, users []types.Address, blockTag uint64) (map[types.Address]AccountData, map[types.Address]error) {
	f.calls++
	data := make(map[types.Address]AccountData)
	fails := make(map[types.Address]error)
	for _, u := range users {
		if err, ok := f.fail[u]; ok {
			fails[u] = err
			continue
		}
		if d, ok := f.data[u]; ok {
			data[u] = d
		}
	}
	return data, fails
}

func TestGetHealthFactorCachesResult(t *testing.T) {
	reader := &fakeReader{data: map[types.Address]AccountData{
		addr(1): {TotalDebtBase: big.NewInt(100), HealthFactor: big.NewInt(1_500_000_000_000_000_000)},
	}}
	e := New(reader, 100, time.Minute, 10, metrics.New())

	hf, ok, err := e.GetHealthFactor(context.Background(), addr(1), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 1.5, hf, 1e-9)

	_, _, err = e.GetHealthFactor(context.Background(), addr(1), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.calls, "second call should be served from cache")
}

func TestGetHealthFactorPropagatesPerUserFailure(t *testing.T) {
	reader := &fakeReader{fail: map[types.Address]error{addr(1): fmt.Errorf("revert")}}
	e := New(reader, 100, time.Minute, 10, metrics.New())

	_, _, err := e.GetHealthFactor(context.Background(), addr(1), 0)
	assert.Error(t, err)
}

func TestHfDustDebtIsInfinite(t *testing.T) {
	a := AccountData{TotalDebtBase: big.NewInt(0), HealthFactor: big.NewInt(0)}
	assert.True(t, math.IsInf(a.Hf(), 1))
}

func TestBatchNeverAbortsOnSingleFailure(t *testing.T) {
	reader := &fakeReader{
		data: map[types.Address]AccountData{
			addr(1): {TotalDebtBase: big.NewInt(100), HealthFactor: big.NewInt(2_000_000_000_000_000_000)},
		},
		fail: map[types.Address]error{addr(2): fmt.Errorf("revert")},
	}
	e := New(reader, 100, time.Minute, 10, metrics.New())

	out := e.Batch(context.Background(), []types.Address{addr(1), addr(2)}, 0)
	assert.Len(t, out, 1)
	_, ok := out[addr(1)]
	assert.True(t, ok)
}

func TestFilterLiquidatable(t *testing.T) {
	data := map[types.Address]AccountData{
		addr(1): {TotalDebtBase: big.NewInt(100), HealthFactor: big.NewInt(900_000_000_000_000_000)},
		addr(2): {TotalDebtBase: big.NewInt(100), HealthFactor: big.NewInt(1_100_000_000_000_000_000)},
	}
	out := FilterLiquidatable(data)
	assert.Len(t, out, 1)
	_, ok := out[addr(1)]
	assert.True(t, ok)
}

func TestBatchChunksAtBatchSize(t *testing.T) {
	reader := &fakeReader{data: map[types.Address]AccountData{}}
	users := make([]types.Address, 0, 250)
	for i := 0; i < 250; i++ {
		a := addr(i)
		users = append(users, a)
		reader.data[a] = AccountData{TotalDebtBase: big.NewInt(1), HealthFactor: big.NewInt(1e18)}
	}
	e := New(reader, 100, time.Minute, 500, metrics.New())
	out := e.Batch(context.Background(), users, 0)
	assert.Len(t, out, 250)
	assert.Equal(t, 3, reader.calls)
}
