package chain

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shadowtick/liquidator/internal/health"
	"github.com/shadowtick/liquidator/internal/reserve"
	"github.com/shadowtick/liquidator/pkg/types"
)

// BatchGetUserAccountData implements health.PoolReader. Aave v3's
// getUserAccountData has no native multicall variant in this trimmed ABI, so
// each user is an individual eth_call at the same block tag; per spec.md
// §4.3 a failure on one user is reported per-user and never aborts the
// batch. A real deployment would route this through a Multicall3 aggregate
// call for fewer round-trips; the per-user fallback here is always correct
// and is what chunking (batchSize) exists to bound.
func (c *Client) BatchGetUserAccountData(ctx context.Context, users []types.Address, blockTag uint64) (map[types.Address]health.AccountData, map[types.Address]error) {
	var blockNumber *big.Int
	if blockTag != 0 {
		blockNumber = new(big.Int).SetUint64(blockTag)
	}

	ok := make(map[types.Address]health.AccountData, len(users))
	fail := make(map[types.Address]error)

	for _, u := range users {
		out, err := c.pool.Call(ctx, blockNumber, "getUserAccountData", u.Common())
		if err != nil {
			fail[u] = err
			continue
		}
		data, err := decodeAccountData(out)
		if err != nil {
			fail[u] = err
			continue
		}
		ok[u] = data
	}
	return ok, fail
}

func decodeAccountData(out []any) (health.AccountData, error) {
	get := func(i int) *big.Int {
		v, _ := out[i].(*big.Int)
		return v
	}
	return health.AccountData{
		TotalCollateralBase:         get(0),
		TotalDebtBase:               get(1),
		CurrentLiquidationThreshold: get(3),
		Ltv:                         get(4),
		HealthFactor:                get(5),
	}, nil
}

// GetReserveIndices reads a reserve's liquidity/variableBorrow indices at the
// given block, feeding reserve.Tracker.ShouldRecheck/Commit.
func (c *Client) GetReserveIndices(ctx context.Context, reserveAddr types.Address, blockTag uint64) (reserve.Snapshot, error) {
	var blockNumber *big.Int
	if blockTag != 0 {
		blockNumber = new(big.Int).SetUint64(blockTag)
	}
	out, err := c.pool.Call(ctx, blockNumber, "getReserveData", reserveAddr.Common())
	if err != nil {
		return reserve.Snapshot{}, err
	}
	liquidityIndex, _ := out[1].(*big.Int)
	variableBorrowIndex, _ := out[3].(*big.Int)
	return reserve.Snapshot{
		Reserve:             reserveAddr,
		LiquidityIndex:      uint256.MustFromBig(bigOrZero(liquidityIndex)),
		VariableBorrowIndex: uint256.MustFromBig(bigOrZero(variableBorrowIndex)),
		BlockNumber:         blockTag,
	}, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
