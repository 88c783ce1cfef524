package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shadowtick/liquidator/internal/oracle"
	"github.com/shadowtick/liquidator/pkg/types"
)

// Fetch implements oracle.Feed by reading a Chainlink-style
// latestRoundData() off the symbol's registered aggregator and normalizing
// the raw answer to a USD float via types.NormalizeChainlinkPrice.
func (c *Client) Fetch(ctx context.Context, symbol string, block uint64) (oracle.PricePoint, error) {
	agg, ok := c.aggregators[symbol]
	if !ok {
		return oracle.PricePoint{}, fmt.Errorf("chain: no aggregator registered for %s", symbol)
	}

	var blockNumber *big.Int
	if block != 0 {
		blockNumber = new(big.Int).SetUint64(block)
	}

	out, err := agg.Client.Call(ctx, blockNumber, "latestRoundData")
	if err != nil {
		return oracle.PricePoint{}, fmt.Errorf("chain: latestRoundData(%s): %w", symbol, err)
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return oracle.PricePoint{}, fmt.Errorf("chain: unexpected answer type for %s", symbol)
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return oracle.PricePoint{}, fmt.Errorf("chain: unexpected updatedAt type for %s", symbol)
	}

	price := types.NormalizeChainlinkPrice(answer, agg.Decimals)
	return oracle.PricePoint{
		Symbol: symbol,
		Price:  price,
		Ts:     time.Unix(updatedAt.Int64(), 0),
		Block:  block,
		Source: oracle.SourceOracleUSD,
	}, nil
}
