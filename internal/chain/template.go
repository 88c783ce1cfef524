package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shadowtick/liquidator/internal/presim"
	"github.com/shadowtick/liquidator/pkg/types"
)

// liquidationCallUserOffset/RepayOffset are fixed by liquidationCall's
// argument order (collateralAsset, debtAsset, user, debtToCover,
// receiveAToken): a 4-byte selector followed by five 32-byte words, so the
// user word starts at 4+32+32=68 and debtToCover at 4+32+32+32=100.
const (
	liquidationCallUserOffset  = 4 + 32 + 32
	liquidationCallRepayOffset = 4 + 32 + 32 + 32
)

// BuildTemplate implements presim.Builder: packs a liquidationCall skeleton
// against the executor ABI with placeholder user/repay words, recording the
// byte offsets PatchUserAndRepay later overwrites in place.
func (c *Client) BuildTemplate(debt, collat types.Address) (presim.CalldataTemplate, error) {
	data, err := c.executor.ABI().Pack("liquidationCall",
		collat.Common(), debt.Common(), common.Address{}, big.NewInt(0), false)
	if err != nil {
		return presim.CalldataTemplate{}, fmt.Errorf("chain: pack liquidationCall template: %w", err)
	}
	if len(data) < liquidationCallRepayOffset+32 {
		return presim.CalldataTemplate{}, fmt.Errorf("chain: packed liquidationCall too short (%d bytes)", len(data))
	}
	return presim.CalldataTemplate{
		DebtToken:   debt,
		CollatToken: collat,
		Buffer:      data,
		UserOffset:  liquidationCallUserOffset,
		RepayOffset: liquidationCallRepayOffset,
	}, nil
}
