package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TransactionRecord tracks a single on-chain submission for financial
// transparency: gas used, price and cost. Adapted from the teacher's staking
// TransactionRecord. No component in this repository builds a ledger of
// these records; RiskGate's daily-loss check and the diagnostic dump do not
// read them.
type TransactionRecord struct {
	TxHash    common.Hash
	GasUsed   uint64
	GasPrice  *big.Int
	GasCost   *big.Int // GasUsed * GasPrice, wei
	Timestamp time.Time
	Operation string
}

// ExtractGasCost computes GasUsed * EffectiveGasPrice from a mined receipt.
func ExtractGasCost(receipt *gethtypes.Receipt) *big.Int {
	if receipt == nil || receipt.EffectiveGasPrice == nil {
		return big.NewInt(0)
	}
	cost := new(big.Int).SetUint64(receipt.GasUsed)
	return cost.Mul(cost, receipt.EffectiveGasPrice)
}
