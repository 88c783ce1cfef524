package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// GetTransactionReceipt implements gasburst.ReceiptChecker: a nil/not-found
// receipt means "still pending", any other error propagates.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (bool, error) {
	_, err := c.public.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetRevertStatus implements gasburst.RevertChecker: for a mined transaction
// whose receipt reports failure, it replays the call at the receipt's block
// to recover the revert payload for §7's selector classification. A
// successful receipt short-circuits with reverted=false and no replay.
func (c *Client) GetRevertStatus(ctx context.Context, txHash string) (reverted bool, revertData string, err error) {
	hash := common.HexToHash(txHash)
	receipt, err := c.public.TransactionReceipt(ctx, hash)
	if err != nil {
		return false, "", fmt.Errorf("chain: revert status receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return false, "", nil
	}

	tx, isPending, err := c.public.TransactionByHash(ctx, hash)
	if err != nil || isPending {
		return true, "", nil
	}
	from, err := c.public.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return true, "", nil
	}

	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	_, callErr := c.public.CallContract(ctx, msg, receipt.BlockNumber)
	if callErr == nil {
		return true, "", nil
	}
	type dataError interface {
		ErrorData() interface{}
	}
	de, ok := callErr.(dataError)
	if !ok {
		return true, "", nil
	}
	data, ok := de.ErrorData().(string)
	if !ok {
		return true, "", nil
	}
	return true, hex.EncodeToString(common.FromHex(data)), nil
}

// SuggestGasPriceGwei implements orchestrator.GasPriceSource: the network's
// currently suggested legacy gas price, converted from wei to gwei for
// RiskGate's gas_price_too_high comparison (§4.8 step 3).
func (c *Client) SuggestGasPriceGwei(ctx context.Context) (float64, error) {
	wei, err := c.public.SuggestGasPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	gwei := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9))
	f, _ := gwei.Float64()
	return f, nil
}
