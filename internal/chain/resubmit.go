package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shadowtick/liquidator/internal/gasburst"
)

// ResignAndBroadcast implements gasburst.Resubmitter: looks up the original
// (to, calldata) recorded by Sign for this (keyRef, nonce), rebuilds a
// replacement transaction with the bumped gas params, re-signs with the
// same key, and broadcasts it.
func (c *Client) ResignAndBroadcast(ctx context.Context, nonce uint64, keyRef int, params gasburst.GasParams) (string, error) {
	c.pendingMu.Lock()
	call, ok := c.pendingByNonce[pendingKey{keyRef: keyRef, nonce: nonce}]
	c.pendingMu.Unlock()
	if !ok {
		return "", fmt.Errorf("chain: no pending calldata recorded for key %d nonce %d", keyRef, nonce)
	}

	key, err := c.keyByIndex(keyRef)
	if err != nil {
		return "", err
	}

	var tx *types.Transaction
	if params.IsEip1559 {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   c.chainID,
			Nonce:     nonce,
			To:        &call.to,
			Gas:       500_000,
			GasTipCap: params.MaxPriorityFeePerGas,
			GasFeeCap: params.MaxFeePerGas,
			Data:      call.data,
		})
	} else {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &call.to,
			Gas:      500_000,
			GasPrice: params.GasPrice,
			Data:     call.data,
		})
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("chain: resign: %w", err)
	}
	if err := c.public.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: resubmit broadcast: %w", err)
	}

	newHash := signed.Hash().Hex()
	c.pendingMu.Lock()
	c.pendingByNonce[pendingKey{keyRef: keyRef, nonce: nonce}] = call
	c.pendingMu.Unlock()

	return newHash, nil
}

// keyByIndex looks up a registered signing key by index; the Client needs
// its own copy of the key set to re-sign RBF replacements independent of
// keys.Manager's selection policy.
func (c *Client) keyByIndex(idx int) (signingKey, error) {
	if idx < 0 || idx >= len(c.signingKeys) {
		return signingKey{}, fmt.Errorf("chain: no signing key at index %d", idx)
	}
	return c.signingKeys[idx], nil
}
