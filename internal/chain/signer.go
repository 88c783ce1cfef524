package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shadowtick/liquidator/internal/keys"
)

// pendingCall records one signed submission's destination/calldata so a
// later RBF bump can reconstruct and re-sign an equivalent replacement
// transaction at the same nonce, since gasburst.Resubmitter only carries
// (nonce, keyRef, bumped gas params) and not the original calldata.
type pendingCall struct {
	to   common.Address
	data []byte
}

type pendingKey struct {
	keyRef int
	nonce  uint64
}

// Sign implements orchestrator.Signer: builds, signs, and records a
// liquidationCall transaction against the executor contract so it can later
// be bumped by Resubmitter.
func (c *Client) Sign(ctx context.Context, key keys.Key, nonce uint64, calldata []byte) ([]byte, string, error) {
	tip, err := c.public.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("chain: suggest tip cap: %w", err)
	}
	head, err := c.public.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("chain: header: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		To:        &c.executorAddr,
		Gas:       500_000,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Data:      calldata,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key.PrivateKey)
	if err != nil {
		return nil, "", fmt.Errorf("chain: sign: %w", err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, "", fmt.Errorf("chain: marshal signed tx: %w", err)
	}

	c.pendingMu.Lock()
	c.pendingByNonce[pendingKey{keyRef: key.Index, nonce: nonce}] = pendingCall{to: c.executorAddr, data: calldata}
	c.pendingMu.Unlock()

	return raw, signed.Hash().Hex(), nil
}
