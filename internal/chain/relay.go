package chain

import (
	"context"
	"fmt"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// SubmitPrivate implements submit.PrivateRelay over the dedicated private-RPC
// connection (when configured), submitting a raw signed tx without public
// mempool propagation.
func (c *Client) SubmitPrivate(ctx context.Context, signedTx []byte) (string, error) {
	if c.private == nil {
		return "", fmt.Errorf("chain: private relay not configured")
	}
	tx, err := decodeSignedTx(signedTx)
	if err != nil {
		return "", err
	}
	if err := c.private.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("chain: private submit: %w", err)
	}
	return tx.Hash().Hex(), nil
}

func decodeSignedTx(raw []byte) (*gethtypes.Transaction, error) {
	tx := new(gethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("chain: decode signed tx: %w", err)
	}
	return tx, nil
}
