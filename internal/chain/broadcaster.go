package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// EndpointBroadcaster implements submit.Broadcaster for a single public RPC
// endpoint; WriteRacer holds one per configured endpoint and fires them all
// concurrently.
type EndpointBroadcaster struct {
	client *ethclient.Client
}

// DialBroadcaster dials a public RPC endpoint for use with submit.WriteRacer.
func DialBroadcaster(url string) (*EndpointBroadcaster, error) {
	cl, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial broadcaster endpoint %s: %w", url, err)
	}
	return &EndpointBroadcaster{client: cl}, nil
}

// Broadcast implements submit.Broadcaster.
func (b *EndpointBroadcaster) Broadcast(ctx context.Context, signedTx []byte) (string, error) {
	tx, err := decodeSignedTx(signedTx)
	if err != nil {
		return "", err
	}
	if err := b.client.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("chain: broadcast: %w", err)
	}
	return tx.Hash().Hex(), nil
}

// Broadcast implements submit.Broadcaster for the primary public client,
// used as PrivateTxSender's "direct" fallback target.
func (c *Client) Broadcast(ctx context.Context, signedTx []byte) (string, error) {
	tx, err := decodeSignedTx(signedTx)
	if err != nil {
		return "", err
	}
	if err := c.public.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("chain: broadcast: %w", err)
	}
	return tx.Hash().Hex(), nil
}
