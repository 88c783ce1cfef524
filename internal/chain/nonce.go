package chain

import (
	"context"

	"github.com/shadowtick/liquidator/pkg/types"
)

// PendingNonceAt implements keys.ChainNonceSource, used to resync after an
// "already known"/"nonce too low" broadcast failure.
func (c *Client) PendingNonceAt(ctx context.Context, addr types.Address) (uint64, error) {
	return c.public.PendingNonceAt(ctx, addr.Common())
}
