// Package txlistener provides a blocking wait-for-receipt helper, the
// synchronous counterpart to gasburst's async resubmission loop. It is
// grounded on the teacher's pkg/txlistener usage (blackhole.go's
// `b.tl.WaitForTransaction(txHash)` calls after every on-chain action) but
// the teacher's own implementation file was never part of the retrieved
// pack — only its call sites and NewTxListener/WithPollInterval/WithTimeout
// construction survived, so the body here is authored fresh against that
// contract. It offers a single synchronous receipt wait, as opposed to the
// orchestrator's tracked, bump-capable gasburst path; no command in
// cmd/liquidator calls it.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrTimeout is returned when a transaction is not mined within the
// configured timeout.
var ErrTimeout = errors.New("txlistener: timed out waiting for transaction")

// ReceiptClient is the minimal go-ethereum surface TxListener needs, letting
// tests substitute a fake without spinning up a real ethclient.
type ReceiptClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Option configures a TxListener.
type Option func(*TxListener)

// WithPollInterval sets how often TxListener re-checks for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout bounds how long WaitForTransaction will wait before returning
// ErrTimeout.
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// TxListener polls a client for a transaction's receipt until it is mined,
// errors, or the configured timeout elapses.
type TxListener struct {
	client       ReceiptClient
	pollInterval time.Duration
	timeout      time.Duration
}

// NewTxListener builds a TxListener with sane defaults (5s poll, 2m timeout),
// overridable via Option.
func NewTxListener(client ReceiptClient, opts ...Option) *TxListener {
	l := &TxListener{
		client:       client,
		pollInterval: 5 * time.Second,
		timeout:      2 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction blocks until txHash is mined, returning its receipt, or
// until the configured timeout elapses (ErrTimeout) or the context is
// cancelled.
func (l *TxListener) WaitForTransaction(hash string) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.WaitForTransactionContext(ctx, hash)
}

// WaitForTransactionContext is WaitForTransaction with caller-supplied
// cancellation, used by callers that already carry a request-scoped context.
func (l *TxListener) WaitForTransactionContext(ctx context.Context, hash string) (*types.Receipt, error) {
	txHash := common.HexToHash(hash)
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("txlistener: receipt for %s: %w", hash, err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
