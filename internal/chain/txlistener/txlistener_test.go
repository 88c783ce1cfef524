package txlistener

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReceiptClient struct {
	callsBeforeReady int
	calls            int
	receipt          *types.Receipt
	errAfterReady    error
}

func (f *fakeReceiptClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.calls++
	if f.calls <= f.callsBeforeReady {
		return nil, ethereum.NotFound
	}
	if f.errAfterReady != nil {
		return nil, f.errAfterReady
	}
	return f.receipt, nil
}

func TestWaitForTransactionSucceedsAfterPolling(t *testing.T) {
	fake := &fakeReceiptClient{callsBeforeReady: 2, receipt: &types.Receipt{Status: 1}}
	l := NewTxListener(fake, WithPollInterval(time.Millisecond), WithTimeout(time.Second))

	receipt, err := l.WaitForTransaction("0x" + "11"+"22"+"33"+"44"+"55"+"66"+"77"+"88"+"99"+"00"+"11"+"22"+"33"+"44"+"55"+"66"+"77"+"88"+"99"+"00")
	require.NoError(t, err)
	assert.EqualValues(t, 1, receipt.Status)
	assert.Equal(t, 3, fake.calls)
}

func TestWaitForTransactionTimesOut(t *testing.T) {
	fake := &fakeReceiptClient{callsBeforeReady: 1000}
	l := NewTxListener(fake, WithPollInterval(time.Millisecond), WithTimeout(20*time.Millisecond))

	_, err := l.WaitForTransaction("0x1111111111111111111111111111111111111111111111111111111111111111")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitForTransactionPropagatesOtherErrors(t *testing.T) {
	boom := assert.AnError
	fake := &fakeReceiptClient{callsBeforeReady: 0, errAfterReady: boom}
	l := NewTxListener(fake, WithPollInterval(time.Millisecond), WithTimeout(time.Second))

	_, err := l.WaitForTransaction("0x1111111111111111111111111111111111111111111111111111111111111111")
	assert.ErrorIs(t, err, boom)
}
