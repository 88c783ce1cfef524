package keys

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shadowtick/liquidator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genKeys(t *testing.T, n int) []*ecdsa.PrivateKey {
	t.Helper()
	out := make([]*ecdsa.PrivateKey, n)
	for i := 0; i < n; i++ {
		pk, err := crypto.GenerateKey()
		require.NoError(t, err)
		out[i] = pk
	}
	return out
}

func TestRoundRobinCyclesThroughKeys(t *testing.T) {
	m, err := New(genKeys(t, 3), StrategyRoundRobin)
	require.NoError(t, err)

	seen := make(map[int]int)
	user := types.NormalizeAddress("0x0000000000000000000000000000000000000A")
	for i := 0; i < 9; i++ {
		seen[m.SelectKey(user).Index]++
	}
	assert.Equal(t, 3, seen[0])
	assert.Equal(t, 3, seen[1])
	assert.Equal(t, 3, seen[2])
}

func TestDeterministicSelectionIsStable(t *testing.T) {
	m, err := New(genKeys(t, 4), StrategyDeterministic)
	require.NoError(t, err)

	user := types.NormalizeAddress("0x000000000000000000000000000000000000AB")
	first := m.SelectKey(user).Index
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.SelectKey(user).Index)
	}
}

func TestNewRejectsEmptyKeySet(t *testing.T) {
	_, err := New(nil, StrategyRoundRobin)
	assert.Error(t, err)
}

type fakeNonceSource struct {
	calls int
	next  uint64
}

func (f *fakeNonceSource) PendingNonceAt(ctx context.Context, addr types.Address) (uint64, error) {
	f.calls++
	return f.next, nil
}

func TestAcquireNonceIncrementsAndResyncsOnFailure(t *testing.T) {
	src := &fakeNonceSource{next: 5}
	nm := NewNonceManager(src)
	addr := types.NormalizeAddress("0x0000000000000000000000000000000000000B")

	n1, release1, err := nm.AcquireNonce(context.Background(), addr, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n1)
	release1(true, nil)

	n2, release2, err := nm.AcquireNonce(context.Background(), addr, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), n2)

	src.next = 9
	release2(false, fmt.Errorf("nonce too low"))

	n3, _, err := nm.AcquireNonce(context.Background(), addr, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), n3, "resync should refetch authoritative nonce")
}

func TestIsResyncTrigger(t *testing.T) {
	assert.True(t, IsResyncTrigger("replacement transaction ALREADY KNOWN"))
	assert.True(t, IsResyncTrigger("nonce too low: next nonce 5"))
	assert.False(t, IsResyncTrigger("insufficient funds"))
}
