// Package keys implements C11 MultiKeyManager + NonceManager: multiple
// signing keys with round-robin or deterministic-per-user selection, and
// per-key nonce tracking with a serial critical section.
package keys

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shadowtick/liquidator/pkg/types"
)

// SelectionStrategy picks which key index serves a given user.
type SelectionStrategy string

const (
	StrategyRoundRobin   SelectionStrategy = "round-robin"
	StrategyDeterministic SelectionStrategy = "deterministic"
)

// Key is a loaded signing key. Never logged, per spec.md §4.9.
type Key struct {
	Index      int
	PrivateKey *ecdsa.PrivateKey
	Address    types.Address
}

// Manager is C11's MultiKeyManager. Keys are loaded once at construction and
// never mutated afterward.
type Manager struct {
	keys     []Key
	strategy SelectionStrategy
	rrCursor uint64
}

// New constructs a Manager from already-decrypted private keys (decryption
// is the chain/keys loader's job, mirroring the teacher's cmd/main.go
// env-based Decrypt-then-construct flow).
func New(privKeys []*ecdsa.PrivateKey, strategy SelectionStrategy) (*Manager, error) {
	if len(privKeys) == 0 {
		return nil, fmt.Errorf("keys: at least one signing key is required")
	}
	keys := make([]Key, len(privKeys))
	for i, pk := range privKeys {
		addr := crypto.PubkeyToAddress(pk.PublicKey)
		keys[i] = Key{Index: i, PrivateKey: pk, Address: types.FromCommon(addr)}
	}
	return &Manager{keys: keys, strategy: strategy}, nil
}

// Len reports the number of loaded keys.
func (m *Manager) Len() int { return len(m.keys) }

// SelectKey picks a key per the configured strategy.
func (m *Manager) SelectKey(user types.Address) Key {
	n := uint64(len(m.keys))
	switch m.strategy {
	case StrategyDeterministic:
		h := crypto.Keccak256([]byte(strings.ToLower(user.String())))
		idx := new(big.Int).Mod(new(big.Int).SetBytes(h), new(big.Int).SetUint64(n)).Uint64()
		return m.keys[idx]
	default:
		idx := atomic.AddUint64(&m.rrCursor, 1) - 1
		return m.keys[idx%n]
	}
}

// NonceState tracks a single key's nonce bookkeeping.
type NonceState struct {
	NextNonce uint64
	InFlight  int
}

// ChainNonceSource fetches the authoritative next nonce for an address, used
// to resync after "already known"/"nonce too low" broadcast failures.
type ChainNonceSource interface {
	PendingNonceAt(ctx context.Context, addr types.Address) (uint64, error)
}

// NonceManager maintains per-key nonce state behind a per-key lock, matching
// spec.md §3's "mutated only within the key's serial critical section."
type NonceManager struct {
	source ChainNonceSource

	mu     sync.Mutex
	states map[int]*keyLock
}

type keyLock struct {
	mu    sync.Mutex
	state NonceState
}

// NewNonceManager constructs a NonceManager seeded lazily per key on first
// use.
func NewNonceManager(source ChainNonceSource) *NonceManager {
	return &NonceManager{source: source, states: make(map[int]*keyLock)}
}

func (nm *NonceManager) lockFor(keyIndex int) *keyLock {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	kl, ok := nm.states[keyIndex]
	if !ok {
		kl = &keyLock{}
		nm.states[keyIndex] = kl
	}
	return kl
}

// AcquireNonce takes the key's per-key lock and returns the next nonce to
// use, incrementing state and marking one in-flight. The returned release
// function must be called (with the outcome) once the submission resolves.
func (nm *NonceManager) AcquireNonce(ctx context.Context, keyAddr types.Address, keyIndex int) (uint64, func(success bool, resyncErr error), error) {
	kl := nm.lockFor(keyIndex)
	kl.mu.Lock()

	if kl.state.NextNonce == 0 && kl.state.InFlight == 0 {
		n, err := nm.source.PendingNonceAt(ctx, keyAddr)
		if err != nil {
			kl.mu.Unlock()
			return 0, nil, err
		}
		kl.state.NextNonce = n
	}

	nonce := kl.state.NextNonce
	kl.state.NextNonce++
	kl.state.InFlight++

	release := func(success bool, resyncErr error) {
		defer kl.mu.Unlock()
		kl.state.InFlight--
		if resyncErr != nil {
			nm.resyncLocked(ctx, kl, keyAddr)
		}
	}
	return nonce, release, nil
}

// resyncLocked refetches the authoritative nonce from chain, called on
// broadcast failures classified as "already known" or "nonce too low" per
// spec.md §4.9. Caller must hold kl.mu.
func (nm *NonceManager) resyncLocked(ctx context.Context, kl *keyLock, keyAddr types.Address) {
	n, err := nm.source.PendingNonceAt(ctx, keyAddr)
	if err != nil {
		return
	}
	kl.state.NextNonce = n
	kl.state.InFlight = 0
}

// IsResyncTrigger classifies a broadcast error message per spec.md §4.9.
func IsResyncTrigger(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	return strings.Contains(lower, "already known") || strings.Contains(lower, "nonce too low")
}
