// Package gasburst implements C13 GasBurstManager: a timed RBF ladder that
// schedules gas-price bumps if a submitted transaction is still pending.
package gasburst

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/shadowtick/liquidator/internal/metrics"
	"github.com/shadowtick/liquidator/internal/revert"
)

// GasParams carries either EIP-1559 or legacy gas fields; exactly one of the
// two shapes is populated.
type GasParams struct {
	IsEip1559            bool
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
}

// Bump returns a new GasParams with fees multiplied by (1 + bumpPct/100), per
// spec.md §4.11.
func (g GasParams) Bump(bumpPct float64) GasParams {
	factor := 1 + bumpPct/100
	mul := func(v *big.Int) *big.Int {
		if v == nil {
			return nil
		}
		f := new(big.Float).Mul(new(big.Float).SetInt(v), big.NewFloat(factor))
		out, _ := f.Int(nil)
		return out
	}
	if g.IsEip1559 {
		return GasParams{
			IsEip1559:            true,
			MaxFeePerGas:         mul(g.MaxFeePerGas),
			MaxPriorityFeePerGas: mul(g.MaxPriorityFeePerGas),
		}
	}
	return GasParams{GasPrice: mul(g.GasPrice)}
}

// ReceiptChecker looks up a transaction's mined receipt.
type ReceiptChecker interface {
	GetTransactionReceipt(ctx context.Context, txHash string) (mined bool, err error)
}

// RevertChecker optionally inspects a mined transaction for a failed status
// and its revert payload, feeding §7's selector classification back into the
// ladder. Nil-safe: a Manager with no RevertChecker set treats every mined
// transaction as succeeded.
type RevertChecker interface {
	GetRevertStatus(ctx context.Context, txHash string) (reverted bool, revertData string, err error)
}

// Resubmitter re-signs with the original key/nonce and broadcasts a bumped
// replacement.
type Resubmitter interface {
	ResignAndBroadcast(ctx context.Context, nonce uint64, keyRef int, params GasParams) (txHash string, err error)
}

// SkipReason enumerates gas_bumps_skipped_total{reason} per spec.md §4.11.
type SkipReason string

const (
	SkipNotTracked      SkipReason = "not_tracked"
	SkipMaxBumps        SkipReason = "max_bumps"
	SkipAlreadyMined    SkipReason = "already_mined"
	SkipBroadcastFailed SkipReason = "broadcast_failed"
)

// tracked is one in-flight transaction under RBF management.
type tracked struct {
	txHash    string
	nonce     uint64
	keyRef    int
	params    GasParams
	bumpCount int
}

// Config controls the ladder's timing and magnitude.
type Config struct {
	FirstCheck  time.Duration
	SecondCheck time.Duration
	BumpPct     float64
	MaxBumps    int
}

// Manager is C13.
type Manager struct {
	cfg      Config
	receipts ReceiptChecker
	resubmit Resubmitter
	metrics  *metrics.Registry

	revertChecker RevertChecker
	onRevert      func(txHash string, c revert.Classification)

	mu       sync.Mutex
	byHash   map[string]*tracked
}

// New constructs a Manager.
func New(cfg Config, receipts ReceiptChecker, resubmit Resubmitter, m *metrics.Registry) *Manager {
	return &Manager{cfg: cfg, receipts: receipts, resubmit: resubmit, metrics: m, byHash: make(map[string]*tracked)}
}

// SetRevertChecker wires the optional collaborator that lets the ladder
// classify a mined-but-failed transaction's revert data instead of treating
// every mined receipt as a success.
func (m *Manager) SetRevertChecker(rc RevertChecker) {
	m.revertChecker = rc
}

// OnRevert registers a callback invoked with the classification of every
// mined-but-reverted transaction the ladder observes, letting a caller (the
// orchestrator, typically) log it or feed it into the decision trace.
func (m *Manager) OnRevert(fn func(txHash string, c revert.Classification)) {
	m.onRevert = fn
}

// TrackTransaction schedules the firstMs/secondMs checkpoints named in
// spec.md §4.11. It returns immediately; checkpoints run on background
// timers bound to ctx.
func (m *Manager) TrackTransaction(ctx context.Context, txHash string, nonce uint64, keyRef int, params GasParams) {
	t := &tracked{txHash: txHash, nonce: nonce, keyRef: keyRef, params: params}

	m.mu.Lock()
	m.byHash[txHash] = t
	m.mu.Unlock()

	go m.runLadder(ctx, t)
}

func (m *Manager) runLadder(ctx context.Context, t *tracked) {
	checkpoints := []time.Duration{m.cfg.FirstCheck, m.cfg.SecondCheck}
	for _, delay := range checkpoints {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		if m.checkpointMined(ctx, t) {
			return
		}
		if !m.bump(ctx, t) {
			return
		}
	}
}

func (m *Manager) checkpointMined(ctx context.Context, t *tracked) bool {
	mined, err := m.receipts.GetTransactionReceipt(ctx, t.txHash)
	if err != nil || !mined {
		return false
	}
	m.untrack(t.txHash)
	m.classifyOutcome(ctx, t.txHash)
	return true
}

// classifyOutcome runs the optional revert check for a transaction the
// ladder just observed mined; a nil RevertChecker or a successful receipt is
// a silent no-op.
func (m *Manager) classifyOutcome(ctx context.Context, txHash string) {
	if m.revertChecker == nil {
		return
	}
	reverted, data, err := m.revertChecker.GetRevertStatus(ctx, txHash)
	if err != nil || !reverted {
		return
	}
	class := revert.Classify(data)
	m.metrics.RevertsTotal.WithLabelValues(string(class.Category)).Inc()
	if m.onRevert != nil {
		m.onRevert(txHash, class)
	}
}

// bump performs one RBF step, returning false if the ladder should stop
// (max bumps reached or broadcast failure).
func (m *Manager) bump(ctx context.Context, t *tracked) bool {
	m.mu.Lock()
	if t.bumpCount >= m.cfg.MaxBumps {
		m.mu.Unlock()
		m.metrics.GasBumpsSkippedTotal.WithLabelValues(string(SkipMaxBumps)).Inc()
		m.untrack(t.txHash)
		return false
	}
	t.bumpCount++
	newParams := t.params.Bump(m.cfg.BumpPct)
	stage := t.bumpCount
	t.params = newParams
	nonce := t.nonce
	keyRef := t.keyRef
	oldHash := t.txHash
	m.mu.Unlock()

	newHash, err := m.resubmit.ResignAndBroadcast(ctx, nonce, keyRef, newParams)
	if err != nil {
		m.metrics.GasBumpsSkippedTotal.WithLabelValues(string(SkipBroadcastFailed)).Inc()
		m.untrack(oldHash)
		return false
	}

	m.metrics.GasBumpsTotal.WithLabelValues(stageLabel(stage)).Inc()

	m.mu.Lock()
	delete(m.byHash, oldHash)
	t.txHash = newHash
	m.byHash[newHash] = t
	m.mu.Unlock()
	return true
}

func stageLabel(stage int) string {
	if stage <= 1 {
		return "first"
	}
	return "second"
}

func (m *Manager) untrack(txHash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byHash, txHash)
}

// IsTracked reports whether a hash is currently under RBF management,
// backing the not_tracked skip reason for external callers.
func (m *Manager) IsTracked(txHash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byHash[txHash]
	return ok
}
