// Package presim implements C9 PreSimCache + TemplateCache: an LRU of
// precomputed liquidation plans keyed by (user, debtAsset, collateralAsset,
// blockTag), and calldata skeleton templates with byte-offset patching.
package presim

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shadowtick/liquidator/internal/metrics"
	"github.com/shadowtick/liquidator/pkg/types"
)

// PlanKey identifies a cached liquidation plan.
type PlanKey struct {
	User            types.Address
	DebtAsset       types.Address
	CollateralAsset types.Address
	BlockTag        uint64
}

// LiquidationPlan mirrors spec.md §3's PreSim data model. DebtUsd and
// RepayUsd are priced independently (the reserve's full outstanding debt
// vs. the sized repay amount) so RiskGate's min-debt and min-repay checks
// (§4.8 steps 6-7) compare against distinct figures rather than reusing one
// number for both.
type LiquidationPlan struct {
	Key                PlanKey
	RepayAmount        *big.Int
	ExpectedCollateral *big.Int
	DebtUsd            float64
	RepayUsd           float64
	EstimatedProfitUsd float64
	CreatedAt          time.Time
	// CorrelationID ties this plan to the DecisionTrace it fed, so a
	// cross-process KV mirror can join the two records without replaying
	// the decision path.
	CorrelationID string
}

// PreSimCache is C9's first half: a TTL-by-block LRU of LiquidationPlan.
type PreSimCache struct {
	ttlBlocks uint64
	metrics   *metrics.Registry

	mu    sync.Mutex
	cache *lru.Cache[PlanKey, LiquidationPlan]
}

// NewPreSimCache constructs a PreSimCache bounded at capacity entries, each
// valid for ttlBlocks past its plan's blockTag.
func NewPreSimCache(capacity int, ttlBlocks uint64, m *metrics.Registry) *PreSimCache {
	c, _ := lru.New[PlanKey, LiquidationPlan](capacity)
	return &PreSimCache{ttlBlocks: ttlBlocks, metrics: m, cache: c}
}

// Set stores plan, evicting the LRU entry at capacity.
func (p *PreSimCache) Set(plan LiquidationPlan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Add(plan.Key, plan)
}

// Get returns the plan for the key iff unexpired at currentBlock, updating
// recency on a hit.
func (p *PreSimCache) Get(user, debt, collat types.Address, blockTag, currentBlock uint64) (LiquidationPlan, bool) {
	key := PlanKey{User: user, DebtAsset: debt, CollateralAsset: collat, BlockTag: blockTag}

	p.mu.Lock()
	defer p.mu.Unlock()
	plan, ok := p.cache.Get(key)
	if !ok {
		p.metrics.PreSimMissTotal.Inc()
		return LiquidationPlan{}, false
	}
	if currentBlock > plan.Key.BlockTag+p.ttlBlocks {
		p.cache.Remove(key)
		p.metrics.PreSimMissTotal.Inc()
		return LiquidationPlan{}, false
	}
	p.metrics.PreSimHitTotal.Inc()
	return plan, true
}

// PruneExpired removes every entry stale at currentBlock.
func (p *PreSimCache) PruneExpired(currentBlock uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for _, key := range p.cache.Keys() {
		plan, ok := p.cache.Peek(key)
		if ok && currentBlock > plan.Key.BlockTag+p.ttlBlocks {
			p.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// CalldataTemplate mirrors spec.md §3's CalldataTemplate: a pre-encoded
// liquidation call with a placeholder user and repay amount.
type CalldataTemplate struct {
	DebtToken    types.Address
	CollatToken  types.Address
	Buffer       []byte
	UserOffset   int
	RepayOffset  int
	CreatedBlock uint64
	LastUsed     time.Time
}

type templateKey struct {
	debt   types.Address
	collat types.Address
}

// Builder constructs a fresh CalldataTemplate skeleton for a (debt,
// collateral) pair; implementations live in the chain/ABI layer.
type Builder func(debt, collat types.Address) (CalldataTemplate, error)

// TemplateCache is C9's second half.
type TemplateCache struct {
	refreshBlocks uint64
	build         Builder

	mu    sync.Mutex
	cache *lru.Cache[templateKey, CalldataTemplate]
}

// NewTemplateCache constructs a TemplateCache bounded at capacity entries.
func NewTemplateCache(capacity int, refreshBlocks uint64, build Builder) *TemplateCache {
	c, _ := lru.New[templateKey, CalldataTemplate](capacity)
	return &TemplateCache{refreshBlocks: refreshBlocks, build: build, cache: c}
}

// GetTemplate returns a cached skeleton if its blockAge < refreshBlocks,
// else rebuilds and replaces it.
func (t *TemplateCache) GetTemplate(debtToken, collatToken types.Address, currentBlock uint64) (CalldataTemplate, error) {
	key := templateKey{debt: debtToken, collat: collatToken}

	t.mu.Lock()
	defer t.mu.Unlock()

	if tmpl, ok := t.cache.Get(key); ok {
		if currentBlock < tmpl.CreatedBlock || currentBlock-tmpl.CreatedBlock < t.refreshBlocks {
			tmpl.LastUsed = time.Now()
			t.cache.Add(key, tmpl)
			return tmpl, nil
		}
	}

	tmpl, err := t.build(debtToken, collatToken)
	if err != nil {
		return CalldataTemplate{}, err
	}
	tmpl.CreatedBlock = currentBlock
	tmpl.LastUsed = time.Now()
	t.cache.Add(key, tmpl)
	return tmpl, nil
}

// PatchUserAndRepay reconstructs the buffer with the real user address and
// overlays the 32-byte big-endian repay amount at the recorded offsets,
// leaving the cached template's own buffer untouched.
func PatchUserAndRepay(tmpl CalldataTemplate, user types.Address, repayWei *big.Int) ([]byte, error) {
	if tmpl.RepayOffset < 0 || tmpl.RepayOffset+32 > len(tmpl.Buffer) {
		return nil, fmt.Errorf("presim: repay offset %d out of range for buffer of length %d", tmpl.RepayOffset, len(tmpl.Buffer))
	}
	if tmpl.UserOffset < 0 || tmpl.UserOffset+32 > len(tmpl.Buffer) {
		return nil, fmt.Errorf("presim: user offset %d out of range for buffer of length %d", tmpl.UserOffset, len(tmpl.Buffer))
	}

	out := make([]byte, len(tmpl.Buffer))
	copy(out, tmpl.Buffer)

	var userWord [32]byte
	copy(userWord[32-20:], user.Common().Bytes())
	copy(out[tmpl.UserOffset:tmpl.UserOffset+32], userWord[:])

	repayBytes := repayWei.Bytes()
	if len(repayBytes) > 32 {
		return nil, fmt.Errorf("presim: repay amount exceeds 32 bytes")
	}
	var repayWord [32]byte
	copy(repayWord[32-len(repayBytes):], repayBytes)
	copy(out[tmpl.RepayOffset:tmpl.RepayOffset+32], repayWord[:])

	return out, nil
}
