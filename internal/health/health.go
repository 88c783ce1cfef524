// Package health implements C6 HealthFactorEngine: batched and single-user
// health-factor computation via multicall, with a TTL cache and
// single-flight de-duplication for concurrent requests on the same user.
package health

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shadowtick/liquidator/internal/metrics"
	"github.com/shadowtick/liquidator/pkg/types"
	"golang.org/x/sync/singleflight"
)

// hfScale matches the pool's 1e18 health-factor fixed-point scale named in
// spec.md §4.3: "hf = healthFactor / 1e18".
const hfScale = 1e18

// dustEpsilon guards the Σdebt < dustEpsilon => HF = +Inf branch of §4.3's
// direct-from-reserves formula.
const dustEpsilon = 1

// AccountData mirrors the pool's getUserAccountData return tuple.
type AccountData struct {
	TotalCollateralBase        *big.Int
	TotalDebtBase               *big.Int
	CurrentLiquidationThreshold *big.Int
	Ltv                          *big.Int
	HealthFactor                 *big.Int
}

// Hf converts the fixed-point health factor to a float64 per the 1e18 scale,
// returning +Inf when debt is dust (no outstanding borrow).
func (a AccountData) Hf() float64 {
	if a.TotalDebtBase == nil || a.TotalDebtBase.Cmp(big.NewInt(dustEpsilon)) < 0 {
		return math.Inf(1)
	}
	if a.HealthFactor == nil {
		return 0
	}
	f := new(big.Float).SetInt(a.HealthFactor)
	f.Quo(f, big.NewFloat(hfScale))
	v, _ := f.Float64()
	return v
}

// PoolReader is the on-chain collaborator the engine batches calls through.
// Implementations live in the chain package and wrap a multicall-style
// aggregate read against the pool's getUserAccountData.
type PoolReader interface {
	// BatchGetUserAccountData performs one aggregate call covering all of
	// users at blockTag (0 = latest), returning per-user results and
	// per-user errors for entries that individually failed to decode,
	// matching spec.md §4.3: "Failed individual calls inside a batch are
	// reported per-user and never abort the batch."
	BatchGetUserAccountData(ctx context.Context, users []types.Address, blockTag uint64) (map[types.Address]AccountData, map[types.Address]error)
}

type cacheEntry struct {
	data  AccountData
	block uint64
}

// Engine is C6. It holds weak (non-owning) references to its collaborators
// per spec.md §3 "Ownership".
type Engine struct {
	reader    PoolReader
	batchSize int
	metrics   *metrics.Registry

	cache  *lru.LRU[types.Address, cacheEntry]
	sf     singleflight.Group
}

// New constructs an Engine. ttl is the per-user cache TTL for the HOT tier;
// batchSize bounds the per-multicall chunk size (spec.md §4.3 default
// 100-120).
func New(reader PoolReader, batchSize int, ttl time.Duration, capacity int, m *metrics.Registry) *Engine {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Engine{
		reader:    reader,
		batchSize: batchSize,
		metrics:   m,
		cache:     lru.NewLRU[types.Address, cacheEntry](capacity, nil, ttl),
	}
}

// GetHealthFactor resolves a single user's HF, using the cache and
// de-duplicating concurrent in-flight requests for the same user via
// single-flight.
func (e *Engine) GetHealthFactor(ctx context.Context, user types.Address, blockTag uint64) (float64, bool, error) {
	if entry, ok := e.cache.Get(user); ok {
		e.metrics.HfCacheHits.Inc()
		return entry.data.Hf(), true, nil
	}
	e.metrics.HfCacheMisses.Inc()

	v, err, _ := e.sf.Do(string(user), func() (any, error) {
		data, failures := e.reader.BatchGetUserAccountData(ctx, []types.Address{user}, blockTag)
		if failErr, ok := failures[user]; ok {
			return nil, failErr
		}
		d, ok := data[user]
		if !ok {
			return nil, fmt.Errorf("health: no data returned for %s", user)
		}
		e.cache.Add(user, cacheEntry{data: d, block: blockTag})
		return d, nil
	})
	if err != nil {
		return 0, false, err
	}
	return v.(AccountData).Hf(), true, nil
}

// Batch computes account data for many users in batchSize-chunked calls,
// never aborting on a single user's failure.
func (e *Engine) Batch(ctx context.Context, users []types.Address, blockTag uint64) map[types.Address]AccountData {
	out := make(map[types.Address]AccountData, len(users))
	for start := 0; start < len(users); start += e.batchSize {
		end := start + e.batchSize
		if end > len(users) {
			end = len(users)
		}
		chunk := users[start:end]
		data, _ := e.reader.BatchGetUserAccountData(ctx, chunk, blockTag)
		for addr, d := range data {
			e.cache.Add(addr, cacheEntry{data: d, block: blockTag})
			out[addr] = d
		}
	}
	return out
}

// FilterLiquidatable narrows an AccountData map to entries with hf < 1.0.
func FilterLiquidatable(accountData map[types.Address]AccountData) map[types.Address]AccountData {
	out := make(map[types.Address]AccountData)
	for addr, d := range accountData {
		if d.Hf() < 1.0 {
			out[addr] = d
		}
	}
	return out
}

// InvalidateBlock drops every cache entry computed at a stale block,
// implementing §4.3's "per-block invalidation for a HOT tier".
func (e *Engine) InvalidateBlock(currentBlock uint64) {
	for _, user := range e.cache.Keys() {
		entry, ok := e.cache.Peek(user)
		if ok && entry.block < currentBlock {
			e.cache.Remove(user)
		}
	}
}
