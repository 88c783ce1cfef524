// Package token holds C3 TokenMetadata: symbol/decimal/stablecoin
// classification and canonical USD math, built on pkg/types' BigInt-precise
// helpers.
package token

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/shadowtick/liquidator/pkg/types"
)

// Metadata describes a single ERC-20 reserve token as tracked by the core.
type Metadata struct {
	Address      types.Address
	Symbol       string
	Decimals     int
	IsStablecoin bool
}

// Registry is the read-mostly token metadata table. It is populated once at
// startup (from config or on-chain `decimals()`/`symbol()` calls performed by
// the chain package) and never mutated on the hot path afterward.
type Registry struct {
	mu      sync.RWMutex
	byID    map[types.Address]Metadata
	aliases map[string]string
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[types.Address]Metadata)}
}

// Register adds or replaces metadata for a token address.
func (r *Registry) Register(m Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.Address] = m
}

// Get returns metadata for a token address, or false if unknown.
func (r *Registry) Get(addr types.Address) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[addr]
	return m, ok
}

// USDValue converts a raw token amount into a USD float using the token's
// registered decimals and a supplied price (priceDecimals precision),
// delegating to types.ComputeUsd so the underlying math stays BigInt-precise
// until the final float conversion.
func (r *Registry) USDValue(addr types.Address, amount *big.Int, price *big.Int, priceDecimals int) (float64, error) {
	m, ok := r.Get(addr)
	if !ok {
		return 0, fmt.Errorf("token %s: unknown metadata", addr)
	}
	return types.ComputeUsd(amount, m.Decimals, price, priceDecimals), nil
}

// CanonicalSymbol resolves alias symbols (e.g. USDbC -> USDC) to their
// canonical form. Aliases are registered via RegisterAlias and consulted by
// the PriceOracle before a symbol lookup.
func (r *Registry) CanonicalSymbol(symbol string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canon, ok := r.aliases[symbol]; ok {
		return canon
	}
	return symbol
}

// RegisterAlias maps a symbol to its canonical equivalent.
func (r *Registry) RegisterAlias(alias, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aliases == nil {
		r.aliases = make(map[string]string)
	}
	r.aliases[alias] = canonical
}
