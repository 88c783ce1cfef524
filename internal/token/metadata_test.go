package token

import (
	"math/big"
	"testing"

	"github.com/shadowtick/liquidator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryUSDValue(t *testing.T) {
	r := NewRegistry()
	usdc := types.NormalizeAddress("0x0000000000000000000000000000000000000A")
	r.Register(Metadata{Address: usdc, Symbol: "USDC", Decimals: 6, IsStablecoin: true})

	v, err := r.USDValue(usdc, big.NewInt(1_000_500_000), big.NewInt(100_000_000), 8)
	require.NoError(t, err)
	assert.InDelta(t, 1000.50, v, 1e-9)

	_, err = r.USDValue(types.NormalizeAddress("0x0000000000000000000000000000000000000B"), big.NewInt(1), big.NewInt(1), 8)
	assert.Error(t, err)
}

func TestCanonicalSymbolAlias(t *testing.T) {
	r := NewRegistry()
	r.RegisterAlias("USDbC", "USDC")
	assert.Equal(t, "USDC", r.CanonicalSymbol("USDbC"))
	assert.Equal(t, "WETH", r.CanonicalSymbol("WETH"))
}
