package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shadowtick/liquidator/pkg/types"
)

func TestBitSet(t *testing.T) {
	cfg := new(big.Int)
	cfg.SetBit(cfg, 2, 1) // reserve 1 borrowing
	cfg.SetBit(cfg, 5, 1) // reserve 2 collateral

	assert.False(t, bitSet(cfg, 0))
	assert.False(t, bitSet(cfg, 1))
	assert.True(t, bitSet(cfg, 2))
	assert.False(t, bitSet(cfg, 3))
	assert.False(t, bitSet(cfg, 4))
	assert.True(t, bitSet(cfg, 5))
}

func TestPlanConfigDefaults(t *testing.T) {
	c := &Client{}
	c.RegisterPricing(nil, nil, PlanConfig{LiquidationBonusPct: 5})

	assert.Nil(t, c.priceOracle)
	assert.Nil(t, c.tokenRegistry)
	assert.Equal(t, 5.0, c.planCfg.LiquidationBonusPct)
}

func TestUsdValueWithoutCollaboratorsReturnsZero(t *testing.T) {
	c := &Client{}
	got := c.usdValue(nil, types.NormalizeAddress("0x0000000000000000000000000000000000000001"), big.NewInt(1000))
	assert.Equal(t, 0.0, got)
}
