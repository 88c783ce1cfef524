package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeUsd(t *testing.T) {
	assert.InDelta(t, 1000.50, ComputeUsd(big.NewInt(1_000_500_000), 6, big.NewInt(100_000_000), 8), 1e-9)
	assert.InDelta(t, 3750.00, ComputeUsd(big.NewInt(1_500_000_000_000_000_000), 18, big.NewInt(250_000_000_000), 8), 1e-9)
}

func TestBpsDelta(t *testing.T) {
	oldV, _ := new(big.Int).SetString("1000000000000000000", 10)
	newV, _ := new(big.Int).SetString("1000300000000000000", 10)
	d := BpsDelta(oldV, newV)
	assert.GreaterOrEqual(t, d, int64(2))
	assert.LessOrEqual(t, d, int64(4))
}

func TestNormalizeChainlinkPriceRoundTrip(t *testing.T) {
	answer := big.NewInt(123_456_789)
	price := NormalizeChainlinkPrice(answer, 8)
	back := DenormalizeChainlinkPrice(price, 8)
	diff := new(big.Int).Sub(back, answer)
	assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(1)), 0)
}

func TestAddressNormalizeIdempotent(t *testing.T) {
	a := NormalizeAddress("0xAbC1230000000000000000000000000000000000")
	b := NormalizeAddress(string(a))
	assert.Equal(t, a, b)
}
