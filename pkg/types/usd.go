package types

import (
	"math/big"
)

// ComputeUsd converts a token amount with `amountDecimals` decimals and a
// price with `priceDecimals` decimals into a USD float, using big integer
// math for the multiplication and only converting to float64 for the final
// division. Decisioning code must never do this conversion before a
// comparison is final (see RiskGate, §9 "Numeric precision").
//
// computeUsd(1_000_500_000, 6, 100_000_000, 8) == 1000.50
func ComputeUsd(amount *big.Int, amountDecimals int, price *big.Int, priceDecimals int) float64 {
	if amount == nil || price == nil {
		return 0
	}
	num := new(big.Int).Mul(amount, price)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(amountDecimals+priceDecimals)), nil)
	if denom.Sign() == 0 {
		return 0
	}
	f := new(big.Rat).SetFrac(num, denom)
	v, _ := f.Float64()
	return v
}

// NormalizeChainlinkPrice converts a raw Chainlink `answer` with `decimals`
// decimals into a float64 USD price.
func NormalizeChainlinkPrice(answer *big.Int, decimals uint8) float64 {
	if answer == nil {
		return 0
	}
	denom := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	v := new(big.Float).Quo(new(big.Float).SetInt(answer), denom)
	f, _ := v.Float64()
	return f
}

// DenormalizeChainlinkPrice is the inverse of NormalizeChainlinkPrice: given a
// USD price, reconstruct the raw integer `answer` at `decimals` precision.
// Round-trips within ±1 ulp of the original integer.
func DenormalizeChainlinkPrice(price float64, decimals uint8) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(price), new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	rounded, _ := scaled.Int(nil)
	return rounded
}

// BpsDelta computes round((new-old)/old * 10_000) as used by
// ReserveIndexTracker.shouldRecheck. Returns 0 if old is zero or nil (first
// observation is handled by the caller, not by this helper).
func BpsDelta(oldV, newV *big.Int) int64 {
	if oldV == nil || oldV.Sign() == 0 || newV == nil {
		return 0
	}
	diff := new(big.Int).Sub(newV, oldV)
	num := new(big.Int).Mul(diff, big.NewInt(10_000))
	q, r := new(big.Int).QuoRem(num, oldV, new(big.Int))
	// round-half-away-from-zero
	r2 := new(big.Int).Mul(r, big.NewInt(2))
	r2.Abs(r2)
	if r2.Cmp(new(big.Int).Abs(oldV)) >= 0 {
		if (diff.Sign() < 0) != (oldV.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64()
}

// AbsInt64 is a tiny helper kept beside the bps math it serves.
func AbsInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
