// Package types holds domain value types shared across the liquidation core:
// normalized addresses, fixed-point USD math, and gas-accounting records.
package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a 20-byte account/token identifier normalized to lowercase hex.
// Two Addresses are equal iff their underlying bytes are equal; never compare
// the Hex() form of a raw string without going through NormalizeAddress.
type Address string

// NormalizeAddress lowercases a hex address via common.HexToAddress, which
// does not reject malformed input (it yields the address of whatever bytes
// it can decode, left-padded or truncated to 20). It is idempotent:
// NormalizeAddress(NormalizeAddress(x)) == NormalizeAddress(x).
func NormalizeAddress(raw string) Address {
	return Address(strings.ToLower(common.HexToAddress(raw).Hex()))
}

// FromCommon converts a go-ethereum common.Address into a normalized Address.
func FromCommon(a common.Address) Address {
	return Address(strings.ToLower(a.Hex()))
}

// Common converts back to a go-ethereum common.Address for ABI calls.
func (a Address) Common() common.Address {
	return common.HexToAddress(string(a))
}

func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is the zero address.
func (a Address) IsZero() bool {
	return a.Common() == (common.Address{})
}
