// Package amount provides checked arithmetic and text encoding for token
// amounts held in escrow.
//
// Amounts are signed integers in the 128-bit range, expressed in the token's
// smallest unit. Products are computed with 256-bit intermediates so that an
// out-of-range result is reported instead of wrapping.
package amount

import (
	"errors"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned when a result does not fit in the 128-bit signed range.
var ErrOverflow = errors.New("amount: overflow")

var (
	// MaxInt128 is the largest representable amount (2^127 - 1).
	MaxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	// MinInt128 is the smallest representable amount (-2^127).
	MinInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// InRange reports whether v fits in the 128-bit signed range.
func InRange(v *big.Int) bool {
	return v != nil && v.Cmp(MinInt128) >= 0 && v.Cmp(MaxInt128) <= 0
}

// MulDuration returns rate * seconds. Negative rates are rejected by callers
// before this point; a negative rate here is reported as ErrOverflow.
func MulDuration(rate *big.Int, seconds uint64) (*big.Int, error) {
	if rate == nil || rate.Sign() < 0 || !InRange(rate) {
		return nil, ErrOverflow
	}
	r, overflow := uint256.FromBig(rate)
	if overflow {
		return nil, ErrOverflow
	}
	product, overflow := new(uint256.Int).MulOverflow(r, uint256.NewInt(seconds))
	if overflow {
		return nil, ErrOverflow
	}
	out := product.ToBig()
	if out.Cmp(MaxInt128) > 0 {
		return nil, ErrOverflow
	}
	return out, nil
}

// Sub returns a - b, checked against the 128-bit signed range.
func Sub(a, b *big.Int) (*big.Int, error) {
	out := new(big.Int).Sub(a, b)
	if !InRange(out) {
		return nil, ErrOverflow
	}
	return out, nil
}

// Parse converts a base-10 integer string ("1000", "-5") into an amount.
// Returns (nil, false) for empty, fractional or out-of-range input.
func Parse(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || !InRange(v) {
		return nil, false
	}
	return v, true
}

// Format renders an amount as a base-10 integer string. nil formats as "0".
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Clone returns an independent copy of v. nil clones to zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
