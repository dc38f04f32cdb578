package math

import (
	stdmath "math"
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}  // 0.000001 token units (stablecoin, collateral, points)
	PriceConfig  = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}  // 0.000001 USD per collateral unit
	WadConfig    = DecimalConfig{DecimalPrecision: 18, Scale: 1e18}      // rates, ratios, per-point multipliers
)

// Wad is the 1e18 scale used for rates, health ratios, and the two
// global per-point multipliers.
const Wad int64 = 1e18

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	// Quotients beyond int64 range saturate. Wad-scaled ratios overflow
	// near 9.22, and health gates compare them against thresholds far
	// below that, so the saturated value preserves every comparison.
	if !quotient.IsInt64() {
		sign := quotient.Sign()
		putInt128(quotient)
		putInt128(remainder)
		if sign < 0 {
			return stdmath.MinInt64
		}
		return stdmath.MaxInt64
	}

	result := quotient.Int64()

	// At the saturation boundary rounding up would wrap.
	if result == stdmath.MaxInt64 {
		roundingMode = RoundDown
	}

	switch roundingMode {
	case RoundHalfEven:
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	case RoundUp:
		if remainder.Sign() != 0 {
			result++
		}
	case RoundDown:
		// big.Int DivMod is Euclidean: quotient is already floored for
		// non-negative numerators, which is the only case we use.
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// MulDiv computes a * b / denominator with an int128 intermediate.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	numerator := MultiplyInt128(a, b)
	result := DivideInt128(numerator, denominator, roundingMode)
	putInt128(numerator)
	return result
}

// MulWad computes a * w / 1e18 where w is a wad-scaled factor.
func MulWad(a, w int64) int64 {
	return MulDiv(a, w, Wad, RoundHalfEven)
}

// MulWadUp is MulWad rounding away from zero. Used for fees, which are
// always charged against the caller's side.
func MulWadUp(a, w int64) int64 {
	return MulDiv(a, w, Wad, RoundUp)
}

// DivWad computes a * 1e18 / b, yielding a wad-scaled ratio of two
// same-scale quantities.
func DivWad(a, b int64) int64 {
	return MulDiv(a, Wad, b, RoundHalfEven)
}

// PowWad computes base^exp for a wad-scaled base and non-negative integer
// exponent, by squaring. Used for the hourly fee-rate decay factor.
func PowWad(base int64, exp int64) int64 {
	if exp <= 0 {
		return Wad
	}

	result := Wad
	cur := base
	for exp > 0 {
		if exp&1 == 1 {
			result = MulWad(result, cur)
		}
		exp >>= 1
		if exp > 0 {
			cur = MulWad(cur, cur)
		}
	}
	return result
}

// MinInt64 returns the smaller of two int64 values.
func MinInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
