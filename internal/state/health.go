package state

import (
	stdmath "math"

	fpmath "github.com/nkrishang/mad-protocol/internal/math"
)

// Health thresholds (wad-scaled ratios).
const (
	// MaxLTV is the per-position loan-to-value ceiling: a position must
	// stay strictly below 90% debt-to-collateral-value, and becomes
	// liquidatable at or above it.
	MaxLTV int64 = 9e17

	// MinTCR is the system-wide floor: total collateral value over total
	// debt must stay strictly above 110% after every operation except
	// liquidation and price movement.
	MinTCR int64 = 11e17

	// LiquidatorRewardRate is the 1% of seized collateral paid to the
	// liquidation caller's recipient.
	LiquidatorRewardRate int64 = 1e16

	// MinCollateralValue is the smallest USD value of collateral that
	// can open a position ($10, amount scale).
	MinCollateralValue int64 = 10_000_000
)

// CollateralValue converts a collateral amount into its USD value at
// the given price. Both inputs and the result use amount/price scale.
func CollateralValue(collateral, price int64) int64 {
	return fpmath.MulDiv(collateral, price, fpmath.PriceConfig.Scale, fpmath.RoundHalfEven)
}

// CollateralForValue inverts CollateralValue: how much collateral a USD
// value buys at the given price. Rounds down so redemptions never
// release more collateral than the burned value covers.
func CollateralForValue(value, price int64) int64 {
	return fpmath.MulDiv(value, fpmath.PriceConfig.Scale, price, fpmath.RoundDown)
}

// LTV returns debt over collateral value as a wad ratio. Zero collateral
// value with outstanding debt is treated as infinitely leveraged.
func LTV(debt, collateral, price int64) int64 {
	if debt == 0 {
		return 0
	}

	value := CollateralValue(collateral, price)
	if value == 0 {
		return stdmath.MaxInt64
	}

	return fpmath.DivWad(debt, value)
}

// TCR returns total collateral value over total debt as a wad ratio. A
// system with no debt is maximally solvent.
func TCR(totalCollateral, totalDebt, price int64) int64 {
	if totalDebt == 0 {
		return stdmath.MaxInt64
	}

	return fpmath.DivWad(CollateralValue(totalCollateral, price), totalDebt)
}
