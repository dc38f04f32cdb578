package state

import (
	fpmath "github.com/nkrishang/mad-protocol/internal/math"
)

// Fee-rate parameters (wad-scaled).
const (
	// BaseFeeRate is the fixed 1% floor on every borrow and redemption.
	BaseFeeRate int64 = 1e16

	// MaxVariableFeeRate caps the decaying component at 4%, bounding the
	// charged rate to [1%, 5%].
	MaxVariableFeeRate int64 = 4e16

	// DecayFactor is the hourly retention of the variable rate, 0.89
	// (half-life about 6 hours).
	DecayFactor int64 = 89e16

	// RedeemIncrementRate scales the rate bump a redemption causes:
	// 1% x (redeemed / total supply).
	RedeemIncrementRate int64 = 1e16

	secondsPerHour = 3600
)

// FeeController maintains one decaying scalar rate shared by borrow and
// redemption fees. Pull model: the decay is re-derived on read from the
// versioned input timestamp, never from wall-clock or a scheduled tick.
type FeeController struct {
	VariableRate int64 // Wad-scaled, in [0, MaxVariableFeeRate]
	LastUpdate   int64 // Unix seconds of the last persisted update
}

func NewFeeController() *FeeController {
	return &FeeController{}
}

// decayedRate applies DecayFactor^hoursElapsed to the persisted variable
// rate without mutating it. Elapsed hours floor; a timestamp at or before
// LastUpdate decays nothing.
func (fc *FeeController) decayedRate(now int64) int64 {
	if fc.VariableRate == 0 {
		return 0
	}

	elapsed := now - fc.LastUpdate
	if elapsed <= 0 {
		return fc.VariableRate
	}

	hours := elapsed / secondsPerHour
	return fpmath.MulWad(fc.VariableRate, fpmath.PowWad(DecayFactor, hours))
}

// BorrowRate returns the rate charged on a mint's borrow amount. Reads
// the decayed rate without persisting anything.
func (fc *FeeController) BorrowRate(now int64) int64 {
	return BaseFeeRate + fc.decayedRate(now)
}

// RedeemRate returns the rate charged on a redemption and persists the
// post-redemption variable rate. The charged rate uses the pre-increment
// decayed value: a redemption's own volume never inflates its own fee.
func (fc *FeeController) RedeemRate(redeemAmount, totalSupply, now int64) int64 {
	decayed := fc.decayedRate(now)

	if redeemAmount > 0 && totalSupply > 0 {
		increment := fpmath.MulWad(RedeemIncrementRate, fpmath.DivWad(redeemAmount, totalSupply))
		fc.VariableRate = fpmath.MinInt64(decayed+increment, MaxVariableFeeRate)
		fc.LastUpdate = now
	}

	return BaseFeeRate + decayed
}

// CanonicalBytes returns deterministic serialization for hashing
func (fc *FeeController) CanonicalBytes() []byte {
	buf := make([]byte, 0, 16)
	buf = appendInt64LE(buf, fc.VariableRate)
	buf = appendInt64LE(buf, fc.LastUpdate)
	return buf
}
