package state

import (
	fpmath "github.com/nkrishang/mad-protocol/internal/math"
)

// PriceState tracks the latest oracle price per asset
type PriceState struct {
	Price         int64 // Fixed-point: price scale, USD per asset unit
	PriceSequence int64
	Timestamp     int64 // Epoch microseconds (versioned input)
}

// PriceFeed holds normalized oracle prices. Single collateral asset
// today, but keyed by symbol so the feed shape matches the oracle's.
type PriceFeed struct {
	prices map[string]*PriceState
}

func NewPriceFeed() *PriceFeed {
	return &PriceFeed{
		prices: make(map[string]*PriceState),
	}
}

// Update processes a price tick. Stale or duplicate sequences are
// silently ignored (idempotent); gaps are accepted, the oracle publishes
// at its own cadence.
func (pf *PriceFeed) Update(asset string, price, sequence, timestamp int64) {
	current := pf.prices[asset]
	if current != nil && sequence <= current.PriceSequence {
		return
	}

	pf.prices[asset] = &PriceState{
		Price:         price,
		PriceSequence: sequence,
		Timestamp:     timestamp,
	}
}

// Get returns the current price for an asset.
func (pf *PriceFeed) Get(asset string) (int64, bool) {
	state := pf.prices[asset]
	if state == nil {
		return 0, false
	}
	return state.Price, true
}

// GetAll returns all price states (for snapshot creation).
func (pf *PriceFeed) GetAll() map[string]*PriceState {
	result := make(map[string]*PriceState, len(pf.prices))
	for k, v := range pf.prices {
		result[k] = v
	}
	return result
}

// Restore directly sets a price state (used for snapshot restore).
func (pf *PriceFeed) Restore(asset string, ps *PriceState) {
	pf.prices[asset] = ps
}

// NormalizePrice rescales a raw oracle price quoted with `decimals`
// fractional digits to the internal price scale.
func NormalizePrice(raw int64, decimals int) int64 {
	internal := fpmath.PriceConfig.DecimalPrecision

	if decimals == internal {
		return raw
	}
	if decimals > internal {
		div := pow10(decimals - internal)
		return fpmath.MulDiv(raw, 1, div, fpmath.RoundHalfEven)
	}
	return raw * pow10(internal-decimals)
}

func pow10(n int) int64 {
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}
