package event

import (
	"fmt"
	"time"
)

// PriceUpdate represents a collateral price tick from the oracle feed.
// Price sequences may have gaps (oracle publishes at its own cadence);
// only regressions are rejected.
type PriceUpdate struct {
	Asset          string // Collateral asset symbol
	Price          int64  // Fixed-point: price scale (decimal_precision=6, scale=1_000_000) USD per unit
	PriceSequence  int64  // Monotonic per asset
	PriceTimestamp time.Time
}

func (p *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:price:%d", p.Asset, p.PriceSequence)
}

func (p *PriceUpdate) EventType() EventType { return EventTypePriceUpdate }
func (p *PriceUpdate) Partition() string    { return PartitionPrices }
func (p *PriceUpdate) SourceSequence() int64 {
	return p.PriceSequence
}
