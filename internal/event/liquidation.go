package event

import (
	"time"

	"github.com/google/uuid"
)

// LiquidateRequested seizes an undercollateralized position. Anyone may
// trigger it; the caller chooses who receives the liquidator reward.
type LiquidateRequested struct {
	OpID       uuid.UUID
	Caller     uuid.UUID
	PositionID int64
	Recipient  uuid.UUID // Receives the liquidator reward (1% of seized collateral)
	OpSequence int64
	Timestamp  time.Time
}

func (l *LiquidateRequested) IdempotencyKey() string { return l.OpID.String() }
func (l *LiquidateRequested) EventType() EventType   { return EventTypeLiquidateRequested }
func (l *LiquidateRequested) Partition() string      { return PartitionOps }
func (l *LiquidateRequested) SourceSequence() int64  { return l.OpSequence }
