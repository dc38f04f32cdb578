package event

import (
	"time"

	"github.com/google/uuid"
)

// RedeemRequested exchanges stablecoin for collateral at face value
// against the whole system, spread pro-rata across every position via
// the global per-point multipliers. The caller pays the redemption fee.
type RedeemRequested struct {
	OpID       uuid.UUID
	Caller     uuid.UUID // Stablecoin is burned from this account
	Amount     int64     // Stablecoin to redeem, fee-inclusive; capped at total system debt
	Recipient  uuid.UUID // Receives the collateral
	OpSequence int64
	Timestamp  time.Time
}

func (r *RedeemRequested) IdempotencyKey() string { return r.OpID.String() }
func (r *RedeemRequested) EventType() EventType   { return EventTypeRedeemRequested }
func (r *RedeemRequested) Partition() string      { return PartitionOps }
func (r *RedeemRequested) SourceSequence() int64  { return r.OpSequence }
