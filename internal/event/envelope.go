package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeMintRequested
	EventTypeCloseRequested
	EventTypeSupplyRequested
	EventTypeWithdrawRequested
	EventTypeRedeemRequested
	EventTypeLiquidateRequested
	EventTypeStakeRequested
	EventTypeUnstakeRequested
	EventTypeClaimRequested
	EventTypePriceUpdate
	EventTypeDepositConfirmed
	EventTypeWithdrawalConfirmed
)

// Partition names for source-sequence validation. Operations and price
// updates arrive on independent upstream streams with independent
// sequence counters.
const (
	PartitionOps    = "ops"
	PartitionPrices = "prices"
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Source partition for ordering validation
	Partition string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Partition returns the upstream stream this event belongs to
	Partition() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeMintRequested:
		return "MintRequested"
	case EventTypeCloseRequested:
		return "CloseRequested"
	case EventTypeSupplyRequested:
		return "SupplyRequested"
	case EventTypeWithdrawRequested:
		return "WithdrawRequested"
	case EventTypeRedeemRequested:
		return "RedeemRequested"
	case EventTypeLiquidateRequested:
		return "LiquidateRequested"
	case EventTypeStakeRequested:
		return "StakeRequested"
	case EventTypeUnstakeRequested:
		return "UnstakeRequested"
	case EventTypeClaimRequested:
		return "ClaimRequested"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeDepositConfirmed:
		return "DepositConfirmed"
	case EventTypeWithdrawalConfirmed:
		return "WithdrawalConfirmed"
	default:
		return "Unknown"
	}
}
