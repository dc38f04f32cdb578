package event

import (
	"time"

	"github.com/google/uuid"
)

// MintRequested opens a new debt position: lock collateral, mint
// stablecoin against it. Idempotency key: op_id (UUID from gateway).
type MintRequested struct {
	OpID             uuid.UUID // Idempotency key
	Owner            uuid.UUID // Position owner (collateral is pulled from this account)
	CollateralAmount int64     // Fixed-point: amount scale (decimal_precision=6, scale=1_000_000)
	BorrowAmount     int64     // Stablecoin requested, before the borrow fee is added to debt
	Recipient        uuid.UUID // Receives the minted stablecoin
	OpSequence       int64     // Source sequence from gateway
	Timestamp        time.Time // Versioned input timestamp (NOT wall-clock)
}

func (m *MintRequested) IdempotencyKey() string { return m.OpID.String() }
func (m *MintRequested) EventType() EventType   { return EventTypeMintRequested }
func (m *MintRequested) Partition() string      { return PartitionOps }
func (m *MintRequested) SourceSequence() int64  { return m.OpSequence }

// CloseRequested repays a position's full debt and releases its
// collateral. Only the owner may close.
type CloseRequested struct {
	OpID       uuid.UUID
	Caller     uuid.UUID // Must equal the position owner
	PositionID int64
	Recipient  uuid.UUID // Receives the released collateral
	OpSequence int64
	Timestamp  time.Time
}

func (c *CloseRequested) IdempotencyKey() string { return c.OpID.String() }
func (c *CloseRequested) EventType() EventType   { return EventTypeCloseRequested }
func (c *CloseRequested) Partition() string      { return PartitionOps }
func (c *CloseRequested) SourceSequence() int64  { return c.OpSequence }

// SupplyRequested adds collateral to an existing position. Anyone may
// top up any position.
type SupplyRequested struct {
	OpID       uuid.UUID
	Caller     uuid.UUID // Collateral is pulled from this account
	PositionID int64
	Amount     int64
	OpSequence int64
	Timestamp  time.Time
}

func (s *SupplyRequested) IdempotencyKey() string { return s.OpID.String() }
func (s *SupplyRequested) EventType() EventType   { return EventTypeSupplyRequested }
func (s *SupplyRequested) Partition() string      { return PartitionOps }
func (s *SupplyRequested) SourceSequence() int64  { return s.OpSequence }

// WithdrawRequested removes collateral from a position. Owner-gated;
// a full withdrawal must go through close instead.
type WithdrawRequested struct {
	OpID       uuid.UUID
	Caller     uuid.UUID
	PositionID int64
	Amount     int64
	Recipient  uuid.UUID
	OpSequence int64
	Timestamp  time.Time
}

func (w *WithdrawRequested) IdempotencyKey() string { return w.OpID.String() }
func (w *WithdrawRequested) EventType() EventType   { return EventTypeWithdrawRequested }
func (w *WithdrawRequested) Partition() string      { return PartitionOps }
func (w *WithdrawRequested) SourceSequence() int64  { return w.OpSequence }
