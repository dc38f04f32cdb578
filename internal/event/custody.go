package event

import (
	"time"

	"github.com/google/uuid"
)

// Custody boundary events. The custody collaborator confirms asset
// movements across the system edge; the ledger mirrors them as balance
// credits and debits against the external deposits account.

// DepositConfirmed credits a user with an asset the custodian received.
type DepositConfirmed struct {
	OpID       uuid.UUID
	UserID     uuid.UUID
	Asset      string
	Amount     int64
	OpSequence int64
	Timestamp  time.Time
}

func (d *DepositConfirmed) IdempotencyKey() string { return d.OpID.String() }
func (d *DepositConfirmed) EventType() EventType   { return EventTypeDepositConfirmed }
func (d *DepositConfirmed) Partition() string      { return PartitionOps }
func (d *DepositConfirmed) SourceSequence() int64  { return d.OpSequence }

// WithdrawalConfirmed debits a user for an asset the custodian released.
type WithdrawalConfirmed struct {
	OpID       uuid.UUID
	UserID     uuid.UUID
	Asset      string
	Amount     int64
	OpSequence int64
	Timestamp  time.Time
}

func (w *WithdrawalConfirmed) IdempotencyKey() string { return w.OpID.String() }
func (w *WithdrawalConfirmed) EventType() EventType   { return EventTypeWithdrawalConfirmed }
func (w *WithdrawalConfirmed) Partition() string      { return PartitionOps }
func (w *WithdrawalConfirmed) SourceSequence() int64  { return w.OpSequence }
