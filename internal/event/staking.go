package event

import (
	"time"

	"github.com/google/uuid"
)

// StakeRequested deposits stablecoin into the insurance reserve. The
// stake absorbs bad debt during liquidations in exchange for a share of
// seized collateral.
type StakeRequested struct {
	OpID       uuid.UUID
	Caller     uuid.UUID
	Amount     int64
	OpSequence int64
	Timestamp  time.Time
}

func (s *StakeRequested) IdempotencyKey() string { return s.OpID.String() }
func (s *StakeRequested) EventType() EventType   { return EventTypeStakeRequested }
func (s *StakeRequested) Partition() string      { return PartitionOps }
func (s *StakeRequested) SourceSequence() int64  { return s.OpSequence }

// UnstakeRequested exits the reserve entirely: pays out accrued
// collateral rewards plus the caller's pro-rata share of whatever
// stablecoin remains in the reserve (which may be less than staked
// if liquidations drew it down).
type UnstakeRequested struct {
	OpID       uuid.UUID
	Caller     uuid.UUID
	Recipient  uuid.UUID
	OpSequence int64
	Timestamp  time.Time
}

func (u *UnstakeRequested) IdempotencyKey() string { return u.OpID.String() }
func (u *UnstakeRequested) EventType() EventType   { return EventTypeUnstakeRequested }
func (u *UnstakeRequested) Partition() string      { return PartitionOps }
func (u *UnstakeRequested) SourceSequence() int64  { return u.OpSequence }

// ClaimRequested pays out accrued collateral rewards without touching
// the principal stake.
type ClaimRequested struct {
	OpID       uuid.UUID
	Caller     uuid.UUID
	Recipient  uuid.UUID
	OpSequence int64
	Timestamp  time.Time
}

func (c *ClaimRequested) IdempotencyKey() string { return c.OpID.String() }
func (c *ClaimRequested) EventType() EventType   { return EventTypeClaimRequested }
func (c *ClaimRequested) Partition() string      { return PartitionOps }
func (c *ClaimRequested) SourceSequence() int64  { return c.OpSequence }
