package state

import (
	"sort"

	"github.com/google/uuid"

	fpmath "github.com/nkrishang/mad-protocol/internal/math"
)

// Staker is one insurance-reserve participant. RewardDebt is the
// standard accumulated-reward-per-share offset: pending rewards are
// staked x accumulator - rewardDebt, so distributing to all stakers is a
// single accumulator bump, never an iteration.
type Staker struct {
	Account    uuid.UUID
	Staked     int64 // Stablecoin principal, amount scale
	RewardDebt int64 // Collateral already accounted for, amount scale
	Version    int64
}

// CanonicalBytes returns deterministic serialization for hashing
func (s *Staker) CanonicalBytes() []byte {
	buf := make([]byte, 0, 48)
	buf = append(buf, s.Account[:]...)
	buf = appendInt64LE(buf, s.Staked)
	buf = appendInt64LE(buf, s.RewardDebt)
	return buf
}

// StakerBook manages insurance-reserve stake and reward accounting.
type StakerBook struct {
	stakers map[uuid.UUID]*Staker

	// TotalStaked is the sum of all principal. It tracks deposits and
	// exits, not reserve draw-downs: a liquidation burning reserve
	// stablecoin dilutes every staker's recoverable principal pro-rata
	// without touching this counter.
	TotalStaked int64

	// RewardPerStakedUnit is the lifetime wad-scaled accumulator of
	// collateral rewards per staked stablecoin unit.
	RewardPerStakedUnit int64
}

func NewStakerBook() *StakerBook {
	return &StakerBook{
		stakers: make(map[uuid.UUID]*Staker),
	}
}

// Get returns the staker record or nil.
func (sb *StakerBook) Get(account uuid.UUID) *Staker {
	return sb.stakers[account]
}

// Stake adds principal for an account. The reward debt grows by the
// newly staked amount's share of the lifetime accumulator so the new
// stake earns nothing from past liquidations. Rounds up: dust at the
// accumulator boundary stays with the pool, never with the new stake.
func (sb *StakerBook) Stake(account uuid.UUID, amount int64) *Staker {
	s := sb.stakers[account]
	if s == nil {
		s = &Staker{Account: account}
		sb.stakers[account] = s
	}

	s.Staked += amount
	s.RewardDebt += fpmath.MulDiv(amount, sb.RewardPerStakedUnit, fpmath.Wad, fpmath.RoundUp)
	s.Version++
	sb.TotalStaked += amount

	return s
}

// PendingRewards returns the collateral a staker could claim now.
// Rounds down so the sum of payouts never exceeds what AccrueRewards
// put into the pool.
func (sb *StakerBook) PendingRewards(s *Staker) int64 {
	accrued := fpmath.MulDiv(s.Staked, sb.RewardPerStakedUnit, fpmath.Wad, fpmath.RoundDown)
	pending := accrued - s.RewardDebt
	if pending < 0 {
		return 0
	}
	return pending
}

// Claim settles pending rewards and advances the offset by exactly the
// amount paid. Returns the collateral owed.
func (sb *StakerBook) Claim(s *Staker) int64 {
	owed := sb.PendingRewards(s)
	s.RewardDebt += owed
	s.Version++
	return owed
}

// Remove deletes a staker record after a full exit, returning the
// principal that left the total.
func (sb *StakerBook) Remove(s *Staker) int64 {
	principal := s.Staked
	sb.TotalStaked -= principal
	delete(sb.stakers, s.Account)
	return principal
}

// AccrueRewards distributes collateral to all stakers via one
// accumulator bump. Rounds down so the reward pool never owes more than
// it holds. Caller must ensure TotalStaked > 0.
func (sb *StakerBook) AccrueRewards(collateral int64) {
	sb.RewardPerStakedUnit += fpmath.MulDiv(collateral, fpmath.Wad, sb.TotalStaked, fpmath.RoundDown)
}

// GetAllStakers returns stakers sorted by account (deterministic for
// hashing and snapshots).
func (sb *StakerBook) GetAllStakers() []*Staker {
	result := make([]*Staker, 0, len(sb.stakers))
	for _, s := range sb.stakers {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Account, result[j].Account
		for k := 0; k < len(a); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return result
}

// Count returns the number of stakers with open records.
func (sb *StakerBook) Count() int {
	return len(sb.stakers)
}

// SetStaker directly sets a record (used for snapshot restore).
func (sb *StakerBook) SetStaker(s *Staker) {
	sb.stakers[s.Account] = s
}
