package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeWithdraw
	JournalTypeStableMint
	JournalTypeStableBurn
	JournalTypeCollateralPull
	JournalTypeCollateralRelease
	JournalTypeRedeemFee
	JournalTypeReserveBurn
	JournalTypeLiquidatorReward
	JournalTypeStakerRewardAccrual
	JournalTypeStakeDeposit
	JournalTypeStakeWithdraw
	JournalTypeRewardPayout
	JournalTypeAdjustment
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeWithdraw:
		return "withdraw"
	case JournalTypeStableMint:
		return "stable_mint"
	case JournalTypeStableBurn:
		return "stable_burn"
	case JournalTypeCollateralPull:
		return "collateral_pull"
	case JournalTypeCollateralRelease:
		return "collateral_release"
	case JournalTypeRedeemFee:
		return "redeem_fee"
	case JournalTypeReserveBurn:
		return "reserve_burn"
	case JournalTypeLiquidatorReward:
		return "liquidator_reward"
	case JournalTypeStakerRewardAccrual:
		return "staker_reward_accrual"
	case JournalTypeStakeDeposit:
		return "stake_deposit"
	case JournalTypeStakeWithdraw:
		return "stake_withdraw"
	case JournalTypeRewardPayout:
		return "reward_payout"
	case JournalTypeAdjustment:
		return "adjustment"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of source operation
	Sequence      int64       // Global operation sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	AssetID       AssetID     // Asset being transferred
	Amount        int64       // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Versioned input timestamp (epoch microseconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Note on balance invariant: each journal entry is a balanced transfer by
// construction (a single positive amount moves from credit account to debit
// account), so Σ debits == Σ credits is guaranteed per-entry. Multi-leg
// operations (e.g. redeem with fee) use multiple entries under one batch_id.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.AssetID != j.AssetID || j.CreditAccount.AssetID != j.AssetID {
			return fmt.Errorf("journal %s moves asset %d between accounts of another asset", j.JournalID, j.AssetID)
		}
	}

	return nil
}
