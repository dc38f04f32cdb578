package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// BalanceOf returns a user's fungible holdings of an asset.
func (bt *BalanceTracker) BalanceOf(userID uuid.UUID, assetID AssetID) int64 {
	return bt.GetBalance(NewUserAccountKey(userID, assetID))
}

// TotalSupply returns the circulating supply of the stablecoin. Every mint
// debits a holder and credits external:issued, so the issued account's
// balance is the negated supply.
func (bt *BalanceTracker) TotalSupply() int64 {
	return -bt.GetBalance(IssuedAccount())
}

// ReserveBalance returns the stablecoin pooled in the insurance reserve.
func (bt *BalanceTracker) ReserveBalance() int64 {
	return bt.GetBalance(ReserveAccount())
}

// VaultBalance returns the collateral held in custody for all positions.
func (bt *BalanceTracker) VaultBalance() int64 {
	return bt.GetBalance(VaultAccount())
}

// RewardPoolBalance returns collateral earmarked for insurance stakers.
func (bt *BalanceTracker) RewardPoolBalance() int64 {
	return bt.GetBalance(RewardPoolAccount())
}

// === Invariant Checks ===

// ValidateSufficientBalance checks that a user holds at least `required`
// of an asset. Evaluated before any state mutation.
func (bt *BalanceTracker) ValidateSufficientBalance(userID uuid.UUID, assetID AssetID, required int64) error {
	have := bt.BalanceOf(userID, assetID)
	if have < required {
		return fmt.Errorf("insufficient balance: have=%d, need=%d", have, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[AssetID]int64 {
	totals := make(map[AssetID]int64)

	for key, balance := range bt.balances {
		totals[key.AssetID] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state hashing and snapshots)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// SetBalance restores a balance directly (snapshot restore only).
func (bt *BalanceTracker) SetBalance(key AccountKey, balance int64) {
	bt.balances[key] = balance
}
