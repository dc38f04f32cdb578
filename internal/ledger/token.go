package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// TokenLedger exposes fungible-token semantics (mint, burn, transfer) on
// top of the double-entry balance tracker. Each call appends balanced
// journal entries to an open batch; nothing is applied to balances until
// the batch is committed by the engine's apply phase, so a failed
// operation leaves no partial writes.
type TokenLedger struct {
	tracker *BalanceTracker
	batch   *Batch
}

func NewTokenLedger(tracker *BalanceTracker) *TokenLedger {
	return &TokenLedger{tracker: tracker}
}

// Begin opens a new journal batch for one operation. Any previous
// uncommitted batch is discarded.
func (tl *TokenLedger) Begin(eventRef string, sequence, timestamp int64) {
	tl.batch = &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Sequence:  sequence,
		Timestamp: timestamp,
	}
}

// Batch returns the open batch, or nil if Begin was not called.
func (tl *TokenLedger) Batch() *Batch {
	return tl.batch
}

// Commit validates the open batch and applies it to balances.
func (tl *TokenLedger) Commit() (*Batch, error) {
	if tl.batch == nil {
		return nil, fmt.Errorf("no open batch")
	}

	batch := tl.batch
	tl.batch = nil

	if err := tl.tracker.ApplyBatch(batch); err != nil {
		return nil, err
	}

	return batch, nil
}

// Discard drops the open batch without applying it.
func (tl *TokenLedger) Discard() {
	tl.batch = nil
}

func (tl *TokenLedger) append(debit, credit AccountKey, assetID AssetID, amount int64, jt JournalType) {
	if tl.batch == nil {
		panic("FATAL: journal appended outside an open batch")
	}

	tl.batch.Journals = append(tl.batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       tl.batch.BatchID,
		EventRef:      tl.batch.EventRef,
		Sequence:      tl.batch.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     tl.batch.Timestamp,
	})
}

// Mint creates new stablecoin units in a holder's account, backed by the
// external issued account.
func (tl *TokenLedger) Mint(to uuid.UUID, amount int64) {
	tl.append(NewUserAccountKey(to, AssetStable), IssuedAccount(), AssetStable, amount, JournalTypeStableMint)
}

// Burn destroys stablecoin units held by a user.
func (tl *TokenLedger) Burn(from uuid.UUID, amount int64) {
	tl.append(IssuedAccount(), NewUserAccountKey(from, AssetStable), AssetStable, amount, JournalTypeStableBurn)
}

// BurnFromAccount destroys stablecoin units held by a system account
// (reserve draw-down during liquidation).
func (tl *TokenLedger) BurnFromAccount(from AccountKey, amount int64) {
	tl.append(IssuedAccount(), from, AssetStable, amount, JournalTypeReserveBurn)
}

// Transfer moves units between two user accounts of one asset.
func (tl *TokenLedger) Transfer(from, to uuid.UUID, assetID AssetID, amount int64, jt JournalType) {
	tl.append(NewUserAccountKey(to, assetID), NewUserAccountKey(from, assetID), assetID, amount, jt)
}

// TransferToSystem moves units from a user into a system account.
func (tl *TokenLedger) TransferToSystem(from uuid.UUID, to AccountKey, amount int64, jt JournalType) {
	tl.append(to, NewUserAccountKey(from, to.AssetID), to.AssetID, amount, jt)
}

// TransferFromSystem moves units from a system account to a user.
func (tl *TokenLedger) TransferFromSystem(from AccountKey, to uuid.UUID, amount int64, jt JournalType) {
	tl.append(NewUserAccountKey(to, from.AssetID), from, from.AssetID, amount, jt)
}

// TransferSystem moves units between two system accounts of one asset.
func (tl *TokenLedger) TransferSystem(from, to AccountKey, amount int64, jt JournalType) {
	tl.append(to, from, from.AssetID, amount, jt)
}

// Deposit credits a user with an asset entering the custody boundary.
func (tl *TokenLedger) Deposit(userID uuid.UUID, assetID AssetID, amount int64) {
	tl.append(NewUserAccountKey(userID, assetID), NewExternalAccountKey(SubTypeExternalDeposits, assetID), assetID, amount, JournalTypeDeposit)
}

// Withdraw debits a user for an asset leaving the custody boundary.
func (tl *TokenLedger) Withdraw(userID uuid.UUID, assetID AssetID, amount int64) {
	tl.append(NewExternalAccountKey(SubTypeExternalDeposits, assetID), NewUserAccountKey(userID, assetID), assetID, amount, JournalTypeWithdraw)
}

// BalanceOf reads a user's committed balance. Journals in the open batch
// are not reflected until Commit.
func (tl *TokenLedger) BalanceOf(userID uuid.UUID, assetID AssetID) int64 {
	return tl.tracker.BalanceOf(userID, assetID)
}

// TotalSupply reads the committed circulating stablecoin supply.
func (tl *TokenLedger) TotalSupply() int64 {
	return tl.tracker.TotalSupply()
}
