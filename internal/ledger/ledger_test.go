package ledger

import (
	"testing"

	"github.com/google/uuid"
)

// === Account Keys ===

func TestAccountPaths(t *testing.T) {
	userID := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	tests := []struct {
		name string
		key  AccountKey
		want string
	}{
		{"user stable", NewUserAccountKey(userID, AssetStable), "user:11111111-1111-1111-1111-111111111111:balance:MAD"},
		{"user collateral", NewUserAccountKey(userID, AssetCollateral), "user:11111111-1111-1111-1111-111111111111:balance:WETH"},
		{"reserve", ReserveAccount(), "system:reserve:MAD"},
		{"vault", VaultAccount(), "system:vault:WETH"},
		{"reward pool", RewardPoolAccount(), "system:reward_pool:WETH"},
		{"issued", IssuedAccount(), "external:issued:MAD"},
	}

	for _, tt := range tests {
		if got := tt.key.AccountPath(); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	userID := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	keys := []AccountKey{
		NewUserAccountKey(userID, AssetStable),
		NewUserAccountKey(userID, AssetCollateral),
		ReserveAccount(),
		VaultAccount(),
		RewardPoolAccount(),
		IssuedAccount(),
	}

	for _, key := range keys {
		path := key.AccountPath()
		parsed, err := ParseAccountPath(path)
		if err != nil {
			t.Fatalf("ParseAccountPath(%q): %v", path, err)
		}
		if parsed != key {
			t.Errorf("%q: round trip mismatch: got %+v, want %+v", path, parsed, key)
		}
	}
}

func TestParseAccountPath_Rejects(t *testing.T) {
	bad := []string{
		"",
		"user",
		"user:not-a-uuid:balance:MAD",
		"system:reserve",
		"system:nonsense:MAD",
		"external:issued:DOGE",
		"galaxy:reserve:MAD",
	}

	for _, path := range bad {
		if _, err := ParseAccountPath(path); err == nil {
			t.Errorf("ParseAccountPath(%q) should fail", path)
		}
	}
}

func TestAssetLookup(t *testing.T) {
	id, ok := GetAssetID("MAD")
	if !ok || id != AssetStable {
		t.Fatalf("GetAssetID(MAD) = %d, %v", id, ok)
	}

	name, ok := GetAssetName(AssetCollateral)
	if !ok || name != "WETH" {
		t.Fatalf("GetAssetName(2) = %q, %v", name, ok)
	}

	if _, ok := GetAssetID("DOGE"); ok {
		t.Fatal("unknown asset should not resolve")
	}
}

// === Batch Validation ===

func newTestBatch() *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  "op-1",
		Sequence:  1,
		Timestamp: 1_700_000_000_000_000,
	}
}

func addJournal(b *Batch, debit, credit AccountKey, assetID AssetID, amount int64) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       assetID,
		Amount:        amount,
		JournalType:   JournalTypeAdjustment,
		Timestamp:     b.Timestamp,
	})
}

func TestBatchValidate(t *testing.T) {
	user := uuid.New()

	b := newTestBatch()
	addJournal(b, NewUserAccountKey(user, AssetStable), IssuedAccount(), AssetStable, 100)
	if err := b.Validate(); err != nil {
		t.Fatalf("valid batch rejected: %v", err)
	}

	empty := newTestBatch()
	if err := empty.Validate(); err == nil {
		t.Fatal("empty batch accepted")
	}

	neg := newTestBatch()
	addJournal(neg, NewUserAccountKey(user, AssetStable), IssuedAccount(), AssetStable, -5)
	if err := neg.Validate(); err == nil {
		t.Fatal("negative amount accepted")
	}

	self := newTestBatch()
	addJournal(self, ReserveAccount(), ReserveAccount(), AssetStable, 10)
	if err := self.Validate(); err == nil {
		t.Fatal("self-transfer accepted")
	}

	crossAsset := newTestBatch()
	addJournal(crossAsset, NewUserAccountKey(user, AssetStable), VaultAccount(), AssetStable, 10)
	if err := crossAsset.Validate(); err == nil {
		t.Fatal("cross-asset transfer accepted")
	}

	wrongBatch := newTestBatch()
	addJournal(wrongBatch, NewUserAccountKey(user, AssetStable), IssuedAccount(), AssetStable, 10)
	wrongBatch.Journals[0].BatchID = uuid.New()
	if err := wrongBatch.Validate(); err == nil {
		t.Fatal("mismatched batch_id accepted")
	}
}

// === Balance Tracker ===

func TestBalanceTrackerZeroSum(t *testing.T) {
	bt := NewBalanceTracker()
	alice := uuid.New()
	bob := uuid.New()

	b := newTestBatch()
	addJournal(b, NewUserAccountKey(alice, AssetStable), IssuedAccount(), AssetStable, 1_000_000_000)
	addJournal(b, NewUserAccountKey(bob, AssetStable), NewUserAccountKey(alice, AssetStable), AssetStable, 250_000_000)

	if err := bt.ApplyBatch(b); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if got := bt.BalanceOf(alice, AssetStable); got != 750_000_000 {
		t.Errorf("alice balance = %d, want 750000000", got)
	}
	if got := bt.BalanceOf(bob, AssetStable); got != 250_000_000 {
		t.Errorf("bob balance = %d, want 250000000", got)
	}
	if got := bt.TotalSupply(); got != 1_000_000_000 {
		t.Errorf("total supply = %d, want 1000000000", got)
	}

	for asset, total := range bt.ComputeGlobalBalance() {
		if total != 0 {
			t.Errorf("asset %d global balance = %d, want 0", asset, total)
		}
	}
}

func TestBalanceTrackerSufficiency(t *testing.T) {
	bt := NewBalanceTracker()
	user := uuid.New()

	b := newTestBatch()
	addJournal(b, NewUserAccountKey(user, AssetCollateral), NewExternalAccountKey(SubTypeExternalDeposits, AssetCollateral), AssetCollateral, 500)
	if err := bt.ApplyBatch(b); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if err := bt.ValidateSufficientBalance(user, AssetCollateral, 500); err != nil {
		t.Errorf("exact balance rejected: %v", err)
	}
	if err := bt.ValidateSufficientBalance(user, AssetCollateral, 501); err == nil {
		t.Error("insufficient balance accepted")
	}
}

func TestBalanceTrackerSnapshotRestore(t *testing.T) {
	bt := NewBalanceTracker()
	user := uuid.New()

	b := newTestBatch()
	addJournal(b, NewUserAccountKey(user, AssetStable), IssuedAccount(), AssetStable, 42)
	if err := bt.ApplyBatch(b); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	snap := bt.Snapshot()

	restored := NewBalanceTracker()
	for k, v := range snap {
		restored.SetBalance(k, v)
	}

	if got := restored.TotalSupply(); got != 42 {
		t.Errorf("restored supply = %d, want 42", got)
	}
}

// === Token Ledger ===

func TestTokenLedgerMintBurnTransfer(t *testing.T) {
	bt := NewBalanceTracker()
	tl := NewTokenLedger(bt)
	alice := uuid.New()
	bob := uuid.New()

	tl.Begin("op-mint", 1, 1_700_000_000_000_000)
	tl.Mint(alice, 1_000_000)
	if _, err := tl.Commit(); err != nil {
		t.Fatalf("mint commit failed: %v", err)
	}

	if got := tl.TotalSupply(); got != 1_000_000 {
		t.Fatalf("supply after mint = %d, want 1000000", got)
	}

	tl.Begin("op-transfer", 2, 1_700_000_001_000_000)
	tl.Transfer(alice, bob, AssetStable, 400_000, JournalTypeAdjustment)
	if _, err := tl.Commit(); err != nil {
		t.Fatalf("transfer commit failed: %v", err)
	}

	if got := tl.BalanceOf(bob, AssetStable); got != 400_000 {
		t.Errorf("bob balance = %d, want 400000", got)
	}

	tl.Begin("op-burn", 3, 1_700_000_002_000_000)
	tl.Burn(alice, 600_000)
	batch, err := tl.Commit()
	if err != nil {
		t.Fatalf("burn commit failed: %v", err)
	}
	if len(batch.Journals) != 1 {
		t.Fatalf("burn batch has %d journals, want 1", len(batch.Journals))
	}

	if got := tl.TotalSupply(); got != 400_000 {
		t.Errorf("supply after burn = %d, want 400000", got)
	}
	if got := tl.BalanceOf(alice, AssetStable); got != 0 {
		t.Errorf("alice balance = %d, want 0", got)
	}
}

func TestTokenLedgerDiscardLeavesNoTrace(t *testing.T) {
	bt := NewBalanceTracker()
	tl := NewTokenLedger(bt)
	user := uuid.New()

	tl.Begin("op-abort", 1, 1_700_000_000_000_000)
	tl.Mint(user, 999)
	tl.Discard()

	if got := tl.TotalSupply(); got != 0 {
		t.Errorf("supply after discard = %d, want 0", got)
	}
	if tl.Batch() != nil {
		t.Error("batch still open after discard")
	}
}

func TestTokenLedgerSystemTransfers(t *testing.T) {
	bt := NewBalanceTracker()
	tl := NewTokenLedger(bt)
	user := uuid.New()

	// Seed collateral from the external boundary.
	tl.Begin("op-deposit", 1, 1_700_000_000_000_000)
	tl.append(NewUserAccountKey(user, AssetCollateral), NewExternalAccountKey(SubTypeExternalDeposits, AssetCollateral), AssetCollateral, 10_000_000, JournalTypeDeposit)
	if _, err := tl.Commit(); err != nil {
		t.Fatalf("deposit commit failed: %v", err)
	}

	tl.Begin("op-pull", 2, 1_700_000_001_000_000)
	tl.TransferToSystem(user, VaultAccount(), 10_000_000, JournalTypeCollateralPull)
	if _, err := tl.Commit(); err != nil {
		t.Fatalf("pull commit failed: %v", err)
	}

	if got := bt.VaultBalance(); got != 10_000_000 {
		t.Errorf("vault balance = %d, want 10000000", got)
	}

	tl.Begin("op-release", 3, 1_700_000_002_000_000)
	tl.TransferFromSystem(VaultAccount(), user, 4_000_000, JournalTypeCollateralRelease)
	tl.TransferSystem(VaultAccount(), RewardPoolAccount(), 1_000_000, JournalTypeStakerRewardAccrual)
	if _, err := tl.Commit(); err != nil {
		t.Fatalf("release commit failed: %v", err)
	}

	if got := bt.VaultBalance(); got != 5_000_000 {
		t.Errorf("vault balance = %d, want 5000000", got)
	}
	if got := bt.RewardPoolBalance(); got != 1_000_000 {
		t.Errorf("reward pool balance = %d, want 1000000", got)
	}
}
