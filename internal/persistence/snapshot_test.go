package persistence_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nkrishang/mad-protocol/internal/core"
	"github.com/nkrishang/mad-protocol/internal/ledger"
	"github.com/nkrishang/mad-protocol/internal/persistence"
	"github.com/nkrishang/mad-protocol/internal/state"
)

func TestSnapshotData_RoundTrip(t *testing.T) {
	owner := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	staker := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	var hash [32]byte
	for i := range hash {
		hash[i] = byte(i)
	}

	src := &core.SnapshotState{
		Sequence:  41,
		StateHash: hash,
		Balances: map[ledger.AccountKey]int64{
			ledger.NewUserAccountKey(owner, ledger.AssetStable): 990_000_000,
			ledger.VaultAccount():    10_000_000_000,
			ledger.ReserveAccount():  500_000_000,
			ledger.IssuedAccount():   -1_490_000_000,
		},
		Positions: []*state.Position{
			{PositionID: 1, Owner: owner, DebtPoints: 1_010_000_000, CollateralPoints: 10_000_000_000, Version: 3},
		},
		Stakers: []*state.Staker{
			{Account: staker, Staked: 500_000_000, RewardDebt: 120, Version: 2},
		},
		Prices: map[string]*state.PriceState{
			"WETH": {Price: 3_000_000_000, PriceSequence: 17, Timestamp: 1_700_000_000_000_000},
		},
		NextPositionID:        2,
		TotalDebtPoints:       1_010_000_000,
		TotalCollateralPoints: 10_000_000_000,
		DebtMultiplier:        1e18,
		CollateralMultiplier:  1e18,
		TotalStaked:           500_000_000,
		RewardPerStakedUnit:   42,
		VariableFeeRate:       10_000_000_000_000_000,
		LastFeeUpdate:         1_700_000_000_000_000,
		FeeDebt:               10_000_000,
		RoundingBudget:        4,
		SequenceState:         map[string]int64{"ops": 9, "price:WETH": 18},
		IdempotencyKeys:       []string{"MintRequested:op-1", "StakeRequested:op-2"},
	}

	data := persistence.FromEngineState(src, time.Unix(1_700_000_100, 0).UTC())

	// Through JSON, as it would be stored.
	encoded, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded persistence.SnapshotData
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := decoded.ToEngineState()
	if err != nil {
		t.Fatalf("ToEngineState: %v", err)
	}

	if got.Sequence != src.Sequence {
		t.Errorf("sequence: got %d, want %d", got.Sequence, src.Sequence)
	}
	if got.StateHash != src.StateHash {
		t.Errorf("state hash mismatch")
	}
	if len(got.Balances) != len(src.Balances) {
		t.Fatalf("balances: got %d entries, want %d", len(got.Balances), len(src.Balances))
	}
	for key, want := range src.Balances {
		if got.Balances[key] != want {
			t.Errorf("balance %s: got %d, want %d", key.AccountPath(), got.Balances[key], want)
		}
	}

	if len(got.Positions) != 1 || *got.Positions[0] != *src.Positions[0] {
		t.Errorf("positions: got %+v", got.Positions)
	}
	if len(got.Stakers) != 1 || *got.Stakers[0] != *src.Stakers[0] {
		t.Errorf("stakers: got %+v", got.Stakers)
	}
	if got.Prices["WETH"] == nil || *got.Prices["WETH"] != *src.Prices["WETH"] {
		t.Errorf("prices: got %+v", got.Prices["WETH"])
	}

	if got.FeeDebt != src.FeeDebt || got.RoundingBudget != src.RoundingBudget {
		t.Errorf("fee state: got feeDebt=%d budget=%d", got.FeeDebt, got.RoundingBudget)
	}
	if got.SequenceState["ops"] != 9 || got.SequenceState["price:WETH"] != 18 {
		t.Errorf("sequence state: got %+v", got.SequenceState)
	}
	if len(got.IdempotencyKeys) != 2 {
		t.Errorf("idempotency keys: got %v", got.IdempotencyKeys)
	}
}

func TestSnapshotData_BalancesSortedForDeterminism(t *testing.T) {
	owner := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	src := &core.SnapshotState{
		Balances: map[ledger.AccountKey]int64{
			ledger.VaultAccount():   1,
			ledger.IssuedAccount():  2,
			ledger.ReserveAccount(): 3,
			ledger.NewUserAccountKey(owner, ledger.AssetStable): 4,
		},
		Prices:        map[string]*state.PriceState{},
		SequenceState: map[string]int64{},
	}

	a, _ := json.Marshal(persistence.FromEngineState(src, time.Unix(0, 0).UTC()))
	b, _ := json.Marshal(persistence.FromEngineState(src, time.Unix(0, 0).UTC()))

	if string(a) != string(b) {
		t.Fatal("snapshot serialization is not deterministic")
	}

	data := persistence.FromEngineState(src, time.Unix(0, 0).UTC())
	for i := 1; i < len(data.Balances); i++ {
		if data.Balances[i-1].Account >= data.Balances[i].Account {
			t.Fatalf("balances not sorted: %q before %q", data.Balances[i-1].Account, data.Balances[i].Account)
		}
	}
}
