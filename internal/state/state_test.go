package state

import (
	stdmath "math"
	"testing"

	"github.com/google/uuid"

	fpmath "github.com/nkrishang/mad-protocol/internal/math"
)

// === Position Book ===

func TestPositionBookLazyInit(t *testing.T) {
	pb := NewPositionBook()

	if pb.Initialized() {
		t.Fatal("fresh book should be uninitialized")
	}
	if pb.TotalDebt() != 0 || pb.TotalCollateral() != 0 {
		t.Fatal("uninitialized book should report zero totals")
	}

	pb.EnsureInitialized()
	if pb.DebtMultiplier != fpmath.Wad || pb.CollateralMultiplier != fpmath.Wad {
		t.Fatalf("multipliers = %d, %d, want 1e18", pb.DebtMultiplier, pb.CollateralMultiplier)
	}

	// Re-init must not reset moved multipliers.
	pb.DebtMultiplier = 2 * fpmath.Wad
	pb.EnsureInitialized()
	if pb.DebtMultiplier != 2*fpmath.Wad {
		t.Fatal("EnsureInitialized reset a live multiplier")
	}
}

func TestPositionBookOpenAndConversion(t *testing.T) {
	pb := NewPositionBook()
	pb.EnsureInitialized()
	owner := uuid.New()

	// At multiplier 1.0 points equal amounts.
	debtPoints := pb.PointsForDebt(1_010_000_000)
	collPoints := pb.PointsForCollateral(10_000_000_000)
	if debtPoints != 1_010_000_000 || collPoints != 10_000_000_000 {
		t.Fatalf("points = %d, %d, want amounts unchanged at unit multiplier", debtPoints, collPoints)
	}

	pos := pb.Open(owner, debtPoints, collPoints)
	if pos.PositionID != 1 {
		t.Errorf("first position id = %d, want 1", pos.PositionID)
	}
	if pb.NextPositionID != 2 {
		t.Errorf("next id = %d, want 2", pb.NextPositionID)
	}
	if pb.TotalDebtPoints != debtPoints || pb.TotalCollateralPoints != collPoints {
		t.Error("totals not updated on open")
	}

	if got := pb.ActualDebt(pos); got != 1_010_000_000 {
		t.Errorf("actual debt = %d, want 1010000000", got)
	}
	// Idempotent re-read.
	if pb.ActualDebt(pos) != pb.ActualDebt(pos) {
		t.Error("re-reading actual debt changed the value")
	}
}

func TestPositionBookSocialization(t *testing.T) {
	pb := NewPositionBook()
	pb.EnsureInitialized()

	survivor := pb.Open(uuid.New(), 1_000_000_000, 5_000_000_000)
	victim := pb.Open(uuid.New(), 1_000_000_000, 1_000_000_000)

	// Liquidation removes the victim's points first, then socializes
	// its residual debt and collateral over the survivor.
	pb.Remove(victim)
	debtBefore := pb.ActualDebt(survivor)
	collBefore := pb.ActualCollateral(survivor)

	pb.SocializeLiquidation(1_000_000_000, 990_000_000)

	debtAfter := pb.ActualDebt(survivor)
	collAfter := pb.ActualCollateral(survivor)

	if debtAfter <= debtBefore {
		t.Error("survivor debt did not grow after socialization")
	}
	if collAfter <= collBefore {
		t.Error("survivor collateral did not grow after socialization")
	}
	// Sole survivor absorbs the whole residual (up to rounding).
	if diff := debtAfter - debtBefore - 1_000_000_000; diff < -1 || diff > 1 {
		t.Errorf("socialized debt off by %d", diff)
	}
	if diff := collAfter - collBefore - 990_000_000; diff < -1 || diff > 1 {
		t.Errorf("socialized collateral off by %d", diff)
	}
}

func TestPositionBookSocializationMonotonic(t *testing.T) {
	pb := NewPositionBook()
	pb.EnsureInitialized()
	pb.Open(uuid.New(), 2_000_000_000, 8_000_000_000)

	for i := 0; i < 5; i++ {
		dm, cm := pb.DebtMultiplier, pb.CollateralMultiplier
		pb.SocializeLiquidation(100_000_000, 90_000_000)
		if pb.DebtMultiplier < dm || pb.CollateralMultiplier < cm {
			t.Fatal("multiplier decreased under liquidation socialization")
		}
	}
}

func TestPositionBookRedemptionShrinksMultipliers(t *testing.T) {
	pb := NewPositionBook()
	pb.EnsureInitialized()
	pb.Open(uuid.New(), 1_000_000_000, 4_000_000_000)

	totalDebtBefore := pb.TotalDebt()
	pb.ApplyRedemption(100_000_000, 99_000_000)

	if pb.DebtMultiplier >= fpmath.Wad {
		t.Error("debt multiplier did not shrink on redemption")
	}
	if diff := totalDebtBefore - pb.TotalDebt() - 100_000_000; diff < -1 || diff > 1 {
		t.Errorf("redeemed debt off by %d", diff)
	}
}

func TestPositionBookEmptyGuards(t *testing.T) {
	pb := NewPositionBook()
	pb.EnsureInitialized()

	// No points left: socialization must be a no-op, not a divide by zero.
	pb.SocializeLiquidation(500, 500)
	if pb.DebtMultiplier != fpmath.Wad {
		t.Error("socialization with no positions moved the multiplier")
	}
}

// === Fee Controller ===

func TestFeeControllerBorrowRateFloor(t *testing.T) {
	fc := NewFeeController()

	if got := fc.BorrowRate(1_000_000); got != BaseFeeRate {
		t.Errorf("borrow rate at zero variable = %d, want %d", got, BaseFeeRate)
	}
	// Borrow path never mutates.
	if fc.VariableRate != 0 || fc.LastUpdate != 0 {
		t.Error("BorrowRate mutated persisted state")
	}
}

func TestFeeControllerDecay(t *testing.T) {
	fc := NewFeeController()
	fc.VariableRate = 2e16 // 2%
	fc.LastUpdate = 0

	// 0.89^6 ~ 0.4970, so after 6 hours ~0.994%.
	got := fc.BorrowRate(6 * 3600)
	want := BaseFeeRate + fpmath.MulWad(2e16, fpmath.PowWad(DecayFactor, 6))
	if got != want {
		t.Errorf("decayed rate = %d, want %d", got, want)
	}
	if got >= BaseFeeRate+2e16 {
		t.Error("rate did not decay")
	}

	// Partial hours floor to the last full hour.
	if fc.BorrowRate(3599) != BaseFeeRate+2e16 {
		t.Error("sub-hour elapsed time should not decay")
	}
}

func TestFeeControllerRedeemChargesPreIncrement(t *testing.T) {
	fc := NewFeeController()

	// Scenario: zero variable rate, redeem 100 of a 10000 supply.
	charged := fc.RedeemRate(100_000_000, 10_000_000_000, 1000)

	if charged != BaseFeeRate {
		t.Errorf("charged rate = %d, want base rate (pre-increment)", charged)
	}
	// Persisted rate picked up the increment: 1% x (100/10000) = 0.01%.
	wantVar := fpmath.MulWad(RedeemIncrementRate, fpmath.DivWad(100_000_000, 10_000_000_000))
	if fc.VariableRate != wantVar {
		t.Errorf("persisted variable rate = %d, want %d", fc.VariableRate, wantVar)
	}
	if fc.LastUpdate != 1000 {
		t.Errorf("last update = %d, want 1000", fc.LastUpdate)
	}
}

func TestFeeControllerRateCap(t *testing.T) {
	fc := NewFeeController()
	fc.VariableRate = MaxVariableFeeRate
	fc.LastUpdate = 1000

	// Huge redemption right away: variable rate must stay capped at 4%,
	// charged rate at 5%.
	charged := fc.RedeemRate(9_000_000_000, 10_000_000_000, 1000)
	if fc.VariableRate != MaxVariableFeeRate {
		t.Errorf("variable rate = %d, want cap %d", fc.VariableRate, MaxVariableFeeRate)
	}
	if charged != BaseFeeRate+MaxVariableFeeRate {
		t.Errorf("charged rate = %d, want %d", charged, BaseFeeRate+MaxVariableFeeRate)
	}
}

// === Staker Book ===

func TestStakerBookRewardDebtPattern(t *testing.T) {
	sb := NewStakerBook()
	alice := uuid.New()
	bob := uuid.New()

	sb.Stake(alice, 600_000_000)
	sb.Stake(bob, 400_000_000)

	sb.AccrueRewards(100_000_000)

	a := sb.Get(alice)
	b := sb.Get(bob)
	if got := sb.PendingRewards(a); got != 60_000_000 {
		t.Errorf("alice pending = %d, want 60000000", got)
	}
	if got := sb.PendingRewards(b); got != 40_000_000 {
		t.Errorf("bob pending = %d, want 40000000", got)
	}

	// A late staker earns nothing from past accruals.
	carol := uuid.New()
	sb.Stake(carol, 500_000_000)
	if got := sb.PendingRewards(sb.Get(carol)); got != 0 {
		t.Errorf("late staker pending = %d, want 0", got)
	}

	// Claim settles and resets.
	owed := sb.Claim(a)
	if owed != 60_000_000 {
		t.Errorf("claim paid %d, want 60000000", owed)
	}
	if got := sb.PendingRewards(a); got != 0 {
		t.Errorf("pending after claim = %d, want 0", got)
	}

	// Second accrual splits over the new total (1500).
	sb.AccrueRewards(150_000_000)
	if got := sb.PendingRewards(a); got != 60_000_000 {
		t.Errorf("alice second-round pending = %d, want 60000000", got)
	}
}

func TestStakerBookPayoutsNeverExceedAccrual(t *testing.T) {
	sb := NewStakerBook()
	alice := uuid.New()
	bob := uuid.New()

	// Two equal stakes splitting an odd reward: 7.5 per staked unit. Each
	// payout floors to 7; rounding the halves up would pay 16 of 15.
	a := sb.Stake(alice, 1)
	b := sb.Stake(bob, 1)
	sb.AccrueRewards(15)

	total := sb.Claim(a) + sb.Claim(b)
	if total > 15 {
		t.Fatalf("claims paid %d of 15 accrued", total)
	}
	if got := sb.PendingRewards(a); got != 0 {
		t.Errorf("pending after claim = %d, want 0", got)
	}
}

func TestStakerBookLateStakeAtFractionalAccumulator(t *testing.T) {
	sb := NewStakerBook()

	// Push the accumulator to a fractional per-unit value, drain the
	// original staker, then join at that boundary.
	first := sb.Stake(uuid.New(), 10)
	sb.AccrueRewards(19) // 1.9 per unit
	sb.Claim(first)
	sb.Remove(first)

	carol := sb.Stake(uuid.New(), 1)
	dave := sb.Stake(uuid.New(), 1)
	sb.AccrueRewards(1) // 0.5 per unit on top of 1.9

	// Each is entitled to 0.5; the joining offset rounds up, so neither
	// can mine the pre-join fraction into a full unit.
	if total := sb.Claim(carol) + sb.Claim(dave); total > 1 {
		t.Fatalf("late stakers claimed %d of 1 accrued", total)
	}
}

func TestStakerBookRemove(t *testing.T) {
	sb := NewStakerBook()
	alice := uuid.New()
	sb.Stake(alice, 1_000_000)

	principal := sb.Remove(sb.Get(alice))
	if principal != 1_000_000 {
		t.Errorf("removed principal = %d, want 1000000", principal)
	}
	if sb.TotalStaked != 0 || sb.Get(alice) != nil {
		t.Error("staker not fully removed")
	}
}

// === Health Ratios ===

func TestLTV(t *testing.T) {
	// debt=900, collateral=1000 at price 1.0 -> LTV 0.9 exactly.
	if got := LTV(900_000_000, 1_000_000_000, 1_000_000); got != MaxLTV {
		t.Errorf("LTV = %d, want %d", got, MaxLTV)
	}
	if LTV(0, 1_000_000_000, 1_000_000) != 0 {
		t.Error("zero debt should have zero LTV")
	}
	if LTV(1, 0, 1_000_000) <= MaxLTV {
		t.Error("debt with zero collateral should exceed max LTV")
	}
}

func TestTCR(t *testing.T) {
	// collateral=1100, debt=1000 at price 1.0 -> TCR 1.1 exactly.
	if got := TCR(1_100_000_000, 1_000_000_000, 1_000_000); got != MinTCR {
		t.Errorf("TCR = %d, want %d", got, MinTCR)
	}
	if TCR(0, 0, 1_000_000) <= MinTCR {
		t.Error("zero-debt system should be maximally solvent")
	}
}

func TestTCRSaturatesWhenStronglyOvercollateralized(t *testing.T) {
	// 10000 collateral against 1010 debt at price 1.0 is a 9.9 ratio,
	// beyond the wad int64 range. It must read as very solvent, not wrap
	// negative and fail the floor comparison.
	got := TCR(10_000_000_000, 1_010_000_000, 1_000_000)
	if got != stdmath.MaxInt64 {
		t.Errorf("TCR = %d, want MaxInt64", got)
	}
	if got <= MinTCR {
		t.Error("overcollateralized system read as below the TCR floor")
	}
}

func TestCollateralValueRoundTrip(t *testing.T) {
	// 2.5 collateral at price 2000.000000 -> value 5000.
	value := CollateralValue(2_500_000, 2_000_000_000)
	if value != 5_000_000_000 {
		t.Fatalf("value = %d, want 5000000000", value)
	}
	back := CollateralForValue(value, 2_000_000_000)
	if back != 2_500_000 {
		t.Errorf("collateral = %d, want 2500000", back)
	}
}

// === Price Feed ===

func TestPriceFeedStaleIgnored(t *testing.T) {
	pf := NewPriceFeed()
	pf.Update("WETH", 2_000_000_000, 10, 1)
	pf.Update("WETH", 1_900_000_000, 9, 2) // stale sequence

	price, ok := pf.Get("WETH")
	if !ok || price != 2_000_000_000 {
		t.Errorf("price = %d, want 2000000000 (stale ignored)", price)
	}

	// Gaps are fine.
	pf.Update("WETH", 2_100_000_000, 50, 3)
	if price, _ := pf.Get("WETH"); price != 2_100_000_000 {
		t.Errorf("price = %d, want 2100000000 after gap", price)
	}
}

func TestNormalizePrice(t *testing.T) {
	// 2000.00000000 with 8 decimals -> 2000.000000 with 6.
	if got := NormalizePrice(200_000_000_000, 8); got != 2_000_000_000 {
		t.Errorf("8->6 = %d, want 2000000000", got)
	}
	// 2000.00 with 2 decimals -> 2000.000000.
	if got := NormalizePrice(200_000, 2); got != 2_000_000_000 {
		t.Errorf("2->6 = %d, want 2000000000", got)
	}
	if got := NormalizePrice(2_000_000_000, 6); got != 2_000_000_000 {
		t.Errorf("6->6 = %d, want unchanged", got)
	}
}
