package math

import (
	stdmath "math"
	"testing"
)

func TestMulDivNoOverflow(t *testing.T) {
	// 9e18-ish intermediate would overflow int64; int128 path must not.
	a := int64(3_000_000_000_000)
	b := int64(3_000_000_000_000)
	got := MulDiv(a, b, 1_000_000_000_000, RoundHalfEven)
	if got != 9_000_000_000_000 {
		t.Errorf("MulDiv = %d, want 9000000000000", got)
	}
}

func TestRoundingModes(t *testing.T) {
	tests := []struct {
		name  string
		a, b  int64
		denom int64
		mode  RoundingMode
		want  int64
	}{
		{"half even rounds down at .4", 7, 2, 10, RoundHalfEven, 1}, // 1.4
		{"half even rounds up at .6", 8, 2, 10, RoundHalfEven, 2},   // 1.6
		{"half even ties to even (down)", 5, 5, 10, RoundHalfEven, 2}, // 2.5 -> 2
		{"half even ties to even (up)", 7, 5, 10, RoundHalfEven, 4},   // 3.5 -> 4
		{"round up on any remainder", 101, 1, 100, RoundUp, 2},
		{"round up exact stays", 100, 1, 100, RoundUp, 1},
		{"round down truncates", 199, 1, 100, RoundDown, 1},
	}

	for _, tt := range tests {
		if got := MulDiv(tt.a, tt.b, tt.denom, tt.mode); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestWadHelpers(t *testing.T) {
	// 1000 units at a 1% wad rate.
	if got := MulWad(1_000_000_000, 1e16); got != 10_000_000 {
		t.Errorf("MulWad = %d, want 10000000", got)
	}

	// Fees round up: 1 unit at 1% is sub-resolution but still charges 1.
	if got := MulWadUp(1, 1e16); got != 1 {
		t.Errorf("MulWadUp = %d, want 1", got)
	}
	if got := MulWad(1, 1e16); got != 0 {
		t.Errorf("MulWad = %d, want 0 (banker's)", got)
	}

	// DivWad of equal quantities is 1.0.
	if got := DivWad(5_000_000, 5_000_000); got != Wad {
		t.Errorf("DivWad = %d, want %d", got, Wad)
	}
}

func TestDivWadSaturatesBeyondInt64(t *testing.T) {
	// A ratio just inside the representable range stays exact.
	if got := DivWad(9_000_000_000, 1_000_000_000); got != 9*Wad {
		t.Errorf("DivWad(9.0) = %d, want %d", got, 9*Wad)
	}

	// 10000/1010 = 9.90099... exceeds MaxInt64/1e18 = 9.223...; the
	// quotient saturates instead of truncating to garbage.
	got := DivWad(10_000_000_000, 1_010_000_000)
	if got != stdmath.MaxInt64 {
		t.Errorf("DivWad(9.9) = %d, want MaxInt64", got)
	}

	// Far beyond the boundary, same saturation.
	if got := DivWad(1_000_000_000_000, 1_000_000); got != stdmath.MaxInt64 {
		t.Errorf("DivWad(1e6) = %d, want MaxInt64", got)
	}
}

func TestPowWad(t *testing.T) {
	if got := PowWad(89e16, 0); got != Wad {
		t.Errorf("x^0 = %d, want 1e18", got)
	}
	if got := PowWad(89e16, 1); got != 89e16 {
		t.Errorf("x^1 = %d, want 89e16", got)
	}

	// 0.89^2 = 0.7921
	if got := PowWad(89e16, 2); got != 7921e14 {
		t.Errorf("0.89^2 = %d, want 792100000000000000", got)
	}

	// 0.89^6 ~ 0.496981290961 (half-life around six hours).
	got := PowWad(89e16, 6)
	if got < 496_900_000_000_000_000 || got > 497_100_000_000_000_000 {
		t.Errorf("0.89^6 = %d, outside expected band", got)
	}

	// Decay to (near) zero for large exponents, never negative.
	if got := PowWad(89e16, 1000); got < 0 || got > 1000 {
		t.Errorf("0.89^1000 = %d, want ~0", got)
	}
}

func TestMinInt64(t *testing.T) {
	if MinInt64(3, 5) != 3 || MinInt64(5, 3) != 3 || MinInt64(-1, 0) != -1 {
		t.Error("MinInt64 broken")
	}
}
