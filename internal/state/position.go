package state

import (
	"github.com/google/uuid"
)

// Position is a collateralized debt position. Debt and collateral are
// stored as points, not token amounts: the actual amounts are the points
// times the global per-point multipliers held by the PositionBook. A
// liquidation socializes its shortfall by bumping the multipliers once,
// so no per-position writes happen on anyone else's position.
type Position struct {
	PositionID       int64
	Owner            uuid.UUID
	DebtPoints       int64 // Fixed-point: amount scale (decimal_precision=6, scale=1_000_000)
	CollateralPoints int64
	Version          int64 // Bumped on every mutation
}

// IsEmpty reports whether the position holds nothing. An all-zero
// position is indistinguishable from a nonexistent one and is removed
// from the book.
func (p *Position) IsEmpty() bool {
	return p.DebtPoints == 0 && p.CollateralPoints == 0
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)

	buf = appendInt64LE(buf, p.PositionID)
	buf = append(buf, p.Owner[:]...)
	buf = appendInt64LE(buf, p.DebtPoints)
	buf = appendInt64LE(buf, p.CollateralPoints)

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
