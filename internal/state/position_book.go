package state

import (
	"sort"

	"github.com/google/uuid"

	fpmath "github.com/nkrishang/mad-protocol/internal/math"
)

// PositionBook manages every open position plus the two global per-point
// multipliers that convert stored points into actual amounts. The
// multipliers start at 1.0 (wad) and move only through socialization
// (liquidation shortfall spreads debt, releases collateral backing) and
// redemption (both shrink pro-rata).
type PositionBook struct {
	positions map[int64]*Position

	// NextPositionID is assigned on mint and never reused.
	NextPositionID int64

	// Point totals across all open positions.
	TotalDebtPoints       int64
	TotalCollateralPoints int64

	// Wad-scaled per-point multipliers. Zero until the first mint
	// initializes them to 1e18.
	DebtMultiplier       int64
	CollateralMultiplier int64
}

func NewPositionBook() *PositionBook {
	return &PositionBook{
		positions:      make(map[int64]*Position),
		NextPositionID: 1,
	}
}

// Initialized reports whether the multipliers have been set. They are
// initialized lazily on the first mint so that an empty system has no
// multiplier state to drift.
func (pb *PositionBook) Initialized() bool {
	return pb.DebtMultiplier != 0
}

// EnsureInitialized sets both multipliers to 1.0 on first use.
func (pb *PositionBook) EnsureInitialized() {
	if !pb.Initialized() {
		pb.DebtMultiplier = fpmath.Wad
		pb.CollateralMultiplier = fpmath.Wad
	}
}

// Get returns the position or nil.
func (pb *PositionBook) Get(positionID int64) *Position {
	return pb.positions[positionID]
}

// Open creates a new position with freshly converted points and adds
// them to the totals. Returns the assigned position ID.
func (pb *PositionBook) Open(owner uuid.UUID, debtPoints, collateralPoints int64) *Position {
	pos := &Position{
		PositionID:       pb.NextPositionID,
		Owner:            owner,
		DebtPoints:       debtPoints,
		CollateralPoints: collateralPoints,
		Version:          1,
	}
	pb.NextPositionID++

	pb.positions[pos.PositionID] = pos
	pb.TotalDebtPoints += debtPoints
	pb.TotalCollateralPoints += collateralPoints

	return pos
}

// AddCollateralPoints credits points to a position and the global total.
func (pb *PositionBook) AddCollateralPoints(pos *Position, points int64) {
	pos.CollateralPoints += points
	pos.Version++
	pb.TotalCollateralPoints += points
}

// RemoveCollateralPoints debits points from a position and the global total.
func (pb *PositionBook) RemoveCollateralPoints(pos *Position, points int64) {
	pos.CollateralPoints -= points
	pos.Version++
	pb.TotalCollateralPoints -= points
}

// Remove deletes a position, subtracting its own point fields from the
// totals. Used by close and liquidate.
func (pb *PositionBook) Remove(pos *Position) {
	pb.TotalDebtPoints -= pos.DebtPoints
	pb.TotalCollateralPoints -= pos.CollateralPoints
	delete(pb.positions, pos.PositionID)
}

// === Point/Amount Conversion ===

// PointsForDebt converts a debt amount into points at the current
// multiplier.
func (pb *PositionBook) PointsForDebt(amount int64) int64 {
	return fpmath.MulDiv(amount, fpmath.Wad, pb.DebtMultiplier, fpmath.RoundHalfEven)
}

// PointsForCollateral converts a collateral amount into points at the
// current multiplier.
func (pb *PositionBook) PointsForCollateral(amount int64) int64 {
	return fpmath.MulDiv(amount, fpmath.Wad, pb.CollateralMultiplier, fpmath.RoundHalfEven)
}

// ActualDebt returns a position's debt amount: points x multiplier.
func (pb *PositionBook) ActualDebt(pos *Position) int64 {
	return fpmath.MulWad(pos.DebtPoints, pb.DebtMultiplier)
}

// ActualCollateral returns a position's collateral amount.
func (pb *PositionBook) ActualCollateral(pos *Position) int64 {
	return fpmath.MulWad(pos.CollateralPoints, pb.CollateralMultiplier)
}

// TotalDebt returns system-wide debt: total points x multiplier.
func (pb *PositionBook) TotalDebt() int64 {
	if !pb.Initialized() {
		return 0
	}
	return fpmath.MulWad(pb.TotalDebtPoints, pb.DebtMultiplier)
}

// TotalCollateral returns system-wide collateral backing positions.
func (pb *PositionBook) TotalCollateral() int64 {
	if !pb.Initialized() {
		return 0
	}
	return fpmath.MulWad(pb.TotalCollateralPoints, pb.CollateralMultiplier)
}

// === Socialization ===

// SocializeLiquidation spreads a liquidated position's residual debt
// across all remaining positions and releases its residual collateral to
// them, by bumping each multiplier once. The liquidated position's points
// must already be removed from the totals. Multiplier deltas round down
// so socialization never over-assigns.
func (pb *PositionBook) SocializeLiquidation(residualDebt, residualCollateral int64) {
	if pb.TotalDebtPoints > 0 && residualDebt > 0 {
		pb.DebtMultiplier += fpmath.MulDiv(residualDebt, fpmath.Wad, pb.TotalDebtPoints, fpmath.RoundDown)
	}
	if pb.TotalCollateralPoints > 0 && residualCollateral > 0 {
		pb.CollateralMultiplier += fpmath.MulDiv(residualCollateral, fpmath.Wad, pb.TotalCollateralPoints, fpmath.RoundDown)
	}
}

// ApplyRedemption shrinks both multipliers pro-rata after a redemption
// burned debt and released collateral system-wide. Keeps the conservation
// identity (sum of actual debt == stablecoin supply) intact.
func (pb *PositionBook) ApplyRedemption(burnedDebt, releasedCollateral int64) {
	if pb.TotalDebtPoints > 0 && burnedDebt > 0 {
		pb.DebtMultiplier -= fpmath.MulDiv(burnedDebt, fpmath.Wad, pb.TotalDebtPoints, fpmath.RoundDown)
	}
	if pb.TotalCollateralPoints > 0 && releasedCollateral > 0 {
		pb.CollateralMultiplier -= fpmath.MulDiv(releasedCollateral, fpmath.Wad, pb.TotalCollateralPoints, fpmath.RoundDown)
	}
}

// === Iteration / Restore ===

// GetAllPositions returns positions sorted by ID (deterministic for
// hashing and snapshots).
func (pb *PositionBook) GetAllPositions() []*Position {
	result := make([]*Position, 0, len(pb.positions))
	for _, pos := range pb.positions {
		result = append(result, pos)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PositionID < result[j].PositionID
	})
	return result
}

// GetOwnerPositions returns all positions owned by a user.
func (pb *PositionBook) GetOwnerPositions(owner uuid.UUID) []*Position {
	result := make([]*Position, 0)
	for _, pos := range pb.positions {
		if pos.Owner == owner {
			result = append(result, pos)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PositionID < result[j].PositionID
	})
	return result
}

// Count returns the number of open positions.
func (pb *PositionBook) Count() int {
	return len(pb.positions)
}

// SetPosition directly sets a position (used for snapshot restore).
// Totals and multipliers are restored separately.
func (pb *PositionBook) SetPosition(pos *Position) {
	pb.positions[pos.PositionID] = pos
}
