package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkrishang/mad-protocol/internal/ledger"
	fpmath "github.com/nkrishang/mad-protocol/internal/math"
)

// Service provides read-only access to the projection tables and the
// event log. Every response includes the projection watermark so
// callers can compare it against the sequence in outbound events.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// systemRow is the single-row aggregate read used to convert points to
// token amounts.
type systemRow struct {
	totalDebt       int64
	totalCollateral int64
	debtMult        int64
	collMult        int64
	totalStaked     int64
	variableFeeRate int64
	collateralPrice int64
	openPositions   int64
	updatedSequence int64
	updatedAt       time.Time
}

var ErrNotFound = fmt.Errorf("not found")

// GetPosition returns one position with token amounts computed from
// points under the current multipliers.
func (s *Service) GetPosition(ctx context.Context, positionID int64) (*PositionResponse, error) {
	sys, err := s.getSystemRow(ctx)
	if err != nil {
		return nil, err
	}

	var resp PositionResponse
	var debtPoints, collPoints int64
	err = s.db.QueryRowContext(ctx, `
		SELECT position_id, owner_id, debt_points, collateral_points, status
		FROM projections.positions
		WHERE position_id = $1
	`, positionID).Scan(&resp.PositionID, &resp.Owner, &debtPoints, &collPoints, &resp.Status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.fillPositionAmounts(&resp, debtPoints, collPoints, sys)
	return &resp, nil
}

// GetPositionsByOwner returns all open positions for an owner.
func (s *Service) GetPositionsByOwner(ctx context.Context, owner uuid.UUID) ([]PositionResponse, error) {
	sys, err := s.getSystemRow(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, owner_id, debt_points, collateral_points, status
		FROM projections.positions
		WHERE owner_id = $1 AND status = 'open'
		ORDER BY position_id
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		var resp PositionResponse
		var debtPoints, collPoints int64
		if err := rows.Scan(&resp.PositionID, &resp.Owner, &debtPoints, &collPoints, &resp.Status); err != nil {
			return nil, err
		}
		s.fillPositionAmounts(&resp, debtPoints, collPoints, sys)
		positions = append(positions, resp)
	}

	return positions, rows.Err()
}

func (s *Service) fillPositionAmounts(resp *PositionResponse, debtPoints, collPoints int64, sys *systemRow) {
	resp.Debt = fpmath.MulWad(debtPoints, sys.debtMult)
	resp.Collateral = fpmath.MulWad(collPoints, sys.collMult)
	resp.CollateralUSD = fpmath.MulDiv(resp.Collateral, sys.collateralPrice, fpmath.AmountConfig.Scale, fpmath.RoundHalfEven)
	if resp.CollateralUSD > 0 {
		resp.LTV = fpmath.DivWad(resp.Debt, resp.CollateralUSD)
	}
	resp.AsOfSequence = sys.updatedSequence
}

// GetStaker returns a staker's projected principal.
func (s *Service) GetStaker(ctx context.Context, account uuid.UUID) (*StakerResponse, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := StakerResponse{Account: account, AsOfSequence: asOf}
	err = s.db.QueryRowContext(ctx, `
		SELECT staked FROM projections.stakers WHERE account_id = $1
	`, account).Scan(&resp.Staked)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetSystem returns system-wide aggregates and the total collateral
// ratio.
func (s *Service) GetSystem(ctx context.Context) (*SystemResponse, error) {
	sys, err := s.getSystemRow(ctx)
	if err != nil {
		return nil, err
	}

	resp := &SystemResponse{
		TotalDebt:            sys.totalDebt,
		TotalCollateral:      sys.totalCollateral,
		DebtMultiplier:       sys.debtMult,
		CollateralMultiplier: sys.collMult,
		TotalStaked:          sys.totalStaked,
		VariableFeeRate:      sys.variableFeeRate,
		CollateralPrice:      sys.collateralPrice,
		OpenPositions:        sys.openPositions,
		AsOfSequence:         sys.updatedSequence,
		UpdatedAt:            sys.updatedAt,
	}

	resp.TotalCollateralUSD = fpmath.MulDiv(sys.totalCollateral, sys.collateralPrice, fpmath.AmountConfig.Scale, fpmath.RoundHalfEven)
	if sys.totalDebt > 0 {
		resp.TCR = fpmath.DivWad(resp.TotalCollateralUSD, sys.totalDebt)
	}

	return resp, nil
}

// GetBalance returns a user's projected balance for one asset.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID, asset string) (*BalanceResponse, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}

	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	path := ledger.NewUserAccountKey(userID, assetID).AccountPath()

	resp := BalanceResponse{UserID: userID, Asset: asset, AsOfSequence: asOf}
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances WHERE account_path = $1
	`, path).Scan(&resp.Balance)
	if err == sql.ErrNoRows {
		return &resp, nil
	}
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

// GetJournalHistory returns a user's journal entries, newest first,
// with cursor pagination on sequence.
func (s *Service) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	beforeSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	q := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if beforeSequence != nil {
		q += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	q += " ORDER BY sequence DESC"
	q += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// VerifyIntegrity checks hash-chain continuity in the event log and the
// zero-sum invariant over projected balances.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	asOf, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	report := &IntegrityReport{AsOfSequence: asOf}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance)
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var ua UnbalancedAsset
		if err := balanceRows.Scan(&ua.AssetID, &ua.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, ua)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE id = 1
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (s *Service) getSystemRow(ctx context.Context) (*systemRow, error) {
	var sys systemRow
	err := s.db.QueryRowContext(ctx, `
		SELECT total_debt, total_collateral, debt_multiplier, collateral_multiplier,
		       total_staked, variable_fee_rate, collateral_price, open_positions,
		       updated_sequence, updated_at
		FROM projections.system_state
		WHERE id = 1
	`).Scan(
		&sys.totalDebt, &sys.totalCollateral, &sys.debtMult, &sys.collMult,
		&sys.totalStaked, &sys.variableFeeRate, &sys.collateralPrice, &sys.openPositions,
		&sys.updatedSequence, &sys.updatedAt,
	)
	if err == sql.ErrNoRows {
		// No event applied yet: identity multipliers, zero aggregates.
		return &systemRow{debtMult: fpmath.Wad, collMult: fpmath.Wad, updatedAt: time.Time{}}, nil
	}
	if err != nil {
		return nil, err
	}

	return &sys, nil
}
