package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkrishang/mad-protocol/internal/core"
	"github.com/nkrishang/mad-protocol/internal/event"
	fpmath "github.com/nkrishang/mad-protocol/internal/math"
	"github.com/nkrishang/mad-protocol/internal/observability"
)

// ProjectionOutput mirrors the data the projection worker needs. The
// orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence  int64
	EventType string
	Outbound  interface{}
	Journals  []JournalEntry
	System    core.SystemView
	Timestamp time.Time
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
}

// Worker maintains the Postgres read model. The projection channel is
// non-blocking with drop: a lagging worker misses events, and the
// watermark plus the event log make the gap visible and repairable.
//
// Positions are projected as points. A liquidation's socialization only
// bumps the multipliers carried in system_state, exactly mirroring the
// in-memory book, so survivor rows are never touched.
type Worker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("projection"),
	}
}

// Run starts the projection loop.
func (pw *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			start := time.Now()
			if err := pw.apply(ctx, output); err != nil {
				// Eventually consistent: skip and keep going, the read
				// model heals on the next rebuild.
				pw.logger.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
				continue
			}

			pw.lastSeq = output.Sequence

			if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues("main").Observe(time.Since(start).Seconds())
				pw.metrics.ProjectionLastSeq.Set(float64(output.Sequence))
				pw.metrics.SetChannelMetrics("projection", len(pw.inputChan), cap(pw.inputChan))
			}
		}
	}
}

func (pw *Worker) apply(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, j := range output.Journals {
		if err := pw.updateBalances(ctx, tx, j, output.Sequence, output.Timestamp); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if err := pw.updateDomainTables(ctx, tx, output); err != nil {
		return err
	}

	if err := pw.updateSystemState(ctx, tx, output); err != nil {
		return fmt.Errorf("system_state projection: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (id, last_sequence, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET last_sequence = $1, updated_at = $2
	`, output.Sequence, output.Timestamp); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// updateBalances applies one journal entry. A debit increases the
// account's balance, a credit decreases it.
func (pw *Worker) updateBalances(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64, ts time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, updated_sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance + $3, updated_sequence = $4, updated_at = $5
	`, j.DebitAccount, j.AssetID, j.Amount, seq, ts); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, updated_sequence, updated_at)
		VALUES ($1, $2, -$3, $4, $5)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance - $3, updated_sequence = $4, updated_at = $5
	`, j.CreditAccount, j.AssetID, j.Amount, seq, ts); err != nil {
		return err
	}

	return nil
}

func (pw *Worker) updateDomainTables(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	seq, ts := output.Sequence, output.Timestamp

	switch e := output.Outbound.(type) {
	case *event.Minted:
		debtPoints := toPoints(e.Debt, output.System.DebtMultiplier)
		collPoints := toPoints(e.Collateral, output.System.CollateralMultiplier)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.positions
				(position_id, owner_id, debt_points, collateral_points, status, updated_sequence, updated_at)
			VALUES ($1, $2, $3, $4, 'open', $5, $6)
			ON CONFLICT (position_id) DO UPDATE SET
				debt_points = $3, collateral_points = $4, status = 'open',
				updated_sequence = $5, updated_at = $6
		`, e.PositionID, e.Owner, debtPoints, collPoints, seq, ts)
		return err

	case *event.Supplied:
		delta := toPoints(e.Amount, output.System.CollateralMultiplier)
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.positions
			SET collateral_points = collateral_points + $2, updated_sequence = $3, updated_at = $4
			WHERE position_id = $1
		`, e.PositionID, delta, seq, ts)
		return err

	case *event.Withdrawn:
		delta := toPoints(e.Amount, output.System.CollateralMultiplier)
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.positions
			SET collateral_points = collateral_points - $2, updated_sequence = $3, updated_at = $4
			WHERE position_id = $1
		`, e.PositionID, delta, seq, ts)
		return err

	case *event.Closed:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.positions
			SET debt_points = 0, collateral_points = 0, status = 'closed',
			    updated_sequence = $2, updated_at = $3
			WHERE position_id = $1
		`, e.PositionID, seq, ts)
		return err

	case *event.Liquidated:
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.positions
			SET debt_points = 0, collateral_points = 0, status = 'liquidated',
			    updated_sequence = $2, updated_at = $3
			WHERE position_id = $1
		`, e.PositionID, seq, ts)
		return err

	case *event.Staked:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.stakers (account_id, staked, updated_sequence, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (account_id) DO UPDATE SET
				staked = projections.stakers.staked + $2, updated_sequence = $3, updated_at = $4
		`, e.Caller, e.Amount, seq, ts)
		return err

	case *event.Unstaked:
		// Unstake is a full exit.
		_, err := tx.ExecContext(ctx, `
			DELETE FROM projections.stakers WHERE account_id = $1
		`, e.Caller)
		return err
	}

	return nil
}

func (pw *Worker) updateSystemState(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	sys := output.System
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.system_state
			(id, total_debt, total_collateral, debt_multiplier, collateral_multiplier,
			 total_staked, reward_per_staked_unit, variable_fee_rate, collateral_price,
			 open_positions, updated_sequence, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			total_debt = $1, total_collateral = $2, debt_multiplier = $3,
			collateral_multiplier = $4, total_staked = $5, reward_per_staked_unit = $6,
			variable_fee_rate = $7, collateral_price = $8, open_positions = $9,
			updated_sequence = $10, updated_at = $11
	`, sys.TotalDebt, sys.TotalCollateral, sys.DebtMultiplier, sys.CollateralMultiplier,
		sys.TotalStaked, sys.RewardPerStakedUnit, sys.VariableFeeRate, sys.CollateralPrice,
		sys.OpenPositions, output.Sequence, output.Timestamp)
	return err
}

// toPoints converts a token amount to points under the given per-point
// multiplier.
func toPoints(amount, multiplier int64) int64 {
	if multiplier == 0 {
		return 0
	}
	return fpmath.MulDiv(amount, fpmath.Wad, multiplier, fpmath.RoundDown)
}

// RebuildBalances re-derives the balance projection from the journal.
// Positions, stakers, and system_state repopulate as new events arrive;
// the watermark reset makes the lag explicit.
func RebuildBalances(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`TRUNCATE projections.balances`,
		`DELETE FROM projections.watermark WHERE id = 1`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, updated_sequence, updated_at)
		SELECT debit_account, asset_id, SUM(amount), MAX(sequence), now()
		FROM event_log.journal
		GROUP BY debit_account, asset_id
	`); err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, updated_sequence, updated_at)
		SELECT credit_account, asset_id, -SUM(amount), MAX(sequence), now()
		FROM event_log.journal
		GROUP BY credit_account, asset_id
		ON CONFLICT (account_path) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    updated_sequence = GREATEST(projections.balances.updated_sequence, EXCLUDED.updated_sequence)
	`); err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	logger := observability.NewLogger("projection")
	logger.Info().Msg("balance projection rebuilt")
	return nil
}
