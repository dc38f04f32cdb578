package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nkrishang/mad-protocol/internal/core"
	"github.com/nkrishang/mad-protocol/internal/ledger"
	"github.com/nkrishang/mad-protocol/internal/observability"
	"github.com/nkrishang/mad-protocol/internal/state"
)

const snapshotFormatVersion = 1

// SnapshotManager persists point-in-time engine state so restarts
// replay only the event log tail instead of the full history.
type SnapshotManager struct {
	db      *sql.DB
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// SnapshotData is the JSON-serializable form of the engine state.
type SnapshotData struct {
	Sequence        int64                `json:"sequence"`
	StateHash       []byte               `json:"state_hash"`
	Balances        []BalanceEntry       `json:"balances"`
	Positions       []PositionSnapshot   `json:"positions"`
	Stakers         []StakerSnapshot     `json:"stakers"`
	Prices          map[string]PriceSnap `json:"prices"`
	NextPositionID  int64                `json:"next_position_id"`
	TotalDebtPoints int64                `json:"total_debt_points"`
	TotalCollPoints int64                `json:"total_collateral_points"`
	DebtMultiplier  int64                `json:"debt_multiplier"`
	CollMultiplier  int64                `json:"collateral_multiplier"`
	TotalStaked     int64                `json:"total_staked"`
	RewardPerUnit   int64                `json:"reward_per_staked_unit"`
	VariableFeeRate int64                `json:"variable_fee_rate"`
	LastFeeUpdate   int64                `json:"last_fee_update"`
	FeeDebt         int64                `json:"fee_debt"`
	RoundingBudget  int64                `json:"rounding_budget"`
	SequenceState   map[string]int64     `json:"sequence_state"`
	IdempotencyKeys []string             `json:"idempotency_keys"`
	CreatedAt       time.Time            `json:"created_at"`
}

type BalanceEntry struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

type PositionSnapshot struct {
	PositionID       int64  `json:"position_id"`
	Owner            string `json:"owner"`
	DebtPoints       int64  `json:"debt_points"`
	CollateralPoints int64  `json:"collateral_points"`
	Version          int64  `json:"version"`
}

type StakerSnapshot struct {
	Account    string `json:"account"`
	Staked     int64  `json:"staked"`
	RewardDebt int64  `json:"reward_debt"`
	Version    int64  `json:"version"`
}

type PriceSnap struct {
	Price         int64 `json:"price"`
	PriceSequence int64 `json:"price_sequence"`
	Timestamp     int64 `json:"timestamp"`
}

func NewSnapshotManager(db *sql.DB, metrics *observability.Metrics) *SnapshotManager {
	return &SnapshotManager{
		db:      db,
		metrics: metrics,
		logger:  observability.NewLogger("snapshot"),
	}
}

// FromEngineState converts the engine's snapshot into the serializable
// form. Collections are sorted so the stored JSON is deterministic.
func FromEngineState(snap *core.SnapshotState, createdAt time.Time) *SnapshotData {
	data := &SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       snap.StateHash[:],
		Prices:          make(map[string]PriceSnap, len(snap.Prices)),
		NextPositionID:  snap.NextPositionID,
		TotalDebtPoints: snap.TotalDebtPoints,
		TotalCollPoints: snap.TotalCollateralPoints,
		DebtMultiplier:  snap.DebtMultiplier,
		CollMultiplier:  snap.CollateralMultiplier,
		TotalStaked:     snap.TotalStaked,
		RewardPerUnit:   snap.RewardPerStakedUnit,
		VariableFeeRate: snap.VariableFeeRate,
		LastFeeUpdate:   snap.LastFeeUpdate,
		FeeDebt:         snap.FeeDebt,
		RoundingBudget:  snap.RoundingBudget,
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       createdAt,
	}

	data.Balances = make([]BalanceEntry, 0, len(snap.Balances))
	for key, balance := range snap.Balances {
		data.Balances = append(data.Balances, BalanceEntry{
			Account: key.AccountPath(),
			Balance: balance,
		})
	}
	sort.Slice(data.Balances, func(i, j int) bool {
		return data.Balances[i].Account < data.Balances[j].Account
	})

	data.Positions = make([]PositionSnapshot, 0, len(snap.Positions))
	for _, pos := range snap.Positions {
		data.Positions = append(data.Positions, PositionSnapshot{
			PositionID:       pos.PositionID,
			Owner:            pos.Owner.String(),
			DebtPoints:       pos.DebtPoints,
			CollateralPoints: pos.CollateralPoints,
			Version:          pos.Version,
		})
	}

	data.Stakers = make([]StakerSnapshot, 0, len(snap.Stakers))
	for _, s := range snap.Stakers {
		data.Stakers = append(data.Stakers, StakerSnapshot{
			Account:    s.Account.String(),
			Staked:     s.Staked,
			RewardDebt: s.RewardDebt,
			Version:    s.Version,
		})
	}

	for asset, ps := range snap.Prices {
		data.Prices[asset] = PriceSnap{
			Price:         ps.Price,
			PriceSequence: ps.PriceSequence,
			Timestamp:     ps.Timestamp,
		}
	}

	return data
}

// ToEngineState converts back into the engine's restore form.
func (d *SnapshotData) ToEngineState() (*core.SnapshotState, error) {
	snap := &core.SnapshotState{
		Sequence:              d.Sequence,
		Balances:              make(map[ledger.AccountKey]int64, len(d.Balances)),
		Prices:                make(map[string]*state.PriceState, len(d.Prices)),
		NextPositionID:        d.NextPositionID,
		TotalDebtPoints:       d.TotalDebtPoints,
		TotalCollateralPoints: d.TotalCollPoints,
		DebtMultiplier:        d.DebtMultiplier,
		CollateralMultiplier:  d.CollMultiplier,
		TotalStaked:           d.TotalStaked,
		RewardPerStakedUnit:   d.RewardPerUnit,
		VariableFeeRate:       d.VariableFeeRate,
		LastFeeUpdate:         d.LastFeeUpdate,
		FeeDebt:               d.FeeDebt,
		RoundingBudget:        d.RoundingBudget,
		SequenceState:         d.SequenceState,
		IdempotencyKeys:       d.IdempotencyKeys,
	}

	copy(snap.StateHash[:], d.StateHash)

	for _, entry := range d.Balances {
		key, err := ledger.ParseAccountPath(entry.Account)
		if err != nil {
			return nil, fmt.Errorf("snapshot balance: %w", err)
		}
		snap.Balances[key] = entry.Balance
	}

	for _, ps := range d.Positions {
		owner, err := uuid.Parse(ps.Owner)
		if err != nil {
			return nil, fmt.Errorf("snapshot position %d: %w", ps.PositionID, err)
		}
		snap.Positions = append(snap.Positions, &state.Position{
			PositionID:       ps.PositionID,
			Owner:            owner,
			DebtPoints:       ps.DebtPoints,
			CollateralPoints: ps.CollateralPoints,
			Version:          ps.Version,
		})
	}

	for _, ss := range d.Stakers {
		account, err := uuid.Parse(ss.Account)
		if err != nil {
			return nil, fmt.Errorf("snapshot staker: %w", err)
		}
		snap.Stakers = append(snap.Stakers, &state.Staker{
			Account:    account,
			Staked:     ss.Staked,
			RewardDebt: ss.RewardDebt,
			Version:    ss.Version,
		})
	}

	for asset, ps := range d.Prices {
		snap.Prices[asset] = &state.PriceState{
			Price:         ps.Price,
			PriceSequence: ps.PriceSequence,
			Timestamp:     ps.Timestamp,
		}
	}

	return snap, nil
}

// Save writes a snapshot row.
func (sm *SnapshotManager) Save(ctx context.Context, data *SnapshotData) error {
	start := time.Now()

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx,
		`INSERT INTO event_log.snapshots (sequence, state_hash, data, format_version, verified, created_at)
		 VALUES ($1, $2, $3, $4, false, $5)
		 ON CONFLICT (sequence) DO NOTHING`,
		data.Sequence, data.StateHash, encoded, snapshotFormatVersion, data.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if sm.metrics != nil {
		sm.metrics.SnapshotTaken.Inc()
		sm.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		sm.metrics.SnapshotLastSeq.Set(float64(data.Sequence))
	}

	sm.logger.Info().
		Int64("sequence", data.Sequence).
		Int("positions", len(data.Positions)).
		Int("balances", len(data.Balances)).
		Msg("snapshot saved")

	return nil
}

// LoadLatest returns the most recent snapshot, or (nil, nil) when no
// snapshot exists yet.
func (sm *SnapshotManager) LoadLatest(ctx context.Context) (*SnapshotData, error) {
	var encoded []byte
	var formatVersion int

	err := sm.db.QueryRowContext(ctx,
		`SELECT data, format_version FROM event_log.snapshots
		 ORDER BY sequence DESC LIMIT 1`,
	).Scan(&encoded, &formatVersion)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if formatVersion != snapshotFormatVersion {
		return nil, fmt.Errorf("unsupported snapshot format version %d", formatVersion)
	}

	var data SnapshotData
	if err := json.Unmarshal(encoded, &data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &data, nil
}

// MarkVerified flags a snapshot whose restored state hash matched the
// event log.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx,
		`UPDATE event_log.snapshots SET verified = true WHERE sequence = $1`,
		sequence,
	)
	return err
}

// LoadEventsFrom streams event rows with sequence > afterSequence in
// order, for startup replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, afterSequence int64) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx,
		`SELECT sequence, event_type, idempotency_key, partition, payload, state_hash, prev_hash, timestamp, source_sequence
		 FROM event_log.events
		 WHERE sequence > $1
		 ORDER BY sequence ASC`,
		afterSequence,
	)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Partition,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// LatestSequence returns the highest persisted event sequence, or -1
// when the log is empty.
func (sm *SnapshotManager) LatestSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := sm.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), -1) FROM event_log.events`,
	).Scan(&seq)
	return seq, err
}
