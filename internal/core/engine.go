package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nkrishang/mad-protocol/internal/event"
	"github.com/nkrishang/mad-protocol/internal/ledger"
	"github.com/nkrishang/mad-protocol/internal/observability"
	"github.com/nkrishang/mad-protocol/internal/state"
)

// CollateralAsset is the single accepted collateral symbol.
const CollateralAsset = "WETH"

// Engine is the single-writer deterministic processor. Every operation
// runs to completion against the shared state before the next one is
// observed: the serializing goroutine is the concurrency primitive, not
// locks. The engine never calls time.Now() — all timestamps are
// versioned inputs carried by events, so replay is bit-exact.
type Engine struct {
	sequence          int64
	hasher            *StateHasher
	balances          *ledger.BalanceTracker
	tokens            *ledger.TokenLedger
	positions         *state.PositionBook
	stakers           *state.StakerBook
	fees              *state.FeeController
	prices            *state.PriceFeed
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics

	// feeDebt is the cumulative mint-fee debt for which no circulating
	// token was ever created, minus debt the system failed to socialize
	// (last-position liquidation). The conservation identity is
	//   totalDebt - totalSupply == feeDebt
	// within roundingBudget units.
	feeDebt        int64
	roundingBudget int64

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput carries one applied event to the persistence and
// projection workers.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	Outbound   interface{}
	StateDelta []byte

	// System aggregates as of this event, captured inside the writer
	// goroutine so projections never race the core.
	System SystemView
}

// SystemView is a cheap copy of the global accounting scalars.
type SystemView struct {
	TotalDebt            int64
	TotalCollateral      int64
	DebtMultiplier       int64
	CollateralMultiplier int64
	TotalStaked          int64
	RewardPerStakedUnit  int64
	VariableFeeRate      int64
	CollateralPrice      int64
	OpenPositions        int64
}

func NewEngine(
	startSequence int64,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *Engine {
	balances := ledger.NewBalanceTracker()

	return &Engine{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		balances:          balances,
		tokens:            ledger.NewTokenLedger(balances),
		positions:         state.NewPositionBook(),
		stakers:           state.NewStakerBook(),
		fees:              state.NewFeeController(),
		prices:            state.NewPriceFeed(),
		idempotency:       NewIdempotencyChecker(1_000_000, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		roundingBudget:    2,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// ProcessEvent is the main processing pipeline
func (c *Engine) ProcessEvent(evt event.Event) error {
	return c.process(evt, false)
}

// ReplayEvent re-applies a logged event during startup recovery. The
// durable dedup tier is bypassed (every replayed event is, by
// definition, already in the log) and nothing is re-emitted to the
// persistence or projection workers.
func (c *Engine) ReplayEvent(evt event.Event) error {
	return c.process(evt, true)
}

func (c *Engine) process(evt event.Event, replay bool) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()

	// Step 1: Idempotency check. Live traffic uses the two-tier lookup
	// (LRU then Postgres); replay consults the LRU only.
	var isDuplicate bool
	if replay {
		isDuplicate = c.idempotency.lru.Contains(fmt.Sprintf("%s:%s", eventType, idempotencyKey))
	} else {
		isDuplicate = c.idempotency.IsDuplicate(eventType, idempotencyKey)
	}

	// Step 2: Sequence validation
	if priceEvt, ok := evt.(*event.PriceUpdate); ok {
		if err := c.sequenceValidator.ValidatePriceSequence(priceEvt.Asset, priceEvt.PriceSequence); err != nil {
			return err
		}
	} else {
		if err := c.sequenceValidator.ValidateSequence(evt.Partition(), evt.SourceSequence(), isDuplicate); err != nil {
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		if c.metrics != nil && !replay {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
		}
		return nil
	}

	// Step 3: Dispatch. Handlers follow checks-effects ordering: every
	// precondition is evaluated before the first state write, and the
	// journal batch stays uncommitted until the handler returns, so a
	// rejection leaves zero writes behind.
	timestamp := c.getEventTimestamp(evt)
	c.tokens.Begin(idempotencyKey, c.sequence, timestamp.UnixMicro())

	outbound, err := c.dispatchEvent(evt, timestamp)
	if err != nil {
		c.tokens.Discard()
		if c.metrics != nil && !replay {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, rejectReason(err)).Inc()
		}
		return err
	}

	// Step 4: Apply the journal batch to balances. Price updates carry
	// no journals but still get an envelope in the event log.
	batch := c.tokens.Batch()
	if len(batch.Journals) > 0 {
		if _, err := c.tokens.Commit(); err != nil {
			panic(fmt.Sprintf("FATAL: batch apply failed after effects: %v", err))
		}
	} else {
		c.tokens.Discard()
	}

	// Step 5: State digest and hash chain
	stateDigest := c.computeStateDigest(batch)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)

	envelope := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idempotencyKey,
		EventType:      evt.EventType(),
		Partition:      evt.Partition(),
		Timestamp:      timestamp,
		SourceSequence: evt.SourceSequence(),
		Payload:        marshalEventPayload(evt),
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		Outbound:   outbound,
		StateDelta: stateDigest,
		System:     c.systemView(),
	}

	c.sequence++

	// Step 6: Post-checks. A violated invariant here means the engine
	// itself is broken; crashing preserves the last consistent persisted
	// state for a clean replay.
	if err := c.postCheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 7: Emit. Persistence uses a blocking send (backpressure: the
	// core stalls until the writer drains, no event is ever lost).
	// Projections use a non-blocking send with silent drop; a lagging
	// projection rebuilds from the event log. Replay emits nothing: the
	// log already holds these events and projections catch up from their
	// watermark.
	if !replay {
		c.persistChan <- output

		select {
		case c.projectionChan <- output:
		default:
		}
	}

	// Step 8: Mark as processed
	c.idempotency.MarkProcessed(eventType, idempotencyKey)

	if c.metrics != nil && !replay {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		c.observeSystemGauges()
	}

	return nil
}

// marshalEventPayload serializes the typed input event for the log.
// Replay reconstructs the event with event.UnmarshalPayload.
func marshalEventPayload(evt event.Event) []byte {
	data, err := json.Marshal(evt)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func (c *Engine) dispatchEvent(evt event.Event, ts time.Time) (interface{}, error) {
	switch e := evt.(type) {
	case *event.MintRequested:
		return c.handleMint(e, ts)
	case *event.CloseRequested:
		return c.handleClose(e, ts)
	case *event.SupplyRequested:
		return c.handleSupply(e, ts)
	case *event.WithdrawRequested:
		return c.handleWithdraw(e, ts)
	case *event.RedeemRequested:
		return c.handleRedeem(e, ts)
	case *event.LiquidateRequested:
		return c.handleLiquidate(e, ts)
	case *event.StakeRequested:
		return c.handleStake(e, ts)
	case *event.UnstakeRequested:
		return c.handleUnstake(e, ts)
	case *event.ClaimRequested:
		return c.handleClaim(e, ts)
	case *event.PriceUpdate:
		return c.handlePriceUpdate(e)
	case *event.DepositConfirmed:
		return c.handleDeposit(e, ts)
	case *event.WithdrawalConfirmed:
		return c.handleWithdrawal(e, ts)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// getEventTimestamp extracts the versioned timestamp from an event. The
// engine must not call time.Now() for anything that flows into state.
func (c *Engine) getEventTimestamp(evt event.Event) time.Time {
	switch e := evt.(type) {
	case *event.MintRequested:
		return e.Timestamp
	case *event.CloseRequested:
		return e.Timestamp
	case *event.SupplyRequested:
		return e.Timestamp
	case *event.WithdrawRequested:
		return e.Timestamp
	case *event.RedeemRequested:
		return e.Timestamp
	case *event.LiquidateRequested:
		return e.Timestamp
	case *event.StakeRequested:
		return e.Timestamp
	case *event.UnstakeRequested:
		return e.Timestamp
	case *event.ClaimRequested:
		return e.Timestamp
	case *event.PriceUpdate:
		return e.PriceTimestamp
	case *event.DepositConfirmed:
		return e.Timestamp
	case *event.WithdrawalConfirmed:
		return e.Timestamp
	default:
		panic(fmt.Sprintf("FATAL: getEventTimestamp called with unhandled event type %T", evt))
	}
}

// collateralPrice returns the current normalized oracle price for the
// collateral asset.
func (c *Engine) collateralPrice() (int64, error) {
	price, ok := c.prices.Get(CollateralAsset)
	if !ok {
		return 0, ErrNoPrice
	}
	return price, nil
}

// computeStateDigest creates canonical bytes for the state hash:
// affected account balances plus the global accounting scalars.
func (c *Engine) computeStateDigest(batch *ledger.Batch) []byte {
	affectedAccounts := make(map[ledger.AccountKey]bool)

	if batch != nil {
		for _, j := range batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*64+128)

	for _, key := range accounts {
		balance := c.balances.GetBalance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, balance)
	}

	// Global scalars: any drift here must fork the hash chain.
	digest = appendInt64LE(digest, c.positions.NextPositionID)
	digest = appendInt64LE(digest, c.positions.TotalDebtPoints)
	digest = appendInt64LE(digest, c.positions.TotalCollateralPoints)
	digest = appendInt64LE(digest, c.positions.DebtMultiplier)
	digest = appendInt64LE(digest, c.positions.CollateralMultiplier)
	digest = appendInt64LE(digest, c.stakers.TotalStaked)
	digest = appendInt64LE(digest, c.stakers.RewardPerStakedUnit)
	digest = append(digest, c.fees.CanonicalBytes()...)

	return digest
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

// postCheckInvariants validates accounting identities after every event.
func (c *Engine) postCheckInvariants() error {
	// Conservation: totalDebt - totalSupply == feeDebt, within the
	// rounding budget accumulated by point conversions.
	drift := c.positions.TotalDebt() - c.balances.TotalSupply() - c.feeDebt
	if drift < -c.roundingBudget || drift > c.roundingBudget {
		return fmt.Errorf("conservation drift %d exceeds budget %d (debt=%d supply=%d feeDebt=%d)",
			drift, c.roundingBudget, c.positions.TotalDebt(), c.balances.TotalSupply(), c.feeDebt)
	}

	if c.metrics != nil {
		c.metrics.ConservationDrift.Set(float64(drift))
	}

	// System accounts can never go negative.
	for _, key := range []ledger.AccountKey{
		ledger.ReserveAccount(),
		ledger.VaultAccount(),
		ledger.RewardPoolAccount(),
	} {
		if err := c.balances.ValidateNonNegative(key); err != nil {
			return err
		}
	}

	// Periodic zero-sum check over the whole ledger.
	if c.sequence > 0 && c.sequence%1000 == 0 {
		totals := c.balances.ComputeGlobalBalance()
		for assetID, total := range totals {
			if total != 0 {
				return fmt.Errorf("global balance non-zero for asset %d: %d (at seq %d)",
					assetID, total, c.sequence)
			}
		}
	}

	return nil
}

func (c *Engine) systemView() SystemView {
	price, _ := c.prices.Get(CollateralAsset)
	return SystemView{
		TotalDebt:            c.positions.TotalDebt(),
		TotalCollateral:      c.positions.TotalCollateral(),
		DebtMultiplier:       c.positions.DebtMultiplier,
		CollateralMultiplier: c.positions.CollateralMultiplier,
		TotalStaked:          c.stakers.TotalStaked,
		RewardPerStakedUnit:  c.stakers.RewardPerStakedUnit,
		VariableFeeRate:      c.fees.VariableRate,
		CollateralPrice:      price,
		OpenPositions:        int64(c.positions.Count()),
	}
}

func (c *Engine) observeSystemGauges() {
	price, ok := c.prices.Get(CollateralAsset)
	c.metrics.TotalDebt.Set(float64(c.positions.TotalDebt()))
	c.metrics.TotalCollateral.Set(float64(c.positions.TotalCollateral()))
	c.metrics.TotalStaked.Set(float64(c.stakers.TotalStaked))
	c.metrics.OpenPositions.Set(float64(c.positions.Count()))
	if ok {
		c.metrics.CollateralPrice.Set(float64(price))
	}
}

func rejectReason(err error) string {
	switch err {
	case ErrPositionNotFound:
		return "position_dne"
	case ErrUnauthorizedCaller:
		return "unauthorized"
	case ErrInsufficientCollateral:
		return "insufficient_collateral"
	case ErrLTVOutOfBounds:
		return "ltv_out_of_bounds"
	case ErrLTVInBounds:
		return "ltv_in_bounds"
	case ErrTCROutOfBounds:
		return "tcr_out_of_bounds"
	case ErrInsufficientBalance:
		return "insufficient_balance"
	case ErrNothingStaked:
		return "nothing_staked"
	case ErrZeroAmount:
		return "zero_amount"
	case ErrNoPrice:
		return "no_price"
	case ErrUnknownAsset:
		return "unknown_asset"
	default:
		return "other"
	}
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence              int64
	StateHash             [32]byte
	Balances              map[ledger.AccountKey]int64
	Positions             []*state.Position
	Stakers               []*state.Staker
	Prices                map[string]*state.PriceState
	NextPositionID        int64
	TotalDebtPoints       int64
	TotalCollateralPoints int64
	DebtMultiplier        int64
	CollateralMultiplier  int64
	TotalStaked           int64
	RewardPerStakedUnit   int64
	VariableFeeRate       int64
	LastFeeUpdate         int64
	FeeDebt               int64
	RoundingBudget        int64
	SequenceState         map[string]int64
	IdempotencyKeys       []string
}

// RestoreFromSnapshot restores the engine's in-memory state. On warm
// restart the caller loads the latest snapshot, restores, then replays
// the event log tail.
func (c *Engine) RestoreFromSnapshot(snap *SnapshotState) {
	c.sequence = snap.Sequence + 1
	c.hasher.SetPrevHash(snap.StateHash)

	for key, balance := range snap.Balances {
		c.balances.SetBalance(key, balance)
	}

	for _, pos := range snap.Positions {
		c.positions.SetPosition(pos)
	}
	c.positions.NextPositionID = snap.NextPositionID
	c.positions.TotalDebtPoints = snap.TotalDebtPoints
	c.positions.TotalCollateralPoints = snap.TotalCollateralPoints
	c.positions.DebtMultiplier = snap.DebtMultiplier
	c.positions.CollateralMultiplier = snap.CollateralMultiplier

	for _, s := range snap.Stakers {
		c.stakers.SetStaker(s)
	}
	c.stakers.TotalStaked = snap.TotalStaked
	c.stakers.RewardPerStakedUnit = snap.RewardPerStakedUnit

	c.fees.VariableRate = snap.VariableFeeRate
	c.fees.LastUpdate = snap.LastFeeUpdate

	c.feeDebt = snap.FeeDebt
	c.roundingBudget = snap.RoundingBudget
	if c.roundingBudget < 2 {
		c.roundingBudget = 2
	}

	for asset, ps := range snap.Prices {
		c.prices.Restore(asset, ps)
	}

	for partition, nextSeq := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, nextSeq)
	}
}

// CreateSnapshotState captures the current in-memory state.
func (c *Engine) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:              c.sequence - 1,
		StateHash:             c.hasher.GetPrevHash(),
		Balances:              c.balances.Snapshot(),
		Positions:             c.positions.GetAllPositions(),
		Stakers:               c.stakers.GetAllStakers(),
		Prices:                c.prices.GetAll(),
		NextPositionID:        c.positions.NextPositionID,
		TotalDebtPoints:       c.positions.TotalDebtPoints,
		TotalCollateralPoints: c.positions.TotalCollateralPoints,
		DebtMultiplier:        c.positions.DebtMultiplier,
		CollateralMultiplier:  c.positions.CollateralMultiplier,
		TotalStaked:           c.stakers.TotalStaked,
		RewardPerStakedUnit:   c.stakers.RewardPerStakedUnit,
		VariableFeeRate:       c.fees.VariableRate,
		LastFeeUpdate:         c.fees.LastUpdate,
		FeeDebt:               c.feeDebt,
		RoundingBudget:        c.roundingBudget,
		SequenceState:         c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys:       c.idempotency.lru.GetAllKeys(),
	}
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (c *Engine) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}

// GetSequence returns the current global sequence number.
func (c *Engine) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *Engine) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// TotalDebt returns the recomputed system-wide debt.
func (c *Engine) TotalDebt() int64 {
	return c.positions.TotalDebt()
}

// TotalCollateral returns the recomputed system-wide collateral.
func (c *Engine) TotalCollateral() int64 {
	return c.positions.TotalCollateral()
}
