package core

import (
	"time"

	"github.com/nkrishang/mad-protocol/internal/event"
	"github.com/nkrishang/mad-protocol/internal/ledger"
	fpmath "github.com/nkrishang/mad-protocol/internal/math"
	"github.com/nkrishang/mad-protocol/internal/state"
)

// Every handler follows the same shape: validate all preconditions
// against committed state, then apply effects (state mutations plus
// journal appends). Effects never fail, so a rejected operation leaves
// zero writes.

// handleMint opens a position: pull collateral, record debt points,
// mint the borrow amount. The fee is debt the position owes but no
// circulating token is created for it, keeping supply at or below the
// sum of principal borrowed.
func (c *Engine) handleMint(e *event.MintRequested, ts time.Time) (interface{}, error) {
	if e.CollateralAmount <= 0 || e.BorrowAmount <= 0 {
		return nil, ErrZeroAmount
	}

	price, err := c.collateralPrice()
	if err != nil {
		return nil, err
	}

	collValue := state.CollateralValue(e.CollateralAmount, price)
	if collValue < state.MinCollateralValue {
		return nil, ErrInsufficientCollateral
	}

	if c.balances.BalanceOf(e.Owner, ledger.AssetCollateral) < e.CollateralAmount {
		return nil, ErrInsufficientBalance
	}

	rate := c.fees.BorrowRate(ts.Unix())
	fee := fpmath.MulWadUp(e.BorrowAmount, rate)
	debt := e.BorrowAmount + fee

	if state.LTV(debt, e.CollateralAmount, price) >= state.MaxLTV {
		return nil, ErrLTVOutOfBounds
	}

	// System solvency gate, checked before AND after adding this
	// position: a mint must neither find nor leave the system at or
	// below the TCR floor. Skipped pre-genesis (no multipliers yet).
	if c.positions.Initialized() {
		if state.TCR(c.positions.TotalCollateral(), c.positions.TotalDebt(), price) <= state.MinTCR {
			return nil, ErrTCROutOfBounds
		}
		if state.TCR(c.positions.TotalCollateral()+e.CollateralAmount, c.positions.TotalDebt()+debt, price) <= state.MinTCR {
			return nil, ErrTCROutOfBounds
		}
	}

	// Effects. The very first mint moves the multipliers from the
	// uninitialized sentinel to 1.0: point space is 1:1 with value
	// space at genesis.
	c.positions.EnsureInitialized()

	debtPoints := c.positions.PointsForDebt(debt)
	collPoints := c.positions.PointsForCollateral(e.CollateralAmount)
	pos := c.positions.Open(e.Owner, debtPoints, collPoints)

	c.feeDebt += fee
	c.roundingBudget += 2

	c.tokens.TransferToSystem(e.Owner, ledger.VaultAccount(), e.CollateralAmount, ledger.JournalTypeCollateralPull)
	c.tokens.Mint(e.Recipient, e.BorrowAmount)

	if c.metrics != nil {
		c.metrics.MintsTotal.Inc()
	}

	return &event.Minted{
		OpID:       e.OpID,
		Sequence:   c.sequence,
		PositionID: pos.PositionID,
		Owner:      e.Owner,
		Collateral: e.CollateralAmount,
		Borrowed:   e.BorrowAmount,
		Fee:        fee,
		Debt:       debt,
		Recipient:  e.Recipient,
		Timestamp:  ts.UnixMicro(),
	}, nil
}

// handleClose repays a position's recomputed debt and releases its
// recomputed collateral. An unhealthy position cannot be closed by its
// owner — it must go through liquidation, so owners cannot dodge the
// liquidation penalty.
func (c *Engine) handleClose(e *event.CloseRequested, ts time.Time) (interface{}, error) {
	pos := c.positions.Get(e.PositionID)
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	if pos.Owner != e.Caller {
		return nil, ErrUnauthorizedCaller
	}

	price, err := c.collateralPrice()
	if err != nil {
		return nil, err
	}

	debt := c.positions.ActualDebt(pos)
	collateral := c.positions.ActualCollateral(pos)

	if state.LTV(debt, collateral, price) >= state.MaxLTV {
		return nil, ErrLTVOutOfBounds
	}

	if c.balances.BalanceOf(e.Caller, ledger.AssetStable) < debt {
		return nil, ErrInsufficientBalance
	}

	// Effects. The totals shrink by the position's own point fields,
	// not the recomputed value amounts — that is what keeps the
	// multiplier accounting exact under repeated revaluation.
	c.positions.Remove(pos)
	c.roundingBudget += 2

	c.tokens.Burn(e.Caller, debt)
	c.tokens.TransferFromSystem(ledger.VaultAccount(), e.Recipient, collateral, ledger.JournalTypeCollateralRelease)

	return &event.Closed{
		OpID:       e.OpID,
		Sequence:   c.sequence,
		PositionID: e.PositionID,
		Owner:      pos.Owner,
		DebtRepaid: debt,
		Collateral: collateral,
		Recipient:  e.Recipient,
		Timestamp:  ts.UnixMicro(),
	}, nil
}

// handleSupply tops up a position's collateral. Open to anyone; the
// new collateral converts at the current multiplier so it is unaffected
// by socialization that happened before the supply.
func (c *Engine) handleSupply(e *event.SupplyRequested, ts time.Time) (interface{}, error) {
	if e.Amount <= 0 {
		return nil, ErrZeroAmount
	}

	pos := c.positions.Get(e.PositionID)
	if pos == nil {
		return nil, ErrPositionNotFound
	}

	if c.balances.BalanceOf(e.Caller, ledger.AssetCollateral) < e.Amount {
		return nil, ErrInsufficientBalance
	}

	points := c.positions.PointsForCollateral(e.Amount)
	c.positions.AddCollateralPoints(pos, points)
	c.roundingBudget++

	c.tokens.TransferToSystem(e.Caller, ledger.VaultAccount(), e.Amount, ledger.JournalTypeCollateralPull)

	return &event.Supplied{
		OpID:       e.OpID,
		Sequence:   c.sequence,
		PositionID: e.PositionID,
		Caller:     e.Caller,
		Amount:     e.Amount,
		Timestamp:  ts.UnixMicro(),
	}, nil
}

// handleWithdraw removes collateral from a position, gated by both
// health ratios against recomputed (never stale) values.
func (c *Engine) handleWithdraw(e *event.WithdrawRequested, ts time.Time) (interface{}, error) {
	if e.Amount <= 0 {
		return nil, ErrZeroAmount
	}

	pos := c.positions.Get(e.PositionID)
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	if pos.Owner != e.Caller {
		return nil, ErrUnauthorizedCaller
	}

	price, err := c.collateralPrice()
	if err != nil {
		return nil, err
	}

	debt := c.positions.ActualDebt(pos)
	collateral := c.positions.ActualCollateral(pos)

	// A full withdrawal must go through close.
	if e.Amount >= collateral {
		return nil, ErrInsufficientCollateral
	}

	if state.LTV(debt, collateral-e.Amount, price) >= state.MaxLTV {
		return nil, ErrLTVOutOfBounds
	}
	if state.TCR(c.positions.TotalCollateral()-e.Amount, c.positions.TotalDebt(), price) <= state.MinTCR {
		return nil, ErrTCROutOfBounds
	}

	points := c.positions.PointsForCollateral(e.Amount)
	c.positions.RemoveCollateralPoints(pos, points)
	c.roundingBudget++

	c.tokens.TransferFromSystem(ledger.VaultAccount(), e.Recipient, e.Amount, ledger.JournalTypeCollateralRelease)

	return &event.Withdrawn{
		OpID:       e.OpID,
		Sequence:   c.sequence,
		PositionID: e.PositionID,
		Owner:      pos.Owner,
		Amount:     e.Amount,
		Recipient:  e.Recipient,
		Timestamp:  ts.UnixMicro(),
	}, nil
}

// handleRedeem exchanges stablecoin for collateral at face value against
// the whole system. The fee stays in circulation (it moves to the
// reserve); the principal is burned and both multipliers shrink
// pro-rata, the O(1) mirror image of liquidation socialization.
func (c *Engine) handleRedeem(e *event.RedeemRequested, ts time.Time) (interface{}, error) {
	if e.Amount <= 0 {
		return nil, ErrZeroAmount
	}

	price, err := c.collateralPrice()
	if err != nil {
		return nil, err
	}

	totalDebt := c.positions.TotalDebt()
	if totalDebt <= 0 {
		return nil, ErrZeroAmount
	}

	amount := fpmath.MinInt64(e.Amount, totalDebt)

	if c.balances.BalanceOf(e.Caller, ledger.AssetStable) < amount {
		return nil, ErrInsufficientBalance
	}

	// The charged rate equals the borrow-path read (base plus
	// pre-increment decayed value), so the fee can be computed before
	// the controller is mutated.
	rate := c.fees.BorrowRate(ts.Unix())
	fee := fpmath.MulWadUp(amount, rate)
	burned := amount - fee
	if burned <= 0 {
		return nil, ErrZeroAmount
	}

	collateralOut := state.CollateralForValue(burned, price)
	if collateralOut > c.balances.VaultBalance() {
		return nil, ErrInsufficientCollateral
	}

	// Effects.
	supply := c.balances.TotalSupply()
	c.fees.RedeemRate(amount, supply, ts.Unix())

	c.tokens.TransferToSystem(e.Caller, ledger.ReserveAccount(), fee, ledger.JournalTypeRedeemFee)
	c.tokens.Burn(e.Caller, burned)
	c.tokens.TransferFromSystem(ledger.VaultAccount(), e.Recipient, collateralOut, ledger.JournalTypeCollateralRelease)

	c.positions.ApplyRedemption(burned, collateralOut)
	c.roundingBudget += 2

	if c.metrics != nil {
		c.metrics.RedemptionsTotal.Inc()
	}

	return &event.Redeemed{
		OpID:          e.OpID,
		Sequence:      c.sequence,
		Caller:        e.Caller,
		Amount:        amount,
		Fee:           fee,
		Burned:        burned,
		CollateralOut: collateralOut,
		Recipient:     e.Recipient,
		Timestamp:     ts.UnixMicro(),
	}, nil
}

// handleLiquidate resolves a position at or above the LTV ceiling:
// reward the caller, draw down the insurance reserve against the debt,
// credit stakers with the matching collateral share, and socialize any
// shortfall across all surviving positions via the multipliers.
func (c *Engine) handleLiquidate(e *event.LiquidateRequested, ts time.Time) (interface{}, error) {
	pos := c.positions.Get(e.PositionID)
	if pos == nil {
		return nil, ErrPositionNotFound
	}

	price, err := c.collateralPrice()
	if err != nil {
		return nil, err
	}

	debt := c.positions.ActualDebt(pos)
	collateral := c.positions.ActualCollateral(pos)

	if state.LTV(debt, collateral, price) < state.MaxLTV {
		return nil, ErrLTVInBounds
	}

	// Effects.
	owner := pos.Owner
	reward := fpmath.MulWad(collateral, state.LiquidatorRewardRate)
	remaining := collateral - reward

	reserveBalance := c.balances.ReserveBalance()
	burn := fpmath.MinInt64(reserveBalance, debt)

	// The liquidated position leaves the totals before socialization so
	// it does not absorb its own shortfall.
	c.positions.Remove(pos)

	var stakerShare int64
	residualDebt := debt

	if burn > 0 {
		// Stakers covered burn/debt of the loss; they earn the same
		// fraction of the seized collateral. With nobody staked the
		// share stays in `remaining` and flows into socialization.
		stakerShare = fpmath.MulDiv(remaining, burn, residualDebt, fpmath.RoundDown)
		if c.stakers.TotalStaked > 0 && stakerShare > 0 {
			c.stakers.AccrueRewards(stakerShare)
			c.tokens.TransferSystem(ledger.VaultAccount(), ledger.RewardPoolAccount(), stakerShare, ledger.JournalTypeStakerRewardAccrual)
			remaining -= stakerShare
		} else {
			stakerShare = 0
		}

		c.tokens.BurnFromAccount(ledger.ReserveAccount(), burn)
		residualDebt -= burn
	}

	var socializedDebt, socializedColl int64

	if c.positions.TotalDebtPoints > 0 {
		socializedDebt = residualDebt
		socializedColl = remaining
		c.positions.SocializeLiquidation(residualDebt, remaining)
	} else {
		// Last position: nothing left to absorb the loss. The residual
		// debt becomes unbacked supply (tracked against the
		// conservation identity); the leftover collateral goes to
		// stakers if any exist, otherwise it stays in the vault.
		c.feeDebt -= residualDebt
		if c.stakers.TotalStaked > 0 && remaining > 0 {
			c.stakers.AccrueRewards(remaining)
			c.tokens.TransferSystem(ledger.VaultAccount(), ledger.RewardPoolAccount(), remaining, ledger.JournalTypeStakerRewardAccrual)
			stakerShare += remaining
		}
	}

	c.tokens.TransferFromSystem(ledger.VaultAccount(), e.Recipient, reward, ledger.JournalTypeLiquidatorReward)
	c.roundingBudget += 3

	if c.metrics != nil {
		c.metrics.LiquidationsTotal.Inc()
		if socializedDebt > 0 {
			c.metrics.SocializationsTotal.Inc()
		}
	}

	return &event.Liquidated{
		OpID:            e.OpID,
		Sequence:        c.sequence,
		PositionID:      e.PositionID,
		Owner:           owner,
		Caller:          e.Caller,
		Debt:            debt,
		Collateral:      collateral,
		Reward:          reward,
		ReserveBurned:   burn,
		StakerShare:     stakerShare,
		SocializedDebt:  socializedDebt,
		SocializedColl:  socializedColl,
		RewardRecipient: e.Recipient,
		Timestamp:       ts.UnixMicro(),
	}, nil
}

// handleStake deposits stablecoin into the insurance reserve. The
// reward debt is prepaid so the new stake cannot claim rewards accrued
// before the deposit.
func (c *Engine) handleStake(e *event.StakeRequested, ts time.Time) (interface{}, error) {
	if e.Amount <= 0 {
		return nil, ErrZeroAmount
	}

	if c.balances.BalanceOf(e.Caller, ledger.AssetStable) < e.Amount {
		return nil, ErrInsufficientBalance
	}

	c.stakers.Stake(e.Caller, e.Amount)
	c.tokens.TransferToSystem(e.Caller, ledger.ReserveAccount(), e.Amount, ledger.JournalTypeStakeDeposit)

	return &event.Staked{
		OpID:      e.OpID,
		Sequence:  c.sequence,
		Caller:    e.Caller,
		Amount:    e.Amount,
		Timestamp: ts.UnixMicro(),
	}, nil
}

// handleUnstake exits the reserve entirely. The principal paid out is
// the caller's pro-rata share of what the reserve still holds, which
// may be less than deposited if liquidations drew it down.
func (c *Engine) handleUnstake(e *event.UnstakeRequested, ts time.Time) (interface{}, error) {
	s := c.stakers.Get(e.Caller)
	if s == nil || s.Staked == 0 {
		return nil, ErrNothingStaked
	}

	owed := c.stakers.PendingRewards(s)
	principalOut := fpmath.MulDiv(c.balances.ReserveBalance(), s.Staked, c.stakers.TotalStaked, fpmath.RoundDown)

	c.stakers.Remove(s)

	if principalOut > 0 {
		c.tokens.TransferFromSystem(ledger.ReserveAccount(), e.Recipient, principalOut, ledger.JournalTypeStakeWithdraw)
	}
	if owed > 0 {
		c.tokens.TransferFromSystem(ledger.RewardPoolAccount(), e.Recipient, owed, ledger.JournalTypeRewardPayout)
	}

	return &event.Unstaked{
		OpID:         e.OpID,
		Sequence:     c.sequence,
		Caller:       e.Caller,
		PrincipalOut: principalOut,
		RewardsOut:   owed,
		Recipient:    e.Recipient,
		Timestamp:    ts.UnixMicro(),
	}, nil
}

// handleClaim pays out accrued collateral rewards without touching the
// principal stake.
func (c *Engine) handleClaim(e *event.ClaimRequested, ts time.Time) (interface{}, error) {
	s := c.stakers.Get(e.Caller)
	if s == nil || s.Staked == 0 {
		return nil, ErrNothingStaked
	}

	owed := c.stakers.Claim(s)
	if owed > 0 {
		c.tokens.TransferFromSystem(ledger.RewardPoolAccount(), e.Recipient, owed, ledger.JournalTypeRewardPayout)
	}

	return &event.RewardsClaimed{
		OpID:       e.OpID,
		Sequence:   c.sequence,
		Caller:     e.Caller,
		RewardsOut: owed,
		Recipient:  e.Recipient,
		Timestamp:  ts.UnixMicro(),
	}, nil
}

// handlePriceUpdate refreshes the oracle price. No journals; the
// envelope still enters the event log so replay reproduces every
// health-ratio decision bit-exactly.
func (c *Engine) handlePriceUpdate(e *event.PriceUpdate) (interface{}, error) {
	c.prices.Update(e.Asset, e.Price, e.PriceSequence, e.PriceTimestamp.UnixMicro())
	return nil, nil
}

// handleDeposit credits a custody-confirmed deposit to a user.
func (c *Engine) handleDeposit(e *event.DepositConfirmed, ts time.Time) (interface{}, error) {
	if e.Amount <= 0 {
		return nil, ErrZeroAmount
	}

	// Only collateral crosses the custody boundary; the stablecoin
	// enters and leaves circulation exclusively through mint and burn.
	assetID, ok := ledger.GetAssetID(e.Asset)
	if !ok || assetID == ledger.AssetStable {
		return nil, ErrUnknownAsset
	}

	c.tokens.Deposit(e.UserID, assetID, e.Amount)

	return &event.Deposited{
		OpID:      e.OpID,
		Sequence:  c.sequence,
		UserID:    e.UserID,
		Asset:     e.Asset,
		Amount:    e.Amount,
		Timestamp: ts.UnixMicro(),
	}, nil
}

// handleWithdrawal debits a user for a custody-released withdrawal.
func (c *Engine) handleWithdrawal(e *event.WithdrawalConfirmed, ts time.Time) (interface{}, error) {
	if e.Amount <= 0 {
		return nil, ErrZeroAmount
	}

	assetID, ok := ledger.GetAssetID(e.Asset)
	if !ok || assetID == ledger.AssetStable {
		return nil, ErrUnknownAsset
	}

	if c.balances.BalanceOf(e.UserID, assetID) < e.Amount {
		return nil, ErrInsufficientBalance
	}

	c.tokens.Withdraw(e.UserID, assetID, e.Amount)

	return &event.BalanceWithdrawn{
		OpID:      e.OpID,
		Sequence:  c.sequence,
		UserID:    e.UserID,
		Asset:     e.Asset,
		Amount:    e.Amount,
		Timestamp: ts.UnixMicro(),
	}, nil
}
