package event

import "github.com/google/uuid"

// Outbound events published after each applied operation. Downstream
// consumers (indexers, notification services) subscribe on the ledger
// event subjects; payloads carry the computed amounts so consumers do
// not re-derive fee or socialization math.

type Minted struct {
	OpID       uuid.UUID `json:"op_id"`
	Sequence   int64     `json:"sequence"`
	PositionID int64     `json:"position_id"`
	Owner      uuid.UUID `json:"owner"`
	Collateral int64     `json:"collateral"`
	Borrowed   int64     `json:"borrowed"`
	Fee        int64     `json:"fee"`
	Debt       int64     `json:"debt"`
	Recipient  uuid.UUID `json:"recipient"`
	Timestamp  int64     `json:"timestamp"`
}

type Closed struct {
	OpID       uuid.UUID `json:"op_id"`
	Sequence   int64     `json:"sequence"`
	PositionID int64     `json:"position_id"`
	Owner      uuid.UUID `json:"owner"`
	DebtRepaid int64     `json:"debt_repaid"`
	Collateral int64     `json:"collateral"`
	Recipient  uuid.UUID `json:"recipient"`
	Timestamp  int64     `json:"timestamp"`
}

type Supplied struct {
	OpID       uuid.UUID `json:"op_id"`
	Sequence   int64     `json:"sequence"`
	PositionID int64     `json:"position_id"`
	Caller     uuid.UUID `json:"caller"`
	Amount     int64     `json:"amount"`
	Timestamp  int64     `json:"timestamp"`
}

type Withdrawn struct {
	OpID       uuid.UUID `json:"op_id"`
	Sequence   int64     `json:"sequence"`
	PositionID int64     `json:"position_id"`
	Owner      uuid.UUID `json:"owner"`
	Amount     int64     `json:"amount"`
	Recipient  uuid.UUID `json:"recipient"`
	Timestamp  int64     `json:"timestamp"`
}

type Redeemed struct {
	OpID          uuid.UUID `json:"op_id"`
	Sequence      int64     `json:"sequence"`
	Caller        uuid.UUID `json:"caller"`
	Amount        int64     `json:"amount"`
	Fee           int64     `json:"fee"`
	Burned        int64     `json:"burned"`
	CollateralOut int64     `json:"collateral_out"`
	Recipient     uuid.UUID `json:"recipient"`
	Timestamp     int64     `json:"timestamp"`
}

type Liquidated struct {
	OpID            uuid.UUID `json:"op_id"`
	Sequence        int64     `json:"sequence"`
	PositionID      int64     `json:"position_id"`
	Owner           uuid.UUID `json:"owner"`
	Caller          uuid.UUID `json:"caller"`
	Debt            int64     `json:"debt"`
	Collateral      int64     `json:"collateral"`
	Reward          int64     `json:"reward"`
	ReserveBurned   int64     `json:"reserve_burned"`
	StakerShare     int64     `json:"staker_share"`
	SocializedDebt  int64     `json:"socialized_debt"`
	SocializedColl  int64     `json:"socialized_collateral"`
	RewardRecipient uuid.UUID `json:"reward_recipient"`
	Timestamp       int64     `json:"timestamp"`
}

type Staked struct {
	OpID      uuid.UUID `json:"op_id"`
	Sequence  int64     `json:"sequence"`
	Caller    uuid.UUID `json:"caller"`
	Amount    int64     `json:"amount"`
	Timestamp int64     `json:"timestamp"`
}

type Unstaked struct {
	OpID         uuid.UUID `json:"op_id"`
	Sequence     int64     `json:"sequence"`
	Caller       uuid.UUID `json:"caller"`
	PrincipalOut int64     `json:"principal_out"`
	RewardsOut   int64     `json:"rewards_out"`
	Recipient    uuid.UUID `json:"recipient"`
	Timestamp    int64     `json:"timestamp"`
}

type Deposited struct {
	OpID      uuid.UUID `json:"op_id"`
	Sequence  int64     `json:"sequence"`
	UserID    uuid.UUID `json:"user_id"`
	Asset     string    `json:"asset"`
	Amount    int64     `json:"amount"`
	Timestamp int64     `json:"timestamp"`
}

type BalanceWithdrawn struct {
	OpID      uuid.UUID `json:"op_id"`
	Sequence  int64     `json:"sequence"`
	UserID    uuid.UUID `json:"user_id"`
	Asset     string    `json:"asset"`
	Amount    int64     `json:"amount"`
	Timestamp int64     `json:"timestamp"`
}

type RewardsClaimed struct {
	OpID       uuid.UUID `json:"op_id"`
	Sequence   int64     `json:"sequence"`
	Caller     uuid.UUID `json:"caller"`
	RewardsOut int64     `json:"rewards_out"`
	Recipient  uuid.UUID `json:"recipient"`
	Timestamp  int64     `json:"timestamp"`
}
