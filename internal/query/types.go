package query

import (
	"time"

	"github.com/google/uuid"
)

// All responses carry AsOfSequence: the projection watermark at read
// time, so callers can reason about freshness against the event log.

type PositionResponse struct {
	PositionID    int64     `json:"position_id"`
	Owner         uuid.UUID `json:"owner"`
	Debt          int64     `json:"debt"`
	Collateral    int64     `json:"collateral"`
	CollateralUSD int64     `json:"collateral_usd"`
	LTV           int64     `json:"ltv"` // wad scale, 0 when collateral value is 0
	Status        string    `json:"status"`
	AsOfSequence  int64     `json:"as_of_sequence"`
}

type StakerResponse struct {
	Account      uuid.UUID `json:"account"`
	Staked       int64     `json:"staked"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

type SystemResponse struct {
	TotalDebt            int64     `json:"total_debt"`
	TotalCollateral      int64     `json:"total_collateral"`
	TotalCollateralUSD   int64     `json:"total_collateral_usd"`
	TCR                  int64     `json:"tcr"` // wad scale, 0 when debt is 0
	DebtMultiplier       int64     `json:"debt_multiplier"`
	CollateralMultiplier int64     `json:"collateral_multiplier"`
	TotalStaked          int64     `json:"total_staked"`
	VariableFeeRate      int64     `json:"variable_fee_rate"`
	CollateralPrice      int64     `json:"collateral_price"`
	OpenPositions        int64     `json:"open_positions"`
	AsOfSequence         int64     `json:"as_of_sequence"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type BalanceResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	Asset        string    `json:"asset"`
	Balance      int64     `json:"balance"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

type JournalHistoryEntry struct {
	JournalID     uuid.UUID `json:"journal_id"`
	BatchID       uuid.UUID `json:"batch_id"`
	EventRef      string    `json:"event_ref"`
	Sequence      int64     `json:"sequence"`
	DebitAccount  string    `json:"debit_account"`
	CreditAccount string    `json:"credit_account"`
	AssetID       uint16    `json:"asset_id"`
	Amount        int64     `json:"amount"`
	JournalType   int32     `json:"journal_type"`
	Timestamp     int64     `json:"timestamp"`
}

type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}

type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
	AsOfSequence     int64             `json:"as_of_sequence"`
}
