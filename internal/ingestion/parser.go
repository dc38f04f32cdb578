package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkrishang/mad-protocol/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string)
// into a typed event.Event. The shell validates and converts raw events
// before sending anything to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "MintRequested":
		return parseMintRequested(raw.Data)
	case "CloseRequested":
		return parseCloseRequested(raw.Data)
	case "SupplyRequested":
		return parseSupplyRequested(raw.Data)
	case "WithdrawRequested":
		return parseWithdrawRequested(raw.Data)
	case "RedeemRequested":
		return parseRedeemRequested(raw.Data)
	case "LiquidateRequested":
		return parseLiquidateRequested(raw.Data)
	case "StakeRequested":
		return parseStakeRequested(raw.Data)
	case "UnstakeRequested":
		return parseUnstakeRequested(raw.Data)
	case "ClaimRequested":
		return parseClaimRequested(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "DepositConfirmed":
		return parseDepositConfirmed(raw.Data)
	case "WithdrawalConfirmed":
		return parseWithdrawalConfirmed(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type mintJSON struct {
	OpID             string `json:"op_id"`
	Owner            string `json:"owner"`
	CollateralAmount int64  `json:"collateral_amount"`
	BorrowAmount     int64  `json:"borrow_amount"`
	Recipient        string `json:"recipient"`
	OpSequence       int64  `json:"op_sequence"`
	TimestampUs      int64  `json:"timestamp_us"`
}

func parseMintRequested(data []byte) (*event.MintRequested, error) {
	var j mintJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse MintRequested: %w", err)
	}

	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	owner, err := uuid.Parse(j.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	recipient, err := parseRecipient(j.Recipient, owner)
	if err != nil {
		return nil, err
	}

	return &event.MintRequested{
		OpID:             opID,
		Owner:            owner,
		CollateralAmount: j.CollateralAmount,
		BorrowAmount:     j.BorrowAmount,
		Recipient:        recipient,
		OpSequence:       j.OpSequence,
		Timestamp:        time.UnixMicro(j.TimestampUs),
	}, nil
}

// parseRecipient falls back to the caller when the producer omits an
// explicit recipient.
func parseRecipient(s string, fallback uuid.UUID) (uuid.UUID, error) {
	if s == "" {
		return fallback, nil
	}
	recipient, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse recipient: %w", err)
	}
	return recipient, nil
}

type positionOpJSON struct {
	OpID        string `json:"op_id"`
	Caller      string `json:"caller"`
	PositionID  int64  `json:"position_id"`
	Amount      int64  `json:"amount,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	OpSequence  int64  `json:"op_sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCloseRequested(data []byte) (*event.CloseRequested, error) {
	var j positionOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CloseRequested: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	recipient, err := parseRecipient(j.Recipient, caller)
	if err != nil {
		return nil, err
	}
	return &event.CloseRequested{
		OpID:       opID,
		Caller:     caller,
		PositionID: j.PositionID,
		Recipient:  recipient,
		OpSequence: j.OpSequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseSupplyRequested(data []byte) (*event.SupplyRequested, error) {
	var j positionOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SupplyRequested: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.SupplyRequested{
		OpID:       opID,
		Caller:     caller,
		PositionID: j.PositionID,
		Amount:     j.Amount,
		OpSequence: j.OpSequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseWithdrawRequested(data []byte) (*event.WithdrawRequested, error) {
	var j positionOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawRequested: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	recipient, err := parseRecipient(j.Recipient, caller)
	if err != nil {
		return nil, err
	}
	return &event.WithdrawRequested{
		OpID:       opID,
		Caller:     caller,
		PositionID: j.PositionID,
		Amount:     j.Amount,
		Recipient:  recipient,
		OpSequence: j.OpSequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type redeemJSON struct {
	OpID        string `json:"op_id"`
	Caller      string `json:"caller"`
	Amount      int64  `json:"amount"`
	Recipient   string `json:"recipient,omitempty"`
	OpSequence  int64  `json:"op_sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseRedeemRequested(data []byte) (*event.RedeemRequested, error) {
	var j redeemJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RedeemRequested: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	recipient, err := parseRecipient(j.Recipient, caller)
	if err != nil {
		return nil, err
	}
	return &event.RedeemRequested{
		OpID:       opID,
		Caller:     caller,
		Amount:     j.Amount,
		Recipient:  recipient,
		OpSequence: j.OpSequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseLiquidateRequested(data []byte) (*event.LiquidateRequested, error) {
	var j positionOpJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidateRequested: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	recipient, err := parseRecipient(j.Recipient, caller)
	if err != nil {
		return nil, err
	}
	return &event.LiquidateRequested{
		OpID:       opID,
		Caller:     caller,
		PositionID: j.PositionID,
		Recipient:  recipient,
		OpSequence: j.OpSequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type stakeJSON struct {
	OpID        string `json:"op_id"`
	Caller      string `json:"caller"`
	Amount      int64  `json:"amount,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	OpSequence  int64  `json:"op_sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseStakeRequested(data []byte) (*event.StakeRequested, error) {
	var j stakeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StakeRequested: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.StakeRequested{
		OpID:       opID,
		Caller:     caller,
		Amount:     j.Amount,
		OpSequence: j.OpSequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseUnstakeRequested(data []byte) (*event.UnstakeRequested, error) {
	var j stakeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse UnstakeRequested: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	recipient, err := parseRecipient(j.Recipient, caller)
	if err != nil {
		return nil, err
	}
	return &event.UnstakeRequested{
		OpID:       opID,
		Caller:     caller,
		Recipient:  recipient,
		OpSequence: j.OpSequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseClaimRequested(data []byte) (*event.ClaimRequested, error) {
	var j stakeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimRequested: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	recipient, err := parseRecipient(j.Recipient, caller)
	if err != nil {
		return nil, err
	}
	return &event.ClaimRequested{
		OpID:       opID,
		Caller:     caller,
		Recipient:  recipient,
		OpSequence: j.OpSequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type priceJSON struct {
	Asset            string `json:"asset"`
	Price            int64  `json:"price"`
	PriceSequence    int64  `json:"price_sequence"`
	PriceTimestampUs int64  `json:"price_timestamp_us"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	return &event.PriceUpdate{
		Asset:          j.Asset,
		Price:          j.Price,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: time.UnixMicro(j.PriceTimestampUs),
	}, nil
}

type custodyJSON struct {
	OpID        string `json:"op_id"`
	UserID      string `json:"user_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	OpSequence  int64  `json:"op_sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseDepositConfirmed(data []byte) (*event.DepositConfirmed, error) {
	var j custodyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse DepositConfirmed: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.DepositConfirmed{
		OpID:       opID,
		UserID:     userID,
		Asset:      j.Asset,
		Amount:     j.Amount,
		OpSequence: j.OpSequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseWithdrawalConfirmed(data []byte) (*event.WithdrawalConfirmed, error) {
	var j custodyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawalConfirmed: %w", err)
	}
	opID, err := uuid.Parse(j.OpID)
	if err != nil {
		return nil, fmt.Errorf("parse op_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.WithdrawalConfirmed{
		OpID:       opID,
		UserID:     userID,
		Asset:      j.Asset,
		Amount:     j.Amount,
		OpSequence: j.OpSequence,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}
