package event

import (
	"encoding/json"
	"fmt"
)

// UnmarshalPayload reconstructs a typed event from its logged JSON
// payload. The event log stores the input event exactly as the engine
// received it, so replaying the log through the same pipeline
// reproduces the state hash chain bit for bit.
func UnmarshalPayload(eventType string, data []byte) (Event, error) {
	var evt Event

	switch eventType {
	case "MintRequested":
		evt = &MintRequested{}
	case "CloseRequested":
		evt = &CloseRequested{}
	case "SupplyRequested":
		evt = &SupplyRequested{}
	case "WithdrawRequested":
		evt = &WithdrawRequested{}
	case "RedeemRequested":
		evt = &RedeemRequested{}
	case "LiquidateRequested":
		evt = &LiquidateRequested{}
	case "StakeRequested":
		evt = &StakeRequested{}
	case "UnstakeRequested":
		evt = &UnstakeRequested{}
	case "ClaimRequested":
		evt = &ClaimRequested{}
	case "PriceUpdate":
		evt = &PriceUpdate{}
	case "DepositConfirmed":
		evt = &DepositConfirmed{}
	case "WithdrawalConfirmed":
		evt = &WithdrawalConfirmed{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", eventType, err)
	}

	return evt, nil
}
