package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nkrishang/mad-protocol/internal/event"
	"github.com/nkrishang/mad-protocol/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseMintRequested(t *testing.T) {
	payload := map[string]interface{}{
		"op_id":             "550e8400-e29b-41d4-a716-446655440000",
		"owner":             "660e8400-e29b-41d4-a716-446655440001",
		"collateral_amount": int64(10_000_000_000),
		"borrow_amount":     int64(1_000_000_000),
		"recipient":         "770e8400-e29b-41d4-a716-446655440002",
		"op_sequence":       int64(42),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "MintRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	m, ok := evt.(*event.MintRequested)
	if !ok {
		t.Fatalf("expected *event.MintRequested, got %T", evt)
	}

	if m.CollateralAmount != 10_000_000_000 {
		t.Errorf("collateral_amount: got %d, want 10_000_000_000", m.CollateralAmount)
	}
	if m.BorrowAmount != 1_000_000_000 {
		t.Errorf("borrow_amount: got %d, want 1_000_000_000", m.BorrowAmount)
	}
	if m.Recipient.String() != "770e8400-e29b-41d4-a716-446655440002" {
		t.Errorf("recipient: got %s", m.Recipient)
	}
	if m.OpSequence != 42 {
		t.Errorf("op_sequence: got %d, want 42", m.OpSequence)
	}
	if m.EventType() != event.EventTypeMintRequested {
		t.Errorf("event type: got %v, want MintRequested", m.EventType())
	}
	if m.IdempotencyKey() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("idempotency key: got %s", m.IdempotencyKey())
	}
}

func TestParseMintRequested_RecipientDefaultsToOwner(t *testing.T) {
	payload := map[string]interface{}{
		"op_id":             "550e8400-e29b-41d4-a716-446655440000",
		"owner":             "660e8400-e29b-41d4-a716-446655440001",
		"collateral_amount": int64(10_000_000_000),
		"borrow_amount":     int64(1_000_000_000),
		"op_sequence":       int64(0),
		"timestamp_us":      int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "MintRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	m := evt.(*event.MintRequested)
	if m.Recipient != m.Owner {
		t.Errorf("recipient: got %s, want owner %s", m.Recipient, m.Owner)
	}
}

func TestParseCloseRequested(t *testing.T) {
	payload := map[string]interface{}{
		"op_id":        "550e8400-e29b-41d4-a716-446655440000",
		"caller":       "660e8400-e29b-41d4-a716-446655440001",
		"position_id":  int64(7),
		"op_sequence":  int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CloseRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	c, ok := evt.(*event.CloseRequested)
	if !ok {
		t.Fatalf("expected *event.CloseRequested, got %T", evt)
	}
	if c.PositionID != 7 {
		t.Errorf("position_id: got %d, want 7", c.PositionID)
	}
	if c.Recipient != c.Caller {
		t.Errorf("recipient should default to caller")
	}
}

func TestParseRedeemRequested(t *testing.T) {
	payload := map[string]interface{}{
		"op_id":        "550e8400-e29b-41d4-a716-446655440000",
		"caller":       "660e8400-e29b-41d4-a716-446655440001",
		"amount":       int64(500_000_000),
		"op_sequence":  int64(9),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "RedeemRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	r := evt.(*event.RedeemRequested)
	if r.Amount != 500_000_000 {
		t.Errorf("amount: got %d, want 500_000_000", r.Amount)
	}
}

func TestParseLiquidateRequested(t *testing.T) {
	payload := map[string]interface{}{
		"op_id":        "550e8400-e29b-41d4-a716-446655440000",
		"caller":       "660e8400-e29b-41d4-a716-446655440001",
		"position_id":  int64(12),
		"recipient":    "770e8400-e29b-41d4-a716-446655440002",
		"op_sequence":  int64(11),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "LiquidateRequested")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	l := evt.(*event.LiquidateRequested)
	if l.PositionID != 12 {
		t.Errorf("position_id: got %d, want 12", l.PositionID)
	}
	if l.Recipient.String() != "770e8400-e29b-41d4-a716-446655440002" {
		t.Errorf("recipient: got %s", l.Recipient)
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"asset":              "WETH",
		"price":              int64(3_000_000_000),
		"price_sequence":     int64(991),
		"price_timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	p, ok := evt.(*event.PriceUpdate)
	if !ok {
		t.Fatalf("expected *event.PriceUpdate, got %T", evt)
	}
	if p.Asset != "WETH" {
		t.Errorf("asset: got %s, want WETH", p.Asset)
	}
	if p.Price != 3_000_000_000 {
		t.Errorf("price: got %d, want 3_000_000_000", p.Price)
	}
	if p.SourceSequence() != 991 {
		t.Errorf("price_sequence: got %d, want 991", p.SourceSequence())
	}
	if p.IdempotencyKey() != "WETH:price:991" {
		t.Errorf("idempotency key: got %s", p.IdempotencyKey())
	}
}

func TestParseDepositConfirmed(t *testing.T) {
	payload := map[string]interface{}{
		"op_id":        "550e8400-e29b-41d4-a716-446655440000",
		"user_id":      "660e8400-e29b-41d4-a716-446655440001",
		"asset":        "WETH",
		"amount":       int64(2_000_000),
		"op_sequence":  int64(2),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "DepositConfirmed")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	d, ok := evt.(*event.DepositConfirmed)
	if !ok {
		t.Fatalf("expected *event.DepositConfirmed, got %T", evt)
	}
	if d.Asset != "WETH" || d.Amount != 2_000_000 {
		t.Errorf("got asset=%s amount=%d", d.Asset, d.Amount)
	}
	if !d.Timestamp.Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("timestamp: got %v", d.Timestamp)
	}
}

func TestParseStakeAndClaim(t *testing.T) {
	stakePayload := map[string]interface{}{
		"op_id":        "550e8400-e29b-41d4-a716-446655440000",
		"caller":       "660e8400-e29b-41d4-a716-446655440001",
		"amount":       int64(100_000_000),
		"op_sequence":  int64(5),
		"timestamp_us": int64(1700000000000000),
	}
	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, stakePayload), "StakeRequested")
	if err != nil {
		t.Fatalf("parse stake failed: %v", err)
	}
	if s := evt.(*event.StakeRequested); s.Amount != 100_000_000 {
		t.Errorf("stake amount: got %d", s.Amount)
	}

	claimPayload := map[string]interface{}{
		"op_id":        "880e8400-e29b-41d4-a716-446655440003",
		"caller":       "660e8400-e29b-41d4-a716-446655440001",
		"op_sequence":  int64(6),
		"timestamp_us": int64(1700000000000000),
	}
	evt, err = ingestion.ParseRawEvent(rawFromJSON(t, claimPayload), "ClaimRequested")
	if err != nil {
		t.Fatalf("parse claim failed: %v", err)
	}
	if c := evt.(*event.ClaimRequested); c.Recipient != c.Caller {
		t.Errorf("claim recipient should default to caller")
	}
}

func TestParseRejectsBadUUID(t *testing.T) {
	payload := map[string]interface{}{
		"op_id":        "not-a-uuid",
		"owner":        "660e8400-e29b-41d4-a716-446655440001",
		"op_sequence":  int64(0),
		"timestamp_us": int64(1700000000000000),
	}

	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "MintRequested"); err == nil {
		t.Fatal("expected error for malformed op_id")
	}
}

func TestParseUnknownEventType(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{})
	if _, err := ingestion.ParseRawEvent(raw, "SomethingElse"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseMalformedJSON(t *testing.T) {
	raw := ingestion.RawEvent{Subject: "test", Data: []byte("{not json"), Timestamp: time.Now()}
	if _, err := ingestion.ParseRawEvent(raw, "RedeemRequested"); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
