package ingestion_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/ingestion"
	"ShadowSettle/internal/mpc"
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

func testCiphertext(fill byte) []byte {
	b := make([]byte, mpc.CiphertextSize)
	for i := range b {
		b[i] = fill
	}
	return b
}

func hex32(fill byte) string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = fill
	}
	return hex.EncodeToString(b)
}

// ==== order instructions ====

func TestParsePlaceOrder(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id":   "550e8400-e29b-41d4-a716-446655440000",
		"maker":            "660e8400-e29b-41d4-a716-446655440001",
		"pair":             "BTC-USDC",
		"side":             "buy",
		"order_type":       "limit",
		"encrypted_amount": testCiphertext(0xa1),
		"encrypted_price":  testCiphertext(0xa2),
		"client_nonce":     uint64(7),
		"proof":            []byte{0x01, 0x02},
		"public_inputs":    [][]byte{{0x03}},
		"instr_sequence":   int64(42),
		"timestamp_us":     int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PlaceOrder")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	po, ok := evt.(*event.PlaceOrder)
	if !ok {
		t.Fatalf("expected *event.PlaceOrder, got %T", evt)
	}

	if po.Pair != "BTC-USDC" {
		t.Errorf("pair: got %s, want BTC-USDC", po.Pair)
	}
	if po.OrderSide != event.SideBuy {
		t.Errorf("side: got %d, want SideBuy", po.OrderSide)
	}
	if po.EncryptedAmount[0] != 0xa1 || po.EncryptedAmount[63] != 0xa1 {
		t.Errorf("encrypted_amount not copied through")
	}
	if po.ClientNonce != 7 {
		t.Errorf("client_nonce: got %d, want 7", po.ClientNonce)
	}
	if po.InstrSequence != 42 {
		t.Errorf("instr_sequence: got %d, want 42", po.InstrSequence)
	}
	if po.Timestamp.UnixMicro() != 1700000000000000 {
		t.Errorf("timestamp: got %d", po.Timestamp.UnixMicro())
	}
	if po.EventType() != event.EventTypePlaceOrder {
		t.Errorf("event type: got %v", po.EventType())
	}
}

func TestParsePlaceOrderRejectsBadSide(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id":   "550e8400-e29b-41d4-a716-446655440000",
		"maker":            "660e8400-e29b-41d4-a716-446655440001",
		"pair":             "BTC-USDC",
		"side":             "long",
		"encrypted_amount": testCiphertext(0xa1),
		"encrypted_price":  testCiphertext(0xa2),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "PlaceOrder"); err == nil {
		t.Fatal("expected error for invalid side")
	}
}

func TestParsePlaceOrderRejectsShortCiphertext(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id":   "550e8400-e29b-41d4-a716-446655440000",
		"maker":            "660e8400-e29b-41d4-a716-446655440001",
		"pair":             "BTC-USDC",
		"side":             "buy",
		"encrypted_amount": []byte{0x01, 0x02, 0x03},
		"encrypted_price":  testCiphertext(0xa2),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "PlaceOrder")
	if err == nil {
		t.Fatal("expected error for short ciphertext")
	}
	if !strings.Contains(err.Error(), "encrypted_amount") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestParseMatchOrders(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"pair":           "ETH-USDC",
		"buy_order_id":   hex32(0x11),
		"sell_order_id":  hex32(0x22),
		"instr_sequence": int64(9),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "MatchOrders")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	mo, ok := evt.(*event.MatchOrders)
	if !ok {
		t.Fatalf("expected *event.MatchOrders, got %T", evt)
	}
	if mo.BuyOrderID[0] != 0x11 || mo.SellOrderID[0] != 0x22 {
		t.Error("order ids not decoded")
	}
}

func TestParseCancelOrderRejectsBadHex(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"maker":          "660e8400-e29b-41d4-a716-446655440001",
		"pair":           "BTC-USDC",
		"order_id":       "zzzz",
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "CancelOrder"); err == nil {
		t.Fatal("expected error for non-hex order id")
	}
}

// ==== settlement instructions ====

func TestParseRecordTransfer(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"pair":           "BTC-USDC",
		"settlement_id":  hex32(0x33),
		"leg":            "quote",
		"transfer_id":    "770e8400-e29b-41d4-a716-446655440002",
		"instr_sequence": int64(3),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "RecordTransfer")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rt, ok := evt.(*event.RecordTransfer)
	if !ok {
		t.Fatalf("expected *event.RecordTransfer, got %T", evt)
	}
	if rt.Leg != event.TransferLegQuote {
		t.Errorf("leg: got %v, want Quote", rt.Leg)
	}
}

func TestParseRecordTransferRejectsBadLeg(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"pair":           "BTC-USDC",
		"settlement_id":  hex32(0x33),
		"leg":            "middle",
		"transfer_id":    "770e8400-e29b-41d4-a716-446655440002",
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "RecordTransfer"); err == nil {
		t.Fatal("expected error for invalid leg")
	}
}

// ==== position instructions ====

func TestParseOpenPosition(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id":       "550e8400-e29b-41d4-a716-446655440000",
		"trader":               "660e8400-e29b-41d4-a716-446655440001",
		"market":               "BTC-USDC",
		"side":                 "sell",
		"leverage":             uint8(10),
		"encrypted_size":       testCiphertext(0x01),
		"encrypted_entry":      testCiphertext(0x02),
		"encrypted_collateral": testCiphertext(0x03),
		"collateral_amount":    int64(5_000_000),
		"client_nonce":         uint64(1),
		"proof":                []byte{0xff},
		"public_inputs":        [][]byte{{0x01}},
		"instr_sequence":       int64(5),
		"timestamp_us":         int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "OpenPosition")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	op, ok := evt.(*event.OpenPosition)
	if !ok {
		t.Fatalf("expected *event.OpenPosition, got %T", evt)
	}
	if op.PositionSide != event.SideSell {
		t.Errorf("side: got %d, want SideSell", op.PositionSide)
	}
	if op.Leverage != 10 {
		t.Errorf("leverage: got %d, want 10", op.Leverage)
	}
	if op.CollateralAmount != 5_000_000 {
		t.Errorf("collateral_amount: got %d", op.CollateralAmount)
	}
	if op.EncryptedCollateral[0] != 0x03 {
		t.Error("encrypted_collateral not copied through")
	}
}

func TestParseCheckLiquidationBatch(t *testing.T) {
	payload := map[string]interface{}{
		"instruction_id": "550e8400-e29b-41d4-a716-446655440000",
		"market":         "BTC-USDC",
		"position_ids":   []string{hex32(0x41), hex32(0x42)},
		"instr_sequence": int64(1),
		"timestamp_us":   int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CheckLiquidationBatch")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cb, ok := evt.(*event.CheckLiquidationBatch)
	if !ok {
		t.Fatalf("expected *event.CheckLiquidationBatch, got %T", evt)
	}
	if len(cb.PositionIDs) != 2 {
		t.Fatalf("position_ids: got %d, want 2", len(cb.PositionIDs))
	}
	if cb.PositionIDs[1][0] != 0x42 {
		t.Error("second position id not decoded")
	}
}

// ==== MPC callbacks ====

func TestParseMatchCallback(t *testing.T) {
	payload := map[string]interface{}{
		"kind":            "match",
		"request_id":      hex32(0x77),
		"market":          "BTC-USDC",
		"buy_order_id":    hex32(0x11),
		"sell_order_id":   hex32(0x22),
		"price_crossed":   true,
		"new_buy_filled":  testCiphertext(0xb1),
		"new_sell_filled": testCiphertext(0xb2),
		"buy_done":        true,
		"sell_done":       false,
		"success":         true,
		"cb_sequence":     int64(100),
		"timestamp_us":    int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "MPCCallback")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	mc, ok := evt.(*event.MatchCallback)
	if !ok {
		t.Fatalf("expected *event.MatchCallback, got %T", evt)
	}
	if !mc.PriceCrossed || !mc.BuyDone || mc.SellDone {
		t.Error("flags not decoded")
	}
	if mc.NewBuyFilled[0] != 0xb1 {
		t.Error("new_buy_filled not decoded")
	}
	wantKey := "match-cb:" + hex32(0x77)
	if mc.IdempotencyKey() != wantKey {
		t.Errorf("idempotency key: got %s, want %s", mc.IdempotencyKey(), wantKey)
	}
}

func TestParseMatchCallbackNoMatchSkipsCiphertexts(t *testing.T) {
	payload := map[string]interface{}{
		"kind":          "match",
		"request_id":    hex32(0x77),
		"market":        "BTC-USDC",
		"buy_order_id":  hex32(0x11),
		"sell_order_id": hex32(0x22),
		"price_crossed": false,
		"success":       true,
		"cb_sequence":   int64(101),
		"timestamp_us":  int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "MPCCallback")
	if err != nil {
		t.Fatalf("no-match callback should parse without filled ciphertexts: %v", err)
	}

	mc := evt.(*event.MatchCallback)
	if !bytes.Equal(mc.NewBuyFilled[:], make([]byte, mpc.CiphertextSize)) {
		t.Error("new_buy_filled should stay zero for a no-match")
	}
}

func TestParseCloseCallback(t *testing.T) {
	payload := map[string]interface{}{
		"kind":                 "close",
		"request_id":           hex32(0x78),
		"market":               "BTC-USDC",
		"position_id":          hex32(0x51),
		"encrypted_size":       testCiphertext(0xc1),
		"encrypted_collateral": testCiphertext(0xc2),
		"revealed_payout":      int64(-2_500_000),
		"revealed_notional":    int64(90_000_000),
		"success":              true,
		"cb_sequence":          int64(102),
		"timestamp_us":         int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "MPCCallback")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cc, ok := evt.(*event.CloseCallback)
	if !ok {
		t.Fatalf("expected *event.CloseCallback, got %T", evt)
	}
	if cc.RevealedPayout != -2_500_000 {
		t.Errorf("revealed_payout: got %d", cc.RevealedPayout)
	}
	if cc.RevealedNotional != 90_000_000 {
		t.Errorf("revealed_notional: got %d", cc.RevealedNotional)
	}
}

func TestParseLiquidationBatchCallback(t *testing.T) {
	payload := map[string]interface{}{
		"kind":         "liq_batch",
		"request_id":   hex32(0x79),
		"market":       "ETH-USDC",
		"results":      []bool{true, false, true},
		"priorities":   []int64{0, 12, 3},
		"completed":    true,
		"success":      true,
		"cb_sequence":  int64(103),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "MPCCallback")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	lb, ok := evt.(*event.LiquidationBatchCallback)
	if !ok {
		t.Fatalf("expected *event.LiquidationBatchCallback, got %T", evt)
	}
	if len(lb.Results) != 3 || len(lb.Priorities) != 3 {
		t.Fatalf("results/priorities: got %d/%d", len(lb.Results), len(lb.Priorities))
	}
	if lb.Priorities[1] != 12 {
		t.Errorf("priorities[1]: got %d, want 12", lb.Priorities[1])
	}
}

func TestParseCallbackRejectsUnknownKind(t *testing.T) {
	payload := map[string]interface{}{
		"kind":       "reveal_everything",
		"request_id": hex32(0x79),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "MPCCallback"); err == nil {
		t.Fatal("expected error for unknown callback kind")
	}
}

// ==== admin and oracle ====

func TestParseOraclePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"market":       "BTC-USDC",
		"price":        int64(50_000_000_000),
		"confidence":   int64(10_000_000),
		"published_at": int64(1700000000),
		"sequence":     int64(88),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "OraclePriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ou, ok := evt.(*event.OraclePriceUpdate)
	if !ok {
		t.Fatalf("expected *event.OraclePriceUpdate, got %T", evt)
	}
	if ou.Price != 50_000_000_000 {
		t.Errorf("price: got %d", ou.Price)
	}
	if ou.Sequence != 88 {
		t.Errorf("sequence: got %d", ou.Sequence)
	}
}

func TestParseOraclePriceRejectsNonPositive(t *testing.T) {
	payload := map[string]interface{}{
		"market":   "BTC-USDC",
		"price":    int64(0),
		"sequence": int64(89),
	}

	raw := rawFromJSON(t, payload)
	if _, err := ingestion.ParseRawEvent(raw, "OraclePriceUpdate"); err == nil {
		t.Fatal("expected error for zero price")
	}
}

func TestParseFundingIndexUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"market":       "BTC-USDC",
		"long_delta":   int64(150),
		"short_delta":  int64(-150),
		"epoch":        int64(12),
		"sequence":     int64(90),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "FundingIndexUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	fi, ok := evt.(*event.FundingIndexUpdate)
	if !ok {
		t.Fatalf("expected *event.FundingIndexUpdate, got %T", evt)
	}
	if fi.LongDelta != 150 || fi.ShortDelta != -150 {
		t.Errorf("deltas: got %d/%d", fi.LongDelta, fi.ShortDelta)
	}
	if fi.IdempotencyKey() != "funding_index:BTC-USDC:12" {
		t.Errorf("idempotency key: got %s", fi.IdempotencyKey())
	}
}

func TestParseUnknownEventType(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{})
	if _, err := ingestion.ParseRawEvent(raw, "Nonsense"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
