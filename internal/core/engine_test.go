package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"ShadowSettle/internal/core"
	"ShadowSettle/internal/event"
	"ShadowSettle/internal/mpc"
	"ShadowSettle/internal/state"
	"ShadowSettle/internal/testutil"
	"ShadowSettle/internal/transfer"
	"ShadowSettle/internal/zk"
)

var testTime = time.Unix(1_700_000_000, 0).UTC()

// harness wires an engine to fakes and captures per-event outputs. Each
// harness keeps its own source sequence counter per partition, matching
// what a well-behaved instruction producer emits.
type harness struct {
	t         *testing.T
	engine    *core.Engine
	queue     *testutil.FakeQueue
	transfers *testutil.FakeTransferEngine
	collab    *testutil.Collaborator
	persist   chan core.CoreOutput
	seqs      map[string]int64
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, testutil.AcceptVerifier{})
}

func newHarnessWith(t *testing.T, verifier zk.Verifier) *harness {
	t.Helper()
	persist := make(chan core.CoreOutput, 1024)
	projection := make(chan core.CoreOutput, 1024)
	queue := &testutil.FakeQueue{}
	transfers := testutil.NewFakeTransferEngine()
	prices := testutil.SeededPrices(map[string]int64{
		"BTC-USDC": 50_000_000_000,
		"ETH-USDC": 3_000_000_000,
	})

	engine := core.NewEngine(0, persist, projection, nil, verifier, queue, transfers, prices, nil)
	return &harness{
		t:         t,
		engine:    engine,
		queue:     queue,
		transfers: transfers,
		collab:    testutil.NewCollaborator(),
		persist:   persist,
		seqs:      make(map[string]int64),
	}
}

func (h *harness) nextSeq(partition string) int64 {
	n := h.seqs[partition]
	h.seqs[partition] = n + 1
	return n
}

// apply processes one event and returns the persisted output.
func (h *harness) apply(evt event.Event) core.CoreOutput {
	h.t.Helper()
	if err := h.engine.ProcessEvent(context.Background(), evt); err != nil {
		h.t.Fatalf("process %s: %v", evt.EventType(), err)
	}
	select {
	case out := <-h.persist:
		return out
	default:
		h.t.Fatal("applied event produced no persist output")
		return core.CoreOutput{}
	}
}

func (h *harness) placeOrder(pair string, side event.Side, amount, price int64, nonce uint64) (core.CoreOutput, *state.Order) {
	h.t.Helper()
	maker := uuid.New()
	out := h.apply(&event.PlaceOrder{
		InstructionID:   uuid.New(),
		Maker:           maker,
		Pair:            pair,
		OrderSide:       side,
		OrderType:       event.OrderTypeLimit,
		EncryptedAmount: h.collab.Encrypt(amount),
		EncryptedPrice:  h.collab.Encrypt(price),
		ClientNonce:     nonce,
		Proof:           testutil.ValidProof(),
		PublicInputs:    testutil.PublicInputs(2),
		InstrSequence:   h.nextSeq("market:" + pair),
		Timestamp:       testTime,
	})
	if len(out.Result.Orders) != 1 {
		h.t.Fatalf("place order touched %d orders", len(out.Result.Orders))
	}
	return out, out.Result.Orders[0]
}

// matchedPair places a crossing pair and runs the full match round trip.
// Both orders come back with fill-confirmed ciphertext tags.
func (h *harness) matchedPair(pair string) (*state.Order, *state.Order) {
	h.t.Helper()
	_, buy := h.placeOrder(pair, event.SideBuy, 100, 50_000, 1)
	_, sell := h.placeOrder(pair, event.SideSell, 100, 50_000, 2)

	h.apply(&event.MatchOrders{
		InstructionID: uuid.New(),
		Pair:          pair,
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		InstrSequence: h.nextSeq("market:" + pair),
		Timestamp:     testTime,
	})

	req, ok := h.queue.Last()
	if !ok {
		h.t.Fatal("match produced no computation request")
	}

	h.apply(&event.MatchCallback{
		RequestID:     req.RequestID,
		Pair:          pair,
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		PriceCrossed:  true,
		NewBuyFilled:  h.collab.Encrypt(100),
		NewSellFilled: h.collab.Encrypt(100),
		BuyDone:       true,
		SellDone:      true,
		Success:       true,
		CbSequence:    h.nextSeq("market:" + pair),
		Timestamp:     testTime,
	})
	return buy, sell
}

// ============================================================================
// Test: order matching round trip
// ============================================================================

func TestEngine_MatchRoundTrip(t *testing.T) {
	h := newHarness(t)
	buy, sell := h.matchedPair("BTC-USDC")

	if buy.Status != state.OrderStatusInactive || sell.Status != state.OrderStatusInactive {
		t.Error("fully filled orders should go Inactive")
	}
	if !buy.FillConfirmed() || !sell.FillConfirmed() {
		t.Error("resolved match should leave fill-confirmed tags on both orders")
	}
	if buy.IsMatching || sell.IsMatching {
		t.Error("resolved match should release the busy markers")
	}

	reqs := h.queue.ByOp(mpc.OpFill)
	if len(reqs) != 1 {
		t.Fatalf("expected one fill request, got %d", len(reqs))
	}
	if len(reqs[0].EncryptedInputs) != 6 {
		t.Errorf("fill request carries %d inputs, want 6", len(reqs[0].EncryptedInputs))
	}
}

func TestEngine_MatchRequest_CarriesOnlyCiphertexts(t *testing.T) {
	h := newHarness(t)
	h.matchedPair("BTC-USDC")

	req, _ := h.queue.Last()
	for i, ct := range req.EncryptedInputs {
		if v, tracked := h.collab.Value(ct); tracked && v != 0 && ct[0] != 0x01 {
			t.Errorf("input %d carries a malformed handle", i)
		}
	}
	if req.CallbackSubject != core.CallbackSubject {
		t.Errorf("callback subject = %q", req.CallbackSubject)
	}
}

// ============================================================================
// Test: two-phase settlement
// ============================================================================

func TestEngine_SettlementLifecycle(t *testing.T) {
	h := newHarness(t)
	buy, sell := h.matchedPair("BTC-USDC")

	out := h.apply(&event.InitiateSettlement{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		Method:        "CSPL",
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	sr := out.Result.Settlements[0]
	if sr.Status != state.SettlementStatusPending {
		t.Fatalf("status = %v, want Pending", sr.Status)
	}

	h.apply(&event.RecordTransfer{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		SettlementID:  sr.SettlementID,
		Leg:           event.TransferLegBase,
		TransferID:    uuid.New(),
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	h.apply(&event.RecordTransfer{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		SettlementID:  sr.SettlementID,
		Leg:           event.TransferLegQuote,
		TransferID:    uuid.New(),
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})

	out = h.apply(&event.FinalizeSettlement{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		SettlementID:  sr.SettlementID,
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	if sr.Status != state.SettlementStatusCompleted {
		t.Errorf("status = %v, want Completed", sr.Status)
	}
	if len(out.Result.Orders) != 2 {
		t.Errorf("finalize touched %d orders, want both", len(out.Result.Orders))
	}
}

func TestEngine_UnknownSettlementMethod_Rejected(t *testing.T) {
	h := newHarness(t)
	buy, sell := h.matchedPair("BTC-USDC")

	err := h.engine.ProcessEvent(context.Background(), &event.InitiateSettlement{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		Method:        "carrier-pigeon",
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	if !errors.Is(err, state.ErrUnknownSettlementMethod) {
		t.Errorf("got %v, want ErrUnknownSettlementMethod", err)
	}
}

// ============================================================================
// Test: admission gates
// ============================================================================

func TestEngine_RejectedProof_NoStateCreated(t *testing.T) {
	h := newHarnessWith(t, testutil.DenyVerifier{})

	err := h.engine.ProcessEvent(context.Background(), &event.PlaceOrder{
		InstructionID:   uuid.New(),
		Maker:           uuid.New(),
		Pair:            "BTC-USDC",
		OrderSide:       event.SideBuy,
		EncryptedAmount: h.collab.Encrypt(100),
		EncryptedPrice:  h.collab.Encrypt(50_000),
		ClientNonce:     1,
		Proof:           testutil.ValidProof(),
		PublicInputs:    testutil.PublicInputs(2),
		InstrSequence:   0,
		Timestamp:       testTime,
	})
	if !errors.Is(err, state.ErrEligibilityProofFailed) {
		t.Errorf("got %v, want ErrEligibilityProofFailed", err)
	}
	if h.engine.GetSequence() != 0 {
		t.Error("rejected event must not advance the sequence")
	}
	if len(h.persist) != 0 {
		t.Error("rejected event must not reach persistence")
	}
}

func TestEngine_Paused_RejectsOrders(t *testing.T) {
	h := newHarness(t)
	h.apply(&event.PauseUpdate{
		Paused:    true,
		Sequence:  h.nextSeq("global"),
		Timestamp: testTime.UnixMicro(),
	})

	_, err := processPlace(h, "BTC-USDC", 1)
	if !errors.Is(err, state.ErrExchangePaused) {
		t.Errorf("got %v, want ErrExchangePaused", err)
	}

	h.apply(&event.PauseUpdate{
		Paused:    false,
		Sequence:  h.nextSeq("global"),
		Timestamp: testTime.UnixMicro(),
	})
	if _, err := processPlace(h, "BTC-USDC", 2); err != nil {
		t.Errorf("unpaused exchange should accept orders: %v", err)
	}
}

func processPlace(h *harness, pair string, nonce uint64) (*state.Order, error) {
	evt := &event.PlaceOrder{
		InstructionID:   uuid.New(),
		Maker:           uuid.New(),
		Pair:            pair,
		OrderSide:       event.SideBuy,
		EncryptedAmount: h.collab.Encrypt(100),
		EncryptedPrice:  h.collab.Encrypt(50_000),
		ClientNonce:     nonce,
		Proof:           testutil.ValidProof(),
		PublicInputs:    testutil.PublicInputs(2),
		InstrSequence:   h.nextSeq("market:" + pair),
		Timestamp:       testTime,
	}
	err := h.engine.ProcessEvent(context.Background(), evt)
	if err != nil {
		// The consumed sequence number is gone either way; a real producer
		// burns it too.
		return nil, err
	}
	out := <-h.persist
	return out.Result.Orders[0], nil
}

// ============================================================================
// Test: ordering and dedup
// ============================================================================

func TestEngine_DuplicateInstruction_Ignored(t *testing.T) {
	h := newHarness(t)
	evt := &event.PlaceOrder{
		InstructionID:   uuid.New(),
		Maker:           uuid.New(),
		Pair:            "BTC-USDC",
		OrderSide:       event.SideBuy,
		EncryptedAmount: h.collab.Encrypt(100),
		EncryptedPrice:  h.collab.Encrypt(50_000),
		ClientNonce:     1,
		Proof:           testutil.ValidProof(),
		PublicInputs:    testutil.PublicInputs(2),
		InstrSequence:   0,
		Timestamp:       testTime,
	}
	h.apply(evt)

	if err := h.engine.ProcessEvent(context.Background(), evt); err != nil {
		t.Fatalf("redelivery must be a clean no-op: %v", err)
	}
	if h.engine.GetSequence() != 1 {
		t.Errorf("sequence = %d after redelivery, want 1", h.engine.GetSequence())
	}
	if len(h.persist) != 0 {
		t.Error("redelivered event must not be persisted twice")
	}
}

func TestEngine_SequenceGap_Rejected(t *testing.T) {
	h := newHarness(t)
	err := h.engine.ProcessEvent(context.Background(), &event.PlaceOrder{
		InstructionID:   uuid.New(),
		Maker:           uuid.New(),
		Pair:            "BTC-USDC",
		OrderSide:       event.SideBuy,
		EncryptedAmount: h.collab.Encrypt(100),
		EncryptedPrice:  h.collab.Encrypt(50_000),
		ClientNonce:     1,
		Proof:           testutil.ValidProof(),
		PublicInputs:    testutil.PublicInputs(2),
		InstrSequence:   5,
		Timestamp:       testTime,
	})
	if err == nil {
		t.Fatal("gapped source sequence must be rejected")
	}
}

func TestEngine_OracleGaps_Tolerated(t *testing.T) {
	h := newHarness(t)
	h.apply(&event.OraclePriceUpdate{
		Market:      "BTC-USDC",
		Price:       50_000_000_000,
		Confidence:  10_000_000,
		PublishedAt: testTime.Unix(),
		Sequence:    100,
		Timestamp:   testTime.Unix(),
	})
	// Feed sequence jumps ahead; price partitions accept the gap.
	h.apply(&event.OraclePriceUpdate{
		Market:      "BTC-USDC",
		Price:       50_100_000_000,
		Confidence:  10_000_000,
		PublishedAt: testTime.Unix(),
		Sequence:    250,
		Timestamp:   testTime.Unix(),
	})
	if h.engine.GetSequence() != 2 {
		t.Errorf("sequence = %d, want 2", h.engine.GetSequence())
	}
}

// ============================================================================
// Test: hash chain
// ============================================================================

func TestEngine_HashChain_Links(t *testing.T) {
	h := newHarness(t)
	out1, _ := h.placeOrder("BTC-USDC", event.SideBuy, 100, 50_000, 1)
	out2, _ := h.placeOrder("BTC-USDC", event.SideSell, 100, 50_000, 2)

	if out2.Envelope.PrevHash != out1.Envelope.StateHash {
		t.Error("each envelope's prev hash must be the previous state hash")
	}
	if out1.Envelope.Sequence != 0 || out2.Envelope.Sequence != 1 {
		t.Errorf("sequences = %d, %d", out1.Envelope.Sequence, out2.Envelope.Sequence)
	}
	if h.engine.GetStateHash() != out2.Envelope.StateHash {
		t.Error("chain tip must be the last envelope's state hash")
	}
}

func TestEngine_StoredPayload_RoundTrips(t *testing.T) {
	h := newHarness(t)
	out, order := h.placeOrder("BTC-USDC", event.SideBuy, 100, 50_000, 1)

	var decoded event.PlaceOrder
	if err := json.Unmarshal(out.Envelope.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal stored payload: %v", err)
	}
	if decoded.Maker != order.Maker || decoded.EncryptedAmount != order.EncryptedAmount {
		t.Error("stored payload must reproduce the applied event")
	}
}

// ============================================================================
// Test: outbound privacy
// ============================================================================

// Outbound payloads may carry ids, status tags and hour-bucketed times,
// never amounts, prices or sizes.
func TestEngine_Outbound_NoConfidentialFields(t *testing.T) {
	h := newHarness(t)
	buy, sell := h.matchedPair("BTC-USDC")
	out := h.apply(&event.InitiateSettlement{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		Method:        "ShadowWire",
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})

	forbidden := []string{"amount", "price", "size", "collateral", "payout", "leverage"}
	for _, ob := range out.Result.Outbound {
		raw, err := json.Marshal(ob.Payload)
		if err != nil {
			t.Fatalf("marshal outbound %s: %v", ob.Kind, err)
		}
		lower := strings.ToLower(string(raw))
		for _, word := range forbidden {
			if strings.Contains(lower, word) {
				t.Errorf("outbound %s leaks %q: %s", ob.Kind, word, raw)
			}
		}
	}
}

func TestEngine_Outbound_HourBucketedTimestamps(t *testing.T) {
	h := newHarness(t)
	out, _ := h.placeOrder("BTC-USDC", event.SideBuy, 100, 50_000, 1)

	var placed event.OrderPlaced
	raw, _ := json.Marshal(out.Result.Outbound[0].Payload)
	if err := json.Unmarshal(raw, &placed); err != nil {
		t.Fatalf("unmarshal order_placed: %v", err)
	}
	at := placed.OccurredAt
	if at.Minute() != 0 || at.Second() != 0 || at.Nanosecond() != 0 {
		t.Errorf("occurred_at %v is not hour-bucketed", at)
	}
}

// ============================================================================
// Test: replay mode
// ============================================================================

func TestEngine_Replay_SuppressesSideEffects(t *testing.T) {
	h := newHarness(t)
	h.engine.SetReplaying(true)

	_, buy := h.placeOrder("BTC-USDC", event.SideBuy, 100, 50_000, 1)
	_, sell := h.placeOrder("BTC-USDC", event.SideSell, 100, 50_000, 2)
	h.apply(&event.MatchOrders{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})

	if h.queue.Len() != 0 {
		t.Error("replay must not re-queue computations")
	}
	if len(h.transfers.Calls) != 0 {
		t.Error("replay must not re-move funds")
	}
	if !buy.IsMatching || !sell.IsMatching {
		t.Error("replay must still apply the state transition")
	}
}

// ============================================================================
// Test: position round trip
// ============================================================================

func TestEngine_OpenPosition_ThresholdRoundTrip(t *testing.T) {
	h := newHarness(t)
	trader := uuid.New()
	entry := h.collab.Encrypt(50_000)

	out := h.apply(&event.OpenPosition{
		InstructionID:       uuid.New(),
		Trader:              trader,
		Market:              "BTC-USDC",
		PositionSide:        event.SideBuy,
		Leverage:            10,
		EncryptedSize:       h.collab.Encrypt(2),
		EncryptedEntry:      entry,
		EncryptedCollateral: h.collab.Encrypt(10_000),
		CollateralAmount:    10_000,
		ClientNonce:         1,
		Proof:               testutil.ValidProof(),
		PublicInputs:        testutil.PublicInputs(2),
		InstrSequence:       h.nextSeq("market:BTC-USDC"),
		Timestamp:           testTime,
	})
	pos := out.Result.Positions[0]

	if len(h.transfers.Calls) != 1 {
		t.Fatalf("open moved %d transfers, want 1", len(h.transfers.Calls))
	}
	call := h.transfers.Calls[0]
	if call.From != trader || call.To != transfer.VaultAccount || call.Amount != 10_000 {
		t.Errorf("collateral leg wrong: %+v", call)
	}
	if call.Asset != "USDC" {
		t.Errorf("collateral asset = %q, want USDC", call.Asset)
	}

	reqs := h.queue.ByOp(mpc.OpLiqThreshold)
	if len(reqs) != 1 {
		t.Fatalf("expected one threshold request, got %d", len(reqs))
	}
	if pos.ThresholdVerified {
		t.Error("thresholds must not verify before the callback")
	}

	commitment := state.DeriveThresholdCommitment(entry, 10, 500, event.SideBuy)
	out = h.apply(&event.ThresholdCallback{
		RequestID:         reqs[0].RequestID,
		Market:            "BTC-USDC",
		PositionID:        pos.PositionID,
		EncryptedLiqBelow: h.collab.Encrypt(45_000),
		EncryptedLiqAbove: h.collab.Encrypt(0),
		Commitment:        commitment,
		Success:           true,
		CbSequence:        h.nextSeq("market:BTC-USDC"),
		Timestamp:         testTime,
	})

	pos = out.Result.Positions[0]
	if !pos.ThresholdVerified {
		t.Error("verified callback should flip ThresholdVerified")
	}
	if pos.HasPendingOp() {
		t.Error("callback should clear the pending marker")
	}
}

func TestEngine_ThresholdCallback_WrongCommitment_Rejected(t *testing.T) {
	h := newHarness(t)
	trader := uuid.New()

	out := h.apply(&event.OpenPosition{
		InstructionID:       uuid.New(),
		Trader:              trader,
		Market:              "BTC-USDC",
		PositionSide:        event.SideBuy,
		Leverage:            10,
		EncryptedSize:       h.collab.Encrypt(2),
		EncryptedEntry:      h.collab.Encrypt(50_000),
		EncryptedCollateral: h.collab.Encrypt(10_000),
		CollateralAmount:    10_000,
		ClientNonce:         1,
		Proof:               testutil.ValidProof(),
		PublicInputs:        testutil.PublicInputs(2),
		InstrSequence:       h.nextSeq("market:BTC-USDC"),
		Timestamp:           testTime,
	})
	pos := out.Result.Positions[0]
	req, _ := h.queue.Last()

	err := h.engine.ProcessEvent(context.Background(), &event.ThresholdCallback{
		RequestID:         req.RequestID,
		Market:            "BTC-USDC",
		PositionID:        pos.PositionID,
		EncryptedLiqBelow: h.collab.Encrypt(45_000),
		EncryptedLiqAbove: h.collab.Encrypt(0),
		Commitment:        [32]byte{0xBA, 0xD0},
		Success:           true,
		CbSequence:        h.nextSeq("market:BTC-USDC"),
		Timestamp:         testTime,
	})
	if !errors.Is(err, state.ErrThresholdNotVerified) {
		t.Errorf("got %v, want ErrThresholdNotVerified", err)
	}
}

// ============================================================================
// Test: snapshot and restore
// ============================================================================

func TestEngine_SnapshotRestore_ReproducesChain(t *testing.T) {
	h := newHarness(t)
	_, buy := h.placeOrder("BTC-USDC", event.SideBuy, 100, 50_000, 1)
	_, sell := h.placeOrder("BTC-USDC", event.SideSell, 100, 50_000, 2)
	h.apply(&event.MatchOrders{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})

	snap := h.engine.CreateSnapshotState()
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var restoredSnap core.SnapshotState
	if err := json.Unmarshal(raw, &restoredSnap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	h2 := newHarness(t)
	h2.engine.RestoreFromSnapshot(&restoredSnap)

	if h2.engine.GetSequence() != h.engine.GetSequence() {
		t.Errorf("restored sequence = %d, want %d", h2.engine.GetSequence(), h.engine.GetSequence())
	}
	if h2.engine.GetStateHash() != h.engine.GetStateHash() {
		t.Fatal("restored chain tip differs")
	}

	// Applying the same callback on both engines must extend the chain to
	// the same hash.
	req, _ := h.queue.Last()
	cb := event.MatchCallback{
		RequestID:     req.RequestID,
		Pair:          "BTC-USDC",
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		PriceCrossed:  true,
		NewBuyFilled:  h.collab.Encrypt(100),
		NewSellFilled: h.collab.Encrypt(100),
		BuyDone:       true,
		SellDone:      true,
		Success:       true,
		CbSequence:    h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	}
	cb2 := cb
	h.apply(&cb)
	h2.engine.SetReplaying(true)
	h2.apply(&cb2)

	if h.engine.GetStateHash() != h2.engine.GetStateHash() {
		t.Error("snapshot restore diverged from the live engine")
	}
}

// ============================================================================
// Test: queue failure recovery
// ============================================================================

// A request that never reaches the collaborator queue gets no callback.
// Every handler that set a pending marker before queueing must unwind it
// on the queue error or the entity stays locked forever.

func TestEngine_QueueFailure_MatchRetrySucceeds(t *testing.T) {
	h := newHarness(t)
	_, buy := h.placeOrder("BTC-USDC", event.SideBuy, 100, 50_000, 1)
	_, sell := h.placeOrder("BTC-USDC", event.SideSell, 100, 50_000, 2)

	h.queue.Err = errors.New("broker unavailable")
	err := h.engine.ProcessEvent(context.Background(), &event.MatchOrders{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	if err == nil {
		t.Fatal("queue failure must surface from the match handler")
	}
	if buy.IsMatching || sell.IsMatching {
		t.Fatal("failed queue send must release both busy markers")
	}

	h.queue.Err = nil
	h.apply(&event.MatchOrders{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	if !buy.IsMatching || !sell.IsMatching {
		t.Error("retry after queue recovery should start a fresh cycle")
	}
	if h.queue.Len() != 1 {
		t.Errorf("queue holds %d requests, want 1", h.queue.Len())
	}
}

func TestEngine_QueueFailure_OpenPositionRefundsCollateral(t *testing.T) {
	h := newHarness(t)
	trader := uuid.New()
	h.queue.Err = errors.New("broker unavailable")

	err := h.engine.ProcessEvent(context.Background(), &event.OpenPosition{
		InstructionID:       uuid.New(),
		Trader:              trader,
		Market:              "BTC-USDC",
		PositionSide:        event.SideBuy,
		Leverage:            10,
		EncryptedSize:       h.collab.Encrypt(2),
		EncryptedEntry:      h.collab.Encrypt(50_000),
		EncryptedCollateral: h.collab.Encrypt(10_000),
		CollateralAmount:    10_000,
		ClientNonce:         1,
		Proof:               testutil.ValidProof(),
		PublicInputs:        testutil.PublicInputs(2),
		InstrSequence:       h.nextSeq("market:BTC-USDC"),
		Timestamp:           testTime,
	})
	if err == nil {
		t.Fatal("queue failure must abort the open")
	}

	if len(h.transfers.Calls) != 2 {
		t.Fatalf("aborted open moved %d transfers, want collateral in and refund out", len(h.transfers.Calls))
	}
	refund := h.transfers.Calls[1]
	if refund.From != transfer.VaultAccount || refund.To != trader || refund.Amount != 10_000 {
		t.Errorf("refund leg wrong: %+v", refund)
	}
	if len(h.engine.CreateSnapshotState().Positions) != 0 {
		t.Error("aborted open must not leave a position record")
	}
}

func TestEngine_QueueFailure_AddMarginRefundsAndRetries(t *testing.T) {
	h := newHarness(t)
	trader := uuid.New()
	pos := h.verifiedPosition(trader, "BTC-USDC", event.SideBuy, 1)

	h.queue.Err = errors.New("broker unavailable")
	err := h.engine.ProcessEvent(context.Background(), &event.AddMargin{
		InstructionID: uuid.New(),
		Trader:        trader,
		Market:        "BTC-USDC",
		PositionID:    pos.PositionID,
		Amount:        5_000,
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	if err == nil {
		t.Fatal("queue failure must surface from the margin handler")
	}
	if pos.HasPendingOp() {
		t.Fatal("failed queue send must release the pending marker")
	}
	refund := h.transfers.Calls[len(h.transfers.Calls)-1]
	if refund.From != transfer.VaultAccount || refund.To != trader || refund.Amount != 5_000 {
		t.Errorf("refund leg wrong: %+v", refund)
	}

	h.queue.Err = nil
	h.apply(&event.AddMargin{
		InstructionID: uuid.New(),
		Trader:        trader,
		Market:        "BTC-USDC",
		PositionID:    pos.PositionID,
		Amount:        5_000,
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	if !pos.HasPendingOp() {
		t.Error("retry after queue recovery should take the pending slot")
	}
}

// ============================================================================
// Test: leverage gate
// ============================================================================

func TestEngine_OpenPosition_LeverageAboveMax_Rejected(t *testing.T) {
	h := newHarness(t)

	err := h.engine.ProcessEvent(context.Background(), &event.OpenPosition{
		InstructionID:       uuid.New(),
		Trader:              uuid.New(),
		Market:              "BTC-USDC",
		PositionSide:        event.SideBuy,
		Leverage:            25,
		EncryptedSize:       h.collab.Encrypt(2),
		EncryptedEntry:      h.collab.Encrypt(50_000),
		EncryptedCollateral: h.collab.Encrypt(10_000),
		CollateralAmount:    10_000,
		ClientNonce:         1,
		Proof:               testutil.ValidProof(),
		PublicInputs:        testutil.PublicInputs(2),
		InstrSequence:       h.nextSeq("market:BTC-USDC"),
		Timestamp:           testTime,
	})
	if !errors.Is(err, state.ErrInvalidLeverage) {
		t.Errorf("got %v, want ErrInvalidLeverage", err)
	}
	if len(h.transfers.Calls) != 0 {
		t.Error("rejected open must not move collateral")
	}
	if len(h.engine.CreateSnapshotState().Positions) != 0 {
		t.Error("rejected open must not create a position")
	}
}

// ============================================================================
// Test: settlement fees
// ============================================================================

// A quote leg whose fill terms the crank revealed from a public rail
// carries a plaintext fee breakdown; sealed fills never do.
func TestEngine_SettlementFees_RevealedQuoteLeg(t *testing.T) {
	h := newHarness(t)
	buy, sell := h.matchedPair("BTC-USDC")

	out := h.apply(&event.InitiateSettlement{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		Method:        "ShadowWire",
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	sr := out.Result.Settlements[0]

	h.apply(&event.RecordTransfer{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		SettlementID:  sr.SettlementID,
		Leg:           event.TransferLegBase,
		TransferID:    uuid.New(),
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	if sr.FeesComputed {
		t.Fatal("base leg must not compute fees")
	}

	out = h.apply(&event.RecordTransfer{
		InstructionID:     uuid.New(),
		Pair:              "BTC-USDC",
		SettlementID:      sr.SettlementID,
		Leg:               event.TransferLegQuote,
		TransferID:        uuid.New(),
		RevealedFillQty:   2_000_000,
		RevealedFillPrice: 5_000_000,
		InstrSequence:     h.nextSeq("market:BTC-USDC"),
		Timestamp:         testTime,
	})

	if !sr.FeesComputed {
		t.Fatal("revealed quote leg must compute fees")
	}
	// 2.0 base at 50000.00: notional 100_000 quote units, 10bps taker,
	// 25bps relayer fee.
	if sr.Fees.Notional != 100_000_000_000 {
		t.Errorf("notional = %d", sr.Fees.Notional)
	}
	if sr.Fees.TakerFee != 100_000_000 || sr.Fees.SettlementFee != 250_000_000 {
		t.Errorf("fees = %d / %d", sr.Fees.TakerFee, sr.Fees.SettlementFee)
	}
	if sr.Fees.NetToSeller != 99_650_000_000 {
		t.Errorf("net to seller = %d", sr.Fees.NetToSeller)
	}

	var fees *event.SettlementFeesComputed
	for _, ob := range out.Result.Outbound {
		if f, ok := ob.Payload.(*event.SettlementFeesComputed); ok {
			fees = f
		}
	}
	if fees == nil {
		t.Fatal("revealed quote leg must emit the fee breakdown")
	}
	if fees.FeeRecipient != "relayer" {
		t.Errorf("fee recipient = %q, want relayer for a relayed method", fees.FeeRecipient)
	}
	if fees.NetToSeller != sr.Fees.NetToSeller {
		t.Error("outbound breakdown must mirror the settlement record")
	}
}

func TestEngine_SettlementFees_SealedQuoteLeg_None(t *testing.T) {
	h := newHarness(t)
	buy, sell := h.matchedPair("BTC-USDC")

	out := h.apply(&event.InitiateSettlement{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		BuyOrderID:    buy.OrderID,
		SellOrderID:   sell.OrderID,
		Method:        "CSPL",
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	sr := out.Result.Settlements[0]

	h.apply(&event.RecordTransfer{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		SettlementID:  sr.SettlementID,
		Leg:           event.TransferLegBase,
		TransferID:    uuid.New(),
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	out = h.apply(&event.RecordTransfer{
		InstructionID: uuid.New(),
		Pair:          "BTC-USDC",
		SettlementID:  sr.SettlementID,
		Leg:           event.TransferLegQuote,
		TransferID:    uuid.New(),
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})

	if sr.FeesComputed {
		t.Error("sealed fill must not compute fees")
	}
	for _, ob := range out.Result.Outbound {
		if _, ok := ob.Payload.(*event.SettlementFeesComputed); ok {
			t.Error("sealed fill must not emit a fee breakdown")
		}
	}
}
