package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/mpc"
	"ShadowSettle/internal/state"
	"ShadowSettle/internal/testutil"
	"ShadowSettle/internal/transfer"
)

// verifiedPosition opens a position for trader and completes the initial
// threshold round trip, leaving it Open with verified thresholds.
func (h *harness) verifiedPosition(trader uuid.UUID, market string, side event.Side, nonce uint64) *state.ConfidentialPosition {
	h.t.Helper()
	entry := h.collab.Encrypt(50_000)
	out := h.apply(&event.OpenPosition{
		InstructionID:       uuid.New(),
		Trader:              trader,
		Market:              market,
		PositionSide:        side,
		Leverage:            10,
		EncryptedSize:       h.collab.Encrypt(2),
		EncryptedEntry:      entry,
		EncryptedCollateral: h.collab.Encrypt(10_000),
		CollateralAmount:    10_000,
		ClientNonce:         nonce,
		Proof:               testutil.ValidProof(),
		PublicInputs:        testutil.PublicInputs(2),
		InstrSequence:       h.nextSeq("market:" + market),
		Timestamp:           testTime,
	})
	pos := out.Result.Positions[0]

	req, ok := h.queue.Last()
	if !ok {
		h.t.Fatal("open produced no threshold request")
	}
	h.apply(&event.ThresholdCallback{
		RequestID:         req.RequestID,
		Market:            market,
		PositionID:        pos.PositionID,
		EncryptedLiqBelow: h.collab.Encrypt(45_000),
		EncryptedLiqAbove: h.collab.Encrypt(55_000),
		Commitment:        state.DeriveThresholdCommitment(entry, 10, 500, side),
		Success:           true,
		CbSequence:        h.nextSeq("market:" + market),
		Timestamp:         testTime,
	})
	return pos
}

// checkBatch submits a batch eligibility check and returns the captured
// computation request.
func (h *harness) checkBatch(market string, ids ...[32]byte) mpc.Request {
	h.t.Helper()
	h.apply(&event.CheckLiquidationBatch{
		InstructionID: uuid.New(),
		Market:        market,
		PositionIDs:   ids,
		InstrSequence: h.nextSeq("market:" + market),
		Timestamp:     testTime,
	})
	reqs := h.queue.ByOp(mpc.OpBatchLiqCheck)
	if len(reqs) == 0 {
		h.t.Fatal("batch check produced no computation request")
	}
	return reqs[len(reqs)-1]
}

// ============================================================================
// Test: liquidation batch round trip
// ============================================================================

func TestEngine_LiquidationBatch_MarksMembersPending(t *testing.T) {
	h := newHarness(t)
	pos := h.verifiedPosition(uuid.New(), "BTC-USDC", event.SideBuy, 1)

	h.checkBatch("BTC-USDC", pos.PositionID)

	if pos.Status != state.PositionStatusPendingLiquidationCheck {
		t.Errorf("status = %v, want PendingLiquidationCheck", pos.Status)
	}
	if !pos.HasPendingOp() {
		t.Error("batch member must carry the batch request id as its pending marker")
	}
}

func TestEngine_LiquidationRoundTrip_SplitsPayout(t *testing.T) {
	h := newHarness(t)
	trader := uuid.New()
	pos := h.verifiedPosition(trader, "BTC-USDC", event.SideBuy, 1)

	req := h.checkBatch("BTC-USDC", pos.PositionID)
	h.apply(&event.LiquidationBatchCallback{
		RequestID:  req.RequestID,
		Market:     "BTC-USDC",
		Results:    []bool{true},
		Priorities: []int64{7},
		Success:    true,
		CbSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:  testTime,
	})
	if !pos.IsLiquidatable || pos.Status != state.PositionStatusOpen {
		t.Fatalf("verdict not applied: liquidatable=%v status=%v", pos.IsLiquidatable, pos.Status)
	}
	if pos.HasPendingOp() {
		t.Fatal("batch callback must release the pending marker")
	}

	liquidator := uuid.New()
	h.apply(&event.LiquidatePosition{
		InstructionID: uuid.New(),
		Liquidator:    liquidator,
		Market:        "BTC-USDC",
		PositionID:    pos.PositionID,
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime,
	})
	closeReq := h.queue.ByOp(mpc.OpPnL)
	if len(closeReq) != 1 {
		t.Fatalf("expected one close request, got %d", len(closeReq))
	}

	before := len(h.transfers.Calls)
	h.apply(&event.CloseCallback{
		RequestID:           closeReq[0].RequestID,
		Market:              "BTC-USDC",
		PositionID:          pos.PositionID,
		EncryptedSize:       h.collab.Encrypt(0),
		EncryptedCollateral: h.collab.Encrypt(0),
		RevealedPayout:      10_000_000_000,
		RevealedNotional:    100_000_000_000,
		Success:             true,
		CbSequence:          h.nextSeq("market:BTC-USDC"),
		Timestamp:           testTime,
	})

	if pos.Status != state.PositionStatusLiquidated {
		t.Errorf("status = %v, want Liquidated", pos.Status)
	}
	calls := h.transfers.Calls[before:]
	if len(calls) != 3 {
		t.Fatalf("split moved %d transfers, want 3", len(calls))
	}
	// 100bps bonus on the notional, 5000bps of the remainder to the fund,
	// the rest back to the holder.
	if calls[0].To != liquidator || calls[0].Amount != 1_000_000_000 {
		t.Errorf("liquidator leg wrong: %+v", calls[0])
	}
	if calls[1].To != transfer.InsuranceAccount || calls[1].Amount != 4_500_000_000 {
		t.Errorf("insurance leg wrong: %+v", calls[1])
	}
	if calls[2].To != trader || calls[2].Amount != 4_500_000_000 {
		t.Errorf("holder leg wrong: %+v", calls[2])
	}
}

// ============================================================================
// Test: batch failure and recovery
// ============================================================================

// A failed batch circuit must hand the reverted rows to persistence along
// with the dropped batch.
func TestEngine_BatchCallbackFailure_RevertsAndPersists(t *testing.T) {
	h := newHarness(t)
	pos := h.verifiedPosition(uuid.New(), "BTC-USDC", event.SideBuy, 1)
	req := h.checkBatch("BTC-USDC", pos.PositionID)

	out := h.apply(&event.LiquidationBatchCallback{
		RequestID:  req.RequestID,
		Market:     "BTC-USDC",
		Success:    false,
		CbSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:  testTime,
	})

	if pos.Status != state.PositionStatusOpen || pos.HasPendingOp() {
		t.Errorf("failed batch must release its members: status=%v pending=%v", pos.Status, pos.HasPendingOp())
	}
	if len(out.Result.Positions) != 1 || out.Result.Positions[0].PositionID != pos.PositionID {
		t.Error("reverted position must ride the persisted result")
	}
	if len(out.Result.Batches) != 1 {
		t.Error("dropped batch must ride the persisted result")
	}
}

// A batch whose callback never lands leaves its members force-clearable
// once the pending marker goes stale.
func TestEngine_BatchCheckTimeout_ForceClearRecovers(t *testing.T) {
	h := newHarness(t)
	pos := h.verifiedPosition(uuid.New(), "BTC-USDC", event.SideBuy, 1)
	req := h.checkBatch("BTC-USDC", pos.PositionID)

	h.apply(&event.ForceClearPosition{
		InstructionID: uuid.New(),
		Market:        "BTC-USDC",
		PositionID:    pos.PositionID,
		InstrSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:     testTime.Add(time.Hour),
	})
	if pos.Status != state.PositionStatusOpen || pos.HasPendingOp() {
		t.Fatalf("force-clear must reopen the member: status=%v pending=%v", pos.Status, pos.HasPendingOp())
	}

	// The verdict arriving after the clear is stale for this position.
	h.apply(&event.LiquidationBatchCallback{
		RequestID:  req.RequestID,
		Market:     "BTC-USDC",
		Results:    []bool{true},
		Priorities: []int64{3},
		Success:    true,
		CbSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:  testTime.Add(time.Hour),
	})
	if pos.IsLiquidatable {
		t.Error("late batch verdict must not apply to a force-cleared position")
	}
}

// ============================================================================
// Test: auto-deleverage
// ============================================================================

func TestEngine_AutoDeleverage_AbsorbsDeficit(t *testing.T) {
	h := newHarness(t)
	bankrupt := h.verifiedPosition(uuid.New(), "BTC-USDC", event.SideBuy, 1)
	target := h.verifiedPosition(uuid.New(), "BTC-USDC", event.SideSell, 2)

	// The target earns its deleverage priority through the batch engine.
	req := h.checkBatch("BTC-USDC", target.PositionID)
	h.apply(&event.LiquidationBatchCallback{
		RequestID:  req.RequestID,
		Market:     "BTC-USDC",
		Results:    []bool{false},
		Priorities: []int64{5},
		Success:    true,
		CbSequence: h.nextSeq("market:BTC-USDC"),
		Timestamp:  testTime,
	})
	if target.ADLPriority != 5 {
		t.Fatalf("priority = %d, want 5", target.ADLPriority)
	}

	h.apply(&event.AutoDeleverage{
		InstructionID:    uuid.New(),
		Market:           "BTC-USDC",
		BankruptPosition: bankrupt.PositionID,
		TargetPosition:   target.PositionID,
		InstrSequence:    h.nextSeq("market:BTC-USDC"),
		Timestamp:        testTime,
	})

	if bankrupt.Status != state.PositionStatusAutoDeleveraged {
		t.Errorf("bankrupt status = %v, want AutoDeleveraged", bankrupt.Status)
	}
	subs := h.queue.ByOp(mpc.OpSub)
	if len(subs) != 1 {
		t.Fatalf("expected one collateral adjustment request, got %d", len(subs))
	}
	// The absorbed amount is the fund's full deficit against its trigger.
	if subs[0].PlaintextInputs[0] != 1_000_000_000 {
		t.Errorf("absorbed amount = %d, want 1_000_000_000", subs[0].PlaintextInputs[0])
	}

	// The confirmed removal routes to the fund with no payout transfer.
	before := len(h.transfers.Calls)
	h.apply(&event.MarginCallback{
		RequestID:           subs[0].RequestID,
		Market:              "BTC-USDC",
		PositionID:          target.PositionID,
		EncryptedCollateral: h.collab.Encrypt(9_000),
		EncryptedLiqBelow:   h.collab.Encrypt(45_000),
		EncryptedLiqAbove:   h.collab.Encrypt(55_000),
		Commitment:          state.DeriveThresholdCommitment(target.EncryptedEntryPrice, 10, 500, event.SideSell),
		Success:             true,
		CbSequence:          h.nextSeq("market:BTC-USDC"),
		Timestamp:           testTime,
	})
	if len(h.transfers.Calls) != before {
		t.Error("fund-routed removal must not move plaintext funds")
	}
	if target.HasPendingOp() {
		t.Error("margin callback must release the target")
	}

	// The fund is back at its trigger; the deleverage window is closed.
	err := h.engine.ProcessEvent(context.Background(), &event.AutoDeleverage{
		InstructionID:    uuid.New(),
		Market:           "BTC-USDC",
		BankruptPosition: bankrupt.PositionID,
		TargetPosition:   target.PositionID,
		InstrSequence:    h.nextSeq("market:BTC-USDC"),
		Timestamp:        testTime,
	})
	if !errors.Is(err, state.ErrInsuranceFundHealthy) {
		t.Errorf("got %v, want ErrInsuranceFundHealthy", err)
	}
}
