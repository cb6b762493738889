package state_test

import (
	"testing"

	"github.com/google/uuid"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/mpc"
	"ShadowSettle/internal/state"
)

func openPosition(nonce uint64) *state.ConfidentialPosition {
	trader := uuid.New()
	return &state.ConfidentialPosition{
		PositionID: state.DerivePositionID(trader, "BTC-USDC", nonce),
		Trader:     trader,
		Market:     "BTC-USDC",
		Side:       event.SideBuy,
		Leverage:   10,
		Status:     state.PositionStatusOpen,
		CreatedAt:  testNow,
	}
}

// ============================================================================
// Test: pending operation discipline
// ============================================================================

func TestBeginOp_SecondOp_Fails(t *testing.T) {
	pos := openPosition(1)
	first := pos.NextRequestID()
	if err := pos.BeginOp(first, testNow); err != nil {
		t.Fatalf("first op: %v", err)
	}

	if err := pos.BeginOp(pos.NextRequestID(), testNow); err != state.ErrOperationPending {
		t.Errorf("got %v, want ErrOperationPending", err)
	}
	if !pos.PendingMPCRequest.Matches(first) {
		t.Error("rejected second op must not disturb the stored request id")
	}
}

func TestClearOp_ResetsAllMarkers(t *testing.T) {
	pos := openPosition(1)
	pos.BeginOp(pos.NextRequestID(), testNow)
	pos.PendingMargin = state.PendingMargin{Amount: 500, IsAdd: true}
	pos.PendingFundingDelta = 42

	pos.ClearOp()

	if pos.HasPendingOp() {
		t.Error("ClearOp should release the pending marker")
	}
	if pos.PendingMargin.Amount != 0 || pos.PendingFundingDelta != 0 || pos.PendingSince != 0 {
		t.Error("ClearOp should reset every pending sub-field")
	}
}

func TestPendingStale_TimeoutBoundary(t *testing.T) {
	pos := openPosition(1)
	pos.BeginOp(pos.NextRequestID(), testNow)

	if pos.PendingStale(testNow + state.PositionPendingTimeoutSeconds - 1) {
		t.Error("marker one second under the timeout is not stale")
	}
	if !pos.PendingStale(testNow + state.PositionPendingTimeoutSeconds) {
		t.Error("marker at the timeout boundary is stale")
	}
}

func TestPendingStale_IdlePosition_NeverStale(t *testing.T) {
	pos := openPosition(1)
	if pos.PendingStale(testNow + 1_000_000) {
		t.Error("idle position has nothing to force-clear")
	}
}

// ============================================================================
// Test: callback correlation
// ============================================================================

func TestVerifyCallback_ZeroStoredID_NeverMatches(t *testing.T) {
	pos := openPosition(1)

	if err := pos.VerifyCallback(mpc.RequestID{}); err != state.ErrInvalidMPCRequest {
		t.Errorf("got %v, want ErrInvalidMPCRequest", err)
	}
}

func TestVerifyCallback_WrongID_Rejected(t *testing.T) {
	pos := openPosition(1)
	pos.BeginOp(pos.NextRequestID(), testNow)

	other := mpc.NewRequestID(pos.PositionID, 999)
	if err := pos.VerifyCallback(other); err != state.ErrInvalidMPCRequest {
		t.Errorf("got %v, want ErrInvalidMPCRequest", err)
	}
}

func TestNextRequestID_Monotonic(t *testing.T) {
	pos := openPosition(1)
	a := pos.NextRequestID()
	b := pos.NextRequestID()
	if a.Matches(b) {
		t.Error("successive request ids must differ")
	}
}

// ============================================================================
// Test: threshold staleness
// ============================================================================

func TestMarkThresholdsStale_ClearsAdvisoryState(t *testing.T) {
	pos := openPosition(1)
	pos.ThresholdVerified = true
	pos.IsLiquidatable = true
	pos.ADLPriority = 7

	pos.MarkThresholdsStale()

	if pos.ThresholdVerified || pos.IsLiquidatable || pos.ADLPriority != 0 {
		t.Error("stale thresholds must clear the verified flag and cached verdicts")
	}
}

func TestDeriveThresholdCommitment_BindsAllInputs(t *testing.T) {
	var price mpc.Ciphertext
	price[0] = 0x01
	price[1] = 0x42

	base := state.DeriveThresholdCommitment(price, 10, 500, event.SideBuy)

	if base == state.DeriveThresholdCommitment(price, 11, 500, event.SideBuy) {
		t.Error("leverage change must change the commitment")
	}
	if base == state.DeriveThresholdCommitment(price, 10, 600, event.SideBuy) {
		t.Error("maintenance margin change must change the commitment")
	}
	if base == state.DeriveThresholdCommitment(price, 10, 500, event.SideSell) {
		t.Error("side change must change the commitment")
	}
	if base != state.DeriveThresholdCommitment(price, 10, 500, event.SideBuy) {
		t.Error("identical inputs must reproduce the commitment")
	}
}

// ============================================================================
// Test: lifecycle transitions
// ============================================================================

func TestPositionStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to state.PositionStatus
		want     bool
	}{
		{state.PositionStatusOpen, state.PositionStatusClosed, true},
		{state.PositionStatusOpen, state.PositionStatusPendingLiquidationCheck, true},
		{state.PositionStatusOpen, state.PositionStatusAutoDeleveraged, true},
		{state.PositionStatusPendingLiquidationCheck, state.PositionStatusOpen, true},
		{state.PositionStatusPendingLiquidationCheck, state.PositionStatusLiquidated, true},
		{state.PositionStatusPendingLiquidationCheck, state.PositionStatusClosed, false},
		{state.PositionStatusClosed, state.PositionStatusOpen, false},
		{state.PositionStatusLiquidated, state.PositionStatusOpen, false},
		{state.PositionStatusAutoDeleveraged, state.PositionStatusLiquidated, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%v -> %v = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

// ============================================================================
// Test: manager bookkeeping
// ============================================================================

func TestPositionCreate_DuplicateID_Fails(t *testing.T) {
	pm := state.NewPositionManager()
	pos := openPosition(1)
	if err := pm.Create(pos); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := *pos
	if err := pm.Create(&dup); err != state.ErrPositionExists {
		t.Errorf("got %v, want ErrPositionExists", err)
	}
}

func TestOpenListed_TerminalExcluded(t *testing.T) {
	pm := state.NewPositionManager()
	pos := openPosition(1)
	pm.Create(pos)

	if !pm.OpenListed(pos.PositionID) {
		t.Error("open position should be listed")
	}
	pos.Status = state.PositionStatusLiquidated
	if pm.OpenListed(pos.PositionID) {
		t.Error("terminal position should not be listed")
	}
}

func TestDerivePositionID_Deterministic(t *testing.T) {
	trader := uuid.New()
	a := state.DerivePositionID(trader, "ETH-USDC", 7)
	b := state.DerivePositionID(trader, "ETH-USDC", 7)
	if a != b {
		t.Error("identical inputs must derive the same position id")
	}
	if a == state.DerivePositionID(trader, "ETH-USDC", 8) {
		t.Error("different nonces must derive different position ids")
	}
}
