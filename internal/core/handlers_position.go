package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/mpc"
	"ShadowSettle/internal/state"
	"ShadowSettle/internal/transfer"
	"ShadowSettle/internal/zk"
)

// ============================================================================
// Position Handlers
// ============================================================================

// Every position mutation follows the same shape: validate against public
// state, set the pending marker, queue the computation, apply the result
// in the callback handler. Exactly one operation may be in flight per
// position; everything else fails fast with ErrOperationPending.

// handleOpenPosition creates a confidential position. Collateral moves
// synchronously in plaintext, the only plaintext trace a position leaves.
// Liquidation thresholds start zeroed and unverified until the initial
// threshold callback lands.
func (e *Engine) handleOpenPosition(ctx context.Context, ev *event.OpenPosition) (*Result, error) {
	if e.markets.Paused() {
		return nil, state.ErrExchangePaused
	}
	ms, ok := e.markets.Get(ev.Market)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownMarket, ev.Market)
	}
	if ev.PositionSide != event.SideBuy && ev.PositionSide != event.SideSell {
		return nil, fmt.Errorf("invalid position side: %d", ev.PositionSide)
	}
	if ev.Leverage == 0 || ev.Leverage > ms.Params.MaxLeverage {
		return nil, fmt.Errorf("%w: %d exceeds max %d", state.ErrInvalidLeverage, ev.Leverage, ms.Params.MaxLeverage)
	}
	if ev.CollateralAmount <= 0 {
		return nil, fmt.Errorf("collateral must be positive: %d", ev.CollateralAmount)
	}

	if err := zk.ValidateEnvelope(ev.Proof, ev.PublicInputs); err != nil {
		return nil, err
	}
	ok, err := e.verifier.Verify(ev.Proof, ev.PublicInputs)
	if err != nil {
		return nil, fmt.Errorf("verify eligibility: %w", err)
	}
	if !ok {
		return nil, state.ErrEligibilityProofFailed
	}

	now := ev.Timestamp
	pos := &state.ConfidentialPosition{
		PositionID:             state.DerivePositionID(ev.Trader, ev.Market, ev.ClientNonce),
		Trader:                 ev.Trader,
		Market:                 ev.Market,
		Side:                   ev.PositionSide,
		Leverage:               ev.Leverage,
		Status:                 state.PositionStatusOpen,
		EncryptedSize:          ev.EncryptedSize,
		EncryptedEntryPrice:    ev.EncryptedEntry,
		EncryptedCollateral:    ev.EncryptedCollateral,
		EncryptedRealizedPnL:   mpc.Zero(),
		EntryCumulativeFunding: ms.CumulativeFunding(sideSignOf(ev.PositionSide)),
		CreatedAt:              now.Unix(),
	}
	if err := e.positions.Create(pos); err != nil {
		return nil, err
	}

	// Margin in before anything else; a transfer failure aborts the open
	// with the position record discarded.
	if _, err := e.moveFunds(ctx, ev.Trader, transfer.VaultAccount, quoteAsset(ev.Market), ev.CollateralAmount); err != nil {
		e.positions.Remove(pos.PositionID)
		return nil, fmt.Errorf("collateral transfer: %w", err)
	}

	reqID := pos.NextRequestID()
	if err := pos.BeginOp(reqID, now.Unix()); err != nil {
		return nil, err
	}
	if err := e.queueMPC(ctx, mpc.Request{
		RequestID:       reqID,
		Op:              mpc.OpLiqThreshold,
		EncryptedInputs: []mpc.Ciphertext{pos.EncryptedEntryPrice},
		PlaintextInputs: []int64{int64(pos.Leverage), ms.Params.MaintenanceMarginBps, pos.SideSign()},
		CallbackSubject: CallbackSubject,
	}); err != nil {
		// No threshold callback will ever arrive for this id. Abort the
		// open entirely: discard the record and send the collateral back.
		e.positions.Remove(pos.PositionID)
		if _, rerr := e.moveFunds(ctx, transfer.VaultAccount, ev.Trader, quoteAsset(ev.Market), ev.CollateralAmount); rerr != nil {
			return nil, fmt.Errorf("queue threshold request: %v, collateral refund: %w", err, rerr)
		}
		return nil, err
	}

	result := &Result{}
	result.touchPosition(pos)
	result.emit("position_opened", &event.PositionOpened{
		PositionID: event.HexID(pos.PositionID),
		Trader:     pos.Trader.String(),
		Market:     pos.Market,
		Side:       pos.Side.String(),
		OccurredAt: event.CoarseTime(now),
	})
	result.emit("awaiting_verification", &event.AwaitingVerification{
		PositionID: event.HexID(pos.PositionID),
		Market:     pos.Market,
		RequestID:  reqID.String(),
		OccurredAt: event.CoarseTime(now),
	})
	return result, nil
}

// handleThresholdCallback installs freshly computed liquidation
// thresholds. The commitment must reproduce from the position's own
// parameters or the thresholds are refused.
func (e *Engine) handleThresholdCallback(ev *event.ThresholdCallback) (*Result, error) {
	pos, ok := e.positions.Get(ev.PositionID)
	if !ok {
		return nil, state.ErrPositionNotOpen
	}
	if err := pos.VerifyCallback(ev.RequestID); err != nil {
		return nil, err
	}

	result := &Result{}
	if !ev.Success {
		pos.ClearOp()
		result.touchPosition(pos)
		return result, nil
	}

	ms, ok := e.markets.Get(pos.Market)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownMarket, pos.Market)
	}
	expected := state.DeriveThresholdCommitment(pos.EncryptedEntryPrice, pos.Leverage, ms.Params.MaintenanceMarginBps, pos.Side)
	if ev.Commitment != expected {
		return nil, state.ErrThresholdNotVerified
	}

	pos.EncryptedLiqBelow = ev.EncryptedLiqBelow
	pos.EncryptedLiqAbove = ev.EncryptedLiqAbove
	pos.ThresholdCommitment = ev.Commitment
	pos.ThresholdVerified = true
	pos.ClearOp()

	result.touchPosition(pos)
	result.emit("position_status", &event.PositionStatusChanged{
		PositionID: event.HexID(pos.PositionID),
		Market:     pos.Market,
		Status:     "Verified",
		OccurredAt: event.CoarseTime(ev.Timestamp),
	})
	return result, nil
}

func (e *Engine) handleAddMargin(ctx context.Context, ev *event.AddMargin) (*Result, error) {
	pos, err := e.openPositionFor(ev.PositionID, ev.Trader)
	if err != nil {
		return nil, err
	}
	if ev.Amount <= 0 {
		return nil, fmt.Errorf("margin amount must be positive: %d", ev.Amount)
	}

	reqID := pos.NextRequestID()
	if err := pos.BeginOp(reqID, ev.Timestamp.Unix()); err != nil {
		return nil, err
	}
	pos.PendingMargin = state.PendingMargin{Amount: ev.Amount, IsAdd: true}

	if _, err := e.moveFunds(ctx, ev.Trader, transfer.VaultAccount, quoteAsset(pos.Market), ev.Amount); err != nil {
		pos.ClearOp()
		return nil, fmt.Errorf("margin transfer: %w", err)
	}

	if err := e.queueMPCMargin(ctx, pos, reqID, mpc.OpAdd, ev.Amount); err != nil {
		pos.ClearOp()
		if _, rerr := e.moveFunds(ctx, transfer.VaultAccount, ev.Trader, quoteAsset(pos.Market), ev.Amount); rerr != nil {
			return nil, fmt.Errorf("queue margin request: %v, margin refund: %w", err, rerr)
		}
		return nil, err
	}

	result := &Result{}
	result.touchPosition(pos)
	return result, nil
}

// handleRemoveMargin queues a collateral decrease. Two public gates run
// before the request leaves: the thresholds must be verified, and the
// cached batch-engine verdict must not flag the position. The real
// under-margin check happens in the circuit; the gates only stop the
// obviously unsafe requests from consuming a collaborator round trip.
func (e *Engine) handleRemoveMargin(ctx context.Context, ev *event.RemoveMargin) (*Result, error) {
	pos, err := e.openPositionFor(ev.PositionID, ev.Trader)
	if err != nil {
		return nil, err
	}
	if ev.Amount <= 0 {
		return nil, fmt.Errorf("margin amount must be positive: %d", ev.Amount)
	}
	if !pos.ThresholdVerified {
		return nil, state.ErrThresholdNotVerified
	}
	if pos.IsLiquidatable {
		return nil, state.ErrMarginUnsafe
	}
	if _, err := e.prices.PriceAt(pos.Market, ev.Timestamp); err != nil {
		return nil, fmt.Errorf("%w: %v", state.ErrMarginUnsafe, err)
	}

	reqID := pos.NextRequestID()
	if err := pos.BeginOp(reqID, ev.Timestamp.Unix()); err != nil {
		return nil, err
	}
	pos.PendingMargin = state.PendingMargin{Amount: ev.Amount, IsAdd: false}

	if err := e.queueMPCMargin(ctx, pos, reqID, mpc.OpSub, ev.Amount); err != nil {
		pos.ClearOp()
		return nil, err
	}
	// Stale only once the refresh request is actually in flight.
	pos.MarkThresholdsStale()

	result := &Result{}
	result.touchPosition(pos)
	return result, nil
}

// handleMarginCallback applies a collateral adjustment and the refreshed
// thresholds computed in the same circuit. Margin removals pay out only
// here, after the circuit confirmed the remainder keeps the position safe.
func (e *Engine) handleMarginCallback(ctx context.Context, ev *event.MarginCallback) (*Result, error) {
	pos, ok := e.positions.Get(ev.PositionID)
	if !ok {
		return nil, state.ErrPositionNotOpen
	}
	if err := pos.VerifyCallback(ev.RequestID); err != nil {
		return nil, err
	}

	result := &Result{}
	pending := pos.PendingMargin
	if !ev.Success {
		// Rejected removal or failed circuit: collateral unchanged. An
		// add already moved funds in, so its ciphertext no longer matches
		// the vault; force a threshold refresh to resync.
		pos.ClearOp()
		pos.MarkThresholdsStale()
		result.touchPosition(pos)
		return result, nil
	}

	ms, ok := e.markets.Get(pos.Market)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownMarket, pos.Market)
	}
	expected := state.DeriveThresholdCommitment(pos.EncryptedEntryPrice, pos.Leverage, ms.Params.MaintenanceMarginBps, pos.Side)
	if ev.Commitment != expected {
		return nil, state.ErrThresholdNotVerified
	}

	pos.EncryptedCollateral = ev.EncryptedCollateral
	pos.EncryptedLiqBelow = ev.EncryptedLiqBelow
	pos.EncryptedLiqAbove = ev.EncryptedLiqAbove
	pos.ThresholdCommitment = ev.Commitment
	pos.ThresholdVerified = true
	pos.ClearOp()

	if !pending.IsAdd && pending.Amount > 0 {
		if pending.ForInsurance {
			ms.InsuranceFund += pending.Amount
		} else if _, err := e.moveFunds(ctx, transfer.VaultAccount, pos.Trader, quoteAsset(pos.Market), pending.Amount); err != nil {
			return nil, fmt.Errorf("margin payout: %w", err)
		}
	}

	result.touchPosition(pos)
	return result, nil
}

// handleSettleFunding charges the accrued funding into a position's
// collateral. The cumulative index delta is public; only the position
// size it multiplies is sealed.
func (e *Engine) handleSettleFunding(ctx context.Context, ev *event.SettleFunding) (*Result, error) {
	pos, ok := e.positions.Get(ev.PositionID)
	if !ok || pos.Status != state.PositionStatusOpen {
		return nil, state.ErrPositionNotOpen
	}

	ms, ok := e.markets.Get(pos.Market)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownMarket, pos.Market)
	}
	delta := ms.CumulativeFunding(pos.SideSign()) - pos.EntryCumulativeFunding
	if delta == 0 {
		return &Result{}, nil
	}

	reqID := pos.NextRequestID()
	if err := pos.BeginOp(reqID, ev.Timestamp.Unix()); err != nil {
		return nil, err
	}
	pos.PendingFundingDelta = delta

	if err := e.queueMPC(ctx, mpc.Request{
		RequestID:       reqID,
		Op:              mpc.OpFunding,
		EncryptedInputs: []mpc.Ciphertext{pos.EncryptedSize, pos.EncryptedCollateral},
		PlaintextInputs: []int64{delta, pos.SideSign(), int64(pos.Leverage), ms.Params.MaintenanceMarginBps},
		CallbackSubject: CallbackSubject,
	}); err != nil {
		pos.ClearOp()
		return nil, err
	}
	pos.MarkThresholdsStale()

	result := &Result{}
	result.touchPosition(pos)
	result.emit("funding_initiated", &event.FundingSettlementInitiated{
		PositionID:   event.HexID(pos.PositionID),
		Market:       pos.Market,
		RequestID:    reqID.String(),
		FundingDelta: delta,
		OccurredAt:   event.CoarseTime(ev.Timestamp),
	})
	return result, nil
}

func (e *Engine) handleFundingCallback(ev *event.FundingCallback) (*Result, error) {
	pos, ok := e.positions.Get(ev.PositionID)
	if !ok {
		return nil, state.ErrPositionNotOpen
	}
	if err := pos.VerifyCallback(ev.RequestID); err != nil {
		return nil, err
	}

	result := &Result{}
	if !ev.Success {
		pos.ClearOp()
		result.touchPosition(pos)
		return result, nil
	}

	ms, ok := e.markets.Get(pos.Market)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownMarket, pos.Market)
	}
	expected := state.DeriveThresholdCommitment(pos.EncryptedEntryPrice, pos.Leverage, ms.Params.MaintenanceMarginBps, pos.Side)
	if ev.Commitment != expected {
		return nil, state.ErrThresholdNotVerified
	}

	pos.EncryptedCollateral = ev.EncryptedCollateral
	pos.EncryptedLiqBelow = ev.EncryptedLiqBelow
	pos.EncryptedLiqAbove = ev.EncryptedLiqAbove
	pos.ThresholdCommitment = ev.Commitment
	pos.ThresholdVerified = true
	pos.EntryCumulativeFunding += pos.PendingFundingDelta
	pos.ClearOp()

	result.touchPosition(pos)
	return result, nil
}

// handleClosePosition begins a full or partial close. PnL, funding owed
// and the payout are computed in the circuit; the payout alone comes back
// revealed because the transfer rail needs a plaintext amount.
func (e *Engine) handleClosePosition(ctx context.Context, ev *event.ClosePosition) (*Result, error) {
	pos, err := e.openPositionFor(ev.PositionID, ev.Trader)
	if err != nil {
		return nil, err
	}

	reqID := pos.NextRequestID()
	if err := pos.BeginOp(reqID, ev.Timestamp.Unix()); err != nil {
		return nil, err
	}
	pos.PendingClose = state.PendingClose{
		Active:             true,
		Full:               ev.Full,
		EncryptedCloseSize: ev.EncryptedCloseSize,
		EncryptedExitPrice: ev.EncryptedExitPrice,
	}

	if err := e.queueMPC(ctx, mpc.Request{
		RequestID: reqID,
		Op:        mpc.OpPnL,
		EncryptedInputs: []mpc.Ciphertext{
			pos.EncryptedSize, pos.EncryptedEntryPrice, pos.EncryptedCollateral,
			ev.EncryptedCloseSize, ev.EncryptedExitPrice,
		},
		PlaintextInputs: []int64{pos.SideSign(), boolInt64(ev.Full)},
		CallbackSubject: CallbackSubject,
	}); err != nil {
		pos.ClearOp()
		return nil, err
	}

	result := &Result{}
	result.touchPosition(pos)
	result.emit("position_status", &event.PositionStatusChanged{
		PositionID: event.HexID(pos.PositionID),
		Market:     pos.Market,
		Status:     "ClosePending",
		OccurredAt: event.CoarseTime(ev.Timestamp),
	})
	return result, nil
}

// handleCloseCallback finishes a close or a liquidation. For liquidation
// closes the revealed payout is the remaining collateral and the revealed
// notional feeds the bonus and insurance split.
func (e *Engine) handleCloseCallback(ctx context.Context, ev *event.CloseCallback) (*Result, error) {
	pos, ok := e.positions.Get(ev.PositionID)
	if !ok {
		return nil, state.ErrPositionNotOpen
	}
	if err := pos.VerifyCallback(ev.RequestID); err != nil {
		return nil, err
	}
	pending := pos.PendingClose

	result := &Result{}
	if !ev.Success {
		pos.ClearOp()
		result.touchPosition(pos)
		return result, nil
	}

	if pending.Liquidation {
		return e.finishLiquidation(ctx, pos, pending, ev, result)
	}

	if ev.RevealedPayout > 0 {
		if _, err := e.moveFunds(ctx, transfer.VaultAccount, pos.Trader, quoteAsset(pos.Market), ev.RevealedPayout); err != nil {
			return nil, fmt.Errorf("close payout: %w", err)
		}
	}

	if pending.Full {
		pos.Status = state.PositionStatusClosed
		pos.ClearOp()
		pos.MarkThresholdsStale()
	} else {
		pos.EncryptedSize = ev.EncryptedSize
		pos.EncryptedCollateral = ev.EncryptedCollateral
		pos.ClearOp()
		pos.MarkThresholdsStale()
	}

	result.touchPosition(pos)
	result.emit("position_status", &event.PositionStatusChanged{
		PositionID: event.HexID(pos.PositionID),
		Market:     pos.Market,
		Status:     pos.Status.String(),
		OccurredAt: event.CoarseTime(ev.Timestamp),
	})
	return result, nil
}

// handleForceClearPosition is permissionless recovery for a position
// whose collaborator round trip never came back. It only clears markers;
// no result is ever applied on this path.
func (e *Engine) handleForceClearPosition(ev *event.ForceClearPosition) (*Result, error) {
	pos, ok := e.positions.Get(ev.PositionID)
	if !ok {
		return nil, state.ErrPositionNotOpen
	}
	if !pos.PendingStale(ev.Timestamp.Unix()) {
		return nil, state.ErrPendingNotStale
	}

	staleReq := pos.PendingMPCRequest
	pos.ClearOp()
	pos.MarkThresholdsStale()
	if pos.Status == state.PositionStatusPendingLiquidationCheck {
		pos.Status = state.PositionStatusOpen
	}

	result := &Result{}
	result.touchPosition(pos)
	result.emit("stale_request_cleared", &event.StaleRequestCleared{
		PositionID: event.HexID(pos.PositionID),
		Market:     pos.Market,
		RequestID:  staleReq.String(),
		OccurredAt: event.CoarseTime(ev.Timestamp),
	})
	return result, nil
}

// openPositionFor resolves a position and checks trader ownership and the
// Open status in one place.
func (e *Engine) openPositionFor(positionID [32]byte, trader uuid.UUID) (*state.ConfidentialPosition, error) {
	pos, ok := e.positions.Get(positionID)
	if !ok || pos.Status != state.PositionStatusOpen {
		return nil, state.ErrPositionNotOpen
	}
	if pos.Trader != trader {
		return nil, state.ErrNotMaker
	}
	return pos, nil
}

// queueMPCMargin queues the shared margin-adjustment circuit: adjust
// collateral by a public amount, recompute thresholds, verify margin
// safety when removing.
func (e *Engine) queueMPCMargin(ctx context.Context, pos *state.ConfidentialPosition, reqID mpc.RequestID, op mpc.Opcode, amount int64) error {
	ms, _ := e.markets.Get(pos.Market)
	return e.queueMPC(ctx, mpc.Request{
		RequestID:       reqID,
		Op:              op,
		EncryptedInputs: []mpc.Ciphertext{pos.EncryptedCollateral, pos.EncryptedEntryPrice, pos.EncryptedSize},
		PlaintextInputs: []int64{amount, int64(pos.Leverage), ms.Params.MaintenanceMarginBps, pos.SideSign()},
		CallbackSubject: CallbackSubject,
	})
}

func sideSignOf(s event.Side) int64 {
	if s == event.SideSell {
		return -1
	}
	return 1
}

func boolInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// quoteAsset names the collateral asset of a market pair.
func quoteAsset(market string) string {
	for i := len(market) - 1; i >= 0; i-- {
		if market[i] == '-' {
			return market[i+1:]
		}
	}
	return market
}
