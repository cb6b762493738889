package core

import (
	"context"
	"fmt"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/math"
	"ShadowSettle/internal/mpc"
	"ShadowSettle/internal/state"
	"ShadowSettle/internal/transfer"
)

// ============================================================================
// Liquidation / Deleverage Handlers
// ============================================================================

// handleCheckLiquidationBatch submits up to ten positions for a batched
// under-water check. The mark price must pass strict oracle validation at
// the event's own timestamp; a stale or wide price rejects the whole
// batch before anything is queued.
func (e *Engine) handleCheckLiquidationBatch(ctx context.Context, ev *event.CheckLiquidationBatch) (*Result, error) {
	if _, ok := e.markets.Get(ev.Market); !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownMarket, ev.Market)
	}
	price, err := e.prices.PriceAt(ev.Market, ev.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("mark price: %w", err)
	}

	// Validate every position up front so a half-locked batch never
	// exists. Side-appropriate threshold: longs liquidate below their
	// threshold, shorts above.
	checked := make([]*state.ConfidentialPosition, 0, len(ev.PositionIDs))
	thresholds := make([]mpc.Ciphertext, 0, len(ev.PositionIDs))
	sides := make([]int64, 0, len(ev.PositionIDs))
	for _, id := range ev.PositionIDs {
		pos, ok := e.positions.Get(id)
		if !ok || pos.Status != state.PositionStatusOpen {
			return nil, state.ErrPositionNotOpen
		}
		if pos.Market != ev.Market {
			return nil, fmt.Errorf("%w: position on %s", state.ErrUnknownMarket, pos.Market)
		}
		if !pos.ThresholdVerified {
			return nil, state.ErrThresholdNotVerified
		}
		if pos.HasPendingOp() {
			return nil, state.ErrOperationPending
		}
		checked = append(checked, pos)
		if pos.Side == event.SideBuy {
			thresholds = append(thresholds, pos.EncryptedLiqBelow)
		} else {
			thresholds = append(thresholds, pos.EncryptedLiqAbove)
		}
		sides = append(sides, pos.SideSign())
	}

	batch, err := e.liquidations.Open(ev.Market, price.Price, ev.PositionIDs, ev.Timestamp.Unix())
	if err != nil {
		return nil, err
	}

	// Every member carries the batch request id as its pending marker, so
	// a batch whose callback never lands is force-clearable position by
	// position once the marker goes stale.
	now := ev.Timestamp.Unix()
	for _, pos := range checked {
		if err := pos.BeginOp(batch.RequestID, now); err != nil {
			return nil, err
		}
		pos.Status = state.PositionStatusPendingLiquidationCheck
	}

	plaintext := make([]int64, 0, 1+len(sides))
	plaintext = append(plaintext, price.Price)
	plaintext = append(plaintext, sides...)
	if err := e.queueMPC(ctx, mpc.Request{
		RequestID:       batch.RequestID,
		Op:              mpc.OpBatchLiqCheck,
		EncryptedInputs: thresholds,
		PlaintextInputs: plaintext,
		CallbackSubject: CallbackSubject,
	}); err != nil {
		for _, pos := range checked {
			pos.ClearOp()
			pos.Status = state.PositionStatusOpen
		}
		e.liquidations.Remove(batch.RequestID)
		return nil, err
	}

	result := &Result{}
	for _, pos := range checked {
		result.touchPosition(pos)
	}
	result.touchBatch(batch)
	return result, nil
}

// handleLiquidationBatchCallback applies the eligibility verdicts. The
// batch completes exactly once; a replayed callback fails on the
// completed flag with no position change.
func (e *Engine) handleLiquidationBatchCallback(ev *event.LiquidationBatchCallback) (*Result, error) {
	batch, ok := e.liquidations.Get(ev.RequestID)
	if !ok {
		return nil, state.ErrInvalidMPCRequest
	}
	if !ev.Success {
		// Failed circuit: release the batch and its positions untouched.
		// The reverted rows ride the result so persistence sees the revert.
		result := &Result{}
		for _, id := range batch.PositionIDs {
			pos, ok := e.positions.Get(id)
			if !ok || !pos.PendingMPCRequest.Matches(batch.RequestID) {
				continue
			}
			pos.ClearOp()
			if pos.Status == state.PositionStatusPendingLiquidationCheck {
				pos.Status = state.PositionStatusOpen
			}
			result.touchPosition(pos)
		}
		result.touchBatch(batch)
		e.liquidations.Remove(ev.RequestID)
		return result, nil
	}

	if err := batch.Complete(ev.Results, ev.Priorities); err != nil {
		return nil, err
	}

	result := &Result{}
	result.touchBatch(batch)
	for i, id := range batch.PositionIDs {
		pos, ok := e.positions.Get(id)
		if !ok || !pos.PendingMPCRequest.Matches(batch.RequestID) {
			// Force-cleared while the batch was in flight; the verdict is
			// stale for this position.
			continue
		}
		pos.ClearOp()
		if pos.Status == state.PositionStatusPendingLiquidationCheck {
			pos.Status = state.PositionStatusOpen
		}
		pos.IsLiquidatable = batch.Results[i]
		if len(batch.Priorities) == len(batch.PositionIDs) {
			pos.ADLPriority = batch.Priorities[i]
		}
		result.touchPosition(pos)
		result.emit("liquidation_eligibility", &event.LiquidationEligibility{
			PositionID:   event.HexID(pos.PositionID),
			Market:       pos.Market,
			Liquidatable: pos.IsLiquidatable,
			OccurredAt:   event.CoarseTime(ev.Timestamp),
		})
	}
	e.liquidations.Remove(ev.RequestID)
	return result, nil
}

// handleLiquidatePosition starts a liquidation close. It rides the close
// circuit with the liquidation flag set; the callback reveals the payout
// and the notional so the bonus split can run in plaintext.
func (e *Engine) handleLiquidatePosition(ctx context.Context, ev *event.LiquidatePosition) (*Result, error) {
	pos, ok := e.positions.Get(ev.PositionID)
	if !ok || pos.Status != state.PositionStatusOpen {
		return nil, state.ErrPositionNotOpen
	}
	if !pos.ThresholdVerified {
		return nil, state.ErrThresholdNotVerified
	}
	if !pos.IsLiquidatable {
		return nil, state.ErrNotLiquidatable
	}

	price, err := e.prices.PriceAt(pos.Market, ev.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("mark price: %w", err)
	}

	reqID := pos.NextRequestID()
	if err := pos.BeginOp(reqID, ev.Timestamp.Unix()); err != nil {
		return nil, err
	}
	pos.PendingClose = state.PendingClose{
		Active:      true,
		Full:        true,
		Liquidation: true,
		Liquidator:  ev.Liquidator,
	}

	if err := e.queueMPC(ctx, mpc.Request{
		RequestID: reqID,
		Op:        mpc.OpPnL,
		EncryptedInputs: []mpc.Ciphertext{
			pos.EncryptedSize, pos.EncryptedEntryPrice, pos.EncryptedCollateral,
		},
		PlaintextInputs: []int64{pos.SideSign(), price.Price, 1},
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
		Status:     "LiquidationPending",
		OccurredAt: event.CoarseTime(ev.Timestamp),
	})
	return result, nil
}

// finishLiquidation applies a liquidation close callback: split the
// remaining collateral between liquidator bonus, insurance fund and
// holder remainder. Below the notional floor the liquidation downgrades
// to a plain close and everything returns to the holder.
func (e *Engine) finishLiquidation(ctx context.Context, pos *state.ConfidentialPosition, pending state.PendingClose, ev *event.CloseCallback, result *Result) (*Result, error) {
	ms, ok := e.markets.Get(pos.Market)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownMarket, pos.Market)
	}
	asset := quoteAsset(pos.Market)

	// A negative revealed payout is a bankruptcy shortfall: the losses
	// exceeded the collateral and the fund covers the difference.
	remaining := ev.RevealedPayout
	if remaining < 0 {
		ms.InsuranceFund += remaining
		remaining = 0
	}

	if ev.RevealedNotional < ms.Params.MinLiquidationThreshold {
		if remaining > 0 {
			if _, err := e.moveFunds(ctx, transfer.VaultAccount, pos.Trader, asset, remaining); err != nil {
				return nil, fmt.Errorf("close payout: %w", err)
			}
		}
		pos.Status = state.PositionStatusClosed
	} else {
		split, err := math.ComputeLiquidationSplit(
			ev.RevealedNotional, remaining,
			ms.Params.LiquidationBonusBps, ms.Params.InsuranceFundShareBps,
			ms.Params.MaxLiquidationPerTx,
		)
		if err != nil {
			return nil, fmt.Errorf("liquidation split: %w", err)
		}
		if split.LiquidatorBonus > 0 {
			if _, err := e.moveFunds(ctx, transfer.VaultAccount, pending.Liquidator, asset, split.LiquidatorBonus); err != nil {
				return nil, fmt.Errorf("liquidator bonus: %w", err)
			}
		}
		if split.InsuranceShare > 0 {
			if _, err := e.moveFunds(ctx, transfer.VaultAccount, transfer.InsuranceAccount, asset, split.InsuranceShare); err != nil {
				return nil, fmt.Errorf("insurance share: %w", err)
			}
			ms.InsuranceFund += split.InsuranceShare
		}
		if split.ToHolder > 0 {
			if _, err := e.moveFunds(ctx, transfer.VaultAccount, pos.Trader, asset, split.ToHolder); err != nil {
				return nil, fmt.Errorf("holder remainder: %w", err)
			}
		}
		pos.Status = state.PositionStatusLiquidated
	}

	pos.ClearOp()
	pos.MarkThresholdsStale()
	result.touchPosition(pos)
	result.emit("position_status", &event.PositionStatusChanged{
		PositionID: event.HexID(pos.PositionID),
		Market:     pos.Market,
		Status:     pos.Status.String(),
		OccurredAt: event.CoarseTime(ev.Timestamp),
	})
	if e.metrics != nil {
		e.metrics.LiquidationsExecuted.WithLabelValues(pos.Market).Inc()
	}
	return result, nil
}

// handleAutoDeleverage absorbs a bankrupt position's loss into an
// opposite-side profitable position. Open only while the insurance fund
// sits below its trigger.
func (e *Engine) handleAutoDeleverage(ctx context.Context, ev *event.AutoDeleverage) (*Result, error) {
	ms, ok := e.markets.Get(ev.Market)
	if !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownMarket, ev.Market)
	}
	if !ms.ADLOpen() {
		return nil, state.ErrInsuranceFundHealthy
	}

	bankrupt, ok := e.positions.Get(ev.BankruptPosition)
	if !ok || bankrupt.Status.Terminal() {
		return nil, state.ErrPositionNotOpen
	}
	target, ok := e.positions.Get(ev.TargetPosition)
	if !ok || target.Status != state.PositionStatusOpen {
		return nil, state.ErrPositionNotOpen
	}
	if target.Side == bankrupt.Side {
		return nil, state.ErrNoADLPriority
	}
	if target.ADLPriority <= 0 {
		return nil, state.ErrNoADLPriority
	}
	if target.HasPendingOp() {
		return nil, state.ErrOperationPending
	}

	// The absorbed amount is the fund's public deficit, capped by the
	// per-transaction limit. The target's collateral adjustment itself
	// runs through the margin circuit like any other removal, with the
	// proceeds routed to the fund.
	deficit := ms.Params.ADLTriggerThreshold - ms.InsuranceFund
	if deficit <= 0 {
		return nil, state.ErrInsuranceFundHealthy
	}
	if deficit > ms.Params.MaxLiquidationPerTx {
		deficit = ms.Params.MaxLiquidationPerTx
	}

	reqID := target.NextRequestID()
	if err := target.BeginOp(reqID, ev.Timestamp.Unix()); err != nil {
		return nil, err
	}
	target.PendingMargin = state.PendingMargin{Amount: deficit, IsAdd: false, ForInsurance: true}

	if err := e.queueMPCMargin(ctx, target, reqID, mpc.OpSub, deficit); err != nil {
		target.ClearOp()
		return nil, err
	}
	target.MarkThresholdsStale()

	bankrupt.Status = state.PositionStatusAutoDeleveraged
	bankrupt.ClearOp()
	bankrupt.MarkThresholdsStale()

	result := &Result{}
	result.touchPosition(bankrupt)
	result.touchPosition(target)
	result.emit("position_status", &event.PositionStatusChanged{
		PositionID: event.HexID(bankrupt.PositionID),
		Market:     bankrupt.Market,
		Status:     bankrupt.Status.String(),
		OccurredAt: event.CoarseTime(ev.Timestamp),
	})
	return result, nil
}
