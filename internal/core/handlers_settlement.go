package core

import (
	"time"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/math"
	"ShadowSettle/internal/state"
	"ShadowSettle/internal/transfer"
)

// ============================================================================
// Settlement Handlers
// ============================================================================

// Two-phase settlement: base leg, then quote leg, then finalize. The
// transfers themselves run off-engine on the chosen rail; the crank
// reports each completed leg back as a RecordTransfer instruction. The
// engine owns ordering and the 300 second deadline.

func (e *Engine) handleInitiateSettlement(ev *event.InitiateSettlement) (*Result, error) {
	buy, ok := e.orders.Get(ev.BuyOrderID)
	if !ok {
		return nil, state.ErrOrderNotActive
	}
	sell, ok := e.orders.Get(ev.SellOrderID)
	if !ok {
		return nil, state.ErrOrderNotActive
	}

	method, err := transfer.ParseMethod(ev.Method)
	if err != nil {
		return nil, state.ErrUnknownSettlementMethod
	}

	sr, err := e.settlements.Initiate(buy, sell, method, ev.Timestamp.Unix())
	if err != nil {
		return nil, err
	}

	result := &Result{}
	result.touchSettlement(sr)
	result.emit("settlement_status", settlementStatus(sr, ev.Timestamp))
	return result, nil
}

func (e *Engine) handleRecordTransfer(ev *event.RecordTransfer) (*Result, error) {
	sr, ok := e.settlements.Get(ev.SettlementID)
	if !ok {
		return nil, state.ErrSettlementNotFound
	}

	var leg transfer.Leg
	switch ev.Leg {
	case event.TransferLegBase:
		leg = transfer.LegBase
	case event.TransferLegQuote:
		leg = transfer.LegQuote
	default:
		return nil, state.ErrInvalidStatusTransition
	}

	// Fees are computed before the leg is actually recorded so an
	// arithmetic failure leaves the settlement untouched. Only a quote
	// leg with revealed fill terms qualifies; sealed fills keep zeros.
	var fees math.FeeBreakdown
	computeFees := leg == transfer.LegQuote && ev.RevealedFillQty > 0 && ev.RevealedFillPrice > 0
	if computeFees {
		ms, ok := e.markets.Get(sr.Pair)
		if !ok {
			return nil, state.ErrUnknownMarket
		}
		var err error
		fees, err = math.ComputeFillFees(ev.RevealedFillQty, ev.RevealedFillPrice, ms.Params.TakerFeeBps, sr.Method.FeeBps())
		if err != nil {
			return nil, err
		}
	}

	if err := sr.RecordTransfer(leg, ev.TransferID, ev.Timestamp.Unix()); err != nil {
		return nil, err
	}

	result := &Result{}
	if computeFees {
		sr.Fees = fees
		sr.FeesComputed = true
		recipient := "fee_sink"
		if sr.Method.RequiresRelayer() {
			recipient = "relayer"
		}
		result.emit("settlement_fees", &event.SettlementFeesComputed{
			SettlementID:  event.HexID(sr.SettlementID),
			Pair:          sr.Pair,
			Method:        sr.Method.String(),
			Notional:      fees.Notional,
			TakerFee:      fees.TakerFee,
			SettlementFee: fees.SettlementFee,
			NetToSeller:   fees.NetToSeller,
			FeeRecipient:  recipient,
			OccurredAt:    event.CoarseTime(ev.Timestamp),
		})
	}
	result.touchSettlement(sr)
	result.emit("settlement_status", settlementStatus(sr, ev.Timestamp))
	return result, nil
}

// handleFinalizeSettlement completes a settlement with both legs in. The
// record is closed out, so a duplicate finalize fails on lookup instead
// of completing twice.
func (e *Engine) handleFinalizeSettlement(ev *event.FinalizeSettlement) (*Result, error) {
	sr, err := e.settlements.Finalize(ev.SettlementID, ev.Timestamp.Unix())
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, orderID := range [2][32]byte{sr.BuyOrderID, sr.SellOrderID} {
		order, ok := e.orders.Get(orderID)
		if !ok {
			continue
		}
		if order.Status == state.OrderStatusActive {
			if ms, ok := e.markets.Get(order.Pair); ok && ms.OpenOrderCount > 0 {
				ms.OpenOrderCount--
			}
		}
		e.orders.Deactivate(orderID)
		result.touchOrder(order)
	}

	result.touchSettlement(sr)
	result.emit("settlement_status", settlementStatus(sr, ev.Timestamp))
	if e.metrics != nil {
		e.metrics.SettlementsTerminal.WithLabelValues(sr.Status.String()).Inc()
	}
	return result, nil
}

func (e *Engine) handleFailSettlement(ev *event.FailSettlement) (*Result, error) {
	sr, ok := e.settlements.Get(ev.SettlementID)
	if !ok {
		return nil, state.ErrSettlementNotFound
	}
	if err := sr.Fail(ev.Timestamp.Unix()); err != nil {
		return nil, err
	}
	if sr.Status.Terminal() {
		e.settlements.Remove(sr.SettlementID)
		if e.metrics != nil {
			e.metrics.SettlementsTerminal.WithLabelValues(sr.Status.String()).Inc()
		}
	}

	result := &Result{}
	result.touchSettlement(sr)
	result.emit("settlement_status", settlementStatus(sr, ev.Timestamp))
	return result, nil
}

// handleExpireSettlement is the permissionless deadline path. A rollback
// that itself timed out surfaces as a manual intervention alert; nothing
// in the engine can safely unwind it further.
func (e *Engine) handleExpireSettlement(ev *event.ExpireSettlement) (*Result, error) {
	sr, ok := e.settlements.Get(ev.SettlementID)
	if !ok {
		return nil, state.ErrSettlementNotFound
	}
	if err := sr.Expire(ev.Timestamp.Unix()); err != nil {
		return nil, err
	}

	result := &Result{}
	result.touchSettlement(sr)
	result.emit("settlement_status", settlementStatus(sr, ev.Timestamp))

	if sr.ManualIntervention {
		result.emit("manual_intervention", &event.ManualInterventionRequired{
			SettlementID: event.HexID(sr.SettlementID),
			Pair:         sr.Pair,
			Reason:       "rollback deadline exceeded",
			OccurredAt:   event.CoarseTime(ev.Timestamp),
		})
	}
	if sr.Status.Terminal() {
		e.settlements.Remove(sr.SettlementID)
		if e.metrics != nil {
			e.metrics.SettlementsTerminal.WithLabelValues(sr.Status.String()).Inc()
		}
	}
	return result, nil
}

func settlementStatus(sr *state.SettlementRequest, at time.Time) *event.SettlementStatusChanged {
	return &event.SettlementStatusChanged{
		SettlementID: event.HexID(sr.SettlementID),
		Pair:         sr.Pair,
		Status:       sr.Status.String(),
		Method:       sr.Method.String(),
		OccurredAt:   event.CoarseTime(at),
	}
}
