package core

import (
	"context"
	"fmt"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/mpc"
	"ShadowSettle/internal/state"
	"ShadowSettle/internal/zk"
)

// ============================================================================
// Order Handlers
// ============================================================================

// handlePlaceOrder admits a confidential order to the book. The eligibility
// proof is the only admission gate that inspects anything; amount and price
// enter as sealed handles and are never opened here.
func (e *Engine) handlePlaceOrder(ctx context.Context, ev *event.PlaceOrder) (*Result, error) {
	if e.markets.Paused() {
		return nil, state.ErrExchangePaused
	}
	if _, ok := e.markets.Get(ev.Pair); !ok {
		return nil, fmt.Errorf("%w: %s", state.ErrUnknownMarket, ev.Pair)
	}
	if ev.OrderSide != event.SideBuy && ev.OrderSide != event.SideSell {
		return nil, fmt.Errorf("invalid order side: %d", ev.OrderSide)
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
	order := &state.Order{
		OrderID:             state.DeriveOrderID(ev.Maker, ev.Pair, ev.ClientNonce),
		Maker:               ev.Maker,
		Pair:                ev.Pair,
		Side:                ev.OrderSide,
		Type:                ev.OrderType,
		EncryptedAmount:     ev.EncryptedAmount,
		EncryptedPrice:      ev.EncryptedPrice,
		EncryptedFilled:     mpc.Zero(),
		Status:              state.OrderStatusActive,
		EligibilityVerified: true,
		CreatedAt:           now.Unix(),
	}
	if err := e.orders.Create(order); err != nil {
		return nil, err
	}
	if ms, ok := e.markets.Get(ev.Pair); ok {
		ms.OpenOrderCount++
	}

	result := &Result{}
	result.touchOrder(order)
	result.emit("order_placed", &event.OrderPlaced{
		OrderID:    event.HexID(order.OrderID),
		Maker:      order.Maker.String(),
		Pair:       order.Pair,
		Side:       order.Side.String(),
		OccurredAt: event.CoarseTime(now),
	})
	return result, nil
}

func (e *Engine) handleCancelOrder(ev *event.CancelOrder) (*Result, error) {
	order, err := e.orders.Cancel(ev.OrderID, ev.Maker)
	if err != nil {
		return nil, err
	}
	if ms, ok := e.markets.Get(order.Pair); ok && ms.OpenOrderCount > 0 {
		ms.OpenOrderCount--
	}

	result := &Result{}
	result.touchOrder(order)
	result.emit("order_cancelled", &event.OrderCancelled{
		OrderID:    event.HexID(order.OrderID),
		Pair:       order.Pair,
		OccurredAt: event.CoarseTime(ev.Timestamp),
	})
	return result, nil
}

// handleMatchOrders opens one compare+fill cycle against the collaborator
// set. Both orders are locked under the minted request id until the
// callback lands; the core keeps processing other entities meanwhile.
func (e *Engine) handleMatchOrders(ctx context.Context, ev *event.MatchOrders) (*Result, error) {
	if e.markets.Paused() {
		return nil, state.ErrExchangePaused
	}

	e.matchNonce++
	reqID := mpc.NewRequestID(ev.BuyOrderID, e.matchNonce)

	pm, err := e.orders.BeginMatchCycle(ev.BuyOrderID, ev.SellOrderID, reqID, ev.Timestamp.Unix())
	if err != nil {
		return nil, err
	}
	buy, _ := e.orders.Get(ev.BuyOrderID)
	sell, _ := e.orders.Get(ev.SellOrderID)

	// One batched request covers the price comparison and the fill
	// arithmetic; the collaborators reveal only the crossed bit and the
	// fully-filled flags.
	if err := e.queueMPC(ctx, mpc.Request{
		RequestID: reqID,
		Op:        mpc.OpFill,
		EncryptedInputs: []mpc.Ciphertext{
			buy.EncryptedAmount, buy.EncryptedPrice, buy.EncryptedFilled,
			sell.EncryptedAmount, sell.EncryptedPrice, sell.EncryptedFilled,
		},
		CallbackSubject: CallbackSubject,
	}); err != nil {
		// The request never left; the callback that would release the
		// orders will never arrive. Unlock them so a retry can match.
		e.orders.AbandonMatchCycle(reqID)
		return nil, err
	}

	result := &Result{}
	result.touchOrder(buy)
	result.touchOrder(sell)
	result.touchMatch(pm)
	result.emit("match_requested", &event.MatchRequested{
		RequestID:   reqID.String(),
		BuyOrderID:  event.HexID(ev.BuyOrderID),
		SellOrderID: event.HexID(ev.SellOrderID),
		Pair:        pm.Pair,
		OccurredAt:  event.CoarseTime(ev.Timestamp),
	})
	return result, nil
}

// handleMatchCallback resolves a match cycle. A stale or mismatched
// request id is rejected with no state change; the subscriber logs and
// acks those rather than redelivering.
func (e *Engine) handleMatchCallback(ev *event.MatchCallback) (*Result, error) {
	pm, err := e.orders.ResolveMatchCycle(ev.RequestID, state.MatchOutcome{
		PriceCrossed:  ev.PriceCrossed,
		NewBuyFilled:  ev.NewBuyFilled,
		NewSellFilled: ev.NewSellFilled,
		BuyDone:       ev.BuyDone,
		SellDone:      ev.SellDone,
		Success:       ev.Success,
	})
	if err != nil {
		return nil, err
	}

	var outcome string
	switch pm.Status {
	case state.MatchStatusMatched:
		outcome = "matched"
	case state.MatchStatusNoMatch:
		outcome = "no_match"
	default:
		outcome = "failed"
	}

	result := &Result{}
	result.touchMatch(pm)
	if buy, ok := e.orders.Get(pm.BuyOrderID); ok {
		result.touchOrder(buy)
		if pm.Status == state.MatchStatusMatched && buy.Status == state.OrderStatusInactive {
			if ms, ok := e.markets.Get(buy.Pair); ok && ms.OpenOrderCount > 0 {
				ms.OpenOrderCount--
			}
		}
	}
	if sell, ok := e.orders.Get(pm.SellOrderID); ok {
		result.touchOrder(sell)
		if pm.Status == state.MatchStatusMatched && sell.Status == state.OrderStatusInactive {
			if ms, ok := e.markets.Get(sell.Pair); ok && ms.OpenOrderCount > 0 {
				ms.OpenOrderCount--
			}
		}
	}

	result.emit("match_resolved", &event.MatchResolved{
		RequestID:   ev.RequestID.String(),
		BuyOrderID:  event.HexID(pm.BuyOrderID),
		SellOrderID: event.HexID(pm.SellOrderID),
		Pair:        pm.Pair,
		Outcome:     outcome,
		OccurredAt:  event.CoarseTime(ev.Timestamp),
	})
	return result, nil
}
