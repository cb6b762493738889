package state

import (
	"ShadowSettle/internal/event"
	"ShadowSettle/internal/transfer"
)

// SettlementManager owns the live settlement records. Completed
// settlements are removed outright, so a second finalize cannot find its
// target and fails instead of silently succeeding.
type SettlementManager struct {
	settlements map[[32]byte]*SettlementRequest
}

func NewSettlementManager() *SettlementManager {
	return &SettlementManager{
		settlements: make(map[[32]byte]*SettlementRequest),
	}
}

func (sm *SettlementManager) Get(id [32]byte) (*SettlementRequest, bool) {
	s, ok := sm.settlements[id]
	return s, ok
}

// Initiate opens a settlement between two matched orders. The only fill
// check is the ciphertext tag byte saying "fill confirmed"; the amount
// itself is never inspected.
func (sm *SettlementManager) Initiate(buy, sell *Order, method transfer.Method, now int64) (*SettlementRequest, error) {
	if !method.Valid() {
		return nil, ErrUnknownSettlementMethod
	}
	if buy.Side != event.SideBuy || sell.Side != event.SideSell || buy.Pair != sell.Pair {
		return nil, ErrOrdersNotMatchable
	}
	if !buy.FillConfirmed() || !sell.FillConfirmed() {
		return nil, ErrFillNotConfirmed
	}

	id := DeriveSettlementID(buy.OrderID, sell.OrderID, now)
	if _, exists := sm.settlements[id]; exists {
		return nil, ErrInvalidStatusTransition
	}

	sr := &SettlementRequest{
		SettlementID:        id,
		Pair:                buy.Pair,
		BuyOrderID:          buy.OrderID,
		SellOrderID:         sell.OrderID,
		Buyer:               buy.Maker,
		Seller:              sell.Maker,
		Method:              method,
		Status:              SettlementStatusPending,
		EncryptedFillAmount: buy.EncryptedFilled,
		EncryptedFillValue:  sell.EncryptedFilled,
		CreatedAt:           now,
		ExpiresAt:           now + SettlementTTLSeconds,
	}
	sm.settlements[id] = sr
	return sr, nil
}

// Finalize completes a settlement and closes the record.
func (sm *SettlementManager) Finalize(id [32]byte, now int64) (*SettlementRequest, error) {
	sr, ok := sm.settlements[id]
	if !ok {
		return nil, ErrSettlementNotFound
	}
	if err := sr.Finalize(now); err != nil {
		return nil, err
	}
	delete(sm.settlements, id)
	return sr, nil
}

// Remove drops a terminal settlement record.
func (sm *SettlementManager) Remove(id [32]byte) {
	delete(sm.settlements, id)
}

// Restore reinstalls snapshot state wholesale.
func (sm *SettlementManager) Restore(settlements []*SettlementRequest) {
	sm.settlements = make(map[[32]byte]*SettlementRequest, len(settlements))
	for _, s := range settlements {
		sm.settlements[s.SettlementID] = s
	}
}

// Snapshot returns all live settlements in unspecified order.
func (sm *SettlementManager) Snapshot() []*SettlementRequest {
	out := make([]*SettlementRequest, 0, len(sm.settlements))
	for _, s := range sm.settlements {
		out = append(out, s)
	}
	return out
}
