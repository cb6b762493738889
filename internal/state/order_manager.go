package state

import (
	"github.com/google/uuid"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/mpc"
)

// OrderManager holds the order book and in-flight match cycles.
// All access is from the single-threaded core; no locking.
type OrderManager struct {
	orders  map[[32]byte]*Order
	matches map[mpc.RequestID]*PendingMatch
}

func NewOrderManager() *OrderManager {
	return &OrderManager{
		orders:  make(map[[32]byte]*Order),
		matches: make(map[mpc.RequestID]*PendingMatch),
	}
}

func (om *OrderManager) Get(orderID [32]byte) (*Order, bool) {
	o, ok := om.orders[orderID]
	return o, ok
}

func (om *OrderManager) Match(reqID mpc.RequestID) (*PendingMatch, bool) {
	m, ok := om.matches[reqID]
	return m, ok
}

// Create inserts a new order. Hash-based ids make collisions a sign of a
// replayed nonce, which is rejected.
func (om *OrderManager) Create(order *Order) error {
	if _, exists := om.orders[order.OrderID]; exists {
		return ErrOrderExists
	}
	om.orders[order.OrderID] = order
	return nil
}

// Cancel deactivates an order. Only the maker may cancel, and not while a
// match cycle holds the order.
func (om *OrderManager) Cancel(orderID [32]byte, maker uuid.UUID) (*Order, error) {
	order, ok := om.orders[orderID]
	if !ok {
		return nil, ErrOrderNotActive
	}
	if order.Maker != maker {
		return nil, ErrNotMaker
	}
	if order.IsMatching || !order.PendingMatchRequest.IsZero() {
		return nil, ErrOperationPending
	}
	if order.Status != OrderStatusActive {
		return nil, ErrOrderNotActive
	}
	order.Status = OrderStatusInactive
	order.Version++
	return order, nil
}

// BeginMatchCycle validates the pair and opens one compare+fill cycle.
// Both orders must be Active, idle, eligibility-verified, on the same
// pair and on opposite sides. On success both orders carry the request id
// and a PendingMatch in AwaitingCompare tracks the round trip.
func (om *OrderManager) BeginMatchCycle(buyID, sellID [32]byte, reqID mpc.RequestID, now int64) (*PendingMatch, error) {
	buy, ok := om.orders[buyID]
	if !ok {
		return nil, ErrOrderNotActive
	}
	sell, ok := om.orders[sellID]
	if !ok {
		return nil, ErrOrderNotActive
	}

	if buy.Side != event.SideBuy || sell.Side != event.SideSell {
		return nil, ErrOrdersNotMatchable
	}
	if buy.Pair != sell.Pair {
		return nil, ErrOrdersNotMatchable
	}
	if !buy.EligibilityVerified || !sell.EligibilityVerified {
		return nil, ErrEligibilityProofFailed
	}

	if err := buy.BeginMatch(reqID); err != nil {
		return nil, err
	}
	if err := sell.BeginMatch(reqID); err != nil {
		buy.ClearMatch()
		return nil, err
	}

	pm := &PendingMatch{
		RequestID:   reqID,
		Pair:        buy.Pair,
		BuyOrderID:  buyID,
		SellOrderID: sellID,
		Status:      MatchStatusAwaitingCompare,
		CreatedAt:   now,
	}
	om.matches[reqID] = pm
	return pm, nil
}

// AbandonMatchCycle unwinds a cycle whose computation request never left
// the engine. Both orders drop their markers and the pending match is
// discarded, so the orders are immediately matchable again. No callback
// can ever arrive for the abandoned id; nothing external learned it.
func (om *OrderManager) AbandonMatchCycle(reqID mpc.RequestID) {
	pm, ok := om.matches[reqID]
	if !ok || pm.Status.Terminal() {
		return
	}
	if buy, ok := om.orders[pm.BuyOrderID]; ok && buy.PendingMatchRequest.Matches(reqID) {
		buy.ClearMatch()
	}
	if sell, ok := om.orders[pm.SellOrderID]; ok && sell.PendingMatchRequest.Matches(reqID) {
		sell.ClearMatch()
	}
	delete(om.matches, reqID)
}

// MatchOutcome carries the collaborator verdict for one match cycle.
type MatchOutcome struct {
	PriceCrossed  bool
	NewBuyFilled  mpc.Ciphertext
	NewSellFilled mpc.Ciphertext
	BuyDone       bool
	SellDone      bool
	Success       bool
}

// ResolveMatchCycle applies a match callback. The presented request id
// must match the stored id on the pending match and on both orders; a
// stale or duplicate callback changes nothing. A price mismatch resolves
// to NoMatch with no order mutation. On a cross, the collaborator-summed
// filled ciphertexts replace the stored handles and fully filled orders
// go Inactive.
func (om *OrderManager) ResolveMatchCycle(reqID mpc.RequestID, outcome MatchOutcome) (*PendingMatch, error) {
	pm, ok := om.matches[reqID]
	if !ok || pm.Status.Terminal() {
		return nil, ErrInvalidMPCRequest
	}

	buy, ok := om.orders[pm.BuyOrderID]
	if !ok {
		return nil, ErrInvalidMPCRequest
	}
	sell, ok := om.orders[pm.SellOrderID]
	if !ok {
		return nil, ErrInvalidMPCRequest
	}
	if !buy.PendingMatchRequest.Matches(reqID) || !sell.PendingMatchRequest.Matches(reqID) {
		return nil, ErrInvalidMPCRequest
	}

	switch {
	case !outcome.Success:
		if err := pm.Resolve(MatchStatusFailed); err != nil {
			return nil, err
		}

	case !outcome.PriceCrossed:
		if err := pm.Resolve(MatchStatusNoMatch); err != nil {
			return nil, err
		}

	default:
		if err := pm.Resolve(MatchStatusMatched); err != nil {
			return nil, err
		}
		buy.EncryptedFilled = outcome.NewBuyFilled
		sell.EncryptedFilled = outcome.NewSellFilled
		if outcome.BuyDone {
			buy.Status = OrderStatusInactive
		}
		if outcome.SellDone {
			sell.Status = OrderStatusInactive
		}
	}

	buy.ClearMatch()
	sell.ClearMatch()
	return pm, nil
}

// Deactivate marks an order Inactive and clears its markers; used when a
// settlement finalizes.
func (om *OrderManager) Deactivate(orderID [32]byte) {
	if order, ok := om.orders[orderID]; ok {
		order.Status = OrderStatusInactive
		order.ClearMatch()
	}
}

// MatchSnapshot returns all non-terminal match cycles.
func (om *OrderManager) MatchSnapshot() []*PendingMatch {
	out := make([]*PendingMatch, 0, len(om.matches))
	for _, m := range om.matches {
		if !m.Status.Terminal() {
			out = append(out, m)
		}
	}
	return out
}

// Restore reinstalls snapshot state wholesale.
func (om *OrderManager) Restore(orders []*Order, matches []*PendingMatch) {
	om.orders = make(map[[32]byte]*Order, len(orders))
	for _, o := range orders {
		om.orders[o.OrderID] = o
	}
	om.matches = make(map[mpc.RequestID]*PendingMatch, len(matches))
	for _, m := range matches {
		om.matches[m.RequestID] = m
	}
}

// Snapshot returns all orders in unspecified iteration order. Callers
// needing determinism sort by id.
func (om *OrderManager) Snapshot() []*Order {
	out := make([]*Order, 0, len(om.orders))
	for _, o := range om.orders {
		out = append(out, o)
	}
	return out
}
