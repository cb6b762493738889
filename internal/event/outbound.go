package event

import (
	"encoding/hex"
	"time"
)

// Outbound payloads are consumed off-platform by the crank and by clients.
// They carry only entity ids, participant identities, status tags and
// hour-bucketed timestamps. Confidential amounts, prices and position
// sizes never appear here; tests assert this against the marshalled JSON.
// Fee breakdowns for fills the crank revealed on a public rail are the one
// exception, since those terms are already on-chain plaintext.

// HexID renders a 32-byte entity id for outbound consumption.
func HexID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}

type OrderPlaced struct {
	OrderID    string    `json:"order_id"`
	Maker      string    `json:"maker"`
	Pair       string    `json:"pair"`
	Side       string    `json:"side"`
	OccurredAt time.Time `json:"occurred_at"`
}

type OrderCancelled struct {
	OrderID    string    `json:"order_id"`
	Pair       string    `json:"pair"`
	OccurredAt time.Time `json:"occurred_at"`
}

type MatchRequested struct {
	RequestID   string    `json:"request_id"`
	BuyOrderID  string    `json:"buy_order_id"`
	SellOrderID string    `json:"sell_order_id"`
	Pair        string    `json:"pair"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type MatchResolved struct {
	RequestID   string    `json:"request_id"`
	BuyOrderID  string    `json:"buy_order_id"`
	SellOrderID string    `json:"sell_order_id"`
	Pair        string    `json:"pair"`
	Outcome     string    `json:"outcome"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type SettlementStatusChanged struct {
	SettlementID string    `json:"settlement_id"`
	Pair         string    `json:"pair"`
	Status       string    `json:"status"`
	Method       string    `json:"method"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// SettlementFeesComputed carries the fee split of a quote leg whose fill
// terms the crank revealed from a public rail. Sealed fills never produce
// this payload.
type SettlementFeesComputed struct {
	SettlementID  string    `json:"settlement_id"`
	Pair          string    `json:"pair"`
	Method        string    `json:"method"`
	Notional      int64     `json:"notional"`
	TakerFee      int64     `json:"taker_fee"`
	SettlementFee int64     `json:"settlement_fee"`
	NetToSeller   int64     `json:"net_to_seller"`
	FeeRecipient  string    `json:"fee_recipient"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ManualInterventionRequired is emitted when a rollback itself times out.
// Operations teams alert on this subject.
type ManualInterventionRequired struct {
	SettlementID string    `json:"settlement_id"`
	Pair         string    `json:"pair"`
	Reason       string    `json:"reason"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type PositionOpened struct {
	PositionID string    `json:"position_id"`
	Trader     string    `json:"trader"`
	Market     string    `json:"market"`
	Side       string    `json:"side"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AwaitingVerification signals that a position needs its initial
// threshold computation from the collaborator set.
type AwaitingVerification struct {
	PositionID string    `json:"position_id"`
	Market     string    `json:"market"`
	RequestID  string    `json:"request_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type PositionStatusChanged struct {
	PositionID string    `json:"position_id"`
	Market     string    `json:"market"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FundingSettlementInitiated struct {
	PositionID   string    `json:"position_id"`
	Market       string    `json:"market"`
	RequestID    string    `json:"request_id"`
	FundingDelta int64     `json:"funding_delta"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type LiquidationEligibility struct {
	PositionID   string    `json:"position_id"`
	Market       string    `json:"market"`
	Liquidatable bool      `json:"liquidatable"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// StaleRequestCleared is emitted by the force-clear recovery path.
type StaleRequestCleared struct {
	PositionID string    `json:"position_id"`
	Market     string    `json:"market"`
	RequestID  string    `json:"request_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
