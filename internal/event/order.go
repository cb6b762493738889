package event

import (
	"time"

	"github.com/google/uuid"

	"ShadowSettle/internal/mpc"
)

// Side represents order direction
type Side int32

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// OrderType represents limit vs market execution
type OrderType int32

const (
	OrderTypeLimit OrderType = iota
	OrderTypeMarket
)

// PlaceOrder submits a new confidential order. The amount and price arrive
// as opaque ciphertext handles; the eligibility proof is checked
// synchronously before any state is created.
// Idempotency key: instruction_id.
type PlaceOrder struct {
	InstructionID   uuid.UUID
	Maker           uuid.UUID
	Pair            string
	OrderSide       Side
	OrderType       OrderType
	EncryptedAmount mpc.Ciphertext
	EncryptedPrice  mpc.Ciphertext
	ClientNonce     uint64
	Proof           []byte
	PublicInputs    [][]byte
	InstrSequence   int64
	Timestamp       time.Time
}

func (p *PlaceOrder) IdempotencyKey() string { return p.InstructionID.String() }
func (p *PlaceOrder) EventType() EventType   { return EventTypePlaceOrder }
func (p *PlaceOrder) MarketID() *string      { m := p.Pair; return &m }
func (p *PlaceOrder) SourceSequence() int64  { return p.InstrSequence }

// CancelOrder deactivates an order. Maker-only; rejected while a match is
// in flight.
type CancelOrder struct {
	InstructionID uuid.UUID
	Maker         uuid.UUID
	Pair          string
	OrderID       [32]byte
	InstrSequence int64
	Timestamp     time.Time
}

func (c *CancelOrder) IdempotencyKey() string { return c.InstructionID.String() }
func (c *CancelOrder) EventType() EventType   { return EventTypeCancelOrder }
func (c *CancelOrder) MarketID() *string      { m := c.Pair; return &m }
func (c *CancelOrder) SourceSequence() int64  { return c.InstrSequence }

// MatchOrders pairs a buy and a sell order and queues the batched
// compare+fill computation to the collaborator set.
type MatchOrders struct {
	InstructionID uuid.UUID
	Pair          string
	BuyOrderID    [32]byte
	SellOrderID   [32]byte
	InstrSequence int64
	Timestamp     time.Time
}

func (m *MatchOrders) IdempotencyKey() string { return m.InstructionID.String() }
func (m *MatchOrders) EventType() EventType   { return EventTypeMatchOrders }
func (m *MatchOrders) MarketID() *string      { p := m.Pair; return &p }
func (m *MatchOrders) SourceSequence() int64  { return m.InstrSequence }
