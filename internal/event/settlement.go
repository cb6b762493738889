package event

import (
	"time"

	"github.com/google/uuid"
)

// TransferLeg identifies which half of a two-phase settlement a recorded
// transfer belongs to.
type TransferLeg int32

const (
	TransferLegUnknown TransferLeg = iota
	TransferLegBase
	TransferLegQuote
)

func (l TransferLeg) String() string {
	switch l {
	case TransferLegBase:
		return "Base"
	case TransferLegQuote:
		return "Quote"
	default:
		return "Unknown"
	}
}

// InitiateSettlement opens a two-phase settlement between two matched
// orders. Both orders must carry fill-confirmed ciphertext tags.
type InitiateSettlement struct {
	InstructionID uuid.UUID
	Pair          string
	BuyOrderID    [32]byte
	SellOrderID   [32]byte
	Method        string
	InstrSequence int64
	Timestamp     time.Time
}

func (i *InitiateSettlement) IdempotencyKey() string { return i.InstructionID.String() }
func (i *InitiateSettlement) EventType() EventType   { return EventTypeInitiateSettlement }
func (i *InitiateSettlement) MarketID() *string      { m := i.Pair; return &m }
func (i *InitiateSettlement) SourceSequence() int64  { return i.InstrSequence }

// RecordTransfer reports one completed transfer leg. A second report for
// an already-set leg fails rather than overwriting.
//
// When the rail exposes the plaintext fill terms (public SPL legs do, the
// confidential rails do not) the crank passes them along so the quote leg
// can carry a fee breakdown. Zero values mean the terms stayed sealed.
type RecordTransfer struct {
	InstructionID     uuid.UUID
	Pair              string
	SettlementID      [32]byte
	Leg               TransferLeg
	TransferID        uuid.UUID
	RevealedFillQty   int64
	RevealedFillPrice int64
	InstrSequence     int64
	Timestamp         time.Time
}

func (r *RecordTransfer) IdempotencyKey() string { return r.InstructionID.String() }
func (r *RecordTransfer) EventType() EventType   { return EventTypeRecordTransfer }
func (r *RecordTransfer) MarketID() *string      { m := r.Pair; return &m }
func (r *RecordTransfer) SourceSequence() int64  { return r.InstrSequence }

// FinalizeSettlement completes a settlement whose both legs transferred.
type FinalizeSettlement struct {
	InstructionID uuid.UUID
	Pair          string
	SettlementID  [32]byte
	InstrSequence int64
	Timestamp     time.Time
}

func (f *FinalizeSettlement) IdempotencyKey() string { return f.InstructionID.String() }
func (f *FinalizeSettlement) EventType() EventType   { return EventTypeFinalizeSettlement }
func (f *FinalizeSettlement) MarketID() *string      { m := f.Pair; return &m }
func (f *FinalizeSettlement) SourceSequence() int64  { return f.InstrSequence }

// FailSettlement aborts a settlement that has not passed the point of no
// return. With a base leg already recorded the settlement is routed to
// rollback instead of failing outright.
type FailSettlement struct {
	InstructionID uuid.UUID
	Pair          string
	SettlementID  [32]byte
	Reason        string
	InstrSequence int64
	Timestamp     time.Time
}

func (f *FailSettlement) IdempotencyKey() string { return f.InstructionID.String() }
func (f *FailSettlement) EventType() EventType   { return EventTypeFailSettlement }
func (f *FailSettlement) MarketID() *string      { m := f.Pair; return &m }
func (f *FailSettlement) SourceSequence() int64  { return f.InstrSequence }

// ExpireSettlement is permissionless; anyone may report a settlement past
// its deadline.
type ExpireSettlement struct {
	InstructionID uuid.UUID
	Pair          string
	SettlementID  [32]byte
	InstrSequence int64
	Timestamp     time.Time
}

func (e *ExpireSettlement) IdempotencyKey() string { return e.InstructionID.String() }
func (e *ExpireSettlement) EventType() EventType   { return EventTypeExpireSettlement }
func (e *ExpireSettlement) MarketID() *string      { m := e.Pair; return &m }
func (e *ExpireSettlement) SourceSequence() int64  { return e.InstrSequence }
