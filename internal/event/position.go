package event

import (
	"time"

	"github.com/google/uuid"

	"ShadowSettle/internal/mpc"
)

// OpenPosition creates a confidential position. Collateral moves
// synchronously through the transfer engine; liquidation thresholds start
// zeroed and unverified until the initial threshold callback lands.
type OpenPosition struct {
	InstructionID  uuid.UUID
	Trader         uuid.UUID
	Market         string
	PositionSide   Side
	Leverage       uint8
	EncryptedSize  mpc.Ciphertext
	EncryptedEntry mpc.Ciphertext
	// Collateral moves synchronously in plaintext; the ciphertext is the
	// client-sealed handle of the same amount for later private arithmetic.
	EncryptedCollateral mpc.Ciphertext
	CollateralAmount    int64
	ClientNonce         uint64
	Proof               []byte
	PublicInputs        [][]byte
	InstrSequence       int64
	Timestamp           time.Time
}

func (o *OpenPosition) IdempotencyKey() string { return o.InstructionID.String() }
func (o *OpenPosition) EventType() EventType   { return EventTypeOpenPosition }
func (o *OpenPosition) MarketID() *string      { m := o.Market; return &m }
func (o *OpenPosition) SourceSequence() int64  { return o.InstrSequence }

// AddMargin queues an encrypted collateral increase.
type AddMargin struct {
	InstructionID uuid.UUID
	Trader        uuid.UUID
	Market        string
	PositionID    [32]byte
	Amount        int64
	InstrSequence int64
	Timestamp     time.Time
}

func (a *AddMargin) IdempotencyKey() string { return a.InstructionID.String() }
func (a *AddMargin) EventType() EventType   { return EventTypeAddMargin }
func (a *AddMargin) MarketID() *string      { m := a.Market; return &m }
func (a *AddMargin) SourceSequence() int64  { return a.InstrSequence }

// RemoveMargin queues an encrypted collateral decrease. A public safety
// check against the current mark price runs before the request is queued.
type RemoveMargin struct {
	InstructionID uuid.UUID
	Trader        uuid.UUID
	Market        string
	PositionID    [32]byte
	Amount        int64
	InstrSequence int64
	Timestamp     time.Time
}

func (r *RemoveMargin) IdempotencyKey() string { return r.InstructionID.String() }
func (r *RemoveMargin) EventType() EventType   { return EventTypeRemoveMargin }
func (r *RemoveMargin) MarketID() *string      { m := r.Market; return &m }
func (r *RemoveMargin) SourceSequence() int64  { return r.InstrSequence }

// SettleFunding applies the public cumulative funding delta to a position.
// Zero delta is a no-op.
type SettleFunding struct {
	InstructionID uuid.UUID
	Market        string
	PositionID    [32]byte
	InstrSequence int64
	Timestamp     time.Time
}

func (s *SettleFunding) IdempotencyKey() string { return s.InstructionID.String() }
func (s *SettleFunding) EventType() EventType   { return EventTypeSettleFunding }
func (s *SettleFunding) MarketID() *string      { m := s.Market; return &m }
func (s *SettleFunding) SourceSequence() int64  { return s.InstrSequence }

// ClosePosition begins a full or partial close. PnL and funding owed are
// computed by the collaborator set over the ciphertext handles.
type ClosePosition struct {
	InstructionID      uuid.UUID
	Trader             uuid.UUID
	Market             string
	PositionID         [32]byte
	Full               bool
	EncryptedCloseSize mpc.Ciphertext
	EncryptedExitPrice mpc.Ciphertext
	InstrSequence      int64
	Timestamp          time.Time
}

func (c *ClosePosition) IdempotencyKey() string { return c.InstructionID.String() }
func (c *ClosePosition) EventType() EventType   { return EventTypeClosePosition }
func (c *ClosePosition) MarketID() *string      { m := c.Market; return &m }
func (c *ClosePosition) SourceSequence() int64  { return c.InstrSequence }

// ForceClearPosition is permissionless recovery for positions stuck in a
// pending sub-state past the staleness deadline. It clears the markers and
// re-flags thresholds; it never applies a result.
type ForceClearPosition struct {
	InstructionID uuid.UUID
	Market        string
	PositionID    [32]byte
	InstrSequence int64
	Timestamp     time.Time
}

func (f *ForceClearPosition) IdempotencyKey() string { return f.InstructionID.String() }
func (f *ForceClearPosition) EventType() EventType   { return EventTypeForceClearPosition }
func (f *ForceClearPosition) MarketID() *string      { m := f.Market; return &m }
func (f *ForceClearPosition) SourceSequence() int64  { return f.InstrSequence }
