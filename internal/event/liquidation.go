package event

import (
	"time"

	"github.com/google/uuid"
)

// LiquidatePosition executes a liquidation of a position the batch engine
// has already flagged. Thresholds must be verified and unexpired.
type LiquidatePosition struct {
	InstructionID uuid.UUID
	Liquidator    uuid.UUID
	Market        string
	PositionID    [32]byte
	InstrSequence int64
	Timestamp     time.Time
}

func (l *LiquidatePosition) IdempotencyKey() string { return l.InstructionID.String() }
func (l *LiquidatePosition) EventType() EventType   { return EventTypeLiquidatePosition }
func (l *LiquidatePosition) MarketID() *string      { m := l.Market; return &m }
func (l *LiquidatePosition) SourceSequence() int64  { return l.InstrSequence }

// AutoDeleverage absorbs a bankrupt position's loss into an opposite-side
// profitable position. Valid only while the insurance fund sits below its
// trigger threshold.
type AutoDeleverage struct {
	InstructionID    uuid.UUID
	Market           string
	BankruptPosition [32]byte
	TargetPosition   [32]byte
	InstrSequence    int64
	Timestamp        time.Time
}

func (a *AutoDeleverage) IdempotencyKey() string { return a.InstructionID.String() }
func (a *AutoDeleverage) EventType() EventType   { return EventTypeAutoDeleverage }
func (a *AutoDeleverage) MarketID() *string      { m := a.Market; return &m }
func (a *AutoDeleverage) SourceSequence() int64  { return a.InstrSequence }

// CheckLiquidationBatch asks the collaborator set whether up to ten
// positions are under water at the current validated mark price.
type CheckLiquidationBatch struct {
	InstructionID uuid.UUID
	Market        string
	PositionIDs   [][32]byte
	InstrSequence int64
	Timestamp     time.Time
}

func (c *CheckLiquidationBatch) IdempotencyKey() string { return c.InstructionID.String() }
func (c *CheckLiquidationBatch) EventType() EventType   { return EventTypeCheckLiquidationBatch }
func (c *CheckLiquidationBatch) MarketID() *string      { m := c.Market; return &m }
func (c *CheckLiquidationBatch) SourceSequence() int64  { return c.InstrSequence }
