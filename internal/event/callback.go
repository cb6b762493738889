package event

import (
	"encoding/hex"
	"time"

	"ShadowSettle/internal/mpc"
)

// Callback events are the only path that applies collaborator-computed
// results. Each carries the request id it answers; handlers reject any id
// that does not match the entity's stored pending id.

// MatchCallback answers a batched compare+fill request. On a price cross
// the collaborators return the accumulated filled ciphertexts and reveal
// only the fully-filled flags; no amount is revealed either way.
type MatchCallback struct {
	RequestID     mpc.RequestID
	Pair          string
	BuyOrderID    [32]byte
	SellOrderID   [32]byte
	PriceCrossed  bool
	NewBuyFilled  mpc.Ciphertext
	NewSellFilled mpc.Ciphertext
	BuyDone       bool
	SellDone      bool
	Success       bool
	CbSequence    int64
	Timestamp     time.Time
}

func (m *MatchCallback) IdempotencyKey() string {
	return "match-cb:" + hex.EncodeToString(m.RequestID[:])
}
func (m *MatchCallback) EventType() EventType  { return EventTypeMatchCallback }
func (m *MatchCallback) MarketID() *string     { p := m.Pair; return &p }
func (m *MatchCallback) SourceSequence() int64 { return m.CbSequence }

// ThresholdCallback delivers freshly computed liquidation thresholds and
// the commitment binding them to the position parameters.
type ThresholdCallback struct {
	RequestID         mpc.RequestID
	Market            string
	PositionID        [32]byte
	EncryptedLiqBelow mpc.Ciphertext
	EncryptedLiqAbove mpc.Ciphertext
	Commitment        [32]byte
	Success           bool
	CbSequence        int64
	Timestamp         time.Time
}

func (t *ThresholdCallback) IdempotencyKey() string {
	return "threshold-cb:" + hex.EncodeToString(t.RequestID[:])
}
func (t *ThresholdCallback) EventType() EventType  { return EventTypeThresholdCallback }
func (t *ThresholdCallback) MarketID() *string     { m := t.Market; return &m }
func (t *ThresholdCallback) SourceSequence() int64 { return t.CbSequence }

// MarginCallback applies a collateral adjustment together with the
// refreshed thresholds it implies.
type MarginCallback struct {
	RequestID           mpc.RequestID
	Market              string
	PositionID          [32]byte
	EncryptedCollateral mpc.Ciphertext
	EncryptedLiqBelow   mpc.Ciphertext
	EncryptedLiqAbove   mpc.Ciphertext
	Commitment          [32]byte
	Success             bool
	CbSequence          int64
	Timestamp           time.Time
}

func (m *MarginCallback) IdempotencyKey() string {
	return "margin-cb:" + hex.EncodeToString(m.RequestID[:])
}
func (m *MarginCallback) EventType() EventType  { return EventTypeMarginCallback }
func (m *MarginCallback) MarketID() *string     { mk := m.Market; return &mk }
func (m *MarginCallback) SourceSequence() int64 { return m.CbSequence }

// FundingCallback applies the funding charge computed over the encrypted
// position size. The same circuit recomputes the liquidation thresholds
// from the post-funding collateral so the position re-verifies in one
// round trip.
type FundingCallback struct {
	RequestID           mpc.RequestID
	Market              string
	PositionID          [32]byte
	EncryptedCollateral mpc.Ciphertext
	EncryptedLiqBelow   mpc.Ciphertext
	EncryptedLiqAbove   mpc.Ciphertext
	Commitment          [32]byte
	Success             bool
	CbSequence          int64
	Timestamp           time.Time
}

func (f *FundingCallback) IdempotencyKey() string {
	return "funding-cb:" + hex.EncodeToString(f.RequestID[:])
}
func (f *FundingCallback) EventType() EventType  { return EventTypeFundingCallback }
func (f *FundingCallback) MarketID() *string     { m := f.Market; return &m }
func (f *FundingCallback) SourceSequence() int64 { return f.CbSequence }

// CloseCallback finishes a position close. The payout is revealed by the
// collaborators because the transfer engine needs a plaintext amount; the
// remaining size and collateral stay encrypted for partial closes.
// Liquidation closes additionally reveal the notional so the bonus and
// insurance split can be computed in plaintext; it is zero otherwise.
type CloseCallback struct {
	RequestID           mpc.RequestID
	Market              string
	PositionID          [32]byte
	EncryptedSize       mpc.Ciphertext
	EncryptedCollateral mpc.Ciphertext
	RevealedPayout      int64
	RevealedNotional    int64
	Success             bool
	CbSequence          int64
	Timestamp           time.Time
}

func (c *CloseCallback) IdempotencyKey() string {
	return "close-cb:" + hex.EncodeToString(c.RequestID[:])
}
func (c *CloseCallback) EventType() EventType  { return EventTypeCloseCallback }
func (c *CloseCallback) MarketID() *string     { m := c.Market; return &m }
func (c *CloseCallback) SourceSequence() int64 { return c.CbSequence }

// LiquidationBatchCallback answers a batched under-water check with one
// eligibility bit per submitted position. Priorities carries the revealed
// deleverage ranking for the same positions, zero for any position that
// is not in profit; it is index-aligned with Results.
type LiquidationBatchCallback struct {
	RequestID  mpc.RequestID
	Market     string
	Results    []bool
	Priorities []int64
	Completed  bool
	Success    bool
	CbSequence int64
	Timestamp  time.Time
}

func (l *LiquidationBatchCallback) IdempotencyKey() string {
	return "liq-batch-cb:" + hex.EncodeToString(l.RequestID[:])
}
func (l *LiquidationBatchCallback) EventType() EventType  { return EventTypeLiquidationBatchCallback }
func (l *LiquidationBatchCallback) MarketID() *string     { m := l.Market; return &m }
func (l *LiquidationBatchCallback) SourceSequence() int64 { return l.CbSequence }
