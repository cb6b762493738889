package event

import (
	"fmt"
)

// OraclePriceUpdate carries a validated mark price observation for a
// market. Prices are public data; only position contents are private.
type OraclePriceUpdate struct {
	Market      string
	Price       int64 // Fixed-point: price scale
	Confidence  int64 // Same scale as Price
	PublishedAt int64 // Epoch seconds at the oracle
	Sequence    int64
	Timestamp   int64
}

func (o *OraclePriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("oracle:%s:%d", o.Market, o.Sequence)
}

func (o *OraclePriceUpdate) EventType() EventType {
	return EventTypeOraclePriceUpdate
}

func (o *OraclePriceUpdate) MarketID() *string {
	s := o.Market
	return &s
}

func (o *OraclePriceUpdate) SourceSequence() int64 {
	return o.Sequence
}

// MarketParamUpdate mutates a market's risk and fee parameters. When
// received, the core swaps the in-memory params; open entities keep the
// thresholds they were verified under until re-verified.
type MarketParamUpdate struct {
	Market                  string
	MaxLeverage             uint8
	MaintenanceMarginBps    int64
	TakerFeeBps             int64
	LiquidationBonusBps     int64
	InsuranceFundShareBps   int64
	MaxLiquidationPerTx     int64
	MinLiquidationThreshold int64
	ADLTriggerThreshold     int64
	EffectiveSeq            int64
	Sequence                int64
	Timestamp               int64
}

func (m *MarketParamUpdate) IdempotencyKey() string {
	return fmt.Sprintf("market_param:%s:%d", m.Market, m.EffectiveSeq)
}

func (m *MarketParamUpdate) EventType() EventType {
	return EventTypeMarketParamUpdate
}

func (m *MarketParamUpdate) MarketID() *string {
	s := m.Market
	return &s
}

func (m *MarketParamUpdate) SourceSequence() int64 {
	return m.Sequence
}

// FundingIndexUpdate advances a market's cumulative funding indexes by
// one epoch. Longs and shorts move by separate deltas so a skewed book
// can be charged asymmetrically.
type FundingIndexUpdate struct {
	Market     string
	LongDelta  int64 // Fixed-point: rate scale
	ShortDelta int64
	Epoch      int64
	Sequence   int64
	Timestamp  int64
}

func (f *FundingIndexUpdate) IdempotencyKey() string {
	return fmt.Sprintf("funding_index:%s:%d", f.Market, f.Epoch)
}

func (f *FundingIndexUpdate) EventType() EventType {
	return EventTypeFundingIndexUpdate
}

func (f *FundingIndexUpdate) MarketID() *string {
	s := f.Market
	return &s
}

func (f *FundingIndexUpdate) SourceSequence() int64 {
	return f.Sequence
}

// PauseUpdate flips the exchange-wide pause flag. While paused, order
// placement, matching and position opening are rejected; callbacks and
// settlement completion still run so in-flight work can drain.
type PauseUpdate struct {
	Paused    bool
	Sequence  int64
	Timestamp int64
}

func (p *PauseUpdate) IdempotencyKey() string {
	return fmt.Sprintf("pause:%d", p.Sequence)
}

func (p *PauseUpdate) EventType() EventType {
	return EventTypePauseUpdate
}

func (p *PauseUpdate) MarketID() *string {
	return nil
}

func (p *PauseUpdate) SourceSequence() int64 {
	return p.Sequence
}
