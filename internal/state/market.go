package state

import "fmt"

// MarketParams defines risk, fee and liquidation parameters per market.
// Params are public data; only per-entity amounts are confidential.
type MarketParams struct {
	Market                  string
	MaxLeverage             uint8
	MaintenanceMarginBps    int64 // Basis points of notional
	TakerFeeBps             int64
	LiquidationBonusBps     int64
	InsuranceFundShareBps   int64
	MaxLiquidationPerTx     int64 // Quote scale cap on the liquidator bonus
	MinLiquidationThreshold int64 // Notional floor below which liquidation is skipped
	ADLTriggerThreshold     int64 // Insurance fund balance below which ADL opens
	EffectiveSeq            int64
}

// DefaultMarketParams seeds the manager until admin updates land.
var DefaultMarketParams = map[string]*MarketParams{
	"BTC-USDC": {
		Market:                  "BTC-USDC",
		MaxLeverage:             20,
		MaintenanceMarginBps:    500, // 5%
		TakerFeeBps:             10,
		LiquidationBonusBps:     100,
		InsuranceFundShareBps:   5_000,
		MaxLiquidationPerTx:     100_000_000_000, // 100k quote
		MinLiquidationThreshold: 10_000_000,      // 10 quote
		ADLTriggerThreshold:     1_000_000_000,
		EffectiveSeq:            0,
	},
	"ETH-USDC": {
		Market:                  "ETH-USDC",
		MaxLeverage:             20,
		MaintenanceMarginBps:    500,
		TakerFeeBps:             10,
		LiquidationBonusBps:     100,
		InsuranceFundShareBps:   5_000,
		MaxLiquidationPerTx:     100_000_000_000,
		MinLiquidationThreshold: 10_000_000,
		ADLTriggerThreshold:     1_000_000_000,
		EffectiveSeq:            0,
	},
}

// MarketState carries the mutable per-market aggregates.
type MarketState struct {
	Params MarketParams

	// Cumulative funding indexes, RateConfig scale, split by side
	CumulativeFundingLong  int64
	CumulativeFundingShort int64

	InsuranceFund  int64
	OpenOrderCount int64
	LastMarkPrice  int64
	LastMarkSeq    int64
}

// CumulativeFunding returns the side-appropriate funding index.
func (ms *MarketState) CumulativeFunding(sideSign int64) int64 {
	if sideSign >= 0 {
		return ms.CumulativeFundingLong
	}
	return ms.CumulativeFundingShort
}

// ADLOpen reports whether the insurance fund has fallen below the
// auto-deleverage trigger.
func (ms *MarketState) ADLOpen() bool {
	return ms.InsuranceFund < ms.Params.ADLTriggerThreshold
}

// MarketManager holds per-market state and the exchange pause flag.
type MarketManager struct {
	markets map[string]*MarketState
	paused  bool
}

func NewMarketManager() *MarketManager {
	markets := make(map[string]*MarketState)
	for k, v := range DefaultMarketParams {
		p := *v
		markets[k] = &MarketState{Params: p}
	}
	return &MarketManager{markets: markets}
}

func (mm *MarketManager) Get(market string) (*MarketState, bool) {
	ms, ok := mm.markets[market]
	return ms, ok
}

func (mm *MarketManager) Paused() bool {
	return mm.paused
}

func (mm *MarketManager) SetPaused(paused bool) {
	mm.paused = paused
}

// Snapshot returns all market states in unspecified order.
func (mm *MarketManager) Snapshot() []*MarketState {
	out := make([]*MarketState, 0, len(mm.markets))
	for _, ms := range mm.markets {
		out = append(out, ms)
	}
	return out
}

// Restore reinstalls snapshot state wholesale.
func (mm *MarketManager) Restore(markets []*MarketState, paused bool) {
	mm.markets = make(map[string]*MarketState, len(markets))
	for _, ms := range markets {
		mm.markets[ms.Params.Market] = ms
	}
	mm.paused = paused
}

// ValidateMarketParams checks admin-supplied parameters before they are
// swapped in.
func ValidateMarketParams(params *MarketParams) error {
	if params.MaxLeverage == 0 {
		return fmt.Errorf("max_leverage must be > 0")
	}
	if params.MaintenanceMarginBps <= 0 || params.MaintenanceMarginBps >= 10_000 {
		return fmt.Errorf("maintenance_margin_bps out of range: %d", params.MaintenanceMarginBps)
	}
	if params.TakerFeeBps < 0 || params.TakerFeeBps >= 10_000 {
		return fmt.Errorf("taker_fee_bps out of range: %d", params.TakerFeeBps)
	}
	if params.LiquidationBonusBps < 0 || params.LiquidationBonusBps >= 10_000 {
		return fmt.Errorf("liquidation_bonus_bps out of range: %d", params.LiquidationBonusBps)
	}
	if params.InsuranceFundShareBps < 0 || params.InsuranceFundShareBps > 10_000 {
		return fmt.Errorf("insurance_fund_share_bps out of range: %d", params.InsuranceFundShareBps)
	}
	if params.MaxLiquidationPerTx <= 0 {
		return fmt.Errorf("max_liquidation_per_tx must be > 0")
	}
	if params.MinLiquidationThreshold < 0 {
		return fmt.Errorf("min_liquidation_threshold must be >= 0")
	}
	return nil
}

// UpdateParams swaps a market's parameters in place, creating the market
// if it is new. Open entities keep the thresholds they were verified
// under until the next threshold callback.
func (mm *MarketManager) UpdateParams(params *MarketParams) error {
	if err := ValidateMarketParams(params); err != nil {
		return fmt.Errorf("invalid market params for %s: %w", params.Market, err)
	}
	if ms, ok := mm.markets[params.Market]; ok {
		ms.Params = *params
		return nil
	}
	mm.markets[params.Market] = &MarketState{Params: *params}
	return nil
}

// ObserveMarkPrice caches the latest validated oracle observation.
// Out-of-order observations are dropped.
func (mm *MarketManager) ObserveMarkPrice(market string, price, seq int64) {
	ms, ok := mm.markets[market]
	if !ok {
		ms = &MarketState{Params: MarketParams{Market: market}}
		mm.markets[market] = ms
	}
	if seq <= ms.LastMarkSeq {
		return
	}
	ms.LastMarkPrice = price
	ms.LastMarkSeq = seq
}
