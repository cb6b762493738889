package core

import (
	"time"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/state"
)

// ============================================================================
// Admin / Market Data Handlers
// ============================================================================

// handleOraclePriceUpdate caches a mark price observation. Validation
// against staleness and confidence bounds happens when the price is read,
// against the reading event's timestamp, so replay stays deterministic.
func (e *Engine) handleOraclePriceUpdate(ev *event.OraclePriceUpdate) (*Result, error) {
	if e.prices != nil {
		e.prices.Observe(ev.Market, ev.Price, ev.Confidence, time.Unix(ev.PublishedAt, 0).UTC(), ev.Sequence)
	}
	e.markets.ObserveMarkPrice(ev.Market, ev.Price, ev.Sequence)
	return &Result{}, nil
}

func (e *Engine) handleMarketParamUpdate(ev *event.MarketParamUpdate) (*Result, error) {
	params := &state.MarketParams{
		Market:                  ev.Market,
		MaxLeverage:             ev.MaxLeverage,
		MaintenanceMarginBps:    ev.MaintenanceMarginBps,
		TakerFeeBps:             ev.TakerFeeBps,
		LiquidationBonusBps:     ev.LiquidationBonusBps,
		InsuranceFundShareBps:   ev.InsuranceFundShareBps,
		MaxLiquidationPerTx:     ev.MaxLiquidationPerTx,
		MinLiquidationThreshold: ev.MinLiquidationThreshold,
		ADLTriggerThreshold:     ev.ADLTriggerThreshold,
		EffectiveSeq:            ev.EffectiveSeq,
	}
	if err := e.markets.UpdateParams(params); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

// handleFundingIndexUpdate advances a market's cumulative funding
// indexes. Positions pick the delta up lazily on their next funding
// settlement; nothing per-position happens here.
func (e *Engine) handleFundingIndexUpdate(ev *event.FundingIndexUpdate) (*Result, error) {
	ms, ok := e.markets.Get(ev.Market)
	if !ok {
		return nil, state.ErrUnknownMarket
	}
	ms.CumulativeFundingLong += ev.LongDelta
	ms.CumulativeFundingShort += ev.ShortDelta
	return &Result{}, nil
}

func (e *Engine) handlePauseUpdate(ev *event.PauseUpdate) (*Result, error) {
	e.markets.SetPaused(ev.Paused)
	return &Result{}, nil
}
