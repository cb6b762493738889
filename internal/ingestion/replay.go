package ingestion

import (
	"encoding/json"
	"fmt"

	"ShadowSettle/internal/event"
)

// DecodeStoredEvent turns an event-log payload back into the typed event it
// was marshalled from. Stored payloads are the core's own representation,
// not the NATS wire format, so replay bypasses ParseRawEvent entirely.
func DecodeStoredEvent(eventType string, data []byte) (event.Event, error) {
	var evt event.Event
	switch eventType {
	case "PlaceOrder":
		evt = &event.PlaceOrder{}
	case "CancelOrder":
		evt = &event.CancelOrder{}
	case "MatchOrders":
		evt = &event.MatchOrders{}
	case "InitiateSettlement":
		evt = &event.InitiateSettlement{}
	case "RecordTransfer":
		evt = &event.RecordTransfer{}
	case "FinalizeSettlement":
		evt = &event.FinalizeSettlement{}
	case "FailSettlement":
		evt = &event.FailSettlement{}
	case "ExpireSettlement":
		evt = &event.ExpireSettlement{}
	case "OpenPosition":
		evt = &event.OpenPosition{}
	case "AddMargin":
		evt = &event.AddMargin{}
	case "RemoveMargin":
		evt = &event.RemoveMargin{}
	case "SettleFunding":
		evt = &event.SettleFunding{}
	case "ClosePosition":
		evt = &event.ClosePosition{}
	case "ForceClearPosition":
		evt = &event.ForceClearPosition{}
	case "LiquidatePosition":
		evt = &event.LiquidatePosition{}
	case "AutoDeleverage":
		evt = &event.AutoDeleverage{}
	case "CheckLiquidationBatch":
		evt = &event.CheckLiquidationBatch{}
	case "MatchCallback":
		evt = &event.MatchCallback{}
	case "ThresholdCallback":
		evt = &event.ThresholdCallback{}
	case "MarginCallback":
		evt = &event.MarginCallback{}
	case "FundingCallback":
		evt = &event.FundingCallback{}
	case "CloseCallback":
		evt = &event.CloseCallback{}
	case "LiquidationBatchCallback":
		evt = &event.LiquidationBatchCallback{}
	case "OraclePriceUpdate":
		evt = &event.OraclePriceUpdate{}
	case "MarketParamUpdate":
		evt = &event.MarketParamUpdate{}
	case "FundingIndexUpdate":
		evt = &event.FundingIndexUpdate{}
	case "PauseUpdate":
		evt = &event.PauseUpdate{}
	default:
		return nil, fmt.Errorf("unknown stored event type %q", eventType)
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode stored %s: %w", eventType, err)
	}
	return evt, nil
}
