package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota

	// Instructions (client or crank initiated)
	EventTypePlaceOrder
	EventTypeCancelOrder
	EventTypeMatchOrders
	EventTypeInitiateSettlement
	EventTypeRecordTransfer
	EventTypeFinalizeSettlement
	EventTypeFailSettlement
	EventTypeExpireSettlement
	EventTypeOpenPosition
	EventTypeAddMargin
	EventTypeRemoveMargin
	EventTypeSettleFunding
	EventTypeClosePosition
	EventTypeLiquidatePosition
	EventTypeAutoDeleverage
	EventTypeCheckLiquidationBatch
	EventTypeForceClearPosition

	// MPC collaborator callbacks
	EventTypeMatchCallback
	EventTypeThresholdCallback
	EventTypeMarginCallback
	EventTypeFundingCallback
	EventTypeCloseCallback
	EventTypeLiquidationBatchCallback

	// Admin / market data
	EventTypeOraclePriceUpdate
	EventTypeMarketParamUpdate
	EventTypeFundingIndexUpdate
	EventTypePauseUpdate
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Pair or market context (nullable for global events)
	MarketID *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MarketID returns the pair/market context (nil for global events)
	MarketID() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

// CoarseTime buckets a timestamp down to the hour. Outbound events carry
// only coarse timestamps so observers cannot correlate activity by exact
// submission time.
func CoarseTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

func (et EventType) String() string {
	switch et {
	case EventTypePlaceOrder:
		return "PlaceOrder"
	case EventTypeCancelOrder:
		return "CancelOrder"
	case EventTypeMatchOrders:
		return "MatchOrders"
	case EventTypeInitiateSettlement:
		return "InitiateSettlement"
	case EventTypeRecordTransfer:
		return "RecordTransfer"
	case EventTypeFinalizeSettlement:
		return "FinalizeSettlement"
	case EventTypeFailSettlement:
		return "FailSettlement"
	case EventTypeExpireSettlement:
		return "ExpireSettlement"
	case EventTypeOpenPosition:
		return "OpenPosition"
	case EventTypeAddMargin:
		return "AddMargin"
	case EventTypeRemoveMargin:
		return "RemoveMargin"
	case EventTypeSettleFunding:
		return "SettleFunding"
	case EventTypeClosePosition:
		return "ClosePosition"
	case EventTypeLiquidatePosition:
		return "LiquidatePosition"
	case EventTypeAutoDeleverage:
		return "AutoDeleverage"
	case EventTypeCheckLiquidationBatch:
		return "CheckLiquidationBatch"
	case EventTypeForceClearPosition:
		return "ForceClearPosition"
	case EventTypeMatchCallback:
		return "MatchCallback"
	case EventTypeThresholdCallback:
		return "ThresholdCallback"
	case EventTypeMarginCallback:
		return "MarginCallback"
	case EventTypeFundingCallback:
		return "FundingCallback"
	case EventTypeCloseCallback:
		return "CloseCallback"
	case EventTypeLiquidationBatchCallback:
		return "LiquidationBatchCallback"
	case EventTypeOraclePriceUpdate:
		return "OraclePriceUpdate"
	case EventTypeMarketParamUpdate:
		return "MarketParamUpdate"
	case EventTypeFundingIndexUpdate:
		return "FundingIndexUpdate"
	case EventTypePauseUpdate:
		return "PauseUpdate"
	default:
		return "Unknown"
	}
}
