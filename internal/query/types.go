package query

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for lookups of unknown entity ids.
var ErrNotFound = errors.New("not found")

// OrderResponse represents an order for API queries. Encrypted fields are
// hex-encoded opaque handles; the query surface never decrypts anything.
type OrderResponse struct {
	OrderID             string    `json:"order_id"`
	Maker               uuid.UUID `json:"maker"`
	Pair                string    `json:"pair"`
	Side                int32     `json:"side"`
	OrderType           int32     `json:"order_type"`
	Status              int32     `json:"status"`
	EligibilityVerified bool      `json:"eligibility_verified"`
	EncryptedAmount     string    `json:"encrypted_amount"`
	EncryptedPrice      string    `json:"encrypted_price"`
	EncryptedFilled     string    `json:"encrypted_filled"`
	IsMatching          bool      `json:"is_matching"`
	CreatedAt           int64     `json:"created_at"`
	Version             int64     `json:"version"`
	AsOfSequence        int64     `json:"as_of_sequence"`
}

// SettlementResponse represents a settlement for API queries.
type SettlementResponse struct {
	SettlementID       string    `json:"settlement_id"`
	Pair               string    `json:"pair"`
	BuyOrderID         string    `json:"buy_order_id"`
	SellOrderID        string    `json:"sell_order_id"`
	Buyer              uuid.UUID `json:"buyer"`
	Seller             uuid.UUID `json:"seller"`
	Method             int32     `json:"method"`
	Status             int32     `json:"status"`
	BaseTransferID     uuid.UUID `json:"base_transfer_id"`
	BaseTransferSet    bool      `json:"base_transfer_set"`
	QuoteTransferID    uuid.UUID `json:"quote_transfer_id"`
	QuoteTransferSet   bool      `json:"quote_transfer_set"`
	ManualIntervention bool      `json:"manual_intervention"`
	CreatedAt          int64     `json:"created_at"`
	ExpiresAt          int64     `json:"expires_at"`
	Version            int64     `json:"version"`
	AsOfSequence       int64     `json:"as_of_sequence"`
}

// PositionResponse represents a position for API queries. Thresholds are
// deliberately omitted even as ciphertext; only the core and the
// collaborator set handle them.
type PositionResponse struct {
	PositionID             string    `json:"position_id"`
	Trader                 uuid.UUID `json:"trader"`
	Market                 string    `json:"market"`
	Side                   int32     `json:"side"`
	Leverage               int32     `json:"leverage"`
	Status                 int32     `json:"status"`
	EncryptedSize          string    `json:"encrypted_size"`
	EncryptedEntryPrice    string    `json:"encrypted_entry_price"`
	EncryptedCollateral    string    `json:"encrypted_collateral"`
	ThresholdVerified      bool      `json:"threshold_verified"`
	IsLiquidatable         bool      `json:"is_liquidatable"`
	ADLPriority            int64     `json:"adl_priority"`
	HasPendingOp           bool      `json:"has_pending_op"`
	PendingSince           int64     `json:"pending_since,omitempty"`
	EntryCumulativeFunding int64     `json:"entry_cumulative_funding"`
	CreatedAt              int64     `json:"created_at"`
	Version                int64     `json:"version"`
	AsOfSequence           int64     `json:"as_of_sequence"`
}

// EventResponse is one event-log row for audit consumers. The payload is
// omitted; auditors verifying the chain need only the hashes.
type EventResponse struct {
	Sequence       int64     `json:"sequence"`
	EventType      string    `json:"event_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	MarketID       *string   `json:"market_id,omitempty"`
	StateHash      string    `json:"state_hash"`
	PrevHash       string    `json:"prev_hash"`
	Timestamp      time.Time `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy           bool    `json:"is_healthy"`
	HashChainBreaks     []int64 `json:"hash_chain_breaks,omitempty"`
	ManualInterventions int64   `json:"manual_interventions"`
}
