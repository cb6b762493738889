package state

import "errors"

// Typed errors per failure class. Gate and state-conflict failures reject
// synchronously with no mutation; async-correlation failures are logged
// and dropped; partial-failure routing is handled by the settlement
// machine itself.

// Gate failures
var (
	ErrEligibilityProofFailed  = errors.New("eligibility proof failed")
	ErrExchangePaused          = errors.New("exchange paused")
	ErrInvalidLeverage         = errors.New("leverage outside market bounds")
	ErrUnknownMarket           = errors.New("unknown market")
	ErrUnknownSettlementMethod = errors.New("unknown settlement method")
)

// State-conflict failures
var (
	ErrOperationPending     = errors.New("operation pending on entity")
	ErrOrderNotActive       = errors.New("order not active")
	ErrOrderExists          = errors.New("order already exists")
	ErrOrdersNotMatchable   = errors.New("orders not matchable")
	ErrNotMaker             = errors.New("caller is not the order maker")
	ErrFillNotConfirmed     = errors.New("order fill not confirmed")
	ErrPositionNotOpen      = errors.New("position not open")
	ErrPositionExists       = errors.New("position already exists")
	ErrThresholdNotVerified = errors.New("liquidation threshold not verified")
	ErrNotLiquidatable      = errors.New("position not flagged liquidatable")
	ErrMarginUnsafe         = errors.New("margin removal would breach maintenance threshold")
	ErrInsuranceFundHealthy = errors.New("insurance fund above deleverage trigger")
	ErrNoADLPriority        = errors.New("target position has no deleverage priority")
	ErrPendingNotStale      = errors.New("pending request not yet stale")
)

// Async-correlation failures
var (
	ErrInvalidMPCRequest    = errors.New("mpc request id mismatch")
	ErrBatchAlreadyComplete = errors.New("liquidation batch already completed")
	ErrBatchSizeMismatch    = errors.New("liquidation batch result count mismatch")
)

// Settlement failures
var (
	ErrSettlementNotFound      = errors.New("settlement not found")
	ErrInvalidStatusTransition = errors.New("invalid settlement status transition")
	ErrTransferAlreadyRecorded = errors.New("transfer leg already recorded")
	ErrSettlementNotExpired    = errors.New("settlement not yet expired")
	ErrSettlementExpired       = errors.New("settlement expired")
	ErrSettlementCannotFail    = errors.New("settlement past point of no return")
	ErrBatchTooLarge           = errors.New("liquidation batch exceeds limit")
)
