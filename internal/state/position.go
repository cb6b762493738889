package state

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/google/uuid"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/mpc"
)

// PositionPendingTimeoutSeconds is how long a pending sub-state may sit
// unanswered before anyone may force-clear it. Positions otherwise have
// no timeout and would block forever on a crank that never returns.
const PositionPendingTimeoutSeconds = 3600

// PositionStatus is the position lifecycle tag
type PositionStatus int32

const (
	PositionStatusOpen PositionStatus = iota
	PositionStatusPendingLiquidationCheck
	PositionStatusClosed
	PositionStatusLiquidated
	PositionStatusAutoDeleveraged
)

func (ps PositionStatus) String() string {
	switch ps {
	case PositionStatusOpen:
		return "Open"
	case PositionStatusPendingLiquidationCheck:
		return "PendingLiquidationCheck"
	case PositionStatusClosed:
		return "Closed"
	case PositionStatusLiquidated:
		return "Liquidated"
	case PositionStatusAutoDeleveraged:
		return "AutoDeleveraged"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the position can never transition again.
func (ps PositionStatus) Terminal() bool {
	switch ps {
	case PositionStatusClosed, PositionStatusLiquidated, PositionStatusAutoDeleveraged:
		return true
	default:
		return false
	}
}

// CanTransitionTo validates position transitions
func (ps PositionStatus) CanTransitionTo(next PositionStatus) bool {
	validTransitions := map[PositionStatus][]PositionStatus{
		PositionStatusOpen: {
			PositionStatusPendingLiquidationCheck,
			PositionStatusClosed,
			PositionStatusLiquidated,
			PositionStatusAutoDeleveraged,
		},
		PositionStatusPendingLiquidationCheck: {
			PositionStatusOpen,
			PositionStatusLiquidated,
		},
	}

	allowed, ok := validTransitions[ps]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if next == s {
			return true
		}
	}
	return false
}

// PendingClose captures an in-flight close request. Liquidation closes
// set Liquidation and the liquidator identity so the callback knows to
// split the payout instead of returning it all to the holder.
type PendingClose struct {
	Active             bool
	Full               bool
	Liquidation        bool
	Liquidator         uuid.UUID
	EncryptedCloseSize mpc.Ciphertext
	EncryptedExitPrice mpc.Ciphertext
}

// PendingMargin captures an in-flight collateral adjustment. ForInsurance
// marks a deleverage absorption whose proceeds go to the insurance fund
// rather than back to the trader.
type PendingMargin struct {
	Amount       int64
	IsAdd        bool
	ForInsurance bool
}

// ConfidentialPosition is a leveraged position whose size, entry price,
// collateral, pnl and liquidation thresholds live only as ciphertext
// handles. Exactly one async operation may be outstanding at a time.
type ConfidentialPosition struct {
	PositionID [32]byte
	Trader     uuid.UUID
	Market     string
	Side       event.Side
	Leverage   uint8
	Status     PositionStatus

	EncryptedSize        mpc.Ciphertext
	EncryptedEntryPrice  mpc.Ciphertext
	EncryptedCollateral  mpc.Ciphertext
	EncryptedRealizedPnL mpc.Ciphertext
	EncryptedLiqBelow    mpc.Ciphertext
	EncryptedLiqAbove    mpc.Ciphertext

	ThresholdCommitment [32]byte
	ThresholdVerified   bool
	IsLiquidatable      bool  // Cached batch-engine verdict, advisory only
	ADLPriority         int64 // Revealed by batch checks; 0 when unprofitable

	PendingMPCRequest   mpc.RequestID
	PendingMargin       PendingMargin
	PendingClose        PendingClose
	PendingFundingDelta int64
	PendingSince        int64 // Epoch seconds the marker was set; 0 when idle

	EntryCumulativeFunding int64
	RequestNonce           uint64 // Monotonic per position, feeds the correlator

	CreatedAt int64
	Version   int64
}

// DerivePositionID produces the hash-based position identifier.
func DerivePositionID(trader uuid.UUID, market string, clientNonce uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte("ShadowSettle:position:v1"))
	h.Write(trader[:])
	h.Write([]byte{byte(len(market))})
	h.Write([]byte(market))
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], clientNonce)
	h.Write(nonce[:])

	var id [32]byte
	copy(id[:], h.Sum(nil))
	return id
}

// DeriveThresholdCommitment binds liquidation thresholds to the
// parameters they were computed from. A mismatch at use time means the
// thresholds were tampered with or are stale.
func DeriveThresholdCommitment(entryPrice mpc.Ciphertext, leverage uint8, maintenanceMarginBps int64, side event.Side) [32]byte {
	h := sha256.New()
	h.Write([]byte("ShadowSettle:threshold:v1"))
	h.Write(entryPrice[:])
	h.Write([]byte{leverage})
	var mm [8]byte
	binary.LittleEndian.PutUint64(mm[:], uint64(maintenanceMarginBps))
	h.Write(mm[:])
	h.Write([]byte{byte(side)})

	var c [32]byte
	copy(c[:], h.Sum(nil))
	return c
}

// SideSign returns +1 for long, -1 for short
func (p *ConfidentialPosition) SideSign() int64 {
	switch p.Side {
	case event.SideBuy:
		return 1
	case event.SideSell:
		return -1
	default:
		return 0
	}
}

// HasPendingOp reports whether any async operation is outstanding.
func (p *ConfidentialPosition) HasPendingOp() bool {
	return !p.PendingMPCRequest.IsZero() || p.PendingClose.Active
}

// NextRequestID mints the correlator id for a new async operation.
func (p *ConfidentialPosition) NextRequestID() mpc.RequestID {
	p.RequestNonce++
	return mpc.NewRequestID(p.PositionID, p.RequestNonce)
}

// BeginOp sets the pending marker. Fails fast when one is already set.
func (p *ConfidentialPosition) BeginOp(reqID mpc.RequestID, now int64) error {
	if p.HasPendingOp() {
		return ErrOperationPending
	}
	p.PendingMPCRequest = reqID
	p.PendingSince = now
	p.Version++
	return nil
}

// ClearOp releases all pending markers.
func (p *ConfidentialPosition) ClearOp() {
	p.PendingMPCRequest = mpc.RequestID{}
	p.PendingMargin = PendingMargin{}
	p.PendingClose = PendingClose{}
	p.PendingFundingDelta = 0
	p.PendingSince = 0
	p.Version++
}

// PendingStale reports whether the outstanding marker is old enough for
// permissionless force-clear.
func (p *ConfidentialPosition) PendingStale(now int64) bool {
	return p.HasPendingOp() && p.PendingSince > 0 &&
		now-p.PendingSince >= PositionPendingTimeoutSeconds
}

// VerifyCallback checks a presented request id against the stored
// pending id. A zero stored id never matches.
func (p *ConfidentialPosition) VerifyCallback(presented mpc.RequestID) error {
	if !p.PendingMPCRequest.Matches(presented) {
		return ErrInvalidMPCRequest
	}
	return nil
}

// MarkThresholdsStale flags the thresholds unusable until the next
// threshold callback. Liquidation and margin removal block meanwhile.
func (p *ConfidentialPosition) MarkThresholdsStale() {
	p.ThresholdVerified = false
	p.IsLiquidatable = false
	p.ADLPriority = 0
	p.Version++
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *ConfidentialPosition) CanonicalBytes() []byte {
	buf := make([]byte, 0, 640)

	buf = append(buf, p.PositionID[:]...)
	buf = append(buf, p.Trader[:]...)
	buf = append(buf, byte(len(p.Market)))
	buf = append(buf, []byte(p.Market)...)
	buf = append(buf, byte(p.Side), p.Leverage, byte(p.Status))
	buf = append(buf, p.EncryptedSize[:]...)
	buf = append(buf, p.EncryptedEntryPrice[:]...)
	buf = append(buf, p.EncryptedCollateral[:]...)
	buf = append(buf, p.EncryptedRealizedPnL[:]...)
	buf = append(buf, p.EncryptedLiqBelow[:]...)
	buf = append(buf, p.EncryptedLiqAbove[:]...)
	buf = append(buf, p.ThresholdCommitment[:]...)
	buf = append(buf, boolByte(p.ThresholdVerified), boolByte(p.IsLiquidatable))
	buf = appendInt64LE(buf, p.ADLPriority)
	buf = append(buf, p.PendingMPCRequest[:]...)
	buf = appendInt64LE(buf, p.PendingMargin.Amount)
	buf = append(buf, boolByte(p.PendingMargin.IsAdd), boolByte(p.PendingMargin.ForInsurance))
	buf = append(buf, boolByte(p.PendingClose.Active), boolByte(p.PendingClose.Full))
	buf = append(buf, boolByte(p.PendingClose.Liquidation))
	buf = append(buf, p.PendingClose.Liquidator[:]...)
	buf = append(buf, p.PendingClose.EncryptedCloseSize[:]...)
	buf = append(buf, p.PendingClose.EncryptedExitPrice[:]...)
	buf = appendInt64LE(buf, p.PendingFundingDelta)
	buf = appendInt64LE(buf, p.PendingSince)
	buf = appendInt64LE(buf, p.EntryCumulativeFunding)
	buf = appendInt64LE(buf, p.CreatedAt)

	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
