package state

import (
	"crypto/sha256"

	"github.com/google/uuid"

	"ShadowSettle/internal/math"
	"ShadowSettle/internal/mpc"
	"ShadowSettle/internal/transfer"
)

// SettlementTTLSeconds bounds how long a settlement may sit non-terminal.
const SettlementTTLSeconds = 300

// SettlementStatus is the two-phase settlement lifecycle tag.
type SettlementStatus int32

const (
	SettlementStatusPending SettlementStatus = iota
	SettlementStatusBaseTransferred
	SettlementStatusQuoteTransferred
	SettlementStatusCompleted
	SettlementStatusFailed
	SettlementStatusRollingBack
	SettlementStatusExpired
)

func (ss SettlementStatus) String() string {
	switch ss {
	case SettlementStatusPending:
		return "Pending"
	case SettlementStatusBaseTransferred:
		return "BaseTransferred"
	case SettlementStatusQuoteTransferred:
		return "QuoteTransferred"
	case SettlementStatusCompleted:
		return "Completed"
	case SettlementStatusFailed:
		return "Failed"
	case SettlementStatusRollingBack:
		return "RollingBack"
	case SettlementStatusExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (ss SettlementStatus) Terminal() bool {
	switch ss {
	case SettlementStatusCompleted, SettlementStatusFailed, SettlementStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransitionTo validates settlement transitions. Status only moves
// forward on the happy path; RollingBack is the single sideways exit and
// resolves to Expired.
func (ss SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	validTransitions := map[SettlementStatus][]SettlementStatus{
		SettlementStatusPending: {
			SettlementStatusBaseTransferred,
			SettlementStatusFailed,
			SettlementStatusExpired,
		},
		SettlementStatusBaseTransferred: {
			SettlementStatusQuoteTransferred,
			SettlementStatusRollingBack,
		},
		SettlementStatusQuoteTransferred: {
			SettlementStatusCompleted,
			SettlementStatusExpired,
		},
		SettlementStatusRollingBack: {
			SettlementStatusExpired,
		},
	}

	allowed, ok := validTransitions[ss]
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

// SettlementRequest drives one matched pair through its two transfer
// legs. Encrypted fill fields are copied from the orders by value; the
// plaintext amounts never surface here.
type SettlementRequest struct {
	SettlementID        [32]byte
	Pair                string
	BuyOrderID          [32]byte
	SellOrderID         [32]byte
	Buyer               uuid.UUID
	Seller              uuid.UUID
	Method              transfer.Method
	Status              SettlementStatus
	EncryptedFillAmount mpc.Ciphertext
	EncryptedFillValue  mpc.Ciphertext
	BaseTransferID      uuid.UUID
	BaseTransferSet     bool
	QuoteTransferID     uuid.UUID
	QuoteTransferSet    bool
	Fees                math.FeeBreakdown
	FeesComputed        bool
	ManualIntervention  bool
	CreatedAt           int64 // Epoch seconds, versioned input
	ExpiresAt           int64
	Version             int64
}

// DeriveSettlementID binds the settlement identity to the order pair.
func DeriveSettlementID(buyOrderID, sellOrderID [32]byte, createdAt int64) [32]byte {
	h := sha256.New()
	h.Write([]byte("ShadowSettle:settlement:v1"))
	h.Write(buyOrderID[:])
	h.Write(sellOrderID[:])
	var buf []byte
	buf = appendInt64LE(buf, createdAt)
	h.Write(buf)

	var id [32]byte
	copy(id[:], h.Sum(nil))
	return id
}

// Expired reports whether the deadline has passed.
func (sr *SettlementRequest) Expired(now int64) bool {
	return now > sr.ExpiresAt
}

// CanFail reports whether an explicit failure report is still allowed.
func (sr *SettlementRequest) CanFail() bool {
	return sr.Status == SettlementStatusPending || sr.Status == SettlementStatusBaseTransferred
}

// RequiresRollback reports whether a partial transfer exists that must be
// reversed before any terminal state is reachable.
func (sr *SettlementRequest) RequiresRollback() bool {
	return sr.BaseTransferSet && !sr.QuoteTransferSet
}

// RecordTransfer stores one completed leg. The base leg is valid only
// from Pending, the quote leg only from BaseTransferred. Re-reporting a
// set leg fails rather than overwriting.
func (sr *SettlementRequest) RecordTransfer(leg transfer.Leg, transferID uuid.UUID, now int64) error {
	if sr.Expired(now) {
		return ErrSettlementExpired
	}

	switch leg {
	case transfer.LegBase:
		if sr.BaseTransferSet {
			return ErrTransferAlreadyRecorded
		}
		if sr.Status != SettlementStatusPending {
			return ErrInvalidStatusTransition
		}
		sr.BaseTransferID = transferID
		sr.BaseTransferSet = true
		sr.Status = SettlementStatusBaseTransferred

	case transfer.LegQuote:
		if sr.QuoteTransferSet {
			return ErrTransferAlreadyRecorded
		}
		if sr.Status != SettlementStatusBaseTransferred {
			return ErrInvalidStatusTransition
		}
		sr.QuoteTransferID = transferID
		sr.QuoteTransferSet = true
		sr.Status = SettlementStatusQuoteTransferred

	default:
		return ErrInvalidStatusTransition
	}

	sr.Version++
	return nil
}

// Finalize completes the settlement. Valid only once both legs are in.
func (sr *SettlementRequest) Finalize(now int64) error {
	if sr.Expired(now) {
		return ErrSettlementExpired
	}
	if sr.Status != SettlementStatusQuoteTransferred {
		return ErrInvalidStatusTransition
	}
	sr.Status = SettlementStatusCompleted
	sr.Version++
	return nil
}

// Fail records an explicit failure report. A recorded base leg forces the
// rollback path; a partial transfer is never silently dropped.
func (sr *SettlementRequest) Fail(now int64) error {
	if sr.Expired(now) {
		return ErrSettlementExpired
	}
	if !sr.CanFail() {
		return ErrSettlementCannotFail
	}
	if sr.RequiresRollback() {
		sr.Status = SettlementStatusRollingBack
	} else {
		sr.Status = SettlementStatusFailed
	}
	sr.Version++
	return nil
}

// Expire routes a deadline breach. No transfer: Expired. Partial
// transfer: RollingBack. Already rolling back: Expired with the manual
// intervention flag raised, since the rollback itself timed out.
func (sr *SettlementRequest) Expire(now int64) error {
	if !sr.Expired(now) {
		return ErrSettlementNotExpired
	}
	if sr.Status.Terminal() {
		return ErrInvalidStatusTransition
	}

	switch {
	case sr.Status == SettlementStatusRollingBack:
		sr.Status = SettlementStatusExpired
		sr.ManualIntervention = true
	case sr.RequiresRollback():
		sr.Status = SettlementStatusRollingBack
	default:
		sr.Status = SettlementStatusExpired
	}
	sr.Version++
	return nil
}

// CanonicalBytes returns deterministic serialization for hashing
func (sr *SettlementRequest) CanonicalBytes() []byte {
	buf := make([]byte, 0, 384)

	buf = append(buf, sr.SettlementID[:]...)
	buf = append(buf, byte(len(sr.Pair)))
	buf = append(buf, []byte(sr.Pair)...)
	buf = append(buf, sr.BuyOrderID[:]...)
	buf = append(buf, sr.SellOrderID[:]...)
	buf = append(buf, sr.Buyer[:]...)
	buf = append(buf, sr.Seller[:]...)
	buf = append(buf, byte(sr.Method), byte(sr.Status))
	buf = append(buf, sr.EncryptedFillAmount[:]...)
	buf = append(buf, sr.EncryptedFillValue[:]...)
	buf = append(buf, sr.BaseTransferID[:]...)
	buf = append(buf, boolByte(sr.BaseTransferSet))
	buf = append(buf, sr.QuoteTransferID[:]...)
	buf = append(buf, boolByte(sr.QuoteTransferSet))
	buf = append(buf, boolByte(sr.FeesComputed))
	buf = appendInt64LE(buf, sr.Fees.Notional)
	buf = appendInt64LE(buf, sr.Fees.TakerFee)
	buf = appendInt64LE(buf, sr.Fees.SettlementFee)
	buf = appendInt64LE(buf, sr.Fees.NetToSeller)
	buf = append(buf, boolByte(sr.ManualIntervention))
	buf = appendInt64LE(buf, sr.CreatedAt)
	buf = appendInt64LE(buf, sr.ExpiresAt)

	return buf
}
