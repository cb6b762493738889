package state

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/google/uuid"

	"ShadowSettle/internal/event"
	"ShadowSettle/internal/mpc"
)

// OrderStatus is the order lifecycle tag
type OrderStatus int32

const (
	OrderStatusActive OrderStatus = iota
	OrderStatusInactive
)

func (os OrderStatus) String() string {
	switch os {
	case OrderStatusActive:
		return "Active"
	case OrderStatusInactive:
		return "Inactive"
	default:
		return "Unknown"
	}
}

// Order is a confidential resting order. Amount, price and filled are
// opaque ciphertext handles; the only plaintext the ledger learns about
// the fill is the tag byte saying "non-zero".
type Order struct {
	OrderID             [32]byte
	Maker               uuid.UUID
	Pair                string
	Side                event.Side
	Type                event.OrderType
	EncryptedAmount     mpc.Ciphertext
	EncryptedPrice      mpc.Ciphertext
	EncryptedFilled     mpc.Ciphertext
	Status              OrderStatus
	EligibilityVerified bool
	PendingMatchRequest mpc.RequestID
	IsMatching          bool
	CreatedAt           int64 // Epoch seconds, versioned input
	Version             int64
}

// DeriveOrderID produces the hash-based order identifier. Hash-based ids
// carry no placement-order information, unlike a sequential counter.
func DeriveOrderID(maker uuid.UUID, pair string, clientNonce uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte("ShadowSettle:order:v1"))
	h.Write(maker[:])
	h.Write([]byte{byte(len(pair))})
	h.Write([]byte(pair))
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], clientNonce)
	h.Write(nonce[:])

	var id [32]byte
	copy(id[:], h.Sum(nil))
	return id
}

// EntityKey returns the correlator entity key for this order.
func (o *Order) EntityKey() [32]byte {
	return o.OrderID
}

// FillConfirmed inspects only the ciphertext tag byte, never plaintext.
func (o *Order) FillConfirmed() bool {
	return o.EncryptedFilled.NonZeroTagged()
}

// Matchable reports whether this order can enter a new match cycle.
func (o *Order) Matchable() bool {
	return o.Status == OrderStatusActive &&
		!o.IsMatching &&
		o.PendingMatchRequest.IsZero() &&
		o.EligibilityVerified
}

// BeginMatch marks the order busy for the duration of one match cycle.
func (o *Order) BeginMatch(reqID mpc.RequestID) error {
	if !o.Matchable() {
		if o.IsMatching || !o.PendingMatchRequest.IsZero() {
			return ErrOperationPending
		}
		return ErrOrderNotActive
	}
	o.PendingMatchRequest = reqID
	o.IsMatching = true
	o.Version++
	return nil
}

// ClearMatch releases the busy markers after a match cycle resolves.
func (o *Order) ClearMatch() {
	o.PendingMatchRequest = mpc.RequestID{}
	o.IsMatching = false
	o.Version++
}

// CanonicalBytes returns deterministic serialization for hashing
func (o *Order) CanonicalBytes() []byte {
	buf := make([]byte, 0, 320)

	buf = append(buf, o.OrderID[:]...)
	buf = append(buf, o.Maker[:]...)
	buf = append(buf, byte(len(o.Pair)))
	buf = append(buf, []byte(o.Pair)...)
	buf = append(buf, byte(o.Side), byte(o.Type))
	buf = append(buf, o.EncryptedAmount[:]...)
	buf = append(buf, o.EncryptedPrice[:]...)
	buf = append(buf, o.EncryptedFilled[:]...)
	buf = append(buf, byte(o.Status))
	buf = append(buf, boolByte(o.EligibilityVerified), boolByte(o.IsMatching))
	buf = append(buf, o.PendingMatchRequest[:]...)
	buf = appendInt64LE(buf, o.CreatedAt)

	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
