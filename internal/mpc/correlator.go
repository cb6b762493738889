package mpc

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

const requestIDDomain = "ShadowSettle:mpc-request:v1"

// RequestID binds an entity to a single outstanding asynchronous
// computation. The all-zero value means "no pending request".
type RequestID [32]byte

var zeroRequestID RequestID

// NewRequestID derives a deterministic, collision-resistant request id from
// the entity key and a monotonically changing nonce (slot number or local
// counter). Two submissions for the same entity at different nonces always
// yield distinct ids, which is what lets callback handlers reject stale or
// duplicate results.
func NewRequestID(entityKey [32]byte, nonce uint64) RequestID {
	h := sha256.New()
	h.Write([]byte(requestIDDomain))
	h.Write(entityKey[:])

	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], nonce)
	h.Write(nonceBuf[:])

	var id RequestID
	copy(id[:], h.Sum(nil))
	return id
}

// IsZero reports whether the id is the "no pending request" sentinel.
func (id RequestID) IsZero() bool {
	return id == zeroRequestID
}

// Matches reports whether a callback-presented id equals the stored pending
// id. A zero stored id never matches anything: a cleared entity rejects all
// late callbacks.
func (id RequestID) Matches(presented RequestID) bool {
	return !id.IsZero() && id == presented
}

func (id RequestID) String() string {
	return hex.EncodeToString(id[:])
}

// RequestIDFromBytes parses a 32-byte id off the wire.
func RequestIDFromBytes(b []byte) (RequestID, bool) {
	var id RequestID
	if len(b) != len(id) {
		return id, false
	}
	copy(id[:], b)
	return id, true
}
