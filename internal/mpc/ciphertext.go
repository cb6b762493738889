package mpc

import (
	"encoding/hex"
	"fmt"
)

// CiphertextSize is the fixed wire size of an encrypted value: 48 bytes of
// ciphertext plus 16 bytes of auxiliary key material. Records never store
// variable-length encrypted fields.
const CiphertextSize = 64

// Ciphertext is an opaque handle to an encrypted value. All arithmetic over
// handles is performed by the MPC collaborator; this layer only stores,
// forwards, and compares them. The single exception is the tag byte (byte 0),
// which the collaborator sets on its outputs and which carries exactly one
// public bit: whether the underlying value is zero.
type Ciphertext [CiphertextSize]byte

// Tag byte values set by the collaborator.
const (
	tagZero    byte = 0x00
	tagNonZero byte = 0x01
)

// Zero returns the canonical zero-ciphertext used to initialize encrypted
// accumulators (e.g. an order's filled amount at placement).
func Zero() Ciphertext {
	var ct Ciphertext
	ct[0] = tagZero
	return ct
}

// IsZeroTagged reports whether the collaborator tagged this handle as
// encrypting zero. This is the only inspection the settlement layer is
// allowed to perform on a ciphertext.
func (c Ciphertext) IsZeroTagged() bool {
	return c[0] == tagZero
}

// NonZeroTagged reports the "value confirmed non-zero" tag. Used for the
// privacy-preserving fill-confirmed check at settlement initiation.
func (c Ciphertext) NonZeroTagged() bool {
	return c[0] == tagNonZero
}

func (c Ciphertext) String() string {
	return hex.EncodeToString(c[:8]) + "…"
}

// CiphertextFromBytes validates the fixed length and copies the handle.
func CiphertextFromBytes(b []byte) (Ciphertext, error) {
	var ct Ciphertext
	if len(b) != CiphertextSize {
		return ct, fmt.Errorf("ciphertext must be %d bytes, got %d", CiphertextSize, len(b))
	}
	copy(ct[:], b)
	return ct, nil
}
