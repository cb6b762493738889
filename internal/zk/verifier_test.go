package zk_test

import (
	"errors"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"ShadowSettle/internal/zk"
)

func canonicalInput(v byte) []byte {
	in := make([]byte, zk.PublicInputSize)
	in[zk.PublicInputSize-1] = v
	return in
}

// ============================================================================
// Test: envelope validation
// ============================================================================

func TestValidateEnvelope_Accepts(t *testing.T) {
	proof := make([]byte, zk.ProofSize)
	inputs := [][]byte{canonicalInput(1), canonicalInput(2)}
	if err := zk.ValidateEnvelope(proof, inputs); err != nil {
		t.Errorf("well-formed envelope rejected: %v", err)
	}
}

func TestValidateEnvelope_WrongProofLength(t *testing.T) {
	err := zk.ValidateEnvelope(make([]byte, zk.ProofSize-1), [][]byte{canonicalInput(1)})
	if !errors.Is(err, zk.ErrProofMalformed) {
		t.Errorf("got %v, want ErrProofMalformed", err)
	}
}

func TestValidateEnvelope_NoInputs(t *testing.T) {
	err := zk.ValidateEnvelope(make([]byte, zk.ProofSize), nil)
	if !errors.Is(err, zk.ErrProofMalformed) {
		t.Errorf("got %v, want ErrProofMalformed", err)
	}
}

func TestValidateEnvelope_WrongInputLength(t *testing.T) {
	err := zk.ValidateEnvelope(make([]byte, zk.ProofSize), [][]byte{make([]byte, 31)})
	if !errors.Is(err, zk.ErrProofMalformed) {
		t.Errorf("got %v, want ErrProofMalformed", err)
	}
}

func TestValidateEnvelope_NonCanonicalFieldElement(t *testing.T) {
	// The field modulus itself is one past the canonical range.
	in := fr.Modulus().FillBytes(make([]byte, zk.PublicInputSize))
	err := zk.ValidateEnvelope(make([]byte, zk.ProofSize), [][]byte{in})
	if !errors.Is(err, zk.ErrProofMalformed) {
		t.Errorf("got %v, want ErrProofMalformed", err)
	}
}

func TestBlacklistCommitment_Bytes(t *testing.T) {
	var c zk.BlacklistCommitment
	c[0] = 0xAA
	b := c.Bytes()
	if len(b) != 32 || b[0] != 0xAA {
		t.Errorf("bytes = %x", b)
	}
	// The returned slice must not alias the commitment.
	b[0] = 0xBB
	if c[0] != 0xAA {
		t.Error("Bytes must copy")
	}
}
