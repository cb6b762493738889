// Package zk holds the eligibility-verifier collaborator contract. The proof
// system itself (Groth16 over BN254) is external; this layer validates the
// envelope, distinguishes "malformed, never invoked" from "invoked and
// rejected", and treats the verifier as an opaque oracle.
package zk

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ProofSize is the fixed serialized size of a Groth16 proof as produced by
// the prover sidecar. Anything else is rejected before the verifier is
// invoked.
const ProofSize = 324

// PublicInputSize is the fixed size of one public input: a BN254 scalar
// field element in canonical big-endian form.
const PublicInputSize = fr.Bytes

// ErrProofMalformed marks a proof or public input rejected before the
// verifier was invoked: wrong length, or a public input that is not a
// canonical field element. Distinct from verification failure, which is the
// (false, nil) return.
var ErrProofMalformed = errors.New("eligibility proof malformed")

// Verifier is the opaque proof oracle. The only proof type consumed by this
// system is a non-membership proof against the current blacklist commitment
// (a Merkle/SMT root carried as the first public input).
type Verifier interface {
	// Verify returns (true, nil) for an accepted proof, (false, nil) for a
	// well-formed but rejected proof, and a non-nil error (wrapping
	// ErrProofMalformed) when the proof never reached the verifier.
	Verify(proof []byte, publicInputs [][]byte) (bool, error)
}

// ValidateEnvelope performs the reject-before-invoke checks shared by all
// Verifier implementations: proof length and canonical public inputs.
func ValidateEnvelope(proof []byte, publicInputs [][]byte) error {
	if len(proof) != ProofSize {
		return fmt.Errorf("%w: proof is %d bytes, want %d", ErrProofMalformed, len(proof), ProofSize)
	}
	if len(publicInputs) == 0 {
		return fmt.Errorf("%w: no public inputs", ErrProofMalformed)
	}

	modulus := fr.Modulus()
	for i, in := range publicInputs {
		if len(in) != PublicInputSize {
			return fmt.Errorf("%w: public input %d is %d bytes, want %d",
				ErrProofMalformed, i, len(in), PublicInputSize)
		}
		// Canonical form: big-endian value strictly below the field modulus.
		if new(big.Int).SetBytes(in).Cmp(modulus) >= 0 {
			return fmt.Errorf("%w: public input %d is not a canonical field element",
				ErrProofMalformed, i)
		}
	}
	return nil
}

// BlacklistCommitment is the SMT root the non-membership proof is checked
// against. It is a public config value, updated by admin instruction.
type BlacklistCommitment [32]byte

// Bytes returns the commitment in the form expected as public input zero.
func (c BlacklistCommitment) Bytes() []byte {
	out := make([]byte, len(c))
	copy(out, c[:])
	return out
}
