package zk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// VerifySubject is the request/reply subject the proof sidecar answers on.
const VerifySubject = "shadow.zk.verify"

// NATSVerifier calls the Groth16 sidecar over NATS request/reply. Envelope
// validation happens locally so malformed proofs never cross the wire.
type NATSVerifier struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNATSVerifier(nc *nats.Conn, timeout time.Duration) *NATSVerifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NATSVerifier{nc: nc, timeout: timeout}
}

type verifyRequest struct {
	Proof        []byte   `json:"proof"`
	PublicInputs [][]byte `json:"public_inputs"`
}

type verifyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func (v *NATSVerifier) Verify(proof []byte, publicInputs [][]byte) (bool, error) {
	if err := ValidateEnvelope(proof, publicInputs); err != nil {
		return false, err
	}

	data, err := json.Marshal(verifyRequest{Proof: proof, PublicInputs: publicInputs})
	if err != nil {
		return false, fmt.Errorf("marshal verify request: %w", err)
	}

	msg, err := v.nc.Request(VerifySubject, data, v.timeout)
	if err != nil {
		return false, fmt.Errorf("verifier sidecar: %w", err)
	}

	var resp verifyResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return false, fmt.Errorf("decode verify response: %w", err)
	}
	if resp.Error != "" {
		return false, fmt.Errorf("verifier sidecar: %s", resp.Error)
	}
	return resp.Valid, nil
}
