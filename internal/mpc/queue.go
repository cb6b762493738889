package mpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Request describes one computation queued to the MPC collaborator. The
// collaborator evaluates the opcode over the encrypted inputs and delivers
// the result exactly once to the callback subject.
type Request struct {
	RequestID       RequestID    `json:"request_id"`
	Op              Opcode       `json:"op"`
	EncryptedInputs []Ciphertext `json:"encrypted_inputs"`
	PlaintextInputs []int64      `json:"plaintext_inputs"`
	CallbackSubject string       `json:"callback_subject"`
}

// Queue is the outbound half of the collaborator contract. The settlement
// layer never blocks on the result: the response arrives later as a callback
// event carrying the same request id.
type Queue interface {
	Queue(ctx context.Context, req Request) error
}

// NATSQueue publishes computation requests to JetStream subjects
// shadow.mpc.requests.{opcode}. The off-chain MPC network consumes them and
// posts results to the request's callback subject.
type NATSQueue struct {
	js jetstream.JetStream
}

func NewNATSQueue(js jetstream.JetStream) *NATSQueue {
	return &NATSQueue{js: js}
}

func (q *NATSQueue) Queue(ctx context.Context, req Request) error {
	if req.RequestID.IsZero() {
		return fmt.Errorf("mpc queue: zero request id")
	}
	if req.Op == OpUnknown {
		return fmt.Errorf("mpc queue: unknown opcode")
	}

	data, err := json.Marshal(requestWire{
		RequestID:       req.RequestID[:],
		Op:              req.Op.String(),
		EncryptedInputs: marshalCiphertexts(req.EncryptedInputs),
		PlaintextInputs: req.PlaintextInputs,
		CallbackSubject: req.CallbackSubject,
	})
	if err != nil {
		return fmt.Errorf("marshal mpc request: %w", err)
	}

	subject := fmt.Sprintf("shadow.mpc.requests.%s", req.Op)
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish mpc request %s: %w", req.RequestID, err)
	}
	return nil
}

type requestWire struct {
	RequestID       []byte   `json:"request_id"`
	Op              string   `json:"op"`
	EncryptedInputs [][]byte `json:"encrypted_inputs"`
	PlaintextInputs []int64  `json:"plaintext_inputs"`
	CallbackSubject string   `json:"callback_subject"`
}

func marshalCiphertexts(cts []Ciphertext) [][]byte {
	out := make([][]byte, 0, len(cts))
	for _, ct := range cts {
		b := make([]byte, CiphertextSize)
		copy(b, ct[:])
		out = append(out, b)
	}
	return out
}

// EnsureRequestStream creates the JetStream stream backing the request
// subjects. Mirrors the retention policy of the instruction streams.
func EnsureRequestStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "SHADOW_MPC_REQUESTS",
		Subjects:  []string{"shadow.mpc.requests.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create mpc request stream: %w", err)
	}
	return nil
}
