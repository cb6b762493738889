package testutil

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"ShadowSettle/internal/mpc"
	"ShadowSettle/internal/oracle"
	"ShadowSettle/internal/transfer"
	"ShadowSettle/internal/zk"
)

// ============================================================================
// MPC collaborator fakes
// ============================================================================

// FakeQueue records computation requests instead of publishing them. Tests
// inspect the captured requests and feed handcrafted callback events back
// into the engine.
type FakeQueue struct {
	mu       sync.Mutex
	Requests []mpc.Request
	Err      error
}

func (q *FakeQueue) Queue(_ context.Context, req mpc.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.Requests = append(q.Requests, req)
	return nil
}

// Last returns the most recently queued request.
func (q *FakeQueue) Last() (mpc.Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.Requests) == 0 {
		return mpc.Request{}, false
	}
	return q.Requests[len(q.Requests)-1], true
}

// ByOp returns all captured requests for one opcode.
func (q *FakeQueue) ByOp(op mpc.Opcode) []mpc.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []mpc.Request
	for _, r := range q.Requests {
		if r.Op == op {
			out = append(out, r)
		}
	}
	return out
}

func (q *FakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.Requests)
}

func (q *FakeQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Requests = nil
}

// Collaborator mints ciphertext handles and remembers their plaintexts in a
// side table keyed by handle. Nothing ever decodes a handle; tests look the
// value up the same way the real collaborator would, by the bytes of the
// handle itself.
type Collaborator struct {
	mu     sync.Mutex
	values map[mpc.Ciphertext]int64
	ctr    uint64
}

func NewCollaborator() *Collaborator {
	return &Collaborator{values: make(map[mpc.Ciphertext]int64)}
}

// Encrypt mints a fresh unique handle for v with the zero-tag byte set the
// way the collaborator sets it on outputs.
func (c *Collaborator) Encrypt(v int64) mpc.Ciphertext {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ctr++
	var ct mpc.Ciphertext
	if v != 0 {
		ct[0] = 0x01
	}
	binary.BigEndian.PutUint64(ct[1:9], c.ctr)
	c.values[ct] = v
	return ct
}

// Value looks up the plaintext behind a handle.
func (c *Collaborator) Value(ct mpc.Ciphertext) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[ct]
	return v, ok
}

// ============================================================================
// Eligibility verifier fakes
// ============================================================================

// AcceptVerifier accepts every well-formed proof. Malformed envelopes are
// still rejected before the (fake) verifier runs, matching the real
// implementation's error discipline.
type AcceptVerifier struct{}

func (AcceptVerifier) Verify(proof []byte, publicInputs [][]byte) (bool, error) {
	if err := zk.ValidateEnvelope(proof, publicInputs); err != nil {
		return false, err
	}
	return true, nil
}

// DenyVerifier rejects every well-formed proof.
type DenyVerifier struct{}

func (DenyVerifier) Verify(proof []byte, publicInputs [][]byte) (bool, error) {
	if err := zk.ValidateEnvelope(proof, publicInputs); err != nil {
		return false, err
	}
	return false, nil
}

// ValidProof returns a correctly sized proof blob.
func ValidProof() []byte {
	return make([]byte, zk.ProofSize)
}

// PublicInputs returns n canonical field elements. Values start at 1 so no
// input collides with another.
func PublicInputs(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		in := make([]byte, zk.PublicInputSize)
		binary.BigEndian.PutUint64(in[zk.PublicInputSize-8:], uint64(i+1))
		out[i] = in
	}
	return out
}

// ============================================================================
// Transfer engine fake
// ============================================================================

// TransferCall is one recorded transfer leg.
type TransferCall struct {
	ID     transfer.ID
	From   uuid.UUID
	To     uuid.UUID
	Asset  string
	Amount int64
}

// FakeTransferEngine records transfers and mints deterministic ids. Set Err
// to make every call fail without moving value, or FailAfter to fail from
// the nth call on (0-based, -1 disables).
type FakeTransferEngine struct {
	mu        sync.Mutex
	Calls     []TransferCall
	Err       error
	FailAfter int
}

func NewFakeTransferEngine() *FakeTransferEngine {
	return &FakeTransferEngine{FailAfter: -1}
}

func (e *FakeTransferEngine) Transfer(_ context.Context, from, to uuid.UUID, asset string, amount int64) (transfer.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Err != nil {
		return uuid.Nil, e.Err
	}
	if e.FailAfter >= 0 && len(e.Calls) >= e.FailAfter {
		return uuid.Nil, errTransferRefused
	}

	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(len(e.Calls))})
	e.Calls = append(e.Calls, TransferCall{ID: id, From: from, To: to, Asset: asset, Amount: amount})
	return id, nil
}

var errTransferRefused = transferError("transfer refused")

type transferError string

func (e transferError) Error() string { return string(e) }

// ============================================================================
// Oracle helpers
// ============================================================================

// SeededPrices returns a cache pre-loaded with one fresh price per market,
// pinned to a fixed clock so staleness never trips mid-test.
func SeededPrices(prices map[string]int64) *oracle.Cache {
	now := time.Unix(1_700_000_000, 0)
	cache := oracle.NewCache(oracle.ProductionBounds())
	cache.SetClock(func() time.Time { return now })
	seq := int64(1)
	for market, price := range prices {
		cache.Observe(market, price, 0, now, seq)
		seq++
	}
	return cache
}
