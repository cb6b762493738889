package mpc_test

import (
	"testing"

	"ShadowSettle/internal/mpc"
)

// ============================================================================
// Test: request id correlation
// ============================================================================

func TestNewRequestID_Deterministic(t *testing.T) {
	var entity [32]byte
	entity[0] = 0x42

	a := mpc.NewRequestID(entity, 7)
	b := mpc.NewRequestID(entity, 7)
	if a != b {
		t.Error("identical inputs must derive the same id")
	}
}

func TestNewRequestID_NonceAndEntityDisambiguate(t *testing.T) {
	var e1, e2 [32]byte
	e1[0] = 0x01
	e2[0] = 0x02

	if mpc.NewRequestID(e1, 1) == mpc.NewRequestID(e1, 2) {
		t.Error("different nonces must derive different ids")
	}
	if mpc.NewRequestID(e1, 1) == mpc.NewRequestID(e2, 1) {
		t.Error("different entities must derive different ids")
	}
}

func TestMatches_ZeroNeverMatches(t *testing.T) {
	var zero mpc.RequestID
	if zero.Matches(zero) {
		t.Error("the zero sentinel must reject everything, including itself")
	}

	var entity [32]byte
	id := mpc.NewRequestID(entity, 1)
	if zero.Matches(id) {
		t.Error("a cleared entity must reject late callbacks")
	}
	if !id.Matches(id) {
		t.Error("a stored id must match its own callback")
	}
}

func TestRequestIDFromBytes_LengthChecked(t *testing.T) {
	if _, ok := mpc.RequestIDFromBytes(make([]byte, 31)); ok {
		t.Error("short id must be rejected")
	}
	if _, ok := mpc.RequestIDFromBytes(make([]byte, 32)); !ok {
		t.Error("well-sized id must parse")
	}
}

// ============================================================================
// Test: ciphertext tags
// ============================================================================

func TestCiphertext_ZeroTag(t *testing.T) {
	z := mpc.Zero()
	if !z.IsZeroTagged() || z.NonZeroTagged() {
		t.Error("canonical zero must carry the zero tag")
	}

	var ct mpc.Ciphertext
	ct[0] = 0x01
	if ct.IsZeroTagged() || !ct.NonZeroTagged() {
		t.Error("tag byte 0x01 must read as non-zero")
	}
}

func TestCiphertextFromBytes_LengthChecked(t *testing.T) {
	if _, err := mpc.CiphertextFromBytes(make([]byte, 63)); err == nil {
		t.Error("short ciphertext must be rejected")
	}
	raw := make([]byte, mpc.CiphertextSize)
	raw[0] = 0x01
	raw[63] = 0xFF
	ct, err := mpc.CiphertextFromBytes(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ct[63] != 0xFF {
		t.Error("handle bytes must copy through unchanged")
	}
}
