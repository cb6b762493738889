package core

import (
	"crypto/sha256"
	"encoding/binary"
)

// GenesisHashSeed anchors the hash chain. Every deployment starts from
// the same tip so independently replayed logs produce identical chains.
const GenesisHashSeed = "ShadowSettle:genesis:v1"

// hashChain links each applied event to its predecessor:
//
//	hash[n] = SHA-256(hash[n-1] || sequence(LE64) || stateDigest)
//
// The tip is persisted in every envelope and in snapshots, letting an
// auditor verify that a replayed log reproduces the exact state history.
type hashChain struct {
	tip [32]byte
}

func newHashChain() *hashChain {
	c := &hashChain{}
	c.tip = sha256.Sum256([]byte(GenesisHashSeed))
	return c
}

// extend appends one link and returns the new tip.
func (c *hashChain) extend(sequence int64, stateDigest []byte) [32]byte {
	h := sha256.New()
	h.Write(c.tip[:])

	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], uint64(sequence))
	h.Write(seq[:])
	h.Write(stateDigest)

	h.Sum(c.tip[:0])
	return c.tip
}

func (c *hashChain) currentTip() [32]byte {
	return c.tip
}

// setTip reinstalls a tip recovered from a snapshot.
func (c *hashChain) setTip(tip [32]byte) {
	c.tip = tip
}
