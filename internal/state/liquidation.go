package state

import (
	"ShadowSettle/internal/mpc"
)

// MaxLiquidationBatchSize caps how many positions ride one batched
// under-water check. One request instead of ten round trips.
const MaxLiquidationBatchSize = 10

// LiquidationBatch correlates one batched under-water check to the
// positions it covers. The completed flag flips exactly once and results
// are trusted only after that flip.
type LiquidationBatch struct {
	RequestID   mpc.RequestID
	Market      string
	MarkPrice   int64
	PositionIDs [][32]byte
	Results     []bool
	Priorities  []int64
	Completed   bool
	CreatedAt   int64
}

// Complete applies the callback verdict. A second completion or a result
// count that does not cover the batch is rejected with no change.
// Priorities may be nil when the collaborator set did not reveal a
// deleverage ranking; when present it must align with results.
func (lb *LiquidationBatch) Complete(results []bool, priorities []int64) error {
	if lb.Completed {
		return ErrBatchAlreadyComplete
	}
	if len(results) != len(lb.PositionIDs) {
		return ErrBatchSizeMismatch
	}
	if priorities != nil && len(priorities) != len(lb.PositionIDs) {
		return ErrBatchSizeMismatch
	}
	lb.Results = append([]bool(nil), results...)
	lb.Priorities = append([]int64(nil), priorities...)
	lb.Completed = true
	return nil
}

// LiquidationManager tracks outstanding batched checks and mints their
// request ids.
type LiquidationManager struct {
	batches map[mpc.RequestID]*LiquidationBatch
	nonce   uint64
}

func NewLiquidationManager() *LiquidationManager {
	return &LiquidationManager{
		batches: make(map[mpc.RequestID]*LiquidationBatch),
	}
}

func (lm *LiquidationManager) Get(reqID mpc.RequestID) (*LiquidationBatch, bool) {
	b, ok := lm.batches[reqID]
	return b, ok
}

// Open registers a new batch. Size is validated here so no oversized
// request ever reaches the collaborator set.
func (lm *LiquidationManager) Open(market string, markPrice int64, positionIDs [][32]byte, now int64) (*LiquidationBatch, error) {
	if len(positionIDs) == 0 || len(positionIDs) > MaxLiquidationBatchSize {
		return nil, ErrBatchTooLarge
	}

	lm.nonce++
	var entity [32]byte
	copy(entity[:], []byte("liq-batch:"+market))
	reqID := mpc.NewRequestID(entity, lm.nonce)

	batch := &LiquidationBatch{
		RequestID:   reqID,
		Market:      market,
		MarkPrice:   markPrice,
		PositionIDs: append([][32]byte(nil), positionIDs...),
		CreatedAt:   now,
	}
	lm.batches[reqID] = batch
	return batch, nil
}

// Remove drops a completed batch record.
func (lm *LiquidationManager) Remove(reqID mpc.RequestID) {
	delete(lm.batches, reqID)
}

// Nonce returns the current request id nonce, for snapshots.
func (lm *LiquidationManager) Nonce() uint64 {
	return lm.nonce
}

// Restore reinstalls snapshot state wholesale.
func (lm *LiquidationManager) Restore(batches []*LiquidationBatch, nonce uint64) {
	lm.batches = make(map[mpc.RequestID]*LiquidationBatch, len(batches))
	for _, b := range batches {
		lm.batches[b.RequestID] = b
	}
	lm.nonce = nonce
}

// Snapshot returns all outstanding batches in unspecified order.
func (lm *LiquidationManager) Snapshot() []*LiquidationBatch {
	out := make([]*LiquidationBatch, 0, len(lm.batches))
	for _, b := range lm.batches {
		out = append(out, b)
	}
	return out
}
