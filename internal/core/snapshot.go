package core

import (
	"ShadowSettle/internal/state"
)

// SnapshotState is the full deterministic core state at one sequence.
// Everything replay needs to resume mid-stream is here, including the
// request id nonces; transfer ids are deliberately absent.
type SnapshotState struct {
	Sequence   int64    `json:"sequence"`
	StateHash  [32]byte `json:"state_hash"`
	MatchNonce uint64   `json:"match_nonce"`
	BatchNonce uint64   `json:"batch_nonce"`
	Paused     bool     `json:"paused"`

	Orders      []*state.Order                `json:"orders"`
	Matches     []*state.PendingMatch         `json:"matches"`
	Settlements []*state.SettlementRequest    `json:"settlements"`
	Positions   []*state.ConfidentialPosition `json:"positions"`
	Batches     []*state.LiquidationBatch     `json:"batches"`
	Markets     []*state.MarketState          `json:"markets"`

	SequenceState map[string]int64 `json:"sequence_state"`
}

// CreateSnapshotState captures the current core state. Called between
// events on the core goroutine, so no locking is needed.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:      e.sequence,
		StateHash:     e.hasher.currentTip(),
		MatchNonce:    e.matchNonce,
		BatchNonce:    e.liquidations.Nonce(),
		Paused:        e.markets.Paused(),
		Orders:        e.orders.Snapshot(),
		Matches:       e.orders.MatchSnapshot(),
		Settlements:   e.settlements.Snapshot(),
		Positions:     e.positions.Snapshot(),
		Batches:       e.liquidations.Snapshot(),
		Markets:       e.markets.Snapshot(),
		SequenceState: e.sequenceLedger.snapshot(),
	}
}

// RestoreFromSnapshot reinstalls a snapshot wholesale. Events after the
// snapshot sequence are then re-applied from the log with replay mode on.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) {
	e.sequence = snap.Sequence
	e.matchNonce = snap.MatchNonce
	e.hasher.setTip(snap.StateHash)
	e.orders.Restore(snap.Orders, snap.Matches)
	e.settlements.Restore(snap.Settlements)
	e.positions.Restore(snap.Positions)
	e.liquidations.Restore(snap.Batches, snap.BatchNonce)
	e.markets.Restore(snap.Markets, snap.Paused)
	e.sequenceLedger.restore(snap.SequenceState)
}

// WarmIdempotencyLRU preloads recently processed keys after a restore.
func (e *Engine) WarmIdempotencyLRU(keys []string) {
	e.idempotency.WarmLRU(keys)
}
