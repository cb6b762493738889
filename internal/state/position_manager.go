package state

// PositionManager holds confidential positions keyed by hash-based id.
// All access is from the single-threaded core; no locking.
type PositionManager struct {
	positions map[[32]byte]*ConfidentialPosition
}

func NewPositionManager() *PositionManager {
	return &PositionManager{
		positions: make(map[[32]byte]*ConfidentialPosition),
	}
}

func (pm *PositionManager) Get(positionID [32]byte) (*ConfidentialPosition, bool) {
	pos, ok := pm.positions[positionID]
	return pos, ok
}

// Create inserts a new position. An id collision means a replayed client
// nonce and is rejected before any state exists.
func (pm *PositionManager) Create(pos *ConfidentialPosition) error {
	if _, exists := pm.positions[pos.PositionID]; exists {
		return ErrPositionExists
	}
	pm.positions[pos.PositionID] = pos
	return nil
}

// Remove discards a position record. Used only to unwind a creation whose
// synchronous collateral transfer failed.
func (pm *PositionManager) Remove(positionID [32]byte) {
	delete(pm.positions, positionID)
}

// OpenListed returns whether a position exists and is in a non-terminal
// status.
func (pm *PositionManager) OpenListed(positionID [32]byte) bool {
	pos, ok := pm.positions[positionID]
	return ok && !pos.Status.Terminal()
}

// Restore reinstalls snapshot state wholesale.
func (pm *PositionManager) Restore(positions []*ConfidentialPosition) {
	pm.positions = make(map[[32]byte]*ConfidentialPosition, len(positions))
	for _, p := range positions {
		pm.positions[p.PositionID] = p
	}
}

// Snapshot returns all positions in unspecified iteration order.
func (pm *PositionManager) Snapshot() []*ConfidentialPosition {
	out := make([]*ConfidentialPosition, 0, len(pm.positions))
	for _, p := range pm.positions {
		out = append(out, p)
	}
	return out
}
