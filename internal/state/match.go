package state

import (
	"ShadowSettle/internal/mpc"
)

// MatchStatus tracks one match cycle through its collaborator round trip.
type MatchStatus int32

const (
	MatchStatusAwaitingCompare MatchStatus = iota
	MatchStatusAwaitingFill
	MatchStatusMatched
	MatchStatusNoMatch
	MatchStatusFailed
)

func (ms MatchStatus) String() string {
	switch ms {
	case MatchStatusAwaitingCompare:
		return "AwaitingCompare"
	case MatchStatusAwaitingFill:
		return "AwaitingFill"
	case MatchStatusMatched:
		return "Matched"
	case MatchStatusNoMatch:
		return "NoMatch"
	case MatchStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the match cycle has resolved.
func (ms MatchStatus) Terminal() bool {
	switch ms {
	case MatchStatusMatched, MatchStatusNoMatch, MatchStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo validates match state transitions. The compare and fill
// steps ride one batched request, so AwaitingCompare may resolve straight
// to a terminal state.
func (ms MatchStatus) CanTransitionTo(next MatchStatus) bool {
	validTransitions := map[MatchStatus][]MatchStatus{
		MatchStatusAwaitingCompare: {
			MatchStatusAwaitingFill,
			MatchStatusMatched,
			MatchStatusNoMatch,
			MatchStatusFailed,
		},
		MatchStatusAwaitingFill: {
			MatchStatusMatched,
			MatchStatusFailed,
		},
	}

	allowed, ok := validTransitions[ms]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if next == s {
			return true
		}
	}
	return false
}

// PendingMatch correlates a buy/sell order pair to one outstanding
// compare+fill computation. Orders are referenced by id, never by
// pointer; the orders themselves only carry the pending request id.
type PendingMatch struct {
	RequestID   mpc.RequestID
	Pair        string
	BuyOrderID  [32]byte
	SellOrderID [32]byte
	Status      MatchStatus
	CreatedAt   int64
}

// Resolve moves the match to a terminal status.
func (pm *PendingMatch) Resolve(next MatchStatus) error {
	if !next.Terminal() {
		return ErrInvalidStatusTransition
	}
	if !pm.Status.CanTransitionTo(next) {
		return ErrInvalidStatusTransition
	}
	pm.Status = next
	return nil
}

// CanonicalBytes returns deterministic serialization for hashing
func (pm *PendingMatch) CanonicalBytes() []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, pm.RequestID[:]...)
	buf = append(buf, byte(len(pm.Pair)))
	buf = append(buf, []byte(pm.Pair)...)
	buf = append(buf, pm.BuyOrderID[:]...)
	buf = append(buf, pm.SellOrderID[:]...)
	buf = append(buf, byte(pm.Status))
	buf = appendInt64LE(buf, pm.CreatedAt)
	return buf
}
