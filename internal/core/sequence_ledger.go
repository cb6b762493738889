package core

import "fmt"

// sequenceLedger tracks the next expected source sequence per partition.
// Instruction partitions ("market:<pair>", "global") demand exact-next
// delivery; oracle partitions ("oracle:<market>") tolerate gaps because
// price feeds drop ticks under load and only the freshest price matters.
//
// Mutated only from the single-threaded core loop.
type sequenceLedger struct {
	next       map[string]int64
	gaps       int64
	outOfOrder int64
	priceGaps  int64
}

func newSequenceLedger() *sequenceLedger {
	return &sequenceLedger{next: make(map[string]int64)}
}

// admit enforces exact-next ordering for an instruction partition. The
// expectation advances on acceptance even if the handler later rejects
// the event, so a rejected instruction burns its sequence number.
func (sl *sequenceLedger) admit(partition string, seq int64, isDuplicate bool) error {
	expected := sl.next[partition]

	switch {
	case seq < expected:
		if isDuplicate {
			// Redelivery of an already processed event.
			return nil
		}
		sl.outOfOrder++
		return fmt.Errorf("out-of-order event: partition=%s, expected=%d, got=%d",
			partition, expected, seq)
	case seq == expected:
		sl.next[partition] = expected + 1
		return nil
	default:
		sl.gaps++
		return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
			partition, expected, seq)
	}
}

// admitOracle accepts any forward progress on a price feed. Stale ticks
// return nil so redelivered prices are simply ignored by the caller.
func (sl *sequenceLedger) admitOracle(market string, seq int64) error {
	partition := "oracle:" + market
	expected := sl.next[partition]

	if seq <= expected {
		return nil
	}
	if seq > expected+1 {
		sl.priceGaps++
	}
	sl.next[partition] = seq + 1
	return nil
}

// expectedNext reports the next sequence a partition will accept.
func (sl *sequenceLedger) expectedNext(partition string) int64 {
	return sl.next[partition]
}

// snapshot returns a copy of the per-partition expectations.
func (sl *sequenceLedger) snapshot() map[string]int64 {
	out := make(map[string]int64, len(sl.next))
	for k, v := range sl.next {
		out[k] = v
	}
	return out
}

// restore reinstalls snapshot expectations wholesale.
func (sl *sequenceLedger) restore(partitions map[string]int64) {
	sl.next = make(map[string]int64, len(partitions))
	for k, v := range partitions {
		sl.next[k] = v
	}
}
