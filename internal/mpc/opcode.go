package mpc

// Opcode identifies a computation the MPC collaborator can evaluate over
// encrypted inputs. The set is closed: each opcode has a fixed input/output
// shape, listed next to it.
type Opcode int32

const (
	OpUnknown Opcode = iota

	// OpCompare: compare(a, b) -> bool (revealed).
	OpCompare

	// OpFill: fill(buy_amt, buy_price, sell_amt, sell_price) ->
	// (fill, new_buy_filled, new_sell_filled, buy_done, sell_done).
	// The comparison and min() are evaluated in one batched circuit so a
	// match needs a single round trip.
	OpFill

	// OpAdd / OpSub: c = a ± b over handles.
	OpAdd
	OpSub

	// OpPnL: pnl(size, entry, exit, is_long) -> (pnl, is_loss).
	OpPnL

	// OpFunding: funding(size, rate, dt, is_long) -> (amount, is_paying).
	OpFunding

	// OpLiqThreshold: liq_threshold(entry, leverage, mm, is_long) -> threshold.
	OpLiqThreshold

	// OpLiqCheck: liq_check(threshold, mark, is_long) -> bool (revealed).
	OpLiqCheck

	// OpBatchLiqCheck: batch_liq_check(thresholds[≤10], sides[≤10], mark)
	// -> bool[≤10] (revealed).
	OpBatchLiqCheck
)

func (op Opcode) String() string {
	switch op {
	case OpCompare:
		return "compare"
	case OpFill:
		return "fill"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpPnL:
		return "pnl"
	case OpFunding:
		return "funding"
	case OpLiqThreshold:
		return "liq_threshold"
	case OpLiqCheck:
		return "liq_check"
	case OpBatchLiqCheck:
		return "batch_liq_check"
	default:
		return "unknown"
	}
}
