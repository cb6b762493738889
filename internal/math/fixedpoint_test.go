package math_test

import (
	stdmath "math"
	"testing"

	"ShadowSettle/internal/math"
)

// ============================================================================
// Test: checked arithmetic
// ============================================================================

func TestCheckedAdd_Overflow(t *testing.T) {
	if _, err := math.CheckedAdd(stdmath.MaxInt64, 1); err != math.ErrArithmeticOverflow {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
	if _, err := math.CheckedAdd(stdmath.MinInt64, -1); err != math.ErrArithmeticOverflow {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
	if v, err := math.CheckedAdd(stdmath.MaxInt64-1, 1); err != nil || v != stdmath.MaxInt64 {
		t.Errorf("got %d, %v", v, err)
	}
}

func TestCheckedSub_Overflow(t *testing.T) {
	if _, err := math.CheckedSub(stdmath.MinInt64, 1); err != math.ErrArithmeticOverflow {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
	if v, err := math.CheckedSub(100, 250); err != nil || v != -150 {
		t.Errorf("got %d, %v", v, err)
	}
}

func TestCheckedMul_Overflow(t *testing.T) {
	if _, err := math.CheckedMul(stdmath.MaxInt64, 2); err != math.ErrArithmeticOverflow {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
	if v, err := math.CheckedMul(1_000_000, 1_000_000); err != nil || v != 1_000_000_000_000 {
		t.Errorf("got %d, %v", v, err)
	}
}

// ============================================================================
// Test: basis point math
// ============================================================================

func TestMulBps(t *testing.T) {
	cases := []struct {
		x, bps, want int64
	}{
		{1_000_000, 25, 2_500},
		{1_000_000, 10_000, 1_000_000}, // 100%
		{1_000_000, 0, 0},
		{3, 1, 0}, // rounds down to zero
	}
	for _, tc := range cases {
		got, err := math.MulBps(tc.x, tc.bps)
		if err != nil {
			t.Fatalf("MulBps(%d, %d): %v", tc.x, tc.bps, err)
		}
		if got != tc.want {
			t.Errorf("MulBps(%d, %d) = %d, want %d", tc.x, tc.bps, got, tc.want)
		}
	}
}

func TestMulBps_RejectsNegative(t *testing.T) {
	if _, err := math.MulBps(-1, 25); err != math.ErrArithmeticOverflow {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
	if _, err := math.MulBps(100, -25); err != math.ErrArithmeticOverflow {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
}

// ============================================================================
// Test: rounding
// ============================================================================

func TestDivideInt128_BankersRounding(t *testing.T) {
	// 5/2 = 2.5 rounds to the even neighbor 2; 7/2 = 3.5 rounds to 4.
	if got := math.DivideInt128(math.MultiplyInt128(5, 1), 2, math.RoundHalfEven); got != 2 {
		t.Errorf("5/2 = %d, want 2", got)
	}
	if got := math.DivideInt128(math.MultiplyInt128(7, 1), 2, math.RoundHalfEven); got != 4 {
		t.Errorf("7/2 = %d, want 4", got)
	}
	if got := math.DivideInt128(math.MultiplyInt128(9, 1), 4, math.RoundHalfEven); got != 2 {
		t.Errorf("9/4 = %d, want 2", got)
	}
}

func TestDivideInt128_RoundDown(t *testing.T) {
	if got := math.DivideInt128(math.MultiplyInt128(7, 1), 2, math.RoundDown); got != 3 {
		t.Errorf("7/2 = %d, want 3", got)
	}
}

// ============================================================================
// Test: notional and PnL
// ============================================================================

func TestComputeNotional(t *testing.T) {
	// 2.0 base at 50000.00 = 100000.000000 quote.
	got, err := math.ComputeNotional(2_000_000, 5_000_000)
	if err != nil {
		t.Fatalf("notional: %v", err)
	}
	if got != 100_000_000_000 {
		t.Errorf("notional = %d, want 100_000_000_000", got)
	}
}

func TestComputeNotional_RejectsNegative(t *testing.T) {
	if _, err := math.ComputeNotional(-1, 100); err != math.ErrArithmeticOverflow {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
}

func TestComputeRealizedPnL_LongAndShort(t *testing.T) {
	// 1.0 base closed 10.00 above entry: long gains, short loses.
	long, err := math.ComputeRealizedPnL(1, 11_000, 10_000, 1_000_000)
	if err != nil {
		t.Fatalf("long pnl: %v", err)
	}
	if long != 10_000_000 {
		t.Errorf("long pnl = %d, want 10_000_000", long)
	}

	short, err := math.ComputeRealizedPnL(-1, 11_000, 10_000, 1_000_000)
	if err != nil {
		t.Fatalf("short pnl: %v", err)
	}
	if short != -10_000_000 {
		t.Errorf("short pnl = %d, want -10_000_000", short)
	}
}
