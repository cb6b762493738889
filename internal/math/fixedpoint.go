package math

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

// ErrArithmeticOverflow is returned whenever a fee or fill computation would
// leave int64 range. Callers abort the whole transition; no partial mutation
// survives an overflow.
var ErrArithmeticOverflow = errors.New("arithmetic overflow")

// BpsDenominator converts basis points to fractions: fee = x * bps / 10000.
const BpsDenominator int64 = 10_000

// DecimalConfig defines fixed-point precision for plaintext quantities
// (fees, public fills, oracle prices). Encrypted amounts never pass through
// this package; they stay opaque handles end to end.
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	PriceConfig    = DecimalConfig{DecimalPrecision: 2, Scale: 100}         // 0.01
	QuantityConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // 0.000001
	QuoteConfig    = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}   // 0.000001 quote
	RateConfig     = DecimalConfig{DecimalPrecision: 8, Scale: 100_000_000} // 0.00000001 (funding rate)
)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow.
func CheckedSub(a, b int64) (int64, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}

// CheckedMul returns a*b or ErrArithmeticOverflow.
func CheckedMul(a, b int64) (int64, error) {
	prod := MultiplyInt128(a, b)
	defer putInt128(prod)

	if !prod.IsInt64() {
		return 0, ErrArithmeticOverflow
	}
	return prod.Int64(), nil
}

// MulBps computes x * bps / 10000 with an int128 intermediate. Fees round
// down so rounding dust never accrues against the party paying the fee.
func MulBps(x, bps int64) (int64, error) {
	if x < 0 || bps < 0 {
		return 0, ErrArithmeticOverflow
	}
	prod := MultiplyInt128(x, bps)
	defer putInt128(prod)

	prod.Quo(prod, big.NewInt(BpsDenominator))
	if !prod.IsInt64() {
		return 0, ErrArithmeticOverflow
	}
	return prod.Int64(), nil
}

// ComputeNotional calculates size * price in quote units.
func ComputeNotional(size, price int64) (int64, error) {
	if size < 0 || price < 0 {
		return 0, ErrArithmeticOverflow
	}
	raw := MultiplyInt128(size, price)
	defer putInt128(raw)

	raw.Mul(raw, big.NewInt(QuoteConfig.Scale))
	denominator := PriceConfig.Scale * QuantityConfig.Scale

	quotient := getInt128()
	defer putInt128(quotient)
	quotient.Quo(raw, big.NewInt(denominator))
	if !quotient.IsInt64() {
		return 0, ErrArithmeticOverflow
	}
	return DivideInt128(raw, denominator, RoundHalfEven), nil
}

// ComputeRealizedPnL calculates PnL for a plaintext close fallback.
// sideSign is +1 for long, -1 for short.
func ComputeRealizedPnL(sideSign, fillPrice, avgEntryPrice, closeQty int64) (int64, error) {
	priceDiff := fillPrice - avgEntryPrice

	temp := MultiplyInt128(sideSign*priceDiff, closeQty)
	defer putInt128(temp)

	temp.Mul(temp, big.NewInt(QuoteConfig.Scale))
	denominator := PriceConfig.Scale * QuantityConfig.Scale

	check := getInt128()
	defer putInt128(check)
	check.Quo(temp, big.NewInt(denominator))
	if !check.IsInt64() {
		return 0, ErrArithmeticOverflow
	}
	return DivideInt128(temp, denominator, RoundHalfEven), nil
}
