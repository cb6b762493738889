package math

import "math/big"

// Funding in this system is applied against encrypted position sizes by the
// MPC collaborator set. The ledger only tracks the plaintext cumulative
// funding indexes per market side; the collaborators multiply the
// per-position encrypted size by the index delta off-ledger. This file
// keeps the index arithmetic in one place.

// FundingIndexDelta returns the cumulative index movement between the last
// index a position settled at and the current market index. The delta is
// what gets handed to the collaborators as a plaintext input.
func FundingIndexDelta(currentIndex, lastSettledIndex int64) (int64, error) {
	return CheckedSub(currentIndex, lastSettledIndex)
}

// AdvanceFundingIndex folds one epoch's funding rate into a cumulative
// index. Rate and index share RateConfig scale.
func AdvanceFundingIndex(index, epochRate int64) (int64, error) {
	return CheckedAdd(index, epochRate)
}

// ComputeFundingPayment calculates a plaintext funding payment. Used only
// on the forced-clear path where position size has already been revealed.
// Returns positive when the holder pays, negative when the holder receives.
func ComputeFundingPayment(fundingRate, positionSize, markPrice, sideSign int64) (int64, error) {
	temp1 := MultiplyInt128(fundingRate, positionSize)
	defer putInt128(temp1)

	temp2 := getInt128()
	defer putInt128(temp2)
	temp2.Mul(temp1, big.NewInt(markPrice))

	// intermediate scale = R_s * Q_s * P_s = 10^16, target = 10^6
	const denominator = int64(10_000_000_000)

	check := getInt128()
	defer putInt128(check)
	check.Quo(temp2, big.NewInt(denominator))
	if !check.IsInt64() {
		return 0, ErrArithmeticOverflow
	}

	payment := DivideInt128(temp2, denominator, RoundHalfEven)
	return payment * sideSign, nil
}
