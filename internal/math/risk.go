package math

// LiquidationSplit is the plaintext carve-up of a liquidated position's
// remaining collateral, computed only after the collaborator set has
// revealed the values for an underwater account.
type LiquidationSplit struct {
	Notional        int64
	LiquidatorBonus int64
	InsuranceShare  int64
	ToHolder        int64
}

// ComputeLiquidationSplit distributes remaining collateral between the
// liquidator, the insurance fund, and the position holder. The liquidator
// bonus is capped by both the remaining collateral and maxLiquidationPerTx.
func ComputeLiquidationSplit(
	notional int64,
	remainingCollateral int64,
	liquidationBonusBps int64,
	insuranceShareBps int64,
	maxLiquidationPerTx int64,
) (LiquidationSplit, error) {
	if remainingCollateral < 0 {
		remainingCollateral = 0
	}

	bonus, err := MulBps(notional, liquidationBonusBps)
	if err != nil {
		return LiquidationSplit{}, err
	}
	if bonus > remainingCollateral {
		bonus = remainingCollateral
	}
	if maxLiquidationPerTx > 0 && bonus > maxLiquidationPerTx {
		bonus = maxLiquidationPerTx
	}

	afterBonus, err := CheckedSub(remainingCollateral, bonus)
	if err != nil {
		return LiquidationSplit{}, err
	}

	insurance, err := MulBps(afterBonus, insuranceShareBps)
	if err != nil {
		return LiquidationSplit{}, err
	}

	toHolder, err := CheckedSub(afterBonus, insurance)
	if err != nil {
		return LiquidationSplit{}, err
	}

	return LiquidationSplit{
		Notional:        notional,
		LiquidatorBonus: bonus,
		InsuranceShare:  insurance,
		ToHolder:        toHolder,
	}, nil
}

// MaintenanceMargin returns the maintenance requirement for a notional at
// the market's maintenance margin rate.
func MaintenanceMargin(notional, maintenanceMarginBps int64) (int64, error) {
	return MulBps(notional, maintenanceMarginBps)
}

// ADLPriority ranks positions for auto-deleveraging. Higher leverage and
// higher profit ratio deleverage first. profitRatioBps is unrealized PnL
// over collateral in basis points; negative ratios rank at zero.
func ADLPriority(leverage uint8, profitRatioBps int64) int64 {
	if profitRatioBps < 0 {
		return 0
	}
	priority, err := CheckedMul(int64(leverage), profitRatioBps)
	if err != nil {
		// Saturate rather than fail: ranking only needs relative order.
		return int64(^uint64(0) >> 1)
	}
	return priority
}
