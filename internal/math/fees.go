package math

// FeeBreakdown is the plaintext fee split for one public spot fill.
// Encrypted fills never route through here; their fees are computed by the
// collaborator set against the ciphertexts.
type FeeBreakdown struct {
	Notional      int64
	TakerFee      int64
	SettlementFee int64
	NetToSeller   int64
}

// ComputeFillFees derives the fee breakdown for a fill of fillQty at
// fillPrice. takerFeeBps is the market taker rate, settlementFeeBps the
// rate of the chosen transfer method. Any overflow aborts the fill.
func ComputeFillFees(fillQty, fillPrice, takerFeeBps, settlementFeeBps int64) (FeeBreakdown, error) {
	notional, err := ComputeNotional(fillQty, fillPrice)
	if err != nil {
		return FeeBreakdown{}, err
	}

	takerFee, err := MulBps(notional, takerFeeBps)
	if err != nil {
		return FeeBreakdown{}, err
	}
	settlementFee, err := MulBps(notional, settlementFeeBps)
	if err != nil {
		return FeeBreakdown{}, err
	}

	net, err := CheckedSub(notional, takerFee)
	if err != nil {
		return FeeBreakdown{}, err
	}
	net, err = CheckedSub(net, settlementFee)
	if err != nil {
		return FeeBreakdown{}, err
	}
	if net < 0 {
		return FeeBreakdown{}, ErrArithmeticOverflow
	}

	return FeeBreakdown{
		Notional:      notional,
		TakerFee:      takerFee,
		SettlementFee: settlementFee,
		NetToSeller:   net,
	}, nil
}
