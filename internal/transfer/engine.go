// Package transfer holds the token-movement collaborator contract and the
// settlement-method table. Actual transfer mechanics (SPL instructions,
// relayer invocation) are external; the engine promises move-or-fail
// atomicity per call.
package transfer

import (
	"context"

	"github.com/google/uuid"
)

// ID identifies one executed transfer leg. Settlement records store it so a
// partial transfer is never silently abandoned.
type ID = uuid.UUID

// Engine is the opaque value-movement contract. A returned error means no
// value moved; a returned ID means the full amount moved.
type Engine interface {
	Transfer(ctx context.Context, from, to uuid.UUID, asset string, amount int64) (ID, error)
}

// Leg distinguishes the two halves of a two-phase settlement.
type Leg int32

const (
	LegBase Leg = iota
	LegQuote
)

func (l Leg) String() string {
	switch l {
	case LegBase:
		return "base"
	case LegQuote:
		return "quote"
	default:
		return "unknown"
	}
}

// SystemAccount derives the deterministic account id for a named internal
// account. Vault custody, the insurance fund and the fee sink are ordinary
// accounts on the transfer rail addressed this way.
func SystemAccount(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("ShadowSettle:account:"+name))
}

var (
	VaultAccount     = SystemAccount("vault")
	InsuranceAccount = SystemAccount("insurance-fund")
	FeeAccount       = SystemAccount("fee-sink")
)
