package transfer_test

import (
	"testing"

	"ShadowSettle/internal/transfer"
)

// ============================================================================
// Test: settlement rail table
// ============================================================================

func TestMethod_Profiles(t *testing.T) {
	cases := []struct {
		method  transfer.Method
		name    string
		feeBps  int64
		relayer bool
	}{
		{transfer.MethodShadowWire, "ShadowWire", 25, true},
		{transfer.MethodCSPL, "CSPL", 0, false},
		{transfer.MethodStandardSPL, "StandardSPL", 0, false},
	}
	for _, tc := range cases {
		if !tc.method.Valid() {
			t.Errorf("%s should be valid", tc.name)
		}
		if got := tc.method.String(); got != tc.name {
			t.Errorf("String() = %q, want %q", got, tc.name)
		}
		if got := tc.method.FeeBps(); got != tc.feeBps {
			t.Errorf("%s FeeBps = %d, want %d", tc.name, got, tc.feeBps)
		}
		if got := tc.method.RequiresRelayer(); got != tc.relayer {
			t.Errorf("%s RequiresRelayer = %v, want %v", tc.name, got, tc.relayer)
		}
	}
}

func TestMethod_UnknownInvalid(t *testing.T) {
	m := transfer.Method(99)
	if m.Valid() {
		t.Error("unmapped variant must be invalid")
	}
	if m.String() != "Unknown" {
		t.Errorf("String() = %q", m.String())
	}
	if m.FeeBps() != 0 {
		t.Error("unmapped variant must charge nothing")
	}
}

func TestParseMethod_RoundTrips(t *testing.T) {
	for _, m := range []transfer.Method{transfer.MethodShadowWire, transfer.MethodCSPL, transfer.MethodStandardSPL} {
		parsed, err := transfer.ParseMethod(m.String())
		if err != nil {
			t.Fatalf("parse %s: %v", m, err)
		}
		if parsed != m {
			t.Errorf("parse(%s) = %v", m, parsed)
		}
	}
	if _, err := transfer.ParseMethod("carrier-pigeon"); err == nil {
		t.Error("unknown rail name must fail to parse")
	}
}

// ============================================================================
// Test: system accounts
// ============================================================================

func TestSystemAccount_DistinctAndStable(t *testing.T) {
	if transfer.SystemAccount("vault") != transfer.VaultAccount {
		t.Error("system account derivation must be stable")
	}
	if transfer.VaultAccount == transfer.InsuranceAccount || transfer.VaultAccount == transfer.FeeAccount {
		t.Error("system accounts must be distinct")
	}
}
