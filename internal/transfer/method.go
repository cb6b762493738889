package transfer

import "fmt"

// Method is the closed set of settlement rails. Each variant carries its own
// fee and relayer behavior; there is no dynamic dispatch beyond this table.
type Method int32

const (
	MethodShadowWire Method = iota
	MethodCSPL
	MethodStandardSPL
)

// methodProfile is the per-variant behavior table.
type methodProfile struct {
	name            string
	feeBps          int64
	requiresRelayer bool
}

var methodProfiles = map[Method]methodProfile{
	// ShadowWire routes through an external relayer that charges a fixed
	// relayer fee in basis points on the quote leg.
	MethodShadowWire:  {name: "ShadowWire", feeBps: 25, requiresRelayer: true},
	MethodCSPL:        {name: "CSPL", feeBps: 0, requiresRelayer: false},
	MethodStandardSPL: {name: "StandardSPL", feeBps: 0, requiresRelayer: false},
}

// FeeBps returns the settlement fee in basis points charged on the quote leg.
func (m Method) FeeBps() int64 {
	return methodProfiles[m].feeBps
}

// RequiresRelayer reports whether the method settles through an external
// relayer rather than a direct program transfer.
func (m Method) RequiresRelayer() bool {
	return methodProfiles[m].requiresRelayer
}

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	_, ok := methodProfiles[m]
	return ok
}

func (m Method) String() string {
	if p, ok := methodProfiles[m]; ok {
		return p.name
	}
	return "Unknown"
}

// ParseMethod maps a wire string to a Method.
func ParseMethod(s string) (Method, error) {
	for m, p := range methodProfiles {
		if p.name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown settlement method: %q", s)
}
