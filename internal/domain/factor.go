package domain

import "strings"

type FactorKind string

const (
	// FactorBinary is a single fluent with domain {0,1}.
	FactorBinary FactorKind = "binary"
	// FactorEnumerated is an ordered group of mutually exclusive
	// fluents, exactly one active at a time.
	FactorEnumerated FactorKind = "enumerated"
)

// Factor is one dimension of the factored state space.
type Factor struct {
	Kind FactorKind `json:"kind"`
	// Terms holds the single fluent for a binary factor, or the
	// ordered one-hot options for an enumerated factor.
	Terms []Term `json:"terms"`
	// GroupKey identifies the enumerated group the options were
	// collected under. Empty for binary factors.
	GroupKey string `json:"group_key,omitempty"`
}

// Base is the radix this factor contributes to the mixed-radix index:
// 2 for binary, the option count for enumerated.
func (f Factor) Base() int {
	if f.Kind == FactorBinary {
		return 2
	}
	return len(f.Terms)
}

// SortKey is the canonical key the schema orders factors by.
func (f Factor) SortKey() string {
	if len(f.Terms) == 0 {
		return ""
	}
	return string(f.Terms[0])
}

func (f Factor) String() string {
	if f.Kind == FactorBinary {
		return string(f.Terms[0])
	}
	opts := make([]string, len(f.Terms))
	for i, t := range f.Terms {
		opts[i] = string(t)
	}
	return f.GroupKey + "{" + strings.Join(opts, "|") + "}"
}
