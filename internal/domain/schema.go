package domain

import (
	"fmt"
	"sort"
)

// Schema is the ordered factor list of one factored space. It is
// append-only while being built and freezes on first use: factors are
// then sorted by canonical key and the mixed-radix strides are cached.
// A frozen schema is immutable and safe for concurrent reads.
type Schema struct {
	factors []Factor
	strides []int
	total   int
	frozen  bool
}

func NewSchema() *Schema {
	return &Schema{}
}

// AddBinary registers a single {0,1} fluent as its own factor.
func (s *Schema) AddBinary(term Term) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	s.factors = append(s.factors, Factor{Kind: FactorBinary, Terms: []Term{term}})
	return nil
}

// AddGroup registers an ordered one-hot group as a single factor of
// base len(terms). Groups of fewer than two options are rejected: one
// option is a constant, not a variable.
func (s *Schema) AddGroup(key string, terms []Term) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	if len(terms) < 2 {
		return &CardinalityError{GroupKey: key, Options: terms}
	}
	opts := make([]Term, len(terms))
	copy(opts, terms)
	s.factors = append(s.factors, Factor{Kind: FactorEnumerated, Terms: opts, GroupKey: key})
	return nil
}

// Freeze sorts the factors by canonical key and caches strides and the
// total state count. Freezing twice is a no-op. Every read accessor
// freezes implicitly, so callers that share a schema across goroutines
// must freeze before handing it out.
func (s *Schema) Freeze() {
	if s.frozen {
		return
	}
	sort.Slice(s.factors, func(i, j int) bool {
		return s.factors[i].SortKey() < s.factors[j].SortKey()
	})
	s.strides = make([]int, len(s.factors))
	s.total = 1
	for i, f := range s.factors {
		s.strides[i] = s.total
		s.total *= f.Base()
	}
	s.frozen = true
}

// Len returns the number of factors.
func (s *Schema) Len() int {
	s.Freeze()
	return len(s.factors)
}

// Factors returns the ordered factor list. Callers must treat it as
// read only.
func (s *Schema) Factors() []Factor {
	s.Freeze()
	return s.factors
}

// Factor returns the factor at index i.
func (s *Schema) Factor(i int) Factor {
	s.Freeze()
	return s.factors[i]
}

// TotalStates is the product of all factor bases.
func (s *Schema) TotalStates() int {
	s.Freeze()
	return s.total
}

// Strides is the exclusive prefix product of the bases: Strides[0] is 1
// and Strides[i] is the positional weight of factor i in the composite
// index.
func (s *Schema) Strides() []int {
	s.Freeze()
	return s.strides
}

// Bases returns the radix of each factor in order.
func (s *Schema) Bases() []int {
	s.Freeze()
	bases := make([]int, len(s.factors))
	for i, f := range s.factors {
		bases[i] = f.Base()
	}
	return bases
}

// FactorsAt returns a copy of the factors with every term stamped at
// the given timestep. The schema itself is not modified.
func (s *Schema) FactorsAt(step int) []Factor {
	s.Freeze()
	stamped := make([]Factor, len(s.factors))
	for i, f := range s.factors {
		terms := make([]Term, len(f.Terms))
		for j, t := range f.Terms {
			terms[j] = t.At(step)
		}
		stamped[i] = Factor{Kind: f.Kind, Terms: terms, GroupKey: f.GroupKey}
	}
	return stamped
}

// FlatList returns every term of every factor in registration order,
// unstamped.
func (s *Schema) FlatList() []Term {
	s.Freeze()
	var terms []Term
	for _, f := range s.factors {
		terms = append(terms, f.Terms...)
	}
	return terms
}

// LocalIndex resolves a term to its local coordinate within the factor
// at index i. Timestep suffixes are ignored. For a binary factor the
// zero term selects the false branch (0) and the factor's own term
// selects 1. For an enumerated factor the term is searched among the
// options. Any other term means the oracle and the schema disagree
// about the world, which is unrecoverable: an IndexMismatchError is
// returned and must abort the computation.
func (s *Schema) LocalIndex(i int, term Term) (int, error) {
	s.Freeze()
	if i < 0 || i >= len(s.factors) {
		return 0, fmt.Errorf("factor index %d out of range [0,%d)", i, len(s.factors))
	}
	f := s.factors[i]
	if f.Kind == FactorBinary {
		switch {
		case term == "":
			return 0, nil
		case term.Base() == f.Terms[0]:
			return 1, nil
		default:
			return 0, &IndexMismatchError{FactorIndex: i, Term: term}
		}
	}
	base := term.Base()
	for j, opt := range f.Terms {
		if opt == base {
			return j, nil
		}
	}
	return 0, &IndexMismatchError{FactorIndex: i, Term: term}
}
