package domain

import (
	"fmt"
	"strings"
)

// FactorSpace is the bijection between integer indices in
// [0, TotalStates) and full valuations of a schema. Decode is a pure
// function of the index, so sequential enumeration and random access
// always agree.
type FactorSpace struct {
	schema   *Schema
	timestep int
}

// NewStateSpace enumerates the states of a schema at timestep 0.
func NewStateSpace(s *Schema) *FactorSpace {
	s.Freeze()
	return &FactorSpace{schema: s, timestep: 0}
}

// NewSpaceAt enumerates the states of a schema stamped at an arbitrary
// timestep. A negative timestep leaves terms unstamped.
func NewSpaceAt(s *Schema, step int) *FactorSpace {
	s.Freeze()
	return &FactorSpace{schema: s, timestep: step}
}

// NewActionSpace wraps an action list as the single one-hot factor of a
// throwaway schema, so action indexing shares the state codec instead
// of a parallel implementation.
func NewActionSpace(actions []Term) (*FactorSpace, error) {
	s := NewSchema()
	if err := s.AddGroup("action", actions); err != nil {
		return nil, err
	}
	s.Freeze()
	return &FactorSpace{schema: s, timestep: -1}, nil
}

// Schema returns the underlying schema.
func (fs *FactorSpace) Schema() *Schema {
	return fs.schema
}

// Size is the number of distinct valuations.
func (fs *FactorSpace) Size() int {
	return fs.schema.TotalStates()
}

func (fs *FactorSpace) stamp(t Term) Term {
	if fs.timestep < 0 {
		return t
	}
	return t.At(fs.timestep)
}

// Decode expands an index into the full valuation it denotes: each
// factor contributes its local digit in mixed-radix order, binary
// factors as the digit itself and enumerated factors one-hot.
func (fs *FactorSpace) Decode(index int) (Valuation, error) {
	if index < 0 || index >= fs.Size() {
		return nil, fmt.Errorf("index %d out of range [0,%d)", index, fs.Size())
	}
	v := make(Valuation)
	rest := index
	for _, f := range fs.schema.Factors() {
		base := f.Base()
		local := rest % base
		rest /= base
		if f.Kind == FactorBinary {
			v[fs.stamp(f.Terms[0])] = local
			continue
		}
		for j, opt := range f.Terms {
			val := 0
			if j == local {
				val = 1
			}
			v[fs.stamp(opt)] = val
		}
	}
	return v, nil
}

// Encode reads back each factor's local coordinate from a valuation and
// accumulates the composite index. The valuation must cover every
// factor and respect the one-hot invariant.
func (fs *FactorSpace) Encode(v Valuation) (int, error) {
	strides := fs.schema.Strides()
	index := 0
	for k, f := range fs.schema.Factors() {
		local, err := fs.localOf(f, v)
		if err != nil {
			return 0, fmt.Errorf("factor %d (%s): %w", k, f, err)
		}
		index += local * strides[k]
	}
	return index, nil
}

func (fs *FactorSpace) localOf(f Factor, v Valuation) (int, error) {
	if f.Kind == FactorBinary {
		val, ok := v[fs.stamp(f.Terms[0])]
		if !ok {
			return 0, fmt.Errorf("valuation missing %s", fs.stamp(f.Terms[0]))
		}
		if val != 0 && val != 1 {
			return 0, fmt.Errorf("value %d for %s outside {0,1}", val, f.Terms[0])
		}
		return val, nil
	}
	active := -1
	for j, opt := range f.Terms {
		val, ok := v[fs.stamp(opt)]
		if !ok {
			return 0, fmt.Errorf("valuation missing %s", fs.stamp(opt))
		}
		if val == 1 {
			if active >= 0 {
				return 0, fmt.Errorf("more than one active option")
			}
			active = j
		}
	}
	if active < 0 {
		return 0, fmt.Errorf("no active option")
	}
	return active, nil
}

// Label renders the valuation at an index as a stable human-readable
// string: binary factors as term=digit, enumerated factors as the
// active option.
func (fs *FactorSpace) Label(index int) (string, error) {
	if index < 0 || index >= fs.Size() {
		return "", fmt.Errorf("index %d out of range [0,%d)", index, fs.Size())
	}
	var parts []string
	rest := index
	for _, f := range fs.schema.Factors() {
		base := f.Base()
		local := rest % base
		rest /= base
		if f.Kind == FactorBinary {
			parts = append(parts, fmt.Sprintf("%s=%d", f.Terms[0], local))
			continue
		}
		parts = append(parts, string(f.Terms[local]))
	}
	return strings.Join(parts, ", "), nil
}
