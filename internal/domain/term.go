package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Term is the canonical string form of a fluent or action identifier:
// a bare functor ("rain"), a grounded compound ("running(c1)",
// "marketed(ana,tv)"), optionally stamped with a timestep suffix
// ("running(c1)@1"). Terms are compared, sorted and used as map keys by
// this canonical form, so two terms are the same fluent iff their
// strings are equal.
type Term string

// NewTerm builds a term from a functor and its arguments.
func NewTerm(functor string, args ...string) Term {
	if len(args) == 0 {
		return Term(functor)
	}
	return Term(functor + "(" + strings.Join(args, ",") + ")")
}

// At returns the term stamped with the given timestep.
// Stamping an already stamped term replaces the timestep.
func (t Term) At(step int) Term {
	return Term(fmt.Sprintf("%s@%d", t.Base(), step))
}

// Base strips the timestep suffix, if any.
func (t Term) Base() Term {
	if i := strings.LastIndexByte(string(t), '@'); i >= 0 {
		return t[:i]
	}
	return t
}

// Timestep reports the timestep suffix and whether one is present.
func (t Term) Timestep() (int, bool) {
	i := strings.LastIndexByte(string(t), '@')
	if i < 0 {
		return 0, false
	}
	var step int
	if _, err := fmt.Sscanf(string(t[i+1:]), "%d", &step); err != nil {
		return 0, false
	}
	return step, true
}

// Functor returns the predicate name without arguments or timestep.
func (t Term) Functor() string {
	s := string(t.Base())
	if i := strings.IndexByte(s, '('); i >= 0 {
		return s[:i]
	}
	return s
}

// Args returns the top-level arguments of the term. Nested compounds
// count as a single argument: "pos(celda(1,2))" has one argument,
// "celda(1,2)".
func (t Term) Args() []string {
	s := string(t.Base())
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil
	}
	return splitArgs(s[open+1 : len(s)-1])
}

// Arity returns the number of top-level arguments.
func (t Term) Arity() int {
	return len(t.Args())
}

func (t Term) String() string {
	return string(t)
}

func splitArgs(s string) []string {
	if s == "" {
		return nil
	}
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(s[start:]))
	return args
}

// SortTerms sorts terms in place by canonical form and returns the slice.
// Registration order everywhere in the schema pipeline derives from this
// ordering, which keeps factor layouts reproducible across runs.
func SortTerms(terms []Term) []Term {
	sort.Slice(terms, func(i, j int) bool { return terms[i] < terms[j] })
	return terms
}

// Evidence is a truth assignment over terms, 0 or 1 per term, used both
// for valuations of a single timestep and for merged oracle evidence.
type Evidence map[Term]int

// Merge returns a new evidence map containing all entries of e and other.
// Entries of other win on conflict.
func (e Evidence) Merge(other Evidence) Evidence {
	merged := make(Evidence, len(e)+len(other))
	for t, v := range e {
		merged[t] = v
	}
	for t, v := range other {
		merged[t] = v
	}
	return merged
}

// Valuation is a full assignment for the factors of one schema at one
// timestep, one-hot within every enumerated factor.
type Valuation = Evidence

// TermProb pairs a term with a probability, the unit of oracle answers.
type TermProb struct {
	Term Term    `json:"term"`
	Prob float64 `json:"prob"`
}
