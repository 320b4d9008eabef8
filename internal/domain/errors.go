package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRunNotFound is returned by run stores when no row matches.
	ErrRunNotFound = errors.New("run not found")
	// ErrSchemaFrozen is returned when adding factors to a schema
	// that has already been used.
	ErrSchemaFrozen = errors.New("schema is frozen")
	// ErrUnknownTerm is returned by oracles asked about a term that
	// was never declared.
	ErrUnknownTerm = errors.New("unknown term")
)

// DeclarationError reports a malformed explicit fluent declaration.
// It is detected before the schema is built and batched with every
// other static declaration problem.
type DeclarationError struct {
	Term   Term
	Tag    string
	Reason string
}

func (e *DeclarationError) Error() string {
	return fmt.Sprintf("declaration %s: tag %q: %s", e.Term, e.Tag, e.Reason)
}

// AmbiguityError reports an untagged fluent of arity >= 2 with a
// stochastic argument position. The grouping intent cannot be inferred,
// so the declaration must be disambiguated explicitly rather than
// guessed.
type AmbiguityError struct {
	Functor  string
	Arity    int
	Position int
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf(
		"fluent %s/%d: argument %d takes mutually exclusive values; declare it explicitly as enum (whole tuple one group) or enum(%d) (group by the remaining arguments)",
		e.Functor, e.Arity, e.Position, e.Position)
}

// CardinalityError reports an enumerated group that resolved to fewer
// than two options. A one-option group is structurally a constant.
type CardinalityError struct {
	GroupKey string
	Options  []Term
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("group %s: %d option(s), an enumerated group needs at least 2", e.GroupKey, len(e.Options))
}

// IndexMismatchError reports a term that does not match any option of
// the factor it is being indexed against. It signals that the oracle
// and the schema have desynchronized, which is fatal: callers must
// abort, never retry.
type IndexMismatchError struct {
	FactorIndex int
	Term        Term
}

func (e *IndexMismatchError) Error() string {
	return fmt.Sprintf("term %s does not belong to factor %d", e.Term, e.FactorIndex)
}

// ValidationError aggregates the static declaration problems found in
// one classification pass so callers see all of them at once instead of
// fixing them one by one.
type ValidationError struct {
	Issues []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Error()
	}
	return fmt.Sprintf("%d declaration problem(s): %s", len(e.Issues), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error {
	return e.Issues
}
