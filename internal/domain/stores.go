package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DeclKind selects a family of declarations in a declarative program.
type DeclKind string

const (
	KindStateFluent DeclKind = "state_fluent"
	KindAction      DeclKind = "action"
	KindUtility     DeclKind = "utility"
)

// GroupSet is a set of mutually-exclusive-choice group IDs.
type GroupSet map[string]struct{}

// Intersect returns the group IDs present in both sets.
func (g GroupSet) Intersect(other GroupSet) GroupSet {
	out := make(GroupSet)
	for id := range g {
		if _, ok := other[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// DeclarationStore yields the raw material a model is built from:
// untagged declarations, tagged assignments, and the provenance index
// that records which argument values originate from which
// mutually-exclusive choice group.
type DeclarationStore interface {
	// Declarations returns the declared terms of a kind in a stable
	// order.
	Declarations(kind DeclKind) []Term
	// Assignments returns kind-tagged pairs, term to value term
	// (classification tags for state fluents, weights for utilities).
	Assignments(kind DeclKind) map[Term]Term
	// ADSVocabulary maps every argument value appearing in a choice
	// group head to the set of group IDs it could originate from.
	ADSVocabulary() map[Term]GroupSet
}

// Oracle answers probability queries against the declarative program.
// Evaluation is assumed deterministic and idempotent for a fixed
// program and evidence; failures propagate to the caller unmodified and
// are never retried here.
type Oracle interface {
	// Ground prepares a query set for repeated evaluation and
	// validates every term is known.
	Ground(ctx context.Context, queries []Term) error
	// Evaluate returns the probability of each query term given the
	// evidence, in query order.
	Evaluate(ctx context.Context, queries []Term, evidence Evidence) ([]TermProb, error)
	// AddFact injects a probabilistic fact, used at model setup so
	// the query graph is well formed before the first real query.
	AddFact(ctx context.Context, term Term, prob float64) error
	// AddChoiceGroup injects a mutually exclusive probabilistic
	// choice over the given terms.
	AddChoiceGroup(ctx context.Context, terms []Term, probs []float64) error
}

// RunStore persists solve runs.
type RunStore interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
	// ListSimilar returns runs over the same state count ordered by
	// value-function distance to the given run.
	ListSimilar(ctx context.Context, id uuid.UUID, limit int) ([]RunWithDistance, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
