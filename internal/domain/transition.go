package domain

// Branch is one next-timestep outcome of a factor together with its
// probability. A zero Term on a binary factor denotes the false branch.
type Branch struct {
	Term Term    `json:"term,omitempty"`
	Prob float64 `json:"prob"`
}

// FactorDist is the sparse branch list of one factor. Branches below
// the model's pruning threshold are omitted, so the list is not
// necessarily exhaustive: unlisted options carry negligible
// probability, nothing more.
type FactorDist []Branch

// StructuredTransition holds one branch list per schema factor, in
// factor order. It is the per-factor form the solver's expected-value
// walk consumes.
type StructuredTransition []FactorDist
