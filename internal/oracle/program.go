package oracle

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/solverlab/bellman/internal/domain"
)

// Program is an in-memory declarative MDP model. It plays both external
// roles the solver core consumes: the declaration store the classifier
// reads, and the inference oracle the model queries. Dynamics are
// ordered condition tables per target term; evaluation picks the first
// entry whose condition is satisfied by the evidence and falls back to
// the term's registered default probability.
//
// A Program backs a single model instance: model construction injects
// bookkeeping facts and choice groups, so reusing one Program across
// models would distort its provenance vocabulary.
type Program struct {
	mu sync.RWMutex

	decls   map[domain.DeclKind][]domain.Term
	declSet map[domain.DeclKind]map[domain.Term]struct{}
	assigns map[domain.DeclKind]map[domain.Term]domain.Term

	facts  map[domain.Term]float64
	priors map[domain.Term]float64
	vocab  map[domain.Term]domain.GroupSet
	rules  map[domain.Term][]RuleEntry

	grounded map[domain.Term]struct{}
}

// RuleEntry is one row of a condition table. When is a partial truth
// assignment over current-step fluents and actions; keys may be written
// unstamped, evaluation also tries the timestep-0 form.
type RuleEntry struct {
	When domain.Evidence `json:"when,omitempty"`
	Prob float64         `json:"prob"`
}

var (
	_ domain.DeclarationStore = (*Program)(nil)
	_ domain.Oracle           = (*Program)(nil)
)

func NewProgram() *Program {
	return &Program{
		decls:    make(map[domain.DeclKind][]domain.Term),
		declSet:  make(map[domain.DeclKind]map[domain.Term]struct{}),
		assigns:  make(map[domain.DeclKind]map[domain.Term]domain.Term),
		facts:    make(map[domain.Term]float64),
		priors:   make(map[domain.Term]float64),
		vocab:    make(map[domain.Term]domain.GroupSet),
		rules:    make(map[domain.Term][]RuleEntry),
		grounded: make(map[domain.Term]struct{}),
	}
}

func (p *Program) declare(kind domain.DeclKind, term domain.Term) {
	if p.declSet[kind] == nil {
		p.declSet[kind] = make(map[domain.Term]struct{})
	}
	if _, ok := p.declSet[kind][term]; ok {
		return
	}
	p.declSet[kind][term] = struct{}{}
	p.decls[kind] = append(p.decls[kind], term)
}

func (p *Program) assign(kind domain.DeclKind, term, value domain.Term) {
	if p.assigns[kind] == nil {
		p.assigns[kind] = make(map[domain.Term]domain.Term)
	}
	p.assigns[kind][term] = value
}

// DeclareState registers an untagged state fluent for classification.
func (p *Program) DeclareState(term domain.Term) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declare(domain.KindStateFluent, term)
}

// DeclareStateTagged registers a state fluent with an explicit
// classification tag (binary, enum, enum(N)).
func (p *Program) DeclareStateTagged(term, tag domain.Term) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assign(domain.KindStateFluent, term, tag)
}

// DeclareAction registers an action term.
func (p *Program) DeclareAction(term domain.Term) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declare(domain.KindAction, term)
}

// DeclareUtility registers a utility term with its fixed reward weight.
func (p *Program) DeclareUtility(term domain.Term, weight float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declare(domain.KindUtility, term)
	p.assign(domain.KindUtility, term, domain.Term(strconv.FormatFloat(weight, 'g', -1, 64)))
}

// Rule appends entries to the condition table of a target term. Entries
// are matched in registration order; the first satisfied one wins.
func (p *Program) Rule(target domain.Term, entries ...RuleEntry) error {
	for _, e := range entries {
		if e.Prob < 0 || e.Prob > 1 {
			return fmt.Errorf("rule for %s: probability %v outside [0,1]", target, e.Prob)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[target] = append(p.rules[target], entries...)
	return nil
}

// AddFact injects a probabilistic fact. The probability doubles as the
// term's default when no rule entry matches. Facts are keyed by the
// bare term so a default registered at one timestep answers queries at
// any other, mirroring how choice priors resolve.
func (p *Program) AddFact(ctx context.Context, term domain.Term, prob float64) error {
	if prob < 0 || prob > 1 {
		return fmt.Errorf("fact %s: probability %v outside [0,1]", term, prob)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.facts[term.Base()] = prob
	return nil
}

// AddChoiceGroup injects a mutually exclusive probabilistic choice over
// the given terms. Every argument value of every head joins the
// provenance vocabulary under a fresh group ID, and each head's
// probability becomes its default prior.
func (p *Program) AddChoiceGroup(ctx context.Context, terms []domain.Term, probs []float64) error {
	if len(terms) == 0 {
		return fmt.Errorf("choice group needs at least one term")
	}
	if len(terms) != len(probs) {
		return fmt.Errorf("choice group: %d terms but %d probabilities", len(terms), len(probs))
	}
	sum := 0.0
	for _, pr := range probs {
		if pr < 0 || pr > 1 {
			return fmt.Errorf("choice group: probability %v outside [0,1]", pr)
		}
		sum += pr
	}
	if sum > 1.0+1e-5 {
		return fmt.Errorf("choice group: probabilities sum to %v, must not exceed 1", sum)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	id := uuid.New().String()
	for i, t := range terms {
		for _, arg := range t.Args() {
			key := domain.Term(arg)
			if p.vocab[key] == nil {
				p.vocab[key] = make(domain.GroupSet)
			}
			p.vocab[key][id] = struct{}{}
		}
		p.priors[t.Base()] = probs[i]
	}
	return nil
}

// Declarations returns the declared terms of a kind in declaration
// order.
func (p *Program) Declarations(kind domain.DeclKind) []domain.Term {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Term, len(p.decls[kind]))
	copy(out, p.decls[kind])
	return out
}

// Assignments returns the tagged pairs of a kind.
func (p *Program) Assignments(kind domain.DeclKind) map[domain.Term]domain.Term {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[domain.Term]domain.Term, len(p.assigns[kind]))
	for t, v := range p.assigns[kind] {
		out[t] = v
	}
	return out
}

// ADSVocabulary returns the provenance index built from the choice
// groups registered so far.
func (p *Program) ADSVocabulary() map[domain.Term]domain.GroupSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[domain.Term]domain.GroupSet, len(p.vocab))
	for t, g := range p.vocab {
		set := make(domain.GroupSet, len(g))
		for id := range g {
			set[id] = struct{}{}
		}
		out[t] = set
	}
	return out
}

// Ground validates that every query term is known and prepares the set
// for evaluation.
func (p *Program) Ground(ctx context.Context, queries []domain.Term) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range queries {
		if !p.knownLocked(q) {
			return fmt.Errorf("%w: %s", domain.ErrUnknownTerm, q)
		}
		p.grounded[q] = struct{}{}
	}
	return nil
}

func (p *Program) knownLocked(q domain.Term) bool {
	base := q.Base()
	if _, ok := p.declSet[domain.KindStateFluent][base]; ok {
		return true
	}
	if _, ok := p.assigns[domain.KindStateFluent][base]; ok {
		return true
	}
	if _, ok := p.declSet[domain.KindUtility][base]; ok {
		return true
	}
	if _, ok := p.rules[q]; ok {
		return true
	}
	if _, ok := p.rules[base]; ok {
		return true
	}
	if _, ok := p.facts[q]; ok {
		return true
	}
	if _, ok := p.facts[base]; ok {
		return true
	}
	return false
}

// Evaluate resolves each query term against its condition table given
// the evidence, in query order. Resolution order per term: exact rule
// table, base rule table, exact fact, base fact, choice prior, zero.
func (p *Program) Evaluate(ctx context.Context, queries []domain.Term, evidence domain.Evidence) ([]domain.TermProb, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.TermProb, 0, len(queries))
	for _, q := range queries {
		out = append(out, domain.TermProb{Term: q, Prob: p.resolveLocked(q, evidence)})
	}
	return out, nil
}

func (p *Program) resolveLocked(q domain.Term, evidence domain.Evidence) float64 {
	entries, ok := p.rules[q]
	if !ok {
		entries, ok = p.rules[q.Base()]
	}
	if ok {
		for _, e := range entries {
			if matches(e.When, evidence) {
				return e.Prob
			}
		}
	}
	if pr, ok := p.facts[q]; ok {
		return pr
	}
	if pr, ok := p.facts[q.Base()]; ok {
		return pr
	}
	if pr, ok := p.priors[q.Base()]; ok {
		return pr
	}
	return 0
}

// matches reports whether every condition entry holds in the evidence.
// Unstamped condition keys also try their timestep-0 form, so tables
// can be written without stamping.
func matches(when domain.Evidence, evidence domain.Evidence) bool {
	for term, want := range when {
		got, ok := evidence[term]
		if !ok {
			got, ok = evidence[term.At(0)]
		}
		if !ok || got != want {
			return false
		}
	}
	return true
}
