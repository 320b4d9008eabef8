// Package mdp glues a classified fluent schema to the inference oracle:
// it translates state and action valuations into evidence, reshapes flat
// oracle answers into the per-factor form the solver consumes, and
// memoizes oracle calls per (state, action) pair.
package mdp

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/solverlab/bellman/internal/domain"
)

// pruneThreshold drops transition branches with negligible probability
// so the solver's branch-and-sum walk skips them. Sparsification only:
// unlisted branches carry probability below this value, nothing more.
const pruneThreshold = 1e-6

// CacheKey identifies one (state, action) pair in the model's
// memoization caches.
type CacheKey struct {
	State  int
	Action int
}

// Model owns a frozen state schema, the sorted action list and a handle
// to the oracle. Transition and reward results are cached per
// (state, action) key for the model's lifetime; the caches grow
// monotonically and are never invalidated because the oracle and the
// schema are immutable for one model instance.
type Model struct {
	schema  *domain.Schema
	actions []domain.Term
	oracle  domain.Oracle
	weights map[domain.Term]float64
	logger  *zap.Logger

	mu          sync.Mutex
	transitions map[CacheKey][]domain.TermProb
	rewards     map[CacheKey]float64
}

// New builds a model from a classified schema and the declaration
// store, and prepares the oracle: a neutral fact per binary factor, a
// uniform choice group per enumerated factor and one over the actions,
// so the oracle's query graph is well formed before the first real
// query. The next-timestep fluents and the utility terms are grounded
// once here.
func New(ctx context.Context, schema *domain.Schema, decls domain.DeclarationStore, oracle domain.Oracle, logger *zap.Logger) (*Model, error) {
	schema.Freeze()

	actions := decls.Declarations(domain.KindAction)
	if len(actions) == 0 {
		return nil, fmt.Errorf("model needs at least one declared action")
	}
	sorted := make([]domain.Term, len(actions))
	copy(sorted, actions)
	domain.SortTerms(sorted)

	weights, err := utilityWeights(decls)
	if err != nil {
		return nil, err
	}

	m := &Model{
		schema:      schema,
		actions:     sorted,
		oracle:      oracle,
		weights:     weights,
		logger:      logger,
		transitions: make(map[CacheKey][]domain.TermProb),
		rewards:     make(map[CacheKey]float64),
	}

	if err := m.injectDefaults(ctx); err != nil {
		return nil, fmt.Errorf("inject oracle defaults: %w", err)
	}

	queries := append(m.NextFluents(), m.utilityTerms()...)
	if err := oracle.Ground(ctx, queries); err != nil {
		return nil, fmt.Errorf("ground query set: %w", err)
	}

	logger.Info("model ready",
		zap.Int("factors", schema.Len()),
		zap.Int("states", schema.TotalStates()),
		zap.Int("actions", len(sorted)),
		zap.Int("utility_terms", len(weights)))
	return m, nil
}

func utilityWeights(decls domain.DeclarationStore) (map[domain.Term]float64, error) {
	assigns := decls.Assignments(domain.KindUtility)
	weights := make(map[domain.Term]float64, len(assigns))
	for term, value := range assigns {
		w, err := strconv.ParseFloat(string(value), 64)
		if err != nil {
			return nil, fmt.Errorf("utility %s: weight %q is not a number", term, value)
		}
		weights[term] = w
	}
	return weights, nil
}

func (m *Model) injectDefaults(ctx context.Context) error {
	for _, f := range m.schema.Factors() {
		if f.Kind == domain.FactorBinary {
			if err := m.oracle.AddFact(ctx, f.Terms[0].At(0), 0.5); err != nil {
				return err
			}
			continue
		}
		options := make([]domain.Term, len(f.Terms))
		probs := make([]float64, len(f.Terms))
		for i, t := range f.Terms {
			options[i] = t.At(0)
			probs[i] = 1.0 / float64(len(f.Terms))
		}
		if err := m.oracle.AddChoiceGroup(ctx, options, probs); err != nil {
			return err
		}
	}

	probs := make([]float64, len(m.actions))
	for i := range probs {
		probs[i] = 1.0 / float64(len(m.actions))
	}
	return m.oracle.AddChoiceGroup(ctx, m.actions, probs)
}

// Schema returns the frozen state schema.
func (m *Model) Schema() *domain.Schema {
	return m.schema
}

// Actions returns the declared actions in canonical order. Callers must
// treat the slice as read only.
func (m *Model) Actions() []domain.Term {
	return m.actions
}

// CurrentFluents returns the flat fluent list stamped at timestep 0.
func (m *Model) CurrentFluents() []domain.Term {
	return m.fluentsAt(0)
}

// NextFluents returns the flat fluent list stamped at timestep 1.
func (m *Model) NextFluents() []domain.Term {
	return m.fluentsAt(1)
}

func (m *Model) fluentsAt(step int) []domain.Term {
	flat := m.schema.FlatList()
	stamped := make([]domain.Term, len(flat))
	for i, t := range flat {
		stamped[i] = t.At(step)
	}
	return stamped
}

func (m *Model) utilityTerms() []domain.Term {
	terms := make([]domain.Term, 0, len(m.weights))
	for t := range m.weights {
		terms = append(terms, t)
	}
	return domain.SortTerms(terms)
}

// Transition merges the state and action valuations into one evidence
// map, evaluates the next-timestep fluents against it and returns the
// oracle's flat answer verbatim. When key is non-nil the result is
// memoized: at most one oracle call per distinct key.
func (m *Model) Transition(ctx context.Context, state, action domain.Valuation, key *CacheKey) ([]domain.TermProb, error) {
	if key != nil {
		m.mu.Lock()
		cached, ok := m.transitions[*key]
		m.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	answer, err := m.oracle.Evaluate(ctx, m.NextFluents(), state.Merge(action))
	if err != nil {
		return nil, err
	}

	if key != nil {
		m.mu.Lock()
		m.transitions[*key] = answer
		m.mu.Unlock()
	}
	return answer, nil
}

// StructuredTransition reshapes the flat oracle answer into one branch
// list per schema factor. Binary factors derive the false branch as the
// complement of the reported true probability, with a zero term marking
// it; enumerated factors list every option the oracle reported.
// Branches below the pruning threshold are dropped.
func (m *Model) StructuredTransition(ctx context.Context, state, action domain.Valuation, key *CacheKey) (domain.StructuredTransition, error) {
	answer, err := m.Transition(ctx, state, action, key)
	if err != nil {
		return nil, err
	}

	byBase := make(map[domain.Term]float64, len(answer))
	for _, tp := range answer {
		byBase[tp.Term.Base()] = tp.Prob
	}

	factors := m.schema.Factors()
	structured := make(domain.StructuredTransition, len(factors))
	for i, f := range factors {
		if f.Kind == domain.FactorBinary {
			pTrue := byBase[f.Terms[0]]
			pFalse := 1 - pTrue
			var dist domain.FactorDist
			if pFalse > pruneThreshold {
				dist = append(dist, domain.Branch{Prob: pFalse})
			}
			if pTrue > pruneThreshold {
				dist = append(dist, domain.Branch{Term: f.Terms[0].At(1), Prob: pTrue})
			}
			structured[i] = dist
			continue
		}
		var dist domain.FactorDist
		for _, opt := range f.Terms {
			if p := byBase[opt]; p > pruneThreshold {
				dist = append(dist, domain.Branch{Term: opt.At(1), Prob: p})
			}
		}
		structured[i] = dist
	}
	return structured, nil
}

// Reward evaluates the utility terms against the merged evidence and
// returns the expected immediate reward, the probability-weighted sum
// of the fixed utility weights. Memoized like Transition.
func (m *Model) Reward(ctx context.Context, state, action domain.Valuation, key *CacheKey) (float64, error) {
	if key != nil {
		m.mu.Lock()
		cached, ok := m.rewards[*key]
		m.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	answer, err := m.oracle.Evaluate(ctx, m.utilityTerms(), state.Merge(action))
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, tp := range answer {
		total += tp.Prob * m.weights[tp.Term.Base()]
	}

	if key != nil {
		m.mu.Lock()
		m.rewards[*key] = total
		m.mu.Unlock()
	}
	return total, nil
}
