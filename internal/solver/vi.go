// Package solver implements exact Value Iteration over a factored MDP
// model: synchronous Bellman sweeps whose expected future value is
// computed by walking the per-factor transition branches with the same
// mixed-radix arithmetic the state codec uses for storage.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solverlab/bellman/internal/domain"
	"github.com/solverlab/bellman/internal/mdp"
)

const (
	defaultGamma         = 0.9
	defaultEpsilon       = 0.1
	defaultMaxIterations = 1000
)

// ErrBadConfig marks a rejected solver configuration.
var ErrBadConfig = errors.New("invalid solver configuration")

// Config tunes one value-iteration run.
type Config struct {
	// Gamma is the discount factor, in (0, 1). Values at or above 1
	// make the backup non-contracting and are rejected.
	Gamma float64
	// Epsilon bounds the suboptimality of the greedy policy at
	// convergence.
	Epsilon float64
	// MaxIterations caps the sweep count so a non-contracting oracle
	// reports non-convergence instead of hanging.
	MaxIterations int
	// Workers bounds the state-level parallelism within one sweep.
	// Zero means one worker per CPU.
	Workers int
}

func (c Config) withDefaults() Config {
	if c.Gamma == 0 {
		c.Gamma = defaultGamma
	}
	if c.Epsilon == 0 {
		c.Epsilon = defaultEpsilon
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = defaultMaxIterations
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	return c
}

// Solution is the converged output of one run: the value function and
// greedy policy indexed by state, the full Q-table, and per-sweep
// diagnostics. StateLabels carries the decoded valuation of each state
// index so downstream layers can re-key by valuation.
type Solution struct {
	Gamma       float64       `json:"gamma"`
	Epsilon     float64       `json:"epsilon"`
	Iterations  int           `json:"iterations"`
	Converged   bool          `json:"converged"`
	MaxResidual float64       `json:"max_residual"`
	Duration    time.Duration `json:"duration_ns"`

	StateLabels []string      `json:"state_labels"`
	Actions     []domain.Term `json:"actions"`
	V           []float64     `json:"v"`
	Policy      []domain.Term `json:"policy"`
	Q           [][]float64   `json:"q"`

	// History holds one value-function snapshot per sweep.
	History [][]float64 `json:"history,omitempty"`
	// Residuals holds the max residual of each sweep.
	Residuals []float64 `json:"residuals,omitempty"`
}

// ValueByState re-keys the value function by state label.
func (s *Solution) ValueByState() map[string]float64 {
	out := make(map[string]float64, len(s.V))
	for i, label := range s.StateLabels {
		out[label] = s.V[i]
	}
	return out
}

// PolicyByState re-keys the greedy policy by state label.
func (s *Solution) PolicyByState() map[string]domain.Term {
	out := make(map[string]domain.Term, len(s.Policy))
	for i, label := range s.StateLabels {
		out[label] = s.Policy[i]
	}
	return out
}

// QByState re-keys the Q-table by state label and action term.
func (s *Solution) QByState() map[string]map[domain.Term]float64 {
	out := make(map[string]map[domain.Term]float64, len(s.Q))
	for i, label := range s.StateLabels {
		row := make(map[domain.Term]float64, len(s.Actions))
		for j, a := range s.Actions {
			row[a] = s.Q[i][j]
		}
		out[label] = row
	}
	return out
}

// ValueIteration runs synchronous (Jacobi) Bellman sweeps until the
// sup-norm residual certifies an epsilon-optimal greedy policy. Within
// a sweep every state reads the previous snapshot, so states can be
// backed up in parallel; sweeps are serialized by a barrier.
type ValueIteration struct {
	model  *mdp.Model
	cfg    Config
	logger *zap.Logger
}

func New(model *mdp.Model, cfg Config, logger *zap.Logger) (*ValueIteration, error) {
	cfg = cfg.withDefaults()
	if cfg.Gamma <= 0 || cfg.Gamma >= 1 {
		return nil, fmt.Errorf("%w: gamma %v outside (0,1), the backup would not contract", ErrBadConfig, cfg.Gamma)
	}
	if cfg.Epsilon <= 0 {
		return nil, fmt.Errorf("%w: epsilon %v must be positive", ErrBadConfig, cfg.Epsilon)
	}
	return &ValueIteration{model: model, cfg: cfg, logger: logger}, nil
}

type sweepResult struct {
	v        float64
	best     int
	q        []float64
	residual float64
}

// Run iterates to the fixed point. It returns a non-nil solution with
// Converged=false when the iteration cap is hit; oracle errors abort
// the run.
func (vi *ValueIteration) Run(ctx context.Context) (*Solution, error) {
	schema := vi.model.Schema()
	states := domain.NewStateSpace(schema)
	actions, err := domain.NewActionSpace(vi.model.Actions())
	if err != nil {
		return nil, fmt.Errorf("action space: %w", err)
	}

	n := states.Size()
	na := actions.Size()
	threshold := 2 * vi.cfg.Epsilon * (1 - vi.cfg.Gamma) / vi.cfg.Gamma

	// valuations are pure functions of the index; decode them once
	stateVals := make([]domain.Valuation, n)
	stateLabels := make([]string, n)
	for i := 0; i < n; i++ {
		if stateVals[i], err = states.Decode(i); err != nil {
			return nil, err
		}
		if stateLabels[i], err = states.Label(i); err != nil {
			return nil, err
		}
	}
	actionVals := make([]domain.Valuation, na)
	for j := 0; j < na; j++ {
		if actionVals[j], err = actions.Decode(j); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	sol := &Solution{
		Gamma:       vi.cfg.Gamma,
		Epsilon:     vi.cfg.Epsilon,
		StateLabels: stateLabels,
		Actions:     vi.model.Actions(),
	}

	v := make([]float64, n)
	var q [][]float64
	policy := make([]int, n)

	for iter := 1; iter <= vi.cfg.MaxIterations; iter++ {
		results := make([]sweepResult, n)
		if err := vi.sweep(ctx, v, stateVals, actionVals, results); err != nil {
			return nil, fmt.Errorf("sweep %d: %w", iter, err)
		}

		next := make([]float64, n)
		q = make([][]float64, n)
		maxResidual := 0.0
		for i, r := range results {
			next[i] = r.v
			q[i] = r.q
			policy[i] = r.best
			if r.residual > maxResidual {
				maxResidual = r.residual
			}
		}
		v = next

		sol.History = append(sol.History, append([]float64(nil), v...))
		sol.Residuals = append(sol.Residuals, maxResidual)
		sol.Iterations = iter
		sol.MaxResidual = maxResidual

		if maxResidual <= threshold {
			sol.Converged = true
			break
		}
	}

	sol.Duration = time.Since(start)
	sol.V = v
	sol.Q = q
	sol.Policy = make([]domain.Term, n)
	for i, j := range policy {
		sol.Policy[i] = vi.model.Actions()[j]
	}

	if !sol.Converged {
		vi.logger.Warn("value iteration hit the iteration cap without converging",
			zap.Int("iterations", sol.Iterations),
			zap.Float64("max_residual", sol.MaxResidual),
			zap.Float64("threshold", threshold))
	} else {
		vi.logger.Info("value iteration converged",
			zap.Int("iterations", sol.Iterations),
			zap.Int("states", n),
			zap.Int("actions", na),
			zap.Duration("duration", sol.Duration))
	}
	return sol, nil
}

// sweep backs up every state against the previous snapshot v. Results
// land in disjoint slots of results, so workers share nothing but the
// read-only snapshot.
func (vi *ValueIteration) sweep(ctx context.Context, v []float64, stateVals, actionVals []domain.Valuation, results []sweepResult) error {
	workers := vi.cfg.Workers
	if workers > len(results) {
		workers = len(results)
	}

	indices := make(chan int)
	errs := make(chan error, workers)
	failed := make(chan struct{})
	var failOnce sync.Once

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				r, err := vi.backup(ctx, i, v, stateVals, actionVals)
				if err != nil {
					errs <- err
					failOnce.Do(func() { close(failed) })
					return
				}
				results[i] = r
			}
		}()
	}

feed:
	for i := range results {
		select {
		case indices <- i:
		case <-failed:
			break feed
		case <-ctx.Done():
			close(indices)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(indices)
	wg.Wait()

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// backup computes the Q row of one state and picks the greedy action.
// Ties break toward the last action index with Q >= the running max.
func (vi *ValueIteration) backup(ctx context.Context, i int, v []float64, stateVals, actionVals []domain.Valuation) (sweepResult, error) {
	schema := vi.model.Schema()
	strides := schema.Strides()

	q := make([]float64, len(actionVals))
	best := 0
	bestQ := math.Inf(-1)
	for j := range actionVals {
		key := mdp.CacheKey{State: i, Action: j}
		st, err := vi.model.StructuredTransition(ctx, stateVals[i], actionVals[j], &key)
		if err != nil {
			return sweepResult{}, err
		}
		r, err := vi.model.Reward(ctx, stateVals[i], actionVals[j], &key)
		if err != nil {
			return sweepResult{}, err
		}
		expected, err := expectedValue(schema, strides, st, v)
		if err != nil {
			return sweepResult{}, err
		}
		q[j] = r + vi.cfg.Gamma*expected
		if q[j] >= bestQ {
			bestQ = q[j]
			best = j
		}
	}
	return sweepResult{
		v:        bestQ,
		best:     best,
		q:        q,
		residual: math.Abs(v[i] - bestQ),
	}, nil
}

// frame is one pending node of the expected-value traversal: the next
// factor to expand, the composite index accumulated so far and the
// joint probability of the branches taken to get here.
type frame struct {
	factor int
	index  int
	prob   float64
}

// expectedValue sums jointProb * v[index] over every combination of
// transition branches. The traversal accumulates the composite index
// with the same strides the codec encodes with, so the indices it
// produces agree exactly with StateSpace.Encode. An explicit stack
// replaces recursion so deep factor lists cannot overflow.
func expectedValue(schema *domain.Schema, strides []int, st domain.StructuredTransition, v []float64) (float64, error) {
	total := 0.0
	stack := []frame{{factor: 0, index: 0, prob: 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.factor == len(st) {
			total += f.prob * v[f.index]
			continue
		}
		for _, b := range st[f.factor] {
			local, err := schema.LocalIndex(f.factor, b.Term)
			if err != nil {
				return 0, err
			}
			stack = append(stack, frame{
				factor: f.factor + 1,
				index:  f.index + local*strides[f.factor],
				prob:   f.prob * b.Prob,
			})
		}
	}
	return total, nil
}
