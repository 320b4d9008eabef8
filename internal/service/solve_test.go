package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solverlab/bellman/internal/domain"
	"github.com/solverlab/bellman/internal/oracle"
	"github.com/solverlab/bellman/internal/solver"
)

// stubRunStore is an in-memory RunStore with failure injection.
type stubRunStore struct {
	mu        sync.Mutex
	runs      []*domain.Run
	createErr error
	deleted   []time.Time
	deleteN   int64
	deleteErr error
}

func (s *stubRunStore) deleteCalls() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.deleted...)
}

func (s *stubRunStore) Create(ctx context.Context, r *domain.Run) error {
	if s.createErr != nil {
		return s.createErr
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	s.runs = append(s.runs, r)
	return nil
}

func (s *stubRunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.ErrRunNotFound
}

func (s *stubRunStore) List(ctx context.Context, limit int) ([]domain.Run, error) {
	out := make([]domain.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (s *stubRunStore) ListSimilar(ctx context.Context, id uuid.UUID, limit int) ([]domain.RunWithDistance, error) {
	return nil, nil
}

func (s *stubRunStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, cutoff)
	return s.deleteN, s.deleteErr
}

// switchDefinition is the deterministic one-fluent two-action model
// used across service tests.
func switchDefinition() oracle.Definition {
	return oracle.Definition{
		Name:      "switch",
		States:    []oracle.StateDecl{{Term: "f"}},
		Actions:   []string{"a0", "a1"},
		Utilities: []oracle.UtilityDecl{{Term: "goal", Weight: 1.0}},
		Rules: []oracle.RuleDecl{
			{Target: "f", Entries: []oracle.RuleEntryDecl{
				{When: map[string]int{"a0": 1}, Prob: 1.0},
				{When: map[string]int{"a1": 1}, Prob: 0.0},
			}},
			{Target: "goal", Entries: []oracle.RuleEntryDecl{
				{When: map[string]int{"f": 1}, Prob: 1.0},
				{Prob: 0.0},
			}},
		},
	}
}

func TestSolveEndToEnd(t *testing.T) {
	svc := NewSolveService(nil, zap.NewNop())

	result, err := svc.Solve(context.Background(), SolveRequest{
		Definition: switchDefinition(),
		Gamma:      0.9,
		Epsilon:    0.1,
	})
	require.NoError(t, err)

	require.True(t, result.Solution.Converged)
	assert.Equal(t, 2, result.Schema.TotalStates())
	assert.Nil(t, result.Run, "no persistence requested")

	policy := result.Solution.PolicyByState()
	assert.Equal(t, domain.Term("a0"), policy["f=0"])
}

func TestSolveFallsBackToConfiguredDefaults(t *testing.T) {
	svc := NewSolveService(nil, zap.NewNop())
	svc.SetDefaults(solver.Config{Gamma: 0.5, Epsilon: 0.2, MaxIterations: 50})

	result, err := svc.Solve(context.Background(), SolveRequest{
		Definition: switchDefinition(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, result.Solution.Gamma)
	assert.Equal(t, 0.2, result.Solution.Epsilon)

	// request overrides beat the configured defaults
	result, err = svc.Solve(context.Background(), SolveRequest{
		Definition: switchDefinition(),
		Gamma:      0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.9, result.Solution.Gamma)
	assert.Equal(t, 0.2, result.Solution.Epsilon)
}

func TestSolvePersistsRun(t *testing.T) {
	store := &stubRunStore{}
	svc := NewSolveService(store, zap.NewNop())

	result, err := svc.Solve(context.Background(), SolveRequest{
		Name:       "demo",
		Definition: switchDefinition(),
		Gamma:      0.9,
		Persist:    true,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Run)
	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.Equal(t, "demo", run.Name)
	assert.Equal(t, 2, run.States)
	assert.Equal(t, 2, run.Actions)
	assert.True(t, run.Converged)
	assert.Len(t, run.ValueFunction, 2)
	assert.Equal(t, "a0", run.Policy["f=0"])
}

func TestSolvePersistFailurePropagates(t *testing.T) {
	store := &stubRunStore{createErr: errors.New("db down")}
	svc := NewSolveService(store, zap.NewNop())

	_, err := svc.Solve(context.Background(), SolveRequest{
		Definition: switchDefinition(),
		Persist:    true,
	})
	assert.ErrorContains(t, err, "db down")
}

func TestSolveRejectsEmptyDefinition(t *testing.T) {
	svc := NewSolveService(nil, zap.NewNop())

	_, err := svc.Solve(context.Background(), SolveRequest{
		Definition: oracle.Definition{Actions: []string{"a"}},
	})
	assert.ErrorIs(t, err, ErrNoStateFluents)

	_, err = svc.Solve(context.Background(), SolveRequest{
		Definition: oracle.Definition{States: []oracle.StateDecl{{Term: "f"}}},
	})
	assert.ErrorIs(t, err, ErrNoActions)
}

func TestSolveSurfacesClassificationErrors(t *testing.T) {
	def := switchDefinition()
	// an explicit malformed tag must fail before solving
	def.States = append(def.States, oracle.StateDecl{Term: "g", Tag: "vector"})

	svc := NewSolveService(nil, zap.NewNop())
	_, err := svc.Solve(context.Background(), SolveRequest{Definition: def})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSolveRejectsBadGamma(t *testing.T) {
	svc := NewSolveService(nil, zap.NewNop())
	_, err := svc.Solve(context.Background(), SolveRequest{
		Definition: switchDefinition(),
		Gamma:      1.2,
	})
	assert.ErrorContains(t, err, "gamma")
}
