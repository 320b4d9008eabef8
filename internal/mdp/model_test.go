package mdp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solverlab/bellman/internal/domain"
	"github.com/solverlab/bellman/internal/oracle"
)

func binarySchema(t *testing.T, terms ...domain.Term) *domain.Schema {
	t.Helper()
	s := domain.NewSchema()
	for _, term := range terms {
		require.NoError(t, s.AddBinary(term))
	}
	s.Freeze()
	return s
}

type stubDecls struct {
	actions   []domain.Term
	utilities map[domain.Term]domain.Term
}

func (d *stubDecls) Declarations(kind domain.DeclKind) []domain.Term {
	if kind == domain.KindAction {
		return d.actions
	}
	return nil
}

func (d *stubDecls) Assignments(kind domain.DeclKind) map[domain.Term]domain.Term {
	if kind == domain.KindUtility {
		return d.utilities
	}
	return nil
}

func (d *stubDecls) ADSVocabulary() map[domain.Term]domain.GroupSet {
	return nil
}

func TestNewInjectsOracleDefaults(t *testing.T) {
	s := domain.NewSchema()
	require.NoError(t, s.AddBinary("running(c1)"))
	require.NoError(t, s.AddGroup("channel", []domain.Term{"channel(tv)", "channel(web)"}))

	mock := oracle.NewMock()
	decls := &stubDecls{actions: []domain.Term{"reboot(c1)", "noop"}}

	_, err := New(context.Background(), s, decls, mock, zap.NewNop())
	require.NoError(t, err)

	// one neutral fact for the binary factor
	require.Len(t, mock.FactCalls, 1)
	assert.Equal(t, domain.Term("running(c1)@0"), mock.FactCalls[0].Term)
	assert.Equal(t, 0.5, mock.FactCalls[0].Prob)

	// one uniform choice group per enumerated factor, plus the actions
	require.Len(t, mock.ChoiceCalls, 2)
	assert.Equal(t, []domain.Term{"channel(tv)@0", "channel(web)@0"}, mock.ChoiceCalls[0])
	assert.Equal(t, []domain.Term{"noop", "reboot(c1)"}, mock.ChoiceCalls[1])

	// the next-timestep fluents and utility terms are grounded once
	require.Len(t, mock.GroundCalls, 1)
}

func TestNewRequiresActions(t *testing.T) {
	s := binarySchema(t, "f")
	_, err := New(context.Background(), s, &stubDecls{}, oracle.NewMock(), zap.NewNop())
	assert.Error(t, err)
}

func TestNewRejectsBadUtilityWeight(t *testing.T) {
	s := binarySchema(t, "f")
	decls := &stubDecls{
		actions:   []domain.Term{"a"},
		utilities: map[domain.Term]domain.Term{"goal": "high"},
	}
	_, err := New(context.Background(), s, decls, oracle.NewMock(), zap.NewNop())
	assert.ErrorContains(t, err, "not a number")
}

func TestActionsAreSorted(t *testing.T) {
	s := binarySchema(t, "f")
	decls := &stubDecls{actions: []domain.Term{"b", "a", "c"}}
	m, err := New(context.Background(), s, decls, oracle.NewMock(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []domain.Term{"a", "b", "c"}, m.Actions())
}

func TestFluentTimestamps(t *testing.T) {
	s := binarySchema(t, "f", "g")
	decls := &stubDecls{actions: []domain.Term{"a"}}
	m, err := New(context.Background(), s, decls, oracle.NewMock(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []domain.Term{"f@0", "g@0"}, m.CurrentFluents())
	assert.Equal(t, []domain.Term{"f@1", "g@1"}, m.NextFluents())
}

func TestTransitionMemoization(t *testing.T) {
	s := binarySchema(t, "f")
	mock := oracle.NewMock()
	mock.EvaluateResponse = []domain.TermProb{{Term: "f@1", Prob: 0.7}}
	decls := &stubDecls{actions: []domain.Term{"a"}}
	m, err := New(context.Background(), s, decls, mock, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	state := domain.Valuation{"f@0": 1}
	action := domain.Valuation{"a": 1}
	key := &CacheKey{State: 1, Action: 0}

	first, err := m.Transition(ctx, state, action, key)
	require.NoError(t, err)
	second, err := m.Transition(ctx, state, action, key)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, mock.EvaluateCalls, 1, "cached key must not hit the oracle again")

	// a different key triggers a fresh evaluation
	_, err = m.Transition(ctx, state, action, &CacheKey{State: 0, Action: 0})
	require.NoError(t, err)
	assert.Len(t, mock.EvaluateCalls, 2)

	// nil key bypasses the cache entirely
	_, err = m.Transition(ctx, state, action, nil)
	require.NoError(t, err)
	_, err = m.Transition(ctx, state, action, nil)
	require.NoError(t, err)
	assert.Len(t, mock.EvaluateCalls, 4)
}

func TestTransitionMergesEvidence(t *testing.T) {
	s := binarySchema(t, "f")
	mock := oracle.NewMock()
	decls := &stubDecls{actions: []domain.Term{"a0", "a1"}}
	m, err := New(context.Background(), s, decls, mock, zap.NewNop())
	require.NoError(t, err)

	state := domain.Valuation{"f@0": 1}
	action := domain.Valuation{"a0": 1, "a1": 0}
	_, err = m.Transition(context.Background(), state, action, nil)
	require.NoError(t, err)

	require.Len(t, mock.EvaluateCalls, 1)
	ev := mock.EvaluateCalls[0].Evidence
	assert.Equal(t, 1, ev["f@0"])
	assert.Equal(t, 1, ev["a0"])
	assert.Equal(t, 0, ev["a1"])
}

func TestStructuredTransitionBinaryComplement(t *testing.T) {
	s := binarySchema(t, "f")
	mock := oracle.NewMock()
	mock.EvaluateResponse = []domain.TermProb{{Term: "f@1", Prob: 0.7}}
	decls := &stubDecls{actions: []domain.Term{"a"}}
	m, err := New(context.Background(), s, decls, mock, zap.NewNop())
	require.NoError(t, err)

	st, err := m.StructuredTransition(context.Background(), domain.Valuation{"f@0": 0}, domain.Valuation{"a": 1}, nil)
	require.NoError(t, err)

	require.Len(t, st, 1)
	require.Len(t, st[0], 2)
	assert.Equal(t, domain.Term(""), st[0][0].Term)
	assert.InDelta(t, 0.3, st[0][0].Prob, 1e-9)
	assert.Equal(t, domain.Term("f@1"), st[0][1].Term)
	assert.InDelta(t, 0.7, st[0][1].Prob, 1e-9)
}

func TestStructuredTransitionPrunesNegligibleBranches(t *testing.T) {
	s := domain.NewSchema()
	require.NoError(t, s.AddBinary("f"))
	require.NoError(t, s.AddGroup("channel", []domain.Term{"channel(tv)", "channel(web)", "channel(radio)"}))

	mock := oracle.NewMock()
	mock.EvaluateResponse = []domain.TermProb{
		{Term: "channel(radio)@1", Prob: 0.0},
		{Term: "channel(tv)@1", Prob: 0.4},
		{Term: "channel(web)@1", Prob: 0.6},
		{Term: "f@1", Prob: 1.0},
	}
	decls := &stubDecls{actions: []domain.Term{"a"}}
	m, err := New(context.Background(), s, decls, mock, zap.NewNop())
	require.NoError(t, err)

	st, err := m.StructuredTransition(context.Background(),
		domain.Valuation{"f@0": 0, "channel(tv)@0": 1, "channel(web)@0": 0, "channel(radio)@0": 0},
		domain.Valuation{"a": 1}, nil)
	require.NoError(t, err)
	require.Len(t, st, 2)

	// factors sort by canonical key, so the channel group precedes f.
	// The zero-probability radio option is pruned, the rest sums to 1.
	require.Len(t, st[0], 2)
	sum := 0.0
	for _, b := range st[0] {
		sum += b.Prob
	}
	assert.InDelta(t, 1.0, sum, 1e-5)

	// deterministic binary factor keeps only the true branch
	require.Len(t, st[1], 1)
	assert.Equal(t, domain.Term("f@1"), st[1][0].Term)
}

func TestStructuredTransitionUsesInjectedBinaryDefault(t *testing.T) {
	s := domain.NewSchema()
	require.NoError(t, s.AddBinary("f"))

	p := oracle.NewProgram()
	p.DeclareState("f")
	p.DeclareAction("a")
	p.DeclareAction("b")

	m, err := New(context.Background(), s, p, p, zap.NewNop())
	require.NoError(t, err)

	st, err := m.StructuredTransition(context.Background(),
		domain.Valuation{"f@0": 0}, domain.Valuation{"a": 1, "b": 0}, nil)
	require.NoError(t, err)
	require.Len(t, st, 1)

	// no rule for f: the injected 0.5 default must drive both branches
	require.Len(t, st[0], 2)
	assert.Equal(t, domain.Term(""), st[0][0].Term)
	assert.InDelta(t, 0.5, st[0][0].Prob, 1e-9)
	assert.Equal(t, domain.Term("f@1"), st[0][1].Term)
	assert.InDelta(t, 0.5, st[0][1].Prob, 1e-9)
}

func TestRewardWeightsProbabilities(t *testing.T) {
	s := binarySchema(t, "f")
	mock := oracle.NewMock()
	mock.EvaluateResponse = []domain.TermProb{
		{Term: "goal", Prob: 0.5},
		{Term: "penalty", Prob: 1.0},
	}
	decls := &stubDecls{
		actions: []domain.Term{"a"},
		utilities: map[domain.Term]domain.Term{
			"goal":    "10",
			"penalty": "-2",
		},
	}
	m, err := New(context.Background(), s, decls, mock, zap.NewNop())
	require.NoError(t, err)

	r, err := m.Reward(context.Background(), domain.Valuation{"f@0": 1}, domain.Valuation{"a": 1}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*10+1.0*(-2), r, 1e-9)
}

func TestRewardMemoization(t *testing.T) {
	s := binarySchema(t, "f")
	mock := oracle.NewMock()
	mock.EvaluateResponse = []domain.TermProb{{Term: "goal", Prob: 1.0}}
	decls := &stubDecls{
		actions:   []domain.Term{"a"},
		utilities: map[domain.Term]domain.Term{"goal": "1"},
	}
	m, err := New(context.Background(), s, decls, mock, zap.NewNop())
	require.NoError(t, err)

	key := &CacheKey{State: 0, Action: 0}
	_, err = m.Reward(context.Background(), domain.Valuation{"f@0": 0}, domain.Valuation{"a": 1}, key)
	require.NoError(t, err)
	_, err = m.Reward(context.Background(), domain.Valuation{"f@0": 0}, domain.Valuation{"a": 1}, key)
	require.NoError(t, err)
	assert.Len(t, mock.EvaluateCalls, 1)
}
