package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solverlab/bellman/internal/domain"
)

func TestProgramDeclarations(t *testing.T) {
	p := NewProgram()
	p.DeclareState("running(c1)")
	p.DeclareState("running(c2)")
	p.DeclareState("running(c1)") // duplicate
	p.DeclareAction("reboot(c1)")
	p.DeclareUtility("up", 10)

	assert.Equal(t, []domain.Term{"running(c1)", "running(c2)"}, p.Declarations(domain.KindStateFluent))
	assert.Equal(t, []domain.Term{"reboot(c1)"}, p.Declarations(domain.KindAction))
	assert.Equal(t, []domain.Term{"up"}, p.Declarations(domain.KindUtility))

	weights := p.Assignments(domain.KindUtility)
	assert.Equal(t, domain.Term("10"), weights["up"])
}

func TestProgramTaggedStates(t *testing.T) {
	p := NewProgram()
	p.DeclareStateTagged("marketed(ana,tv)", "enum(2)")

	tags := p.Assignments(domain.KindStateFluent)
	require.Len(t, tags, 1)
	assert.Equal(t, domain.Term("enum(2)"), tags["marketed(ana,tv)"])
	// tagged fluents do not join the untagged declaration list
	assert.Empty(t, p.Declarations(domain.KindStateFluent))
}

func TestProgramChoiceGroupValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		terms []domain.Term
		probs []float64
	}{
		{"no terms", nil, nil},
		{"length mismatch", []domain.Term{"a", "b"}, []float64{0.5}},
		{"sum above one", []domain.Term{"a", "b"}, []float64{0.7, 0.7}},
		{"negative prob", []domain.Term{"a", "b"}, []float64{-0.1, 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewProgram().AddChoiceGroup(ctx, tt.terms, tt.probs)
			assert.Error(t, err)
		})
	}
}

func TestProgramVocabularyFromChoices(t *testing.T) {
	ctx := context.Background()
	p := NewProgram()
	require.NoError(t, p.AddChoiceGroup(ctx,
		[]domain.Term{"marketed(ana,tv)", "marketed(ana,internet)"},
		[]float64{0.5, 0.5}))
	require.NoError(t, p.AddChoiceGroup(ctx,
		[]domain.Term{"marketed(beto,tv)", "marketed(beto,internet)"},
		[]float64{0.5, 0.5}))

	vocab := p.ADSVocabulary()
	// tv appears in both groups, ana in one
	assert.Len(t, vocab[domain.Term("tv")], 2)
	assert.Len(t, vocab[domain.Term("ana")], 1)
	assert.Empty(t, vocab[domain.Term("marketed")])

	shared := vocab[domain.Term("tv")].Intersect(vocab[domain.Term("internet")])
	assert.Len(t, shared, 2)
	disjoint := vocab[domain.Term("ana")].Intersect(vocab[domain.Term("beto")])
	assert.Empty(t, disjoint)
}

func TestProgramVocabularyStripsTimesteps(t *testing.T) {
	ctx := context.Background()
	p := NewProgram()
	require.NoError(t, p.AddChoiceGroup(ctx,
		[]domain.Term{"mode(a)@0", "mode(b)@0"},
		[]float64{0.5, 0.5}))

	vocab := p.ADSVocabulary()
	assert.Len(t, vocab[domain.Term("a")], 1)
	assert.Len(t, vocab[domain.Term("b")], 1)
}

func TestProgramEvaluateRules(t *testing.T) {
	ctx := context.Background()
	p := NewProgram()
	p.DeclareState("running(c1)")
	p.DeclareAction("reboot(c1)")
	p.DeclareAction("noop")
	require.NoError(t, p.Rule("running(c1)",
		RuleEntry{When: domain.Evidence{"reboot(c1)": 1}, Prob: 1.0},
		RuleEntry{When: domain.Evidence{"running(c1)": 1}, Prob: 0.9},
		RuleEntry{Prob: 0.1},
	))

	evidence := domain.Evidence{"running(c1)@0": 1, "reboot(c1)": 0, "noop": 1}
	res, err := p.Evaluate(ctx, []domain.Term{"running(c1)@1"}, evidence)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, domain.Term("running(c1)@1"), res[0].Term)
	// first entry fails (reboot=0), second matches via the stamped form
	assert.Equal(t, 0.9, res[0].Prob)

	evidence = domain.Evidence{"running(c1)@0": 0, "reboot(c1)": 1, "noop": 0}
	res, err = p.Evaluate(ctx, []domain.Term{"running(c1)@1"}, evidence)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res[0].Prob)

	evidence = domain.Evidence{"running(c1)@0": 0, "reboot(c1)": 0, "noop": 1}
	res, err = p.Evaluate(ctx, []domain.Term{"running(c1)@1"}, evidence)
	require.NoError(t, err)
	assert.Equal(t, 0.1, res[0].Prob)
}

func TestProgramEvaluateDefaults(t *testing.T) {
	ctx := context.Background()
	p := NewProgram()
	require.NoError(t, p.AddFact(ctx, "exact@1", 0.3))
	require.NoError(t, p.AddFact(ctx, "base", 0.4))
	require.NoError(t, p.AddFact(ctx, "shift@0", 0.5))
	require.NoError(t, p.AddChoiceGroup(ctx, []domain.Term{"pick(a)", "pick(b)"}, []float64{0.25, 0.75}))

	// a fact registered at any timestep answers queries at every other
	res, err := p.Evaluate(ctx, []domain.Term{"exact@1", "base@1", "shift@1", "pick(b)@1", "ghost@1"}, nil)
	require.NoError(t, err)
	require.Len(t, res, 5)
	assert.Equal(t, 0.3, res[0].Prob)
	assert.Equal(t, 0.4, res[1].Prob)
	assert.Equal(t, 0.5, res[2].Prob)
	assert.Equal(t, 0.75, res[3].Prob)
	assert.Equal(t, 0.0, res[4].Prob)
}

func TestProgramGround(t *testing.T) {
	ctx := context.Background()
	p := NewProgram()
	p.DeclareState("running(c1)")
	p.DeclareUtility("up", 1)

	assert.NoError(t, p.Ground(ctx, []domain.Term{"running(c1)@1", "up"}))

	err := p.Ground(ctx, []domain.Term{"ghost@1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownTerm)
}

func TestProgramRuleValidation(t *testing.T) {
	p := NewProgram()
	err := p.Rule("f", RuleEntry{Prob: 1.5})
	assert.Error(t, err)
}
