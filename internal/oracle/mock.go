package oracle

import (
	"context"

	"github.com/solverlab/bellman/internal/domain"
)

// Mock is a configurable oracle for testing. Set the response fields to
// control what each method returns.
type Mock struct {
	EvaluateResponse []domain.TermProb
	EvaluateErr      error
	GroundErr        error
	AddFactErr       error
	AddChoiceErr     error

	// Call tracking for assertions
	GroundCalls   [][]domain.Term
	EvaluateCalls []MockEvaluateCall
	FactCalls     []domain.TermProb
	ChoiceCalls   [][]domain.Term
}

// MockEvaluateCall captures one Evaluate invocation.
type MockEvaluateCall struct {
	Queries  []domain.Term
	Evidence domain.Evidence
}

var _ domain.Oracle = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Ground(ctx context.Context, queries []domain.Term) error {
	m.GroundCalls = append(m.GroundCalls, queries)
	return m.GroundErr
}

func (m *Mock) Evaluate(ctx context.Context, queries []domain.Term, evidence domain.Evidence) ([]domain.TermProb, error) {
	ev := make(domain.Evidence, len(evidence))
	for t, v := range evidence {
		ev[t] = v
	}
	m.EvaluateCalls = append(m.EvaluateCalls, MockEvaluateCall{Queries: queries, Evidence: ev})
	if m.EvaluateErr != nil {
		return nil, m.EvaluateErr
	}
	return m.EvaluateResponse, nil
}

func (m *Mock) AddFact(ctx context.Context, term domain.Term, prob float64) error {
	m.FactCalls = append(m.FactCalls, domain.TermProb{Term: term, Prob: prob})
	return m.AddFactErr
}

func (m *Mock) AddChoiceGroup(ctx context.Context, terms []domain.Term, probs []float64) error {
	m.ChoiceCalls = append(m.ChoiceCalls, terms)
	return m.AddChoiceErr
}
