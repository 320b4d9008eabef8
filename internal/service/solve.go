// Package service orchestrates the solver pipeline: building a program
// from its serializable definition, classifying fluents, running value
// iteration and optionally persisting the result.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/solverlab/bellman/internal/domain"
	"github.com/solverlab/bellman/internal/fluent"
	"github.com/solverlab/bellman/internal/mdp"
	"github.com/solverlab/bellman/internal/oracle"
	"github.com/solverlab/bellman/internal/solver"
)

var (
	ErrNoStateFluents = errors.New("definition declares no state fluents")
	ErrNoActions      = errors.New("definition declares no actions")
)

// SolveRequest carries a model definition plus solver overrides. Zero
// overrides fall back to the solver defaults.
type SolveRequest struct {
	Name          string            `json:"name,omitempty"`
	Definition    oracle.Definition `json:"definition"`
	Gamma         float64           `json:"gamma,omitempty"`
	Epsilon       float64           `json:"epsilon,omitempty"`
	MaxIterations int               `json:"max_iterations,omitempty"`
	Workers       int               `json:"workers,omitempty"`
	Persist       bool              `json:"persist,omitempty"`
}

// SolveResult is the full outcome of one solve: the solution, the
// schema it was computed over, classification warnings, and the
// persisted run when persistence was requested.
type SolveResult struct {
	Solution *solver.Solution `json:"solution"`
	Schema   *domain.Schema   `json:"-"`
	Model    *mdp.Model       `json:"-"`
	Warnings []string         `json:"warnings,omitempty"`
	Run      *domain.Run      `json:"run,omitempty"`
}

type SolveService struct {
	runs     domain.RunStore
	defaults solver.Config
	logger   *zap.Logger
}

// NewSolveService builds the orchestrator. runs may be nil; solves then
// never persist.
func NewSolveService(runs domain.RunStore, logger *zap.Logger) *SolveService {
	return &SolveService{runs: runs, logger: logger}
}

// SetDefaults installs the solver configuration requests fall back to
// when they carry no override. Zero fields still fall through to the
// solver package defaults.
func (s *SolveService) SetDefaults(cfg solver.Config) {
	s.defaults = cfg
}

func (s *SolveService) Solve(ctx context.Context, req SolveRequest) (*SolveResult, error) {
	if len(req.Definition.States) == 0 {
		return nil, ErrNoStateFluents
	}
	if len(req.Definition.Actions) == 0 {
		return nil, ErrNoActions
	}

	program, err := oracle.FromDefinition(req.Definition)
	if err != nil {
		return nil, err
	}

	classifier := fluent.NewClassifier(program, s.logger)
	schema, warnings, err := classifier.Classify()
	if err != nil {
		return nil, err
	}

	model, err := mdp.New(ctx, schema, program, program, s.logger)
	if err != nil {
		return nil, err
	}

	cfg := s.defaults
	if req.Gamma != 0 {
		cfg.Gamma = req.Gamma
	}
	if req.Epsilon != 0 {
		cfg.Epsilon = req.Epsilon
	}
	if req.MaxIterations != 0 {
		cfg.MaxIterations = req.MaxIterations
	}
	if req.Workers != 0 {
		cfg.Workers = req.Workers
	}

	vi, err := solver.New(model, cfg, s.logger)
	if err != nil {
		return nil, err
	}

	solution, err := vi.Run(ctx)
	if err != nil {
		return nil, err
	}

	result := &SolveResult{Solution: solution, Schema: schema, Model: model, Warnings: warnings}
	if req.Persist && s.runs != nil {
		run := runFromSolution(req.Name, solution)
		if err := s.runs.Create(ctx, run); err != nil {
			return nil, err
		}
		result.Run = run
		s.logger.Info("run persisted",
			zap.String("run_id", run.ID.String()),
			zap.String("name", run.Name))
	}
	return result, nil
}

func runFromSolution(name string, sol *solver.Solution) *domain.Run {
	vf := make([]float32, len(sol.V))
	for i, v := range sol.V {
		vf[i] = float32(v)
	}
	policy := make(map[string]string, len(sol.StateLabels))
	for i, label := range sol.StateLabels {
		policy[label] = string(sol.Policy[i])
	}
	return &domain.Run{
		Name:          name,
		Gamma:         sol.Gamma,
		Epsilon:       sol.Epsilon,
		Iterations:    sol.Iterations,
		Converged:     sol.Converged,
		States:        len(sol.V),
		Actions:       len(sol.Actions),
		DurationMS:    sol.Duration.Milliseconds(),
		ValueFunction: vf,
		Policy:        policy,
		CreatedAt:     time.Now(),
	}
}
