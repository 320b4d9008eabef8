package service

import (
	"bytes"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/solverlab/bellman/internal/domain"
	"github.com/solverlab/bellman/internal/fluent"
	"github.com/solverlab/bellman/internal/oracle"
	"github.com/solverlab/bellman/internal/report"
)

// Scenario names a model definition and the schema shape or failure it
// is expected to produce.
type Scenario struct {
	Name       string            `json:"name"`
	Definition oracle.Definition `json:"definition"`
	Expect     Expectation       `json:"expect"`
}

// Expectation pins properties of the classification outcome. Nil or
// empty fields are not checked. When Errors is non-empty the
// classification itself must fail and every listed fragment must appear
// in the error message.
type Expectation struct {
	TotalStates *int              `json:"total_states,omitempty"`
	Factors     *int              `json:"factors,omitempty"`
	Bases       []int             `json:"bases,omitempty"`
	Strides     []int             `json:"strides,omitempty"`
	Kinds       map[string]string `json:"kinds,omitempty"`
	Errors      []string          `json:"errors,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// Scenario outcomes. StatusError means the harness could not evaluate
// the expectations at all, for example a malformed definition.
const (
	StatusPass  = "PASS"
	StatusFail  = "FAIL"
	StatusError = "ERROR"
)

// ScenarioReport is the structured outcome of one scenario.
type ScenarioReport struct {
	Scenario      string   `json:"scenario"`
	Status        string   `json:"status"`
	Discrepancies []string `json:"discrepancies,omitempty"`
	SchemaDump    string   `json:"schema_dump,omitempty"`
}

// BatchReport aggregates scenario outcomes.
type BatchReport struct {
	Reports []ScenarioReport `json:"reports"`
	Passed  int              `json:"passed"`
	Failed  int              `json:"failed"`
	Errored int              `json:"errored"`
}

// ValidationService runs classification scenarios against their
// expectations. It exercises only the static pipeline, no solving.
type ValidationService struct {
	logger *zap.Logger
}

func NewValidationService(logger *zap.Logger) *ValidationService {
	return &ValidationService{logger: logger}
}

func (s *ValidationService) RunScenario(sc Scenario) ScenarioReport {
	rep := ScenarioReport{Scenario: sc.Name}

	program, err := oracle.FromDefinition(sc.Definition)
	if err != nil {
		rep.Status = StatusError
		rep.Discrepancies = []string{fmt.Sprintf("definition: %v", err)}
		return rep
	}

	classifier := fluent.NewClassifier(program, s.logger)
	schema, warnings, err := classifier.Classify()

	if len(sc.Expect.Errors) > 0 {
		if err == nil {
			rep.Status = StatusFail
			rep.Discrepancies = []string{"expected classification to fail, but it succeeded"}
			return rep
		}
		for _, fragment := range sc.Expect.Errors {
			if !strings.Contains(err.Error(), fragment) {
				rep.Discrepancies = append(rep.Discrepancies,
					fmt.Sprintf("error %q does not mention %q", err, fragment))
			}
		}
		rep.Status = verdict(rep.Discrepancies)
		return rep
	}

	if err != nil {
		rep.Status = StatusFail
		rep.Discrepancies = []string{fmt.Sprintf("unexpected classification failure: %v", err)}
		return rep
	}

	rep.Discrepancies = append(rep.Discrepancies, checkSchema(sc.Expect, schema)...)
	rep.Discrepancies = append(rep.Discrepancies, checkWarnings(sc.Expect.Warnings, warnings)...)

	var dump bytes.Buffer
	report.DumpSchema(&dump, schema)
	rep.SchemaDump = dump.String()
	rep.Status = verdict(rep.Discrepancies)
	return rep
}

func (s *ValidationService) RunBatch(scenarios []Scenario) BatchReport {
	batch := BatchReport{}
	for _, sc := range scenarios {
		rep := s.RunScenario(sc)
		batch.Reports = append(batch.Reports, rep)
		switch rep.Status {
		case StatusPass:
			batch.Passed++
		case StatusFail:
			batch.Failed++
		default:
			batch.Errored++
		}
	}
	s.logger.Info("validation batch finished",
		zap.Int("passed", batch.Passed),
		zap.Int("failed", batch.Failed),
		zap.Int("errored", batch.Errored))
	return batch
}

func verdict(discrepancies []string) string {
	if len(discrepancies) > 0 {
		return StatusFail
	}
	return StatusPass
}

func checkSchema(expect Expectation, schema *domain.Schema) []string {
	var out []string
	if expect.TotalStates != nil && schema.TotalStates() != *expect.TotalStates {
		out = append(out, fmt.Sprintf("total states: want %d, got %d", *expect.TotalStates, schema.TotalStates()))
	}
	if expect.Factors != nil && schema.Len() != *expect.Factors {
		out = append(out, fmt.Sprintf("factor count: want %d, got %d", *expect.Factors, schema.Len()))
	}
	if len(expect.Bases) > 0 && !equalInts(expect.Bases, schema.Bases()) {
		out = append(out, fmt.Sprintf("bases: want %v, got %v", expect.Bases, schema.Bases()))
	}
	if len(expect.Strides) > 0 && !equalInts(expect.Strides, schema.Strides()) {
		out = append(out, fmt.Sprintf("strides: want %v, got %v", expect.Strides, schema.Strides()))
	}
	for term, wantKind := range expect.Kinds {
		gotKind, ok := kindOf(schema, domain.Term(term))
		if !ok {
			out = append(out, fmt.Sprintf("term %s: not in schema", term))
			continue
		}
		if string(gotKind) != wantKind {
			out = append(out, fmt.Sprintf("term %s: want %s, got %s", term, wantKind, gotKind))
		}
	}
	return out
}

func checkWarnings(expected, got []string) []string {
	var out []string
	for _, fragment := range expected {
		found := false
		for _, w := range got {
			if strings.Contains(w, fragment) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, fmt.Sprintf("no warning mentions %q", fragment))
		}
	}
	return out
}

func kindOf(schema *domain.Schema, term domain.Term) (domain.FactorKind, bool) {
	for _, f := range schema.Factors() {
		for _, t := range f.Terms {
			if t == term {
				return f.Kind, true
			}
		}
	}
	return "", false
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
