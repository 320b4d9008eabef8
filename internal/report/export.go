package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/solverlab/bellman/internal/solver"
)

// export is the JSON shape written by WriteJSON: the solution plus its
// label-keyed views, so consumers do not have to reimplement the state
// codec to interpret indices.
type export struct {
	*solver.Solution
	ValueByState  map[string]float64 `json:"value_by_state"`
	PolicyByState map[string]string  `json:"policy_by_state"`
}

// WriteJSON exports a solution and its iteration history to path.
func WriteJSON(path string, sol *solver.Solution) error {
	policy := make(map[string]string, len(sol.StateLabels))
	for label, action := range sol.PolicyByState() {
		policy[label] = string(action)
	}
	data, err := json.MarshalIndent(export{
		Solution:      sol,
		ValueByState:  sol.ValueByState(),
		PolicyByState: policy,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal solution: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
