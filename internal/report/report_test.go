package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solverlab/bellman/internal/domain"
	"github.com/solverlab/bellman/internal/solver"
)

func sampleSolution() *solver.Solution {
	return &solver.Solution{
		Gamma:       0.9,
		Epsilon:     0.1,
		Iterations:  3,
		Converged:   true,
		MaxResidual: 0.001,
		Duration:    42 * time.Millisecond,
		StateLabels: []string{"f=0", "f=1"},
		Actions:     []domain.Term{"a0", "a1"},
		V:           []float64{9.0, 10.0},
		Policy:      []domain.Term{"a0", "a0"},
		Q:           [][]float64{{9.0, 8.1}, {10.0, 9.1}},
		History:     [][]float64{{0, 1}, {0.9, 1.9}, {9.0, 10.0}},
		Residuals:   []float64{1, 0.9, 0.001},
	}
}

func TestSummaryListsEveryState(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, sampleSolution()))

	out := buf.String()
	assert.Contains(t, out, "f=0")
	assert.Contains(t, out, "f=1")
	assert.Contains(t, out, "a0")
	assert.Contains(t, out, "3 iteration(s)")
}

func TestQTableHasAllEntries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, QTable(&buf, sampleSolution()))

	out := buf.String()
	assert.Contains(t, out, "9.0000")
	assert.Contains(t, out, "8.1000")
	assert.Contains(t, out, "a1")
}

func TestDumpSchema(t *testing.T) {
	s := domain.NewSchema()
	require.NoError(t, s.AddBinary("running(c1)"))
	require.NoError(t, s.AddGroup("channel", []domain.Term{"channel(tv)", "channel(web)"}))

	var buf bytes.Buffer
	DumpSchema(&buf, s)

	out := buf.String()
	assert.Contains(t, out, "2 factor(s), 4 state(s)")
	assert.Contains(t, out, "binary running(c1)")
	assert.Contains(t, out, "enum channel (base 2")
	assert.Contains(t, out, "channel(tv) | channel(web)")
}

func TestWriteJSONRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solution.json")
	require.NoError(t, WriteJSON(path, sampleSolution()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "value_by_state")
	assert.Contains(t, decoded, "policy_by_state")
	assert.Equal(t, true, decoded["converged"])
}

func TestConvergenceChartWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.html")
	require.NoError(t, ConvergenceChart(path, sampleSolution()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
