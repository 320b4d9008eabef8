package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run is one persisted solve: the inputs that shaped it, convergence
// stats, and the converged value function and greedy policy.
type Run struct {
	ID            uuid.UUID         `json:"id"`
	Name          string            `json:"name"`
	Gamma         float64           `json:"gamma"`
	Epsilon       float64           `json:"epsilon"`
	Iterations    int               `json:"iterations"`
	Converged     bool              `json:"converged"`
	States        int               `json:"states"`
	Actions       int               `json:"actions"`
	DurationMS    int64             `json:"duration_ms"`
	ValueFunction []float32         `json:"value_function"`
	Policy        map[string]string `json:"policy"`
	CreatedAt     time.Time         `json:"created_at"`
}

// RunWithDistance is a run annotated with its value-function distance
// to a reference run.
type RunWithDistance struct {
	Run
	Distance float32 `json:"distance"`
}
