package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/solverlab/bellman/internal/domain"
	"github.com/solverlab/bellman/internal/service"
	"github.com/solverlab/bellman/internal/solver"
)

// Solver is the slice of SolveService the handler needs.
type Solver interface {
	Solve(ctx context.Context, req service.SolveRequest) (*service.SolveResult, error)
}

type SolveHandler struct {
	svc Solver
}

func NewSolveHandler(svc Solver) *SolveHandler {
	return &SolveHandler{svc: svc}
}

// Solve runs a model definition synchronously and returns the solution.
// Static declaration problems map to 422 so callers can tell a bad
// model apart from a malformed request.
func (h *SolveHandler) Solve(w http.ResponseWriter, r *http.Request) {
	var req service.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Solve(r.Context(), req)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.Is(err, service.ErrNoStateFluents),
			errors.Is(err, service.ErrNoActions),
			errors.Is(err, solver.ErrBadConfig):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &verr):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "declaration problems",
				"issues": issueMessages(verr),
			})
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func issueMessages(verr *domain.ValidationError) []string {
	msgs := make([]string, len(verr.Issues))
	for i, issue := range verr.Issues {
		msgs[i] = issue.Error()
	}
	return msgs
}
