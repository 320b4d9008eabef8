package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/solverlab/bellman/internal/service"
)

// Validator is the slice of ValidationService the handler needs.
type Validator interface {
	RunBatch(scenarios []service.Scenario) service.BatchReport
}

type ValidateHandler struct {
	svc Validator
}

func NewValidateHandler(svc Validator) *ValidateHandler {
	return &ValidateHandler{svc: svc}
}

type validateRequest struct {
	Scenarios []service.Scenario `json:"scenarios"`
}

// Validate runs the expectation harness over a batch of scenarios.
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Scenarios) == 0 {
		writeError(w, http.StatusBadRequest, "no scenarios provided")
		return
	}

	writeJSON(w, http.StatusOK, h.svc.RunBatch(req.Scenarios))
}
