package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// resolvePermissionRequest carries the operator's verdict for a pending
// permission.required event: "once" (approve this call only), "always"
// (approve this tool/pattern for the rest of the agent's lifetime), or
// "reject".
type resolvePermissionRequest struct {
	Action string `json:"action"`
}

// resolvePermission implements the supplemented
// POST /api/sessions/:id/permissions/:requestId endpoint (SPEC_FULL.md
// §4.6 supplemented feature 5): it unblocks the supervisor engine's
// awaitPermission goroutine that is parked in permission.Checker.Ask.
func (s *Server) resolvePermission(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	var req resolvePermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	switch req.Action {
	case "once", "always", "reject":
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "action must be once, always, or reject")
		return
	}

	s.reg.Checker().Respond(requestID, req.Action)
	writeSuccess(w)
}
