package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/orka-sh/orka-core/internal/orchestrator"
	"github.com/orka-sh/orka-core/pkg/types"
)

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	sessions, err := s.reg.Store(projectPath).ListSessions("")
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

type createSessionRequest struct {
	Project                      string `json:"project"`
	Name                         string `json:"name,omitempty"`
	ContinueFromAssistantSession string `json:"continueFromAssistantSession,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	projectPath, err := decodeProjectPath(req.Project)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	orch := s.reg.Orchestrator(projectPath)
	sess, err := orch.CreateSession(r.Context(), orchestrator.CreateSessionOptions{
		Name:       req.Name,
		ResumeFrom: req.ContinueFromAssistantSession,
	})
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	s.reg.RegisterAgent(r.Context(), projectPath, sess.ID, "main", sess.Main.PaneID, types.DefaultAgentPolicy())
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	orch := s.reg.Orchestrator(projectPath)
	sess, err := orch.ResumeSession(r.Context(), sessionID)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	policy := types.DefaultAgentPolicy()
	s.reg.RegisterAgent(r.Context(), projectPath, sess.ID, "main", sess.Main.PaneID, policy)
	for _, fork := range sess.Forks {
		if fork.Status == types.BranchActive {
			s.reg.RegisterAgent(r.Context(), projectPath, sess.ID, fork.ID, fork.PaneID, policy)
		}
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	orch := s.reg.Orchestrator(projectPath)
	sess, err := orch.CloseSession(r.Context(), sessionID)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	s.reg.UnregisterAgent(projectPath, sessionID, "main")
	for _, fork := range sess.Forks {
		s.reg.UnregisterAgent(projectPath, sessionID, fork.ID)
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	orch := s.reg.Orchestrator(projectPath)
	if err := orch.DeleteSession(r.Context(), sessionID); err != nil {
		writeErrorFromErr(w, err)
		return
	}

	s.reg.UnregisterAgent(projectPath, sessionID, "main")
	writeSuccess(w)
}

type createForkRequest struct {
	Name     string `json:"name,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

func (s *Server) createFork(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	var req createForkRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	orch := s.reg.Orchestrator(projectPath)
	sess, err := orch.CreateFork(r.Context(), sessionID, orchestrator.CreateForkOptions{
		ParentID: req.ParentID,
		Name:     req.Name,
	})
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	fork := sess.Forks[len(sess.Forks)-1]
	s.reg.RegisterAgent(r.Context(), projectPath, sessionID, fork.ID, fork.PaneID, types.DefaultAgentPolicy())
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) exportFork(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	forkID := chi.URLParam(r, "forkId")
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	orch := s.reg.Orchestrator(projectPath)
	contextPath, err := orch.ExportFork(r.Context(), sessionID, forkID)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"contextPath": contextPath})
}

func (s *Server) mergeFork(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	forkID := chi.URLParam(r, "forkId")
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	orch := s.reg.Orchestrator(projectPath)
	sess, err := orch.MergeFork(r.Context(), sessionID, forkID)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	s.reg.UnregisterAgent(projectPath, sessionID, forkID)
	writeJSON(w, http.StatusOK, sess)
}

type selectBranchRequest struct {
	BranchID string `json:"branchId"`
}

func (s *Server) selectBranch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	var req selectBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	orch := s.reg.Orchestrator(projectPath)
	if err := orch.SelectBranch(sessionID, req.BranchID); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) activeBranch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	orch := s.reg.Orchestrator(projectPath)
	writeJSON(w, http.StatusOK, map[string]string{"branchId": orch.ActiveBranch(sessionID)})
}
