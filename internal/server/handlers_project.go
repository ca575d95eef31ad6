package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// projectView is a registered project annotated with its session count
// (spec §6: "List registered projects with session counts").
type projectView struct {
	ID           string `json:"id"`
	Path         string `json:"path"`
	Name         string `json:"name"`
	AddedAt      int64  `json:"addedAt"`
	LastOpened   *int64 `json:"lastOpened,omitempty"`
	SessionCount int    `json:"sessionCount"`
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.reg.Projects.List()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	views := make([]projectView, 0, len(projects))
	for _, p := range projects {
		view := projectView{ID: p.ID, Path: p.Path, Name: p.Name, AddedAt: p.AddedAt, LastOpened: p.LastOpened}
		if sessions, err := s.reg.Store(p.Path).ListSessions(""); err == nil {
			view.SessionCount = len(sessions)
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

type registerProjectRequest struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

func (s *Server) registerProject(w http.ResponseWriter, r *http.Request) {
	var req registerProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path is required")
		return
	}

	project, err := s.reg.Projects.Register(req.Path, req.Name)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) unregisterProject(w http.ResponseWriter, r *http.Request) {
	enc := chi.URLParam(r, "enc")
	path, err := decodeProjectPath(enc)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	if err := s.reg.Projects.UnregisterByPath(path); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	writeSuccess(w)
}

// resolveProjectQuery decodes the ?project=:enc query parameter every
// session/fork endpoint (other than create) carries.
func resolveProjectQuery(r *http.Request) (string, error) {
	enc := r.URL.Query().Get("project")
	return decodeProjectPath(enc)
}
