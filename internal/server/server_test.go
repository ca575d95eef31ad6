package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/orka-sh/orka-core/internal/config"
	"github.com/orka-sh/orka-core/internal/registry"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	home := t.TempDir()
	paths := &config.Paths{Home: home, Config: filepath.Join(home, ".orka"), AgentsHome: filepath.Join(home, ".orka-agents")}
	rt := config.DefaultRuntimeConfig()
	rt.MultiplexerBinary = "tmux-not-on-path"
	reg := registry.New(paths, rt, nil, nil)

	projectDir := t.TempDir()
	s := New(Config{Port: 0, EnableCORS: false}, reg)
	return s, projectDir
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, r)
	return rec
}

func TestRegisterListUnregisterProject(t *testing.T) {
	s, projectDir := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/projects", registerProjectRequest{Path: projectDir, Name: "demo"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []projectView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 1)
	require.Equal(t, "demo", views[0].Name)
	require.Equal(t, 0, views[0].SessionCount)

	enc := encodeProjectPath(projectDir)
	rec = doJSON(t, s, http.MethodDelete, "/api/projects/"+enc, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/projects", nil)
	var after []projectView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&after))
	require.Empty(t, after)
}

func TestRegisterProjectRejectsMissingPath(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/projects", registerProjectRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessionsEmptyForUnknownProject(t *testing.T) {
	s, projectDir := newTestServer(t)
	enc := encodeProjectPath(projectDir)

	rec := doJSON(t, s, http.MethodGet, "/api/sessions?project="+enc, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sessions))
	require.Empty(t, sessions)
}

func TestResolvePermissionRejectsInvalidAction(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/sessions/sess-1/permissions/req-1", resolvePermissionRequest{Action: "maybe"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolvePermissionAcceptsValidAction(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/sessions/sess-1/permissions/req-1", resolvePermissionRequest{Action: "once"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestActiveBranchDefaultsToMain(t *testing.T) {
	s, projectDir := newTestServer(t)
	enc := encodeProjectPath(projectDir)

	rec := doJSON(t, s, http.MethodGet, "/api/sessions/nonexistent/active-branch?project="+enc, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "main", body["branchId"])
}

func TestSelectBranchUnknownSessionIsNotFound(t *testing.T) {
	s, projectDir := newTestServer(t)
	enc := encodeProjectPath(projectDir)

	rec := doJSON(t, s, http.MethodPost, "/api/sessions/nonexistent/select-branch?project="+enc, selectBranchRequest{BranchID: "main"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
