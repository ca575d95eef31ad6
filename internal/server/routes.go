package server

import "github.com/go-chi/chi/v5"

// routes wires the control surface's HTTP surface (spec §6 "HTTP surface
// (control plane)"): projects, sessions, forks, branch focus, pending
// permissions, and the event/terminal streams.
func (s *Server) routes() {
	s.router.Route("/api/projects", func(r chi.Router) {
		r.Get("/", s.listProjects)
		r.Post("/", s.registerProject)
		r.Delete("/{enc}", s.unregisterProject)
	})

	s.router.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Post("/{id}/resume", s.resumeSession)
		r.Post("/{id}/close", s.closeSession)
		r.Delete("/{id}", s.deleteSession)
		r.Post("/{id}/forks", s.createFork)
		r.Post("/{id}/forks/{forkId}/export", s.exportFork)
		r.Post("/{id}/forks/{forkId}/merge", s.mergeFork)
		r.Post("/{id}/select-branch", s.selectBranch)
		r.Get("/{id}/active-branch", s.activeBranch)
		r.Post("/{id}/permissions/{requestId}", s.resolvePermission)
	})

	s.router.Get("/api/events", s.allEvents)
	s.router.Get("/ws/terminal/{sessionID}", s.wsTerminal)
	s.router.Get("/ws/state", s.wsState)
}
