// Package registry is the runtime wiring layer that ties one running
// orka-core process's projects, sessions, and per-agent supervisors
// together: it is the concrete implementation behind internal/hook.Lookup
// and internal/hook.Sink, and the only component that knows how a hook
// event's agentId maps to a project's store, orchestrator, and
// supervisor.Engine (spec §4.4 step 3, §4.5).
//
// Grounded on the teacher's internal/mcp.Client for the "own a map of
// started resources and tear them down on demand" shape, generalized from
// MCP server connections to per-project orchestrators and per-branch
// supervisor engines.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/orka-sh/orka-core/internal/assistant"
	"github.com/orka-sh/orka-core/internal/bridge"
	"github.com/orka-sh/orka-core/internal/config"
	"github.com/orka-sh/orka-core/internal/decision"
	"github.com/orka-sh/orka-core/internal/logging"
	"github.com/orka-sh/orka-core/internal/orchestrator"
	"github.com/orka-sh/orka-core/internal/orkaerr"
	"github.com/orka-sh/orka-core/internal/permission"
	"github.com/orka-sh/orka-core/internal/project"
	"github.com/orka-sh/orka-core/internal/store"
	"github.com/orka-sh/orka-core/internal/supervisor"
	"github.com/orka-sh/orka-core/internal/tmux"
	"github.com/orka-sh/orka-core/pkg/types"
)

// agentID composes the opaque id a hook's URL path carries. It encodes
// project + session + branch so Resolve never needs a reverse index.
func agentID(projectPath, sessionID, branchID string) string {
	return fmt.Sprintf("%s|%s|%s", projectPath, sessionID, branchID)
}

// projectRuntime bundles one registered project's live components.
type projectRuntime struct {
	path string
	st   *store.Store
	orch *orchestrator.Orchestrator
}

// agentEntry bundles one running branch's supervisor engine with enough
// context to answer hook.Lookup.Resolve.
type agentEntry struct {
	projectPath string
	sessionID   string
	branchID    string
	engine      *supervisor.Engine
}

// Registry owns every project and agent this process is currently
// supervising.
type Registry struct {
	paths    *config.Paths
	rt       config.RuntimeConfig
	mux      *tmux.Adapter
	asst     *assistant.CLI
	checker  *permission.Checker
	decider  *decision.Client // nil if no ANTHROPIC_API_KEY was configured
	notify   supervisor.Notifier
	Projects *project.Registry

	mu       sync.Mutex
	projects map[string]*projectRuntime // keyed by absolute project path
	agents   map[string]*agentEntry     // keyed by agentID
}

// New builds a Registry. decider and notify may be nil: a nil decider
// means the LLM fallback is disabled (every "ask"/unresolved event simply
// waits); a nil notify means chat notifications are dropped.
func New(paths *config.Paths, rt config.RuntimeConfig, decider *decision.Client, notify supervisor.Notifier) *Registry {
	return &Registry{
		paths:    paths,
		rt:       rt,
		mux:      tmux.New(rt.MultiplexerBinary),
		asst:     assistant.New(""),
		checker:  permission.NewChecker(),
		decider:  decider,
		notify:   notify,
		Projects: project.NewRegistry(paths.GlobalConfigPath()),
		projects: make(map[string]*projectRuntime),
		agents:   make(map[string]*agentEntry),
	}
}

// Checker exposes the shared permission checker so the control surface can
// resolve pending requests.
func (r *Registry) Checker() *permission.Checker { return r.checker }

// projectRuntimeFor lazily builds the store+orchestrator pair for a
// project path, reusing it across calls (one Store instance per project,
// per spec §4.1: "a single writer per project").
func (r *Registry) projectRuntimeFor(projectPath string) *projectRuntime {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pr, ok := r.projects[projectPath]; ok {
		return pr
	}
	br := bridge.New("orka-bridge", r.rt.BridgeBasePort, 100)
	st := store.New(projectPath)
	orch := orchestrator.New(projectPath, st, r.mux, br, r.asst)
	pr := &projectRuntime{path: projectPath, st: st, orch: orch}
	r.projects[projectPath] = pr
	return pr
}

// Orchestrator returns the orchestrator for a project, creating its
// runtime state if this is the first time the project has been touched
// this process lifetime.
func (r *Registry) Orchestrator(projectPath string) *orchestrator.Orchestrator {
	return r.projectRuntimeFor(projectPath).orch
}

// Store returns the state store for a project.
func (r *Registry) Store(projectPath string) *store.Store {
	return r.projectRuntimeFor(projectPath).st
}

// RegisterAgent starts a supervisor.Engine for one branch (main or a
// fork) and makes it reachable by hook events. Called by the control
// surface right after a session or fork is created, and by ResumeSession
// for every branch it reattaches.
func (r *Registry) RegisterAgent(ctx context.Context, projectPath, sessionID, branchID, paneID string, policy types.AgentPolicy) {
	id := agentID(projectPath, sessionID, branchID)

	r.mu.Lock()
	if existing, ok := r.agents[id]; ok {
		r.mu.Unlock()
		existing.engine.Stop()
		r.mu.Lock()
	}

	target := supervisor.Target{AgentID: id, SessionID: sessionID, PaneID: paneID}
	var decider supervisor.Decider
	if r.decider != nil {
		decider = r.decider
	}
	engine := supervisor.NewEngine(target, policy, r.mux, r.notify, decider, r.checker)
	r.agents[id] = &agentEntry{projectPath: projectPath, sessionID: sessionID, branchID: branchID, engine: engine}
	r.mu.Unlock()

	engine.Start(ctx)
	logging.Info().Str("agentID", id).Str("paneID", paneID).Msg("supervisor engine started")
}

// UnregisterAgent stops and forgets a branch's engine, called when a fork
// or session is closed/deleted.
func (r *Registry) UnregisterAgent(projectPath, sessionID, branchID string) {
	id := agentID(projectPath, sessionID, branchID)

	r.mu.Lock()
	entry, ok := r.agents[id]
	if ok {
		delete(r.agents, id)
	}
	r.mu.Unlock()

	if ok {
		entry.engine.Stop()
		r.checker.ClearAgent(id)
	}
}

// Resolve implements internal/hook.Lookup.
func (r *Registry) Resolve(agentID string) (projectPath, sessionID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, found := r.agents[agentID]
	if !found {
		return "", "", false
	}
	return entry.projectPath, entry.sessionID, true
}

// Submit implements internal/hook.Sink.
func (r *Registry) Submit(ctx context.Context, ev types.HookEvent) {
	r.mu.Lock()
	entry, ok := r.agents[ev.AgentID]
	r.mu.Unlock()
	if !ok {
		logging.Warn().Str("agentID", ev.AgentID).Msg("hook event for unknown agent dropped")
		return
	}
	entry.engine.Submit(ctx, ev)
}

// AgentIDFor returns the composite agent id the hook receiver's URL path
// should carry for a given branch, so the control surface can hand it to
// a freshly started assistant process (e.g. via an environment variable
// or CLI flag outside this package's scope).
func (r *Registry) AgentIDFor(projectPath, sessionID, branchID string) string {
	return agentID(projectPath, sessionID, branchID)
}

// ProjectPath resolves a registered project id to its filesystem path.
func (r *Registry) ProjectPath(projectID string) (string, error) {
	p, err := r.Projects.Get(projectID)
	if err != nil {
		return "", err
	}
	return p.Path, nil
}

// ErrDecisionUnavailable is returned by callers that require the LLM
// fallback but none was configured.
var ErrDecisionUnavailable = orkaerr.New(orkaerr.KindPrecondition, "decision maker not configured")
