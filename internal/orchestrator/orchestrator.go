// Package orchestrator implements the Session Orchestrator (spec §4.3,
// C2): session and fork lifecycle, and the export/merge protocol between
// forks and their parent branch.
//
// Grounded on the teacher's internal/session/service.go (lifecycle method
// shapes: create/resume/close/delete against a single store) and
// internal/executor/subagent.go (pre-allocating a child id before
// launching the child process, to avoid a detection race — the same
// pattern this package uses for assistant-session ids).
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/orka-sh/orka-core/internal/event"
	"github.com/orka-sh/orka-core/internal/logging"
	"github.com/orka-sh/orka-core/internal/orkaerr"
	"github.com/orka-sh/orka-core/internal/store"
	"github.com/orka-sh/orka-core/internal/tmux"
	"github.com/orka-sh/orka-core/pkg/types"
)

// Bridge starts an auxiliary web-terminal bridge process for a pane and
// returns its port and PID. Best-effort: failures are logged, not fatal.
type Bridge interface {
	Start(ctx context.Context, paneID string) (port int, pid int, err error)
	Stop(ctx context.Context, pid int) error
}

// Assistant launches the external assistant CLI inside a pane. It types
// the invocation into the pane via the multiplexer adapter rather than
// execing directly — the assistant owns its own process lifecycle inside
// the pane's shell.
type Assistant interface {
	// Invocation returns the shell command line to start or resume a
	// conversation with a pre-assigned assistant-session id.
	Invocation(resumeFrom string, sessionID string, forkSession bool) string
}

// multiplexer is the subset of tmux.Adapter's methods the orchestrator
// needs. Declared as an interface, rather than depending on *tmux.Adapter
// directly, so tests can exercise the lifecycle logic with a fake in
// place of a real tmux binary.
type multiplexer interface {
	SessionExists(ctx context.Context, name string) (bool, error)
	CreateSession(ctx context.Context, name, cwd string) error
	KillSession(ctx context.Context, name string) error
	SplitPane(ctx context.Context, name string, vertical bool) (string, error)
	KillPane(ctx context.Context, paneID string) error
	ListPanes(ctx context.Context, name string) ([]string, error)
	GetMainPane(ctx context.Context, name string) (string, error)
	SetPaneTitle(ctx context.Context, paneID, title string) error
	SendKeys(ctx context.Context, paneID, text string) error
	SendEnter(ctx context.Context, paneID string) error
}

// Orchestrator owns one project's session lifecycle.
type Orchestrator struct {
	projectPath string
	store       *store.Store
	tmux        multiplexer
	bridge      Bridge
	assistant   Assistant
	panes       *paneLocks

	focusMu sync.Mutex
	focus   map[string]string // sessionID -> focused branchID, UI state only
}

// New creates an Orchestrator for one project.
func New(projectPath string, st *store.Store, tx *tmux.Adapter, bridge Bridge, assistant Assistant) *Orchestrator {
	return &Orchestrator{
		projectPath: projectPath,
		store:       st,
		tmux:        tx,
		bridge:      bridge,
		assistant:   assistant,
		panes:       newPaneLocks(),
		focus:       make(map[string]string),
	}
}

// SelectBranch records which branch ("main" or a fork id) the UI is
// currently focused on for a session. Purely an in-memory view
// preference — it has no bearing on lifecycle state and does not survive
// a restart.
func (o *Orchestrator) SelectBranch(sessionID, branchID string) error {
	snapshot, err := o.store.Snapshot()
	if err != nil {
		return err
	}
	sess := snapshot.FindSession(sessionID)
	if sess == nil {
		return orkaerr.NotFound("session", sessionID)
	}
	if _, _, ok := sess.PaneOf(branchID); !ok {
		return orkaerr.NotFound("branch", branchID)
	}
	o.focusMu.Lock()
	o.focus[sessionID] = branchID
	o.focusMu.Unlock()
	return nil
}

// ActiveBranch returns the focused branch id for a session, defaulting to
// "main" if none has been selected yet.
func (o *Orchestrator) ActiveBranch(sessionID string) string {
	o.focusMu.Lock()
	defer o.focusMu.Unlock()
	if b, ok := o.focus[sessionID]; ok {
		return b
	}
	return "main"
}

func newID() string { return ulid.Make().String() }

func multiplexerName(sessionID string) string {
	return "orka-" + sessionID
}

// CreateSessionOptions configures CreateSession.
type CreateSessionOptions struct {
	Name       string
	ResumeFrom string // optional external assistant-session id to continue from
}

// CreateSession creates a new assistant session (spec §4.3 "Creating a session").
func (o *Orchestrator) CreateSession(ctx context.Context, opts CreateSessionOptions) (*types.Session, error) {
	sessionID := newID()
	muxName := multiplexerName(sessionID)

	if err := o.tmux.CreateSession(ctx, muxName, o.projectPath); err != nil {
		return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to create multiplexer session", err)
	}

	mainPane, err := o.tmux.GetMainPane(ctx, muxName)
	if err != nil {
		return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to resolve main pane", err)
	}
	_ = o.tmux.SetPaneTitle(ctx, mainPane, "MAIN")

	var assistantSessionID string
	if opts.ResumeFrom != "" {
		assistantSessionID = opts.ResumeFrom
	} else {
		assistantSessionID = newID()
	}
	cmd := o.assistant.Invocation(opts.ResumeFrom, assistantSessionID, false)
	if err := o.typeAndRun(ctx, mainPane, cmd); err != nil {
		return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to launch assistant", err)
	}

	var bridgePtr *types.Bridge
	if o.bridge != nil {
		if port, pid, berr := o.bridge.Start(ctx, mainPane); berr == nil {
			bridgePtr = &types.Bridge{Port: port, PID: pid}
		} else {
			logging.Warn().Err(berr).Str("sessionID", sessionID).Msg("bridge start failed, continuing without it")
		}
	}

	name := opts.Name
	if name == "" {
		name = sessionID
	}
	now := time.Now().UnixMilli()
	sess := types.Session{
		ID:              sessionID,
		Name:            name,
		CreatedAt:       now,
		LastActivity:    now,
		Status:          types.SessionActive,
		MultiplexerName: muxName,
		Bridge:          bridgePtr,
		Main: types.MainBranch{
			AssistantSessionID: assistantSessionID,
			PaneID:             mainPane,
			Status:             types.BranchActive,
		},
	}

	saved, err := o.store.AddSession(sess)
	if err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: saved}})
	return saved, nil
}

// typeAndRun sends a command line into a pane and presses enter, holding
// the pane's lock so the pair is indivisible (spec §5 "Per pane").
func (o *Orchestrator) typeAndRun(ctx context.Context, paneID, cmd string) error {
	unlock := o.panes.Lock(paneID)
	defer unlock()

	if err := o.tmux.SendKeys(ctx, paneID, cmd); err != nil {
		return err
	}
	return o.tmux.SendEnter(ctx, paneID)
}

// CreateForkOptions configures CreateFork.
type CreateForkOptions struct {
	ParentID string // defaults to "main"
	Name     string
	Vertical bool
}

// CreateFork creates a new fork off an existing branch (spec §4.3 "Creating a fork").
func (o *Orchestrator) CreateFork(ctx context.Context, sessionID string, opts CreateForkOptions) (*types.Session, error) {
	parentID := opts.ParentID
	if parentID == "" {
		parentID = "main"
	}

	snapshot, err := o.store.Snapshot()
	if err != nil {
		return nil, err
	}
	sess := snapshot.FindSession(sessionID)
	if sess == nil {
		return nil, orkaerr.NotFound("session", sessionID)
	}
	if sess.Status != types.SessionActive {
		return nil, orkaerr.Precondition("session is not active: " + sessionID)
	}
	if existing := sess.ActiveChildOf(parentID); existing != nil {
		return nil, orkaerr.Precondition("parent branch already has an active child fork: " + existing.ID)
	}
	parentAssistantID, ok := sess.AssistantSessionIDOf(parentID)
	if !ok {
		return nil, orkaerr.NotFound("branch", parentID)
	}
	if _, _, ok := sess.PaneOf(parentID); !ok {
		return nil, orkaerr.NotFound("branch pane", parentID)
	}

	forkID := newID()
	forkAssistantID := newID()

	forkPane, err := o.tmux.SplitPane(ctx, sess.MultiplexerName, opts.Vertical)
	if err != nil {
		return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to split pane", err)
	}
	_ = o.tmux.SetPaneTitle(ctx, forkPane, opts.Name)

	cmd := o.assistant.Invocation(parentAssistantID, forkAssistantID, true)
	if err := o.typeAndRun(ctx, forkPane, cmd); err != nil {
		return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to launch forked assistant", err)
	}

	fork := types.Fork{
		ID:                 forkID,
		Name:               opts.Name,
		ParentID:           parentID,
		AssistantSessionID: forkAssistantID,
		PaneID:             forkPane,
		Status:             types.BranchActive,
		CreatedAt:          time.Now().UnixMilli(),
	}

	saved, err := o.store.AddFork(sessionID, fork)
	if err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.ForkCreated, Data: event.ForkCreatedData{
		SessionID: sessionID, Fork: saved.FindFork(forkID),
	}})
	return saved, nil
}

// ResumeSession reattaches or fully recreates a session (spec §4.3 "Resuming a session").
func (o *Orchestrator) ResumeSession(ctx context.Context, sessionID string) (*types.Session, error) {
	snapshot, err := o.store.Snapshot()
	if err != nil {
		return nil, err
	}
	sess := snapshot.FindSession(sessionID)
	if sess == nil {
		return nil, orkaerr.NotFound("session", sessionID)
	}

	exists, err := o.tmux.SessionExists(ctx, sess.MultiplexerName)
	if err != nil {
		return nil, err
	}

	if !exists {
		if err := o.tmux.CreateSession(ctx, sess.MultiplexerName, o.projectPath); err != nil {
			return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to recreate multiplexer session", err)
		}
		mainPane, err := o.tmux.GetMainPane(ctx, sess.MultiplexerName)
		if err != nil {
			return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to resolve main pane", err)
		}
		_ = o.tmux.SetPaneTitle(ctx, mainPane, "MAIN")
		cmd := o.assistant.Invocation(sess.Main.AssistantSessionID, sess.Main.AssistantSessionID, false)
		if err := o.typeAndRun(ctx, mainPane, cmd); err != nil {
			return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to relaunch assistant", err)
		}
		sess.Main.PaneID = mainPane
	} else {
		mainPane, err := o.tmux.GetMainPane(ctx, sess.MultiplexerName)
		if err != nil {
			return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to resolve main pane", err)
		}
		sess.Main.PaneID = mainPane
	}
	sess.Main.Status = types.BranchActive
	sess.Status = types.SessionActive

	if sess.Bridge == nil && o.bridge != nil {
		if port, pid, berr := o.bridge.Start(ctx, sess.Main.PaneID); berr == nil {
			sess.Bridge = &types.Bridge{Port: port, PID: pid}
		}
	}

	for i := range sess.Forks {
		fork := &sess.Forks[i]
		if fork.IsTerminal() {
			continue
		}
		if err := o.reattachFork(ctx, sess, fork, exists); err != nil {
			logging.Warn().Err(err).Str("forkID", fork.ID).Msg("fork reattach failed, leaving status unchanged")
		}
	}

	return o.store.ReplaceSession(*sess)
}

func (o *Orchestrator) reattachFork(ctx context.Context, sess *types.Session, fork *types.Fork, muxExisted bool) error {
	if muxExisted {
		panes, err := o.tmux.ListPanes(ctx, sess.MultiplexerName)
		if err != nil {
			return err
		}
		for _, p := range panes {
			if p == fork.PaneID {
				fork.Status = types.BranchActive
				return nil
			}
		}
	}
	parentAssistantID, ok := sess.AssistantSessionIDOf(fork.ParentID)
	if !ok {
		parentAssistantID = sess.Main.AssistantSessionID
	}
	forkPane, err := o.tmux.SplitPane(ctx, sess.MultiplexerName, false)
	if err != nil {
		return err
	}
	_ = o.tmux.SetPaneTitle(ctx, forkPane, fork.Name)
	cmd := o.assistant.Invocation(parentAssistantID, fork.AssistantSessionID, true)
	if err := o.typeAndRun(ctx, forkPane, cmd); err != nil {
		return err
	}
	fork.PaneID = forkPane
	fork.Status = types.BranchActive
	return nil
}

// CloseSession closes every active fork, stops the bridge, kills the
// multiplexer session, and marks session + main as saved.
func (o *Orchestrator) CloseSession(ctx context.Context, sessionID string) (*types.Session, error) {
	for {
		snapshot, err := o.store.Snapshot()
		if err != nil {
			return nil, err
		}
		sess := snapshot.FindSession(sessionID)
		if sess == nil {
			return nil, orkaerr.NotFound("session", sessionID)
		}
		var activeFork *types.Fork
		for i := range sess.Forks {
			if sess.Forks[i].Status == types.BranchActive {
				activeFork = &sess.Forks[i]
				break
			}
		}
		if activeFork == nil {
			break
		}
		if err := o.CloseFork(ctx, sessionID, activeFork.ID); err != nil {
			return nil, err
		}
	}

	snapshot, err := o.store.Snapshot()
	if err != nil {
		return nil, err
	}
	sess := snapshot.FindSession(sessionID)
	if sess == nil {
		return nil, orkaerr.NotFound("session", sessionID)
	}

	if sess.Bridge != nil && o.bridge != nil {
		if err := o.bridge.Stop(ctx, sess.Bridge.PID); err != nil {
			logging.Warn().Err(err).Str("sessionID", sessionID).Msg("bridge stop failed")
		}
	}
	sess.Bridge = nil
	if err := o.tmux.KillSession(ctx, sess.MultiplexerName); err != nil {
		logging.Warn().Err(err).Str("sessionID", sessionID).Msg("kill-session failed")
	}

	sess.Status = types.SessionSaved
	sess.Main.Status = types.BranchSaved
	sess.Main.PaneID = ""
	saved, err := o.store.ReplaceSession(*sess)
	if err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.SessionUpdated, Data: event.SessionUpdatedData{Info: saved}})
	return saved, nil
}

// DeleteSession closes an active session (if needed) then removes its row entirely.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	snapshot, err := o.store.Snapshot()
	if err != nil {
		return err
	}
	sess := snapshot.FindSession(sessionID)
	if sess == nil {
		return orkaerr.NotFound("session", sessionID)
	}
	if sess.Status == types.SessionActive {
		if _, err := o.CloseSession(ctx, sessionID); err != nil {
			return err
		}
	}
	if err := o.store.DeleteSession(sessionID); err != nil {
		return err
	}
	event.Publish(event.Event{Type: event.SessionDeleted, Data: event.SessionDeletedData{SessionID: sessionID}})
	return nil
}

// CloseFork kills a fork's pane (if present) and marks it closed.
func (o *Orchestrator) CloseFork(ctx context.Context, sessionID, forkID string) error {
	snapshot, err := o.store.Snapshot()
	if err != nil {
		return err
	}
	sess := snapshot.FindSession(sessionID)
	if sess == nil {
		return orkaerr.NotFound("session", sessionID)
	}
	fork := sess.FindFork(forkID)
	if fork == nil {
		return orkaerr.NotFound("fork", forkID)
	}
	if fork.PaneID != "" {
		if err := o.tmux.KillPane(ctx, fork.PaneID); err != nil {
			logging.Warn().Err(err).Str("forkID", forkID).Msg("kill-pane failed")
		}
	}
	fork.Status = types.BranchClosed
	fork.PaneID = ""
	_, err = o.store.UpdateFork(sessionID, *fork)
	return err
}

// DeleteFork closes a fork (if needed) then removes its row entirely.
func (o *Orchestrator) DeleteFork(ctx context.Context, sessionID, forkID string) error {
	fork, err := o.store.GetFork(sessionID, forkID)
	if err != nil {
		return err
	}
	if fork.Status == types.BranchActive {
		if err := o.CloseFork(ctx, sessionID, forkID); err != nil {
			return err
		}
	}
	return o.store.DeleteFork(sessionID, forkID)
}
