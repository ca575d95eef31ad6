// Package supervisor implements the Event State Machine & Watchdog (spec
// §4.5, C4): one Engine per running agent, draining its inbound hook
// queue strictly in arrival order and periodically re-evaluating stalled
// terminals.
//
// Grounded on the teacher's internal/vcs.Watcher for the run-loop/
// stop-channel lifecycle shape (Start/run/Stop over a background
// goroutine), generalized from a single fsnotify consumer to a queue plus
// a ticker feeding the same consumer.
package supervisor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/orka-sh/orka-core/internal/decision"
	"github.com/orka-sh/orka-core/internal/event"
	"github.com/orka-sh/orka-core/internal/logging"
	"github.com/orka-sh/orka-core/internal/permission"
	"github.com/orka-sh/orka-core/pkg/types"
)

// PaneReader/Writer is the subset of tmux.Adapter the engine needs.
type PaneReader interface {
	CapturePane(ctx context.Context, paneID string, lines int) (string, error)
}

type PaneWriter interface {
	SendKeys(ctx context.Context, paneID, text string) error
	SendEnter(ctx context.Context, paneID string) error
}

type PaneActor interface {
	PaneReader
	PaneWriter
}

// Notifier forwards a message to the agent's chat surface (spec §4.5
// "notify chat"). Implementations live outside this package (chat bot
// transport is an external black box per spec §1).
type Notifier interface {
	Notify(ctx context.Context, agentID, sessionID, message string) error
}

// Decider is the LLM fallback, satisfied by *decision.Client.
type Decider interface {
	Decide(ctx context.Context, req decision.Request) (decision.Reply, error)
}

// Target identifies the pane an agent's hooks and terminal captures apply to.
type Target struct {
	AgentID   string
	SessionID string
	PaneID    string
}

// Engine is one agent's event loop plus watchdog.
type Engine struct {
	target  Target
	policy  types.AgentPolicy
	mux     PaneActor
	notify  Notifier
	decide  Decider
	checker *permission.Checker

	inbox  chan types.HookEvent
	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	lastState    TerminalState
	idleTicks    int
	sawStop      bool
	historyMu    sync.Mutex
	history      []string
	debouncer    *verdictDebouncer
	captureLines int
}

const defaultCaptureLines = 50
const historyCap = 20

// NewEngine builds an Engine. policy.WatchdogInterval, IdleTicksBeforeFallback
// and RequiredMatchingVerdicts default per types.DefaultAgentPolicy if zero.
func NewEngine(target Target, policy types.AgentPolicy, mux PaneActor, notify Notifier, decide Decider, checker *permission.Checker) *Engine {
	if policy.WatchdogInterval <= 0 {
		policy.WatchdogInterval = 30 * time.Second
	}
	if policy.IdleTicksBeforeFallback <= 0 {
		policy.IdleTicksBeforeFallback = 3
	}
	if policy.RequiredMatchingVerdicts <= 0 {
		policy.RequiredMatchingVerdicts = 2
	}
	return &Engine{
		target:       target,
		policy:       policy,
		mux:          mux,
		notify:       notify,
		decide:       decide,
		checker:      checker,
		inbox:        make(chan types.HookEvent, 64),
		done:         make(chan struct{}),
		debouncer:    newVerdictDebouncer(),
		captureLines: defaultCaptureLines,
	}
}

// Submit enqueues an event for processing. Never blocks past the queue's
// buffer; a full queue indicates the agent is wedged and is logged, not
// silently dropped.
func (e *Engine) Submit(ctx context.Context, ev types.HookEvent) {
	select {
	case e.inbox <- ev:
	default:
		logging.Warn().Str("agentID", e.target.AgentID).Msg("supervisor inbox full, dropping event")
	}
}

// Start launches the single goroutine that runs the event loop and the
// watchdog ticker.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.run(ctx)
}

// Stop drains no further events and terminates that goroutine, waiting
// for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	<-e.done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.policy.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.inbox:
			e.process(ctx, ev)
		case <-ticker.C:
			// The tick joins the inbox behind any hook events already
			// queued; a full inbox drops it.
			select {
			case e.inbox <- types.HookEvent{Type: types.HookWatchdogTick, Timestamp: time.Now().UTC()}:
			default:
			}
		}
	}
}

// process runs one event through the stages of spec §4.5: guard, route,
// capture, parse, fast path, LLM fallback.
func (e *Engine) process(ctx context.Context, ev types.HookEvent) {
	if !e.guard(ev) {
		logging.Debug().Str("agentID", e.target.AgentID).Str("event", string(ev.Type)).Msg("event disabled by policy, dropping")
		return
	}
	if ev.Type != types.HookWatchdogTick {
		// A hook event breaks the run of consecutive idle watchdog ticks.
		e.mu.Lock()
		e.idleTicks = 0
		e.mu.Unlock()
	}
	e.route(ctx, ev)

	captured, err := e.mux.CapturePane(ctx, e.target.PaneID, e.captureLines)
	if err != nil {
		logging.Warn().Err(err).Str("agentID", e.target.AgentID).Msg("capture-pane failed")
		return
	}
	e.recordHistory(captured)

	state := ParseTerminalState(captured)
	e.publishStateChange(state)

	if e.fastPath(ctx, ev, state) {
		e.resetIdleOnActivity(state)
		return
	}

	e.resetIdleOnActivity(state)
	if ev.Type == types.HookWatchdogTick {
		e.maybeFallback(ctx, ev, captured, state)
		return
	}
	// spec §4.5 step 6: any real event the fast path didn't resolve goes
	// straight to the LLM fallback, regardless of event type.
	e.consultDecision(ctx, ev, captured)
}

// guard implements spec §4.5 step 1: drop disabled events. An empty
// EnabledEvents allow-list (the default) means "react to everything" —
// the zero-configuration behavior a freshly created agent has.
func (e *Engine) guard(ev types.HookEvent) bool {
	if len(e.policy.EnabledEvents) == 0 {
		return true
	}
	return e.policy.EnabledEvents[ev.Type]
}

// route implements spec §4.5 step 2's lightweight default actions that
// don't depend on terminal state.
func (e *Engine) route(ctx context.Context, ev types.HookEvent) {
	switch ev.Type {
	case types.HookSessionStart:
		e.safeNotify(ctx, "session started")
	case types.HookNotification:
		e.safeNotify(ctx, ev.RawStdin)
	case types.HookStop:
		e.mu.Lock()
		e.sawStop = true
		e.mu.Unlock()
	}
	event.Publish(event.Event{Type: event.HookReceived, Data: event.HookReceivedData{
		AgentID: e.target.AgentID, Hook: &ev,
	}})
}

// fastPath implements spec §4.5 step 5's deterministic rules table.
// Returns true if it fully handled the event.
func (e *Engine) fastPath(ctx context.Context, ev types.HookEvent, state TerminalState) bool {
	switch state {
	case StatePermissionPrompt:
		action, patterns := e.policyFor(ev)
		switch action {
		case types.PermissionAllow:
			e.act(ctx, "1")
			return true
		case types.PermissionDeny:
			e.act(ctx, "2")
			e.safeNotify(ctx, "permission denied by policy for tool "+ev.Tool)
			return true
		default:
			if e.checker != nil {
				go e.awaitPermission(ctx, ev, patterns)
				return true
			}
			return false // no checker wired: defer to LLM fallback
		}
	case StateContextWarning:
		e.act(ctx, "/compact")
		return true
	case StateIdle:
		e.mu.Lock()
		sawStop := e.sawStop
		e.mu.Unlock()
		if sawStop {
			e.mu.Lock()
			e.sawStop = false
			e.mu.Unlock()
			e.safeNotify(ctx, "milestone reached: agent is idle")
			return true
		}
		return false
	}
	return false
}

// policyFor resolves the auto-approve policy for a hook event. A
// PreToolUse/Permission event for tool "bash" is matched against
// AutoApproveTools' bash command patterns (spec §4.5 step 5: a command
// like "git commit -m x" auto-approves under an AutoApproveTools entry
// of "git commit *" without ever reaching the ask branch); every other
// tool falls back to a plain name lookup with a wildcard "*" entry, then
// PermissionAsk. The returned patterns (non-nil only for bash) are
// attached to the permission.Request so an "always" response approves
// the exact command shape rather than every future bash invocation.
func (e *Engine) policyFor(ev types.HookEvent) (types.PermissionAction, []string) {
	if strings.EqualFold(ev.Tool, "bash") {
		if action, patterns, ok := e.policyForBash(ev); ok {
			return action, patterns
		}
	}
	return e.policyForTool(ev.Tool), nil
}

func (e *Engine) policyForTool(tool string) types.PermissionAction {
	if e.policy.AutoApproveTools == nil {
		return types.PermissionAsk
	}
	if action, ok := e.policy.AutoApproveTools[tool]; ok {
		return action
	}
	if action, ok := e.policy.AutoApproveTools["*"]; ok {
		return action
	}
	return types.PermissionAsk
}

// policyForBash parses a PreToolUse{tool:bash} hook's command and matches
// each parsed invocation against AutoApproveTools as a bash permission
// pattern table (e.g. "git commit *", "rm *"). It returns ok=false when
// the command is missing or unparseable, so the caller falls back to the
// tool-level policy instead of silently asking for everything.
func (e *Engine) policyForBash(ev types.HookEvent) (types.PermissionAction, []string, bool) {
	command, _ := ev.ToolInput["command"].(string)
	if command == "" {
		return types.PermissionAsk, nil, false
	}
	commands, err := permission.ParseBashCommand(command)
	if err != nil || len(commands) == 0 {
		return types.PermissionAsk, nil, false
	}

	patterns := permission.BuildPatterns(commands)
	approvals := bashApprovals(e.policy.AutoApproveTools)

	verdict := types.PermissionAllow
	for _, cmd := range commands {
		switch permission.MatchBashPermission(cmd, approvals) {
		case permission.ActionDeny:
			return types.PermissionDeny, patterns, true
		case permission.ActionAsk:
			verdict = types.PermissionAsk
		}
	}
	return verdict, patterns, true
}

// bashApprovals adapts AgentPolicy.AutoApproveTools (types.PermissionAction)
// to the map shape permission.MatchBashPermission expects.
func bashApprovals(tools map[string]types.PermissionAction) map[string]permission.PermissionAction {
	out := make(map[string]permission.PermissionAction, len(tools))
	for pattern, action := range tools {
		switch action {
		case types.PermissionAllow:
			out[pattern] = permission.ActionAllow
		case types.PermissionDeny:
			out[pattern] = permission.ActionDeny
		default:
			out[pattern] = permission.ActionAsk
		}
	}
	return out
}

// awaitPermission hands an unresolved permission prompt to the shared
// permission.Checker, which publishes permission.required and blocks until
// an operator (or a future automated resolver) calls Respond. Runs in its
// own goroutine so the single-threaded event loop never stalls on it.
func (e *Engine) awaitPermission(ctx context.Context, ev types.HookEvent, patterns []string) {
	req := permission.Request{
		Type:      toolPermissionType(ev.Tool),
		Pattern:   patterns,
		AgentID:   e.target.AgentID,
		SessionID: e.target.SessionID,
		Title:     ev.Tool,
	}
	err := e.checker.Ask(ctx, req)
	if err != nil {
		if !permission.IsRejectedError(err) {
			logging.Warn().Err(err).Str("agentID", e.target.AgentID).Msg("permission wait failed")
			return
		}
		e.act(ctx, "2")
		return
	}
	e.act(ctx, "1")
}

func toolPermissionType(tool string) permission.PermissionType {
	switch strings.ToLower(tool) {
	case "bash":
		return permission.PermBash
	case "write":
		return permission.PermWrite
	case "webfetch":
		return permission.PermWebFetch
	case "edit":
		return permission.PermEdit
	default:
		return permission.PermExternalDir
	}
}

// act types text into the agent's pane and presses enter. Used both for
// single-keystroke fast-path answers ("1"/"2") and full commands ("/compact").
func (e *Engine) act(ctx context.Context, text string) {
	if err := e.mux.SendKeys(ctx, e.target.PaneID, text); err != nil {
		logging.Warn().Err(err).Str("agentID", e.target.AgentID).Msg("send-keys failed")
		return
	}
	if err := e.mux.SendEnter(ctx, e.target.PaneID); err != nil {
		logging.Warn().Err(err).Str("agentID", e.target.AgentID).Msg("send-enter failed")
	}
}

// maybeFallback implements the watchdog side of spec §4.5 step 6: K
// consecutive idle/unknown ticks trigger an LLM consultation, gated by
// the verdict debouncer requiring M consecutive matching verdicts before
// acting (spec §8 property 9).
func (e *Engine) maybeFallback(ctx context.Context, ev types.HookEvent, captured string, state TerminalState) {
	if state != StateIdle && state != StateUnknown {
		e.mu.Lock()
		e.idleTicks = 0
		e.mu.Unlock()
		return
	}
	e.mu.Lock()
	e.idleTicks++
	ticks := e.idleTicks
	e.mu.Unlock()

	if ticks < e.policy.IdleTicksBeforeFallback {
		return
	}
	event.Publish(event.Event{Type: event.WatchdogTriggered, Data: event.WatchdogTriggeredData{
		AgentID: e.target.AgentID, SessionID: e.target.SessionID, IdleTickCount: ticks,
	}})
	e.consultDecision(ctx, ev, captured)
}

func (e *Engine) consultDecision(ctx context.Context, ev types.HookEvent, captured string) {
	if e.decide == nil {
		return
	}
	reply, err := e.decide.Decide(ctx, decision.Request{
		EventType:    string(ev.Type),
		TerminalText: captured,
		History:      e.snapshotHistory(),
	})
	if err != nil {
		logging.Warn().Err(err).Str("agentID", e.target.AgentID).Msg("decision fallback failed")
		return
	}

	applied := e.debouncer.Observe(e.target.AgentID, reply, e.policy.RequiredMatchingVerdicts)
	event.Publish(event.Event{Type: event.DecisionMade, Data: event.DecisionMadeData{
		AgentID: e.target.AgentID, Action: string(reply.Action), Reason: reply.Reason, Applied: applied,
	}})
	if !applied {
		return
	}
	e.debouncer.Reset(e.target.AgentID)
	e.applyDecision(ctx, reply)
}

func (e *Engine) applyDecision(ctx context.Context, reply decision.Reply) {
	switch reply.Action {
	case decision.ActionApprove:
		e.act(ctx, "1")
	case decision.ActionReject:
		e.act(ctx, "2")
	case decision.ActionCompact:
		e.act(ctx, "/compact")
	case decision.ActionClear:
		e.act(ctx, "/clear")
	case decision.ActionEscape:
		if err := e.mux.SendKeys(ctx, e.target.PaneID, "\x1b"); err != nil {
			logging.Warn().Err(err).Str("agentID", e.target.AgentID).Msg("send escape failed")
		}
	case decision.ActionRespond, decision.ActionRequestHelp:
		e.safeNotify(ctx, reply.Response)
	case decision.ActionWait:
		// no-op: re-evaluated on the next tick or event.
	}
}

func (e *Engine) resetIdleOnActivity(state TerminalState) {
	if state != StateIdle && state != StateUnknown {
		e.mu.Lock()
		e.idleTicks = 0
		e.mu.Unlock()
	}
}

func (e *Engine) publishStateChange(state TerminalState) {
	e.mu.Lock()
	previous := e.lastState
	changed := previous != state
	e.lastState = state
	e.mu.Unlock()
	if !changed {
		return
	}
	event.Publish(event.Event{Type: event.AgentStateChanged, Data: event.AgentStateChangedData{
		AgentID: e.target.AgentID, SessionID: e.target.SessionID,
		State: string(state), Previous: string(previous),
	}})
}

func (e *Engine) recordHistory(captured string) {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	e.history = append(e.history, captured)
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}
}

func (e *Engine) snapshotHistory() []string {
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	return append([]string(nil), e.history...)
}

func (e *Engine) safeNotify(ctx context.Context, message string) {
	if e.notify == nil || message == "" {
		return
	}
	if err := e.notify.Notify(ctx, e.target.AgentID, e.target.SessionID, message); err != nil {
		logging.Warn().Err(err).Str("agentID", e.target.AgentID).Msg("chat notify failed")
	}
}
