package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/orka-sh/orka-core/internal/decision"
	"github.com/orka-sh/orka-core/internal/event"
	"github.com/orka-sh/orka-core/internal/permission"
	"github.com/orka-sh/orka-core/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakePane struct {
	mu      sync.Mutex
	capture string
	sent    []string
}

func (f *fakePane) CapturePane(ctx context.Context, paneID string, lines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capture, nil
}

func (f *fakePane) SendKeys(ctx context.Context, paneID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakePane) SendEnter(ctx context.Context, paneID string) error { return nil }

func (f *fakePane) setCapture(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capture = s
}

func (f *fakePane) sentKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, agentID, sessionID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type fakeDecider struct {
	reply decision.Reply
	err   error
	calls int
}

func (d *fakeDecider) Decide(ctx context.Context, req decision.Request) (decision.Reply, error) {
	d.calls++
	return d.reply, d.err
}

func newTestEngine(pane *fakePane, notifier Notifier, decider Decider) *Engine {
	target := Target{AgentID: "agent-1", SessionID: "sess-1", PaneID: "%1"}
	policy := types.DefaultAgentPolicy()
	policy.AutoApproveTools = map[string]types.PermissionAction{"edit": types.PermissionAllow}
	e := NewEngine(target, policy, pane, notifier, decider, nil)
	e.captureLines = 10
	return e
}

func TestFastPath_ApprovesAutoApprovedTool(t *testing.T) {
	pane := &fakePane{capture: "Edit file?\nDo you want to proceed?\n1. Yes\n2. No"}
	e := newTestEngine(pane, nil, nil)

	e.process(context.Background(), types.HookEvent{Type: types.HookPermission, Tool: "edit"})
	require.Equal(t, []string{"1"}, pane.sentKeys())
}

func TestFastPath_ContextWarningTriggersCompact(t *testing.T) {
	pane := &fakePane{capture: "Running low on context window, consider compacting."}
	e := newTestEngine(pane, nil, nil)

	e.process(context.Background(), types.HookEvent{Type: types.HookNotification})
	require.Equal(t, []string{"/compact"}, pane.sentKeys())
}

func TestFastPath_IdleAfterStopNotifiesMilestone(t *testing.T) {
	pane := &fakePane{capture: "\n\n\n"}
	notifier := &fakeNotifier{}
	e := newTestEngine(pane, notifier, nil)

	e.process(context.Background(), types.HookEvent{Type: types.HookStop})
	require.Contains(t, notifier.messages, "milestone reached: agent is idle")
}

func TestUnresolvedEventFallsBackToDecision(t *testing.T) {
	pane := &fakePane{capture: "xyz novel text with no markers"}
	decider := &fakeDecider{reply: decision.Reply{Action: decision.ActionRespond, Response: "hi", Reason: "test"}}
	notifier := &fakeNotifier{}
	e := newTestEngine(pane, notifier, decider)
	e.policy.RequiredMatchingVerdicts = 1

	e.process(context.Background(), types.HookEvent{Type: types.HookUserPromptSubmit})
	require.Equal(t, 1, decider.calls)
	require.Contains(t, notifier.messages, "hi")
}

func TestWatchdogWaitsForRequiredMatchingVerdicts(t *testing.T) {
	pane := &fakePane{capture: "xyz novel text with no markers"}
	decider := &fakeDecider{reply: decision.Reply{Action: decision.ActionCompact, Reason: "stuck"}}
	e := newTestEngine(pane, nil, decider)
	e.policy.IdleTicksBeforeFallback = 1
	e.policy.RequiredMatchingVerdicts = 2

	tick := types.HookEvent{Type: types.HookWatchdogTick}
	e.process(context.Background(), tick)
	require.Empty(t, pane.sentKeys(), "first matching verdict should not yet apply the action")

	e.process(context.Background(), tick)
	require.Equal(t, []string{"/compact"}, pane.sentKeys())
}

func TestFastPath_AskRoutesThroughPermissionChecker(t *testing.T) {
	pane := &fakePane{capture: "Edit file?\nDo you want to proceed?\n1. Yes\n2. No"}
	target := Target{AgentID: "agent-1", SessionID: "sess-1", PaneID: "%1"}
	policy := types.DefaultAgentPolicy() // no auto-approve entries: falls to "ask"
	checker := permission.NewChecker()

	var requestID string
	var mu sync.Mutex
	unsub := event.Subscribe(event.PermissionRequired, func(e event.Event) {
		data := e.Data.(event.PermissionRequiredData)
		mu.Lock()
		requestID = data.RequestID
		mu.Unlock()
	})
	defer unsub()

	e := NewEngine(target, policy, pane, nil, nil, checker)
	e.captureLines = 10

	e.process(context.Background(), types.HookEvent{Type: types.HookPermission, Tool: "edit"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return requestID != ""
	}, time.Second, 10*time.Millisecond, "expected permission.required to be published")

	checker.RespondFrom(requestID, "once", "agent-1", "sess-1", "operator")

	require.Eventually(t, func() bool {
		return len(pane.sentKeys()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"1"}, pane.sentKeys())
}

func TestSubmitProcessesQueuedEvent(t *testing.T) {
	pane := &fakePane{capture: "Edit file?\nDo you want to proceed?\n1. Yes"}
	e := newTestEngine(pane, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	e.Submit(ctx, types.HookEvent{Type: types.HookPermission, Tool: "edit"})

	require.Eventually(t, func() bool {
		return len(pane.sentKeys()) == 1
	}, time.Second, 10*time.Millisecond)
}
