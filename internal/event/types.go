package event

import "github.com/orka-sh/orka-core/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionUpdatedData is the data for session.updated events. Info carries
// the full post-write session row; callers diff against their own cache if
// they need to know what changed.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionDeletedData is the data for session.deleted events.
type SessionDeletedData struct {
	SessionID string `json:"sessionID"`
}

// ForkCreatedData is the data for fork.created events.
type ForkCreatedData struct {
	SessionID string      `json:"sessionID"`
	Fork      *types.Fork `json:"fork"`
}

// ForkUpdatedData is the data for fork.updated events (status transitions:
// active → saved → merged/closed).
type ForkUpdatedData struct {
	SessionID string      `json:"sessionID"`
	Fork      *types.Fork `json:"fork"`
}

// ForkExportedData is the data for fork.exported events, fired once the
// export phase of the merge protocol has recorded a contextPath (spec
// §4.3 "Export phase").
type ForkExportedData struct {
	SessionID   string `json:"sessionID"`
	ForkID      string `json:"forkID"`
	ContextPath string `json:"contextPath"`
}

// ForkMergedData is the data for fork.merged events, fired once the merge
// phase has injected the exported context into the parent pane.
type ForkMergedData struct {
	SessionID string `json:"sessionID"`
	ForkID    string `json:"forkID"`
	ParentID  string `json:"parentID"`
}

// HookReceivedData is the data for hook.received events — published by an
// agent's supervisor engine when it takes a hook event off its queue and
// the policy guard lets it through (spec §4.4).
type HookReceivedData struct {
	AgentID string          `json:"agentID"`
	Hook    *types.HookEvent `json:"hook"`
}

// AgentStateChangedData is the data for agent.state events, fired whenever
// the terminal-state parser reclassifies a pane (spec §4.5 Parse stage).
type AgentStateChangedData struct {
	AgentID   string `json:"agentID"`
	SessionID string `json:"sessionID"`
	State     string `json:"state"` // idle|waiting_for_input|permission_prompt|processing|context_warning|error|unknown
	Previous  string `json:"previous"`
}

// PermissionRequiredData is the data for permission.required events — a
// pending decision the fast-path rules table couldn't resolve on its own.
type PermissionRequiredData struct {
	RequestID string   `json:"requestID"`
	AgentID   string   `json:"agentID"`
	SessionID string   `json:"sessionID"`
	Tool      string   `json:"tool"`
	Pattern   []string `json:"pattern,omitempty"`
}

// PermissionResolvedData is the data for permission.resolved events.
type PermissionResolvedData struct {
	AgentID   string `json:"agentID"`
	SessionID string `json:"sessionID"`
	Action    string `json:"action"` // allow|deny
	Source    string `json:"source"` // policy|decision|operator
}

// WatchdogTriggeredData is the data for watchdog.triggered events — the
// synthetic tick fired after K consecutive idle/unknown polls with no
// genuine hook traffic (spec §4.5 "Watchdog").
type WatchdogTriggeredData struct {
	AgentID       string `json:"agentID"`
	SessionID     string `json:"sessionID"`
	IdleTickCount int    `json:"idleTickCount"`
}

// DecisionMadeData is the data for decision.made events — the verdict
// returned by the LLM fallback decision maker, before or after the
// debouncer's M-consecutive-match gate.
type DecisionMadeData struct {
	AgentID string `json:"agentID"`
	Action  string `json:"action"`
	Reason  string `json:"reason,omitempty"`
	Applied bool   `json:"applied"` // false while still accumulating matching verdicts
}
