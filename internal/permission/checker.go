package permission

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/orka-sh/orka-core/internal/event"
)

// Checker handles permission checks and approvals, keyed by agent ID
// rather than chat session ID — an agent is one pane, and approvals are
// scoped to the pane that asked.
type Checker struct {
	mu       sync.RWMutex
	approved map[string]map[PermissionType]bool // agentID -> type -> approved
	patterns map[string]map[string]bool         // agentID -> pattern -> approved
	pending  map[string]chan Response           // requestID -> response channel
}

// NewChecker creates a new permission checker.
func NewChecker() *Checker {
	return &Checker{
		approved: make(map[string]map[PermissionType]bool),
		patterns: make(map[string]map[string]bool),
		pending:  make(map[string]chan Response),
	}
}

// Check performs a permission check based on action configuration.
func (c *Checker) Check(ctx context.Context, req Request, action PermissionAction) error {
	switch action {
	case ActionAllow:
		return nil
	case ActionDeny:
		return &RejectedError{
			AgentID:  req.AgentID,
			Type:     req.Type,
			CallID:   req.CallID,
			Metadata: req.Metadata,
			Message:  "permission denied by policy",
		}
	case ActionAsk:
		return c.Ask(ctx, req)
	}
	return nil
}

// Ask publishes a permission.required event and blocks until Respond is
// called for the same request ID, or ctx is canceled.
func (c *Checker) Ask(ctx context.Context, req Request) error {
	c.mu.RLock()
	if agentApprovals, ok := c.approved[req.AgentID]; ok {
		if agentApprovals[req.Type] {
			c.mu.RUnlock()
			return nil
		}
	}

	if len(req.Pattern) > 0 {
		if agentPatterns, ok := c.patterns[req.AgentID]; ok {
			allApproved := true
			for _, p := range req.Pattern {
				if !agentPatterns[p] {
					allApproved = false
					break
				}
			}
			if allApproved {
				c.mu.RUnlock()
				return nil
			}
		}
	}
	c.mu.RUnlock()

	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	respChan := make(chan Response, 1)
	c.mu.Lock()
	c.pending[req.ID] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	event.Publish(event.Event{
		Type: event.PermissionRequired,
		Data: event.PermissionRequiredData{
			RequestID: req.ID,
			AgentID:   req.AgentID,
			SessionID: req.SessionID,
			Tool:      string(req.Type),
			Pattern:   req.Pattern,
		},
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp := <-respChan:
		switch resp.Action {
		case "once":
			return nil
		case "always":
			c.approve(req.AgentID, req.Type, req.Pattern)
			return nil
		case "reject":
			return &RejectedError{
				AgentID:  req.AgentID,
				Type:     req.Type,
				CallID:   req.CallID,
				Metadata: req.Metadata,
				Message:  "permission rejected",
			}
		}
	}
	return nil
}

// Respond resolves a pending Ask call and publishes permission.resolved.
func (c *Checker) Respond(requestID string, action string) {
	c.respondWithContext(requestID, action, "", "", "operator")
}

// respondWithContext is the same as Respond but attributes the resolution
// to the given agent, session and source in the published event.
func (c *Checker) respondWithContext(requestID, action, agentID, sessionID, source string) {
	c.mu.RLock()
	ch, ok := c.pending[requestID]
	c.mu.RUnlock()

	if ok {
		ch <- Response{RequestID: requestID, Action: action}
	}

	resolvedAction := "deny"
	if action != "reject" {
		resolvedAction = "allow"
	}
	event.Publish(event.Event{
		Type: event.PermissionResolved,
		Data: event.PermissionResolvedData{
			AgentID:   agentID,
			SessionID: sessionID,
			Action:    resolvedAction,
			Source:    source,
		},
	})
}

// RespondFrom is Respond with explicit agent/session attribution and a
// caller-chosen source. The supervisor's fast path and LLM fallback do not
// call it; the operator endpoint uses Respond.
func (c *Checker) RespondFrom(requestID, action, agentID, sessionID, source string) {
	c.respondWithContext(requestID, action, agentID, sessionID, source)
}

// approve marks a permission type and patterns as approved for an agent.
func (c *Checker) approve(agentID string, permType PermissionType, patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.approved[agentID] == nil {
		c.approved[agentID] = make(map[PermissionType]bool)
	}
	c.approved[agentID][permType] = true

	if len(patterns) > 0 {
		if c.patterns[agentID] == nil {
			c.patterns[agentID] = make(map[string]bool)
		}
		for _, p := range patterns {
			c.patterns[agentID][p] = true
		}
	}
}

// IsApproved checks if a permission type is already approved.
func (c *Checker) IsApproved(agentID string, permType PermissionType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if agentApprovals, ok := c.approved[agentID]; ok {
		return agentApprovals[permType]
	}
	return false
}

// IsPatternApproved checks if a specific pattern is approved.
func (c *Checker) IsPatternApproved(agentID string, pattern string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if agentPatterns, ok := c.patterns[agentID]; ok {
		return agentPatterns[pattern]
	}
	return false
}

// ClearAgent clears all approvals for an agent (called when the agent's
// pane is closed).
func (c *Checker) ClearAgent(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.approved, agentID)
	delete(c.patterns, agentID)
}

// ApprovePattern explicitly approves a pattern for an agent.
func (c *Checker) ApprovePattern(agentID string, pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.patterns[agentID] == nil {
		c.patterns[agentID] = make(map[string]bool)
	}
	c.patterns[agentID][pattern] = true
}
