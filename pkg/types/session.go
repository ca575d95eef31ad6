package types

// BranchStatus is the lifecycle status of a main branch or fork.
type BranchStatus string

const (
	BranchActive BranchStatus = "active"
	BranchSaved  BranchStatus = "saved"
	BranchClosed BranchStatus = "closed" // forks only, terminal
	BranchMerged BranchStatus = "merged" // forks only, terminal
)

// SessionStatus mirrors BranchStatus but only ever takes the two
// session-level values; kept distinct so a session row and its main
// branch can never be typo'd into a fork-only status.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionSaved  SessionStatus = "saved"
)

// Session is a logical container for one assistant conversation tree
// within one project (spec §3 "Session").
type Session struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	CreatedAt       int64        `json:"createdAt"`
	LastActivity    int64        `json:"lastActivity"`
	Status          SessionStatus `json:"status"`
	MultiplexerName string       `json:"multiplexerName"`
	Bridge          *Bridge      `json:"bridge,omitempty"`
	Main            MainBranch   `json:"main"`
	Forks           []Fork       `json:"forks"`
}

// Bridge describes the optional web-terminal bridge process for a session.
type Bridge struct {
	Port int `json:"port"`
	PID  int `json:"pid"`
}

// MainBranch is the root node of a session's conversation tree.
type MainBranch struct {
	AssistantSessionID string       `json:"assistantSessionID"`
	PaneID             string       `json:"paneID,omitempty"`
	Status             BranchStatus `json:"status"`
}

// Fork is a non-root node: a branched continuation of a parent conversation.
type Fork struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	ParentID           string       `json:"parentID"` // "main" or another fork's ID
	AssistantSessionID string       `json:"assistantSessionID"`
	PaneID             string       `json:"paneID,omitempty"`
	Status             BranchStatus `json:"status"`
	CreatedAt          int64        `json:"createdAt"`
	ContextPath        string       `json:"contextPath,omitempty"` // relative to project root
	MergedAt           *int64       `json:"mergedAt,omitempty"`
}

// IsTerminal reports whether the fork has left the conversation tree for good.
func (f *Fork) IsTerminal() bool {
	return f.Status == BranchClosed || f.Status == BranchMerged
}

// FindFork returns the fork with the given ID, or nil.
func (s *Session) FindFork(forkID string) *Fork {
	for i := range s.Forks {
		if s.Forks[i].ID == forkID {
			return &s.Forks[i]
		}
	}
	return nil
}

// ActiveChildOf reports whether any fork has parentID as its parent and is
// currently active — invariant 3: at most one per parent.
func (s *Session) ActiveChildOf(parentID string) *Fork {
	for i := range s.Forks {
		if s.Forks[i].ParentID == parentID && s.Forks[i].Status == BranchActive {
			return &s.Forks[i]
		}
	}
	return nil
}

// PaneOf resolves the pane ID for "main" or a fork ID, and whether the
// branch is currently active in the multiplexer.
func (s *Session) PaneOf(branchID string) (paneID string, active bool, ok bool) {
	if branchID == "" || branchID == "main" {
		return s.Main.PaneID, s.Main.Status == BranchActive, true
	}
	if f := s.FindFork(branchID); f != nil {
		return f.PaneID, f.Status == BranchActive, true
	}
	return "", false, false
}

// AssistantSessionIDOf resolves the assistant-session id for "main" or a fork ID.
func (s *Session) AssistantSessionIDOf(branchID string) (string, bool) {
	if branchID == "" || branchID == "main" {
		return s.Main.AssistantSessionID, true
	}
	if f := s.FindFork(branchID); f != nil {
		return f.AssistantSessionID, true
	}
	return "", false
}
