package store

import (
	"time"

	"github.com/orka-sh/orka-core/internal/orkaerr"
	"github.com/orka-sh/orka-core/pkg/types"
)

// AddSession inserts a new session row and persists it.
func (s *Store) AddSession(session types.Session) (*types.Session, error) {
	state, err := s.WithWrite(func(st *types.ProjectState) (*types.ProjectState, error) {
		if st.FindSession(session.ID) != nil {
			return nil, orkaerr.Precondition("session already exists: " + session.ID)
		}
		st.Sessions = append(st.Sessions, session)
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	saved := state.FindSession(session.ID)
	s.broadcast(Change{SessionID: session.ID, Delta: saved})
	return saved, nil
}

// ReplaceSession overwrites the row for session.ID with session.
func (s *Store) ReplaceSession(session types.Session) (*types.Session, error) {
	state, err := s.WithWrite(func(st *types.ProjectState) (*types.ProjectState, error) {
		idx := st.SessionIndex(session.ID)
		if idx < 0 {
			return nil, orkaerr.NotFound("session", session.ID)
		}
		session.LastActivity = time.Now().UnixMilli()
		st.Sessions[idx] = session
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	saved := state.FindSession(session.ID)
	s.broadcast(Change{SessionID: session.ID, Delta: saved})
	return saved, nil
}

// DeleteSession removes the session row entirely.
func (s *Store) DeleteSession(sessionID string) error {
	_, err := s.WithWrite(func(st *types.ProjectState) (*types.ProjectState, error) {
		idx := st.SessionIndex(sessionID)
		if idx < 0 {
			return nil, orkaerr.NotFound("session", sessionID)
		}
		st.Sessions = append(st.Sessions[:idx], st.Sessions[idx+1:]...)
		return st, nil
	})
	if err != nil {
		return err
	}
	s.broadcast(Change{SessionID: sessionID, Delta: nil})
	return nil
}

// ListSessions returns all sessions, optionally filtered by status.
func (s *Store) ListSessions(status types.SessionStatus) ([]types.Session, error) {
	state, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	if status == "" {
		return state.Sessions, nil
	}
	var filtered []types.Session
	for _, sess := range state.Sessions {
		if sess.Status == status {
			filtered = append(filtered, sess)
		}
	}
	return filtered, nil
}

// AddFork appends a fork to a session's tree, enforcing invariant 3 (at
// most one active child per parent) at write time.
func (s *Store) AddFork(sessionID string, fork types.Fork) (*types.Session, error) {
	state, err := s.WithWrite(func(st *types.ProjectState) (*types.ProjectState, error) {
		idx := st.SessionIndex(sessionID)
		if idx < 0 {
			return nil, orkaerr.NotFound("session", sessionID)
		}
		sess := &st.Sessions[idx]
		if fork.Status == types.BranchActive {
			if existing := sess.ActiveChildOf(fork.ParentID); existing != nil {
				return nil, orkaerr.Precondition(
					"parent branch already has an active child fork: " + existing.ID)
			}
		}
		sess.Forks = append(sess.Forks, fork)
		sess.LastActivity = time.Now().UnixMilli()
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	saved := state.FindSession(sessionID)
	s.broadcast(Change{SessionID: sessionID, Delta: saved})
	return saved, nil
}

// UpdateFork replaces a fork's row in place by ID.
func (s *Store) UpdateFork(sessionID string, fork types.Fork) (*types.Session, error) {
	state, err := s.WithWrite(func(st *types.ProjectState) (*types.ProjectState, error) {
		idx := st.SessionIndex(sessionID)
		if idx < 0 {
			return nil, orkaerr.NotFound("session", sessionID)
		}
		sess := &st.Sessions[idx]
		found := false
		for i := range sess.Forks {
			if sess.Forks[i].ID == fork.ID {
				if fork.Status == types.BranchActive && sess.Forks[i].Status != types.BranchActive {
					if existing := sess.ActiveChildOf(fork.ParentID); existing != nil && existing.ID != fork.ID {
						return nil, orkaerr.Precondition(
							"parent branch already has an active child fork: " + existing.ID)
					}
				}
				sess.Forks[i] = fork
				found = true
				break
			}
		}
		if !found {
			return nil, orkaerr.NotFound("fork", fork.ID)
		}
		sess.LastActivity = time.Now().UnixMilli()
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	saved := state.FindSession(sessionID)
	s.broadcast(Change{SessionID: sessionID, Delta: saved})
	return saved, nil
}

// DeleteFork removes a fork row entirely.
func (s *Store) DeleteFork(sessionID, forkID string) error {
	_, err := s.WithWrite(func(st *types.ProjectState) (*types.ProjectState, error) {
		idx := st.SessionIndex(sessionID)
		if idx < 0 {
			return nil, orkaerr.NotFound("session", sessionID)
		}
		sess := &st.Sessions[idx]
		found := -1
		for i := range sess.Forks {
			if sess.Forks[i].ID == forkID {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, orkaerr.NotFound("fork", forkID)
		}
		sess.Forks = append(sess.Forks[:found], sess.Forks[found+1:]...)
		return st, nil
	})
	if err != nil {
		return err
	}
	s.broadcast(Change{SessionID: sessionID, Delta: nil})
	return nil
}

// GetFork returns a copy of a single fork by session + fork ID.
func (s *Store) GetFork(sessionID, forkID string) (*types.Fork, error) {
	state, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	sess := state.FindSession(sessionID)
	if sess == nil {
		return nil, orkaerr.NotFound("session", sessionID)
	}
	fork := sess.FindFork(forkID)
	if fork == nil {
		return nil, orkaerr.NotFound("fork", forkID)
	}
	return fork, nil
}
