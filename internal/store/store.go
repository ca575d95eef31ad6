// Package store provides the durable, atomic snapshot of a single
// project's sessions, forks, and branches (spec §4.1 "State Store").
//
// One Store instance owns exactly one project's state.json: a single
// writer per project, enforced by a per-project mutex, with readers
// always seeing a consistent snapshot. Writes are atomic (write-temp-
// then-rename), grounded on the same pattern as internal/storage.Put.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/orka-sh/orka-core/internal/logging"
	"github.com/orka-sh/orka-core/internal/orkaerr"
	"github.com/orka-sh/orka-core/internal/storage"
	"github.com/orka-sh/orka-core/pkg/types"
)

// Change is broadcast to subscribers after every successful write
// (spec §4.6: "every successful withWrite emits a {sessionId, delta} event").
type Change struct {
	SessionID string
	Delta      *types.Session // nil when the session was deleted
}

// Subscriber receives a Change after the write that produced it has been
// durably persisted.
type Subscriber func(Change)

// Store owns exactly one project's state.json.
type Store struct {
	projectRoot string
	statePath   string

	mu    sync.Mutex // serializes withWrite; guards the in-memory cache below
	cache *types.ProjectState

	subMu sync.RWMutex
	subs  []Subscriber
}

// New creates a Store rooted at projectRoot (the project's filesystem
// path, not the .orka directory).
func New(projectRoot string) *Store {
	return &Store{
		projectRoot: projectRoot,
		statePath:   filepath.Join(projectRoot, ".orka", "state.json"),
	}
}

// StatePath returns the absolute path to the project's state.json.
func (s *Store) StatePath() string { return s.statePath }

// ProjectDir returns <projectRoot>/.orka.
func (s *Store) ProjectDir() string {
	return filepath.Join(s.projectRoot, ".orka")
}

// Load returns the current state, reading it from disk the first time and
// caching it thereafter. Returns an empty, freshly-versioned document the
// first time the project is ever loaded (spec §4.1 "load").
func (s *Store) Load() (*types.ProjectState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*types.ProjectState, error) {
	if s.cache != nil {
		return s.cache, nil
	}

	data, err := os.ReadFile(s.statePath)
	if os.IsNotExist(err) {
		fresh := types.NewProjectState(s.projectRoot)
		s.cache = fresh
		return fresh, nil
	}
	if err != nil {
		return nil, orkaerr.Corrupted("failed to read state file", err)
	}

	var state types.ProjectState
	if jsonErr := json.Unmarshal(data, &state); jsonErr != nil {
		// Corrupted state: rename aside, start fresh, keep going — spec §7
		// prioritizes availability over durability of the broken file.
		s.quarantine(data)
		logging.Error().Err(jsonErr).Str("path", s.statePath).
			Msg("state file corrupted; quarantined and reinitialized")
		fresh := types.NewProjectState(s.projectRoot)
		s.cache = fresh
		return fresh, nil
	}

	if state.Version != types.StateSchemaVersion {
		s.reinitializeAuxiliaryFiles()
		state.Version = types.StateSchemaVersion
	}

	s.cache = &state
	return s.cache, nil
}

// quarantine renames the unreadable file aside with a timestamp suffix.
func (s *Store) quarantine(_ []byte) {
	suffix := time.Now().Format("20060102-150405")
	_ = os.Rename(s.statePath, s.statePath+".corrupted-"+suffix)
}

// reinitializeAuxiliaryFiles refreshes theme.conf and other per-project
// auxiliary files on a schema version bump, without touching session rows
// (spec §4.1).
func (s *Store) reinitializeAuxiliaryFiles() {
	themePath := filepath.Join(s.ProjectDir(), "theme.conf")
	if _, err := os.Stat(themePath); os.IsNotExist(err) {
		_ = os.MkdirAll(s.ProjectDir(), 0o755)
		_ = os.WriteFile(themePath, []byte(defaultTheme), 0o644)
	}
}

const defaultTheme = "# orka default multiplexer theme\nstatus-style bg=colour235,fg=colour250\n"

// Snapshot returns a deep-enough-to-be-safe copy of the current state for
// read-only use by callers outside the write lock.
func (s *Store) Snapshot() (*types.ProjectState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	return cloneState(state), nil
}

func cloneState(state *types.ProjectState) *types.ProjectState {
	data, err := json.Marshal(state)
	if err != nil {
		// Marshalling our own in-memory structs cannot fail; this would be
		// a programmer error, not a runtime condition to recover from.
		panic(fmt.Sprintf("store: snapshot marshal: %v", err))
	}
	clone := &types.ProjectState{}
	if err := json.Unmarshal(data, clone); err != nil {
		panic(fmt.Sprintf("store: snapshot unmarshal: %v", err))
	}
	return clone
}

// WithWrite runs fn against the current state while holding the project's
// write lock, persists the result atomically, and only releases the lock
// once the write has landed (spec §4.1 "withWrite"). The returned state is
// what fn returned, already persisted.
func (s *Store) WithWrite(fn func(*types.ProjectState) (*types.ProjectState, error)) (*types.ProjectState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	next, err := fn(cloneState(current))
	if err != nil {
		return nil, err
	}

	next.LastUpdated = time.Now().UnixMilli()
	next.Version = types.StateSchemaVersion

	if err := s.persist(next); err != nil {
		return nil, err
	}

	s.cache = next
	return next, nil
}

// persist writes next to disk atomically (write-temp-then-rename), the
// same primitive storage.Storage.Put uses, specialized to a single
// well-known path instead of a tree of one file per key.
func (s *Store) persist(state *types.ProjectState) error {
	if err := os.MkdirAll(filepath.Dir(s.statePath), 0o755); err != nil {
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to create .orka directory", err)
	}

	lock := storage.NewFileLock(s.statePath)
	if err := lock.Lock(); err != nil {
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to acquire state lock", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to marshal state", err)
	}

	tmpPath := s.statePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to write temp state file", err)
	}
	if err := os.Rename(tmpPath, s.statePath); err != nil {
		os.Remove(tmpPath)
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to rename temp state file", err)
	}
	return nil
}

// Subscribe registers fn to receive every Change from a successful write.
// Returns an unsubscribe function.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	idx := len(s.subs)
	s.subs = append(s.subs, fn)
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		s.subs[idx] = nil
	}
}

func (s *Store) broadcast(c Change) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subs {
		if fn != nil {
			go fn(c)
		}
	}
}
