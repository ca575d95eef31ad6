// Package project manages the per-user registry of projects orka-core
// knows about (spec §6 "Persisted state layout", "<home>/.orka/config.json").
//
// Grounded on internal/store.Store's atomic write-temp-then-rename and
// file-lock pattern, specialized to a single well-known path and a
// document with a different shape (a project list instead of a session tree).
package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/orka-sh/orka-core/internal/orkaerr"
	"github.com/orka-sh/orka-core/internal/storage"
	"github.com/orka-sh/orka-core/pkg/types"
)

// Registry owns ~/.orka/config.json: the list of registered projects and
// the two reserved base ports.
type Registry struct {
	path string
	mu   sync.Mutex
}

// NewRegistry returns a Registry backed by configPath (typically
// config.Paths.GlobalConfigPath()).
func NewRegistry(configPath string) *Registry {
	return &Registry{path: configPath}
}

func (r *Registry) load() (*types.GlobalConfig, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return &types.GlobalConfig{ServerPort: 8080, BridgeBasePort: 9000}, nil
	}
	if err != nil {
		return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to read global config", err)
	}
	var cfg types.GlobalConfig
	if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
		return nil, orkaerr.Corrupted("global config is corrupted", jsonErr)
	}
	return &cfg, nil
}

func (r *Registry) persist(cfg *types.GlobalConfig) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to create config directory", err)
	}

	lock := storage.NewFileLock(r.path)
	if err := lock.Lock(); err != nil {
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to acquire global config lock", err)
	}
	defer lock.Unlock()

	cfg.LastUpdated = time.Now().UnixMilli()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to marshal global config", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to write temp global config", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to rename temp global config", err)
	}
	return nil
}

// List returns every registered project.
func (r *Registry) List() ([]types.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, err := r.load()
	if err != nil {
		return nil, err
	}
	return cfg.Projects, nil
}

// Get returns the registered project with the given id.
func (r *Registry) Get(id string) (*types.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range cfg.Projects {
		if cfg.Projects[i].ID == id {
			p := cfg.Projects[i]
			return &p, nil
		}
	}
	return nil, orkaerr.NotFound("project", id)
}

// GetByPath returns the registered project rooted at path, resolved to its
// absolute form first (the control surface's :enc URL segments carry a
// project's path, not its internal id).
func (r *Registry) GetByPath(path string) (*types.Project, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to resolve project path", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, err := r.load()
	if err != nil {
		return nil, err
	}
	for i := range cfg.Projects {
		if cfg.Projects[i].Path == absPath {
			p := cfg.Projects[i]
			return &p, nil
		}
	}
	return nil, orkaerr.NotFound("project", absPath)
}

// UnregisterByPath removes a project's row by its path rather than its id.
func (r *Registry) UnregisterByPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to resolve project path", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, err := r.load()
	if err != nil {
		return err
	}
	idx := -1
	for i := range cfg.Projects {
		if cfg.Projects[i].Path == absPath {
			idx = i
			break
		}
	}
	if idx < 0 {
		return orkaerr.NotFound("project", absPath)
	}
	cfg.Projects = append(cfg.Projects[:idx], cfg.Projects[idx+1:]...)
	return r.persist(cfg)
}

// Register adds a new project rooted at path, or returns the existing row
// if that path is already registered (idempotent by path).
func (r *Registry) Register(path, name string) (*types.Project, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to resolve project path", err)
	}
	if name == "" {
		name = filepath.Base(absPath)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, err := r.load()
	if err != nil {
		return nil, err
	}

	for i := range cfg.Projects {
		if cfg.Projects[i].Path == absPath {
			existing := cfg.Projects[i]
			return &existing, nil
		}
	}

	proj := types.Project{
		ID:      ulid.Make().String(),
		Path:    absPath,
		Name:    name,
		AddedAt: time.Now().UnixMilli(),
	}
	cfg.Projects = append(cfg.Projects, proj)
	if err := r.persist(cfg); err != nil {
		return nil, err
	}
	return &proj, nil
}

// Unregister removes a project's row. Project files on disk are untouched
// (spec §6: "Unregister (files untouched)").
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, err := r.load()
	if err != nil {
		return err
	}
	idx := -1
	for i := range cfg.Projects {
		if cfg.Projects[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return orkaerr.NotFound("project", id)
	}
	cfg.Projects = append(cfg.Projects[:idx], cfg.Projects[idx+1:]...)
	return r.persist(cfg)
}

// Touch records the current time as a project's lastOpened timestamp.
func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, err := r.load()
	if err != nil {
		return err
	}
	for i := range cfg.Projects {
		if cfg.Projects[i].ID == id {
			now := time.Now().UnixMilli()
			cfg.Projects[i].LastOpened = &now
			return r.persist(cfg)
		}
	}
	return orkaerr.NotFound("project", id)
}
