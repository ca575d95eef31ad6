// Package config provides per-user path resolution and layered JSONC
// configuration loading for orka-core (spec §6 "Persisted state layout" —
// the per-user directories).
package config

import (
	"os"
	"path/filepath"
)

// Paths holds the standard per-user directories orka-core reads and writes.
type Paths struct {
	Home       string // ~
	Config     string // ~/.orka (registered projects, reserved ports)
	AgentsHome string // ~/.orka-agents (agent configurations)
}

// GetPaths returns the standard paths for orka-core.
func GetPaths() *Paths {
	home := getEnvOrDefault("HOME", "/root")
	return &Paths{
		Home:       home,
		Config:     filepath.Join(home, ".orka"),
		AgentsHome: filepath.Join(home, ".orka-agents"),
	}
}

// EnsurePaths creates the per-user directories if they don't already exist.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Config, p.AgentsHome} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// GlobalConfigPath returns ~/.orka/config.json.
func (p *Paths) GlobalConfigPath() string {
	return filepath.Join(p.Config, "config.json")
}

// AgentsPath returns ~/.orka-agents/agents.json.
func (p *Paths) AgentsPath() string {
	return filepath.Join(p.AgentsHome, "agents.json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
