package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"
)

// RuntimeConfig is orka-core's own server configuration — distinct from the
// per-project GlobalConfig/AgentStore documents in pkg/types, which are
// user data rather than settings. Loaded from (in increasing priority):
// ~/.orka/orka.json(c) → <project>/.orka/orka.json(c) → environment.
type RuntimeConfig struct {
	ControlPort       int           `json:"controlPort"`
	HookPort          int           `json:"hookPort"`
	BridgeBasePort    int           `json:"bridgeBasePort"`
	WatchdogInterval  time.Duration `json:"watchdogInterval"`
	ExportWait        time.Duration `json:"exportWait"`
	DecisionModel     string        `json:"decisionModel"`
	DecisionTimeout   time.Duration `json:"decisionTimeout"`
	MultiplexerBinary string        `json:"multiplexerBinary"`
}

// DefaultRuntimeConfig returns the built-in defaults (spec §4.5, §5 Timeouts).
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		ControlPort:       8080,
		HookPort:          8081,
		BridgeBasePort:    9000,
		WatchdogInterval:  30 * time.Second,
		ExportWait:        15 * time.Second,
		DecisionModel:     "claude-sonnet-4-5",
		DecisionTimeout:   20 * time.Second,
		MultiplexerBinary: "tmux",
	}
}

// rawRuntimeConfig mirrors RuntimeConfig but with duration fields expressed
// as seconds, matching how a human would actually write the JSONC file.
type rawRuntimeConfig struct {
	ControlPort       *int    `json:"controlPort"`
	HookPort          *int    `json:"hookPort"`
	BridgeBasePort    *int    `json:"bridgeBasePort"`
	WatchdogSeconds   *int    `json:"watchdogIntervalSeconds"`
	ExportWaitSeconds *int    `json:"exportWaitSeconds"`
	DecisionModel     *string `json:"decisionModel"`
	DecisionTimeoutS  *int    `json:"decisionTimeoutSeconds"`
	MultiplexerBinary *string `json:"multiplexerBinary"`
}

// Load layers the global config file, a project-local config file, and
// environment variables on top of the defaults, grounded on the teacher's
// global→project→environment precedence in its own config.Load.
func Load(directory string) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()

	applyFile(&cfg, filepath.Join(GetPaths().Config, "orka.json"))
	applyFile(&cfg, filepath.Join(GetPaths().Config, "orka.jsonc"))
	if directory != "" {
		applyFile(&cfg, filepath.Join(directory, ".orka", "orka.json"))
		applyFile(&cfg, filepath.Join(directory, ".orka", "orka.jsonc"))
	}
	applyEnv(&cfg)

	return cfg, nil
}

func applyFile(cfg *RuntimeConfig, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // absent file is not an error; layering just skips it
	}
	// Strip JSONC comments via the tidwall/jsonc library rather than a
	// hand-rolled regex — this is exactly the job that library exists for.
	clean := jsonc.ToJSON(data)

	var raw rawRuntimeConfig
	if err := json.Unmarshal(clean, &raw); err != nil {
		return
	}
	mergeRaw(cfg, raw)
}

func mergeRaw(cfg *RuntimeConfig, raw rawRuntimeConfig) {
	if raw.ControlPort != nil {
		cfg.ControlPort = *raw.ControlPort
	}
	if raw.HookPort != nil {
		cfg.HookPort = *raw.HookPort
	}
	if raw.BridgeBasePort != nil {
		cfg.BridgeBasePort = *raw.BridgeBasePort
	}
	if raw.WatchdogSeconds != nil {
		cfg.WatchdogInterval = time.Duration(*raw.WatchdogSeconds) * time.Second
	}
	if raw.ExportWaitSeconds != nil {
		cfg.ExportWait = time.Duration(*raw.ExportWaitSeconds) * time.Second
	}
	if raw.DecisionModel != nil {
		cfg.DecisionModel = *raw.DecisionModel
	}
	if raw.DecisionTimeoutS != nil {
		cfg.DecisionTimeout = time.Duration(*raw.DecisionTimeoutS) * time.Second
	}
	if raw.MultiplexerBinary != nil {
		cfg.MultiplexerBinary = *raw.MultiplexerBinary
	}
}

func applyEnv(cfg *RuntimeConfig) {
	if v := os.Getenv("ORKA_CONTROL_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ControlPort = n
		}
	}
	if v := os.Getenv("ORKA_HOOK_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HookPort = n
		}
	}
	if v := os.Getenv("ORKA_MULTIPLEXER_BINARY"); v != "" {
		cfg.MultiplexerBinary = v
	}
}
