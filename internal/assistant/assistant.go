// Package assistant builds the shell invocation line for the external
// assistant CLI the orchestrator types into a pane (spec §4.3 "Creating a
// session", "Creating a fork"). It owns no process: the assistant runs
// inside the multiplexer pane's own shell, so this package only ever
// returns a command string.
package assistant

import "fmt"

// CLI builds invocation lines for one assistant CLI binary.
type CLI struct {
	Binary string
}

// New returns a CLI wrapping binary, defaulting to "assistant" (any CLI
// satisfying the contract in spec §6 "Terminal multiplexer contract" can
// be substituted via configuration).
func New(binary string) *CLI {
	if binary == "" {
		binary = "assistant"
	}
	return &CLI{Binary: binary}
}

// Invocation implements orchestrator.Assistant (spec §4.3 steps 3-4 and
// "Creating a fork" step 5):
//
//   - forkSession: "resume <resumeFrom> fork-session --session-id <sessionID>"
//   - resumeFrom set, not forking: "resume <resumeFrom>"
//   - otherwise: "new --session-id <sessionID>"
func (c *CLI) Invocation(resumeFrom, sessionID string, forkSession bool) string {
	if forkSession {
		return fmt.Sprintf("%s resume %s fork-session --session-id %s", c.Binary, resumeFrom, sessionID)
	}
	if resumeFrom != "" {
		return fmt.Sprintf("%s resume %s", c.Binary, resumeFrom)
	}
	return fmt.Sprintf("%s new --session-id %s", c.Binary, sessionID)
}
