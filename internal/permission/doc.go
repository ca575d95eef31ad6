// Package permission provides the permission decision primitives used by
// the fast path in internal/supervisor (spec §4.5 step 5): consent for
// potentially dangerous tool use by an assistant session's agent, such as
// bash execution, file edits, web fetches, and out-of-tree file access.
//
// # Overview
//
// The permission system operates on a per-agent model: each agent (one
// pane) can have different auto-approve rules. It supports three actions:
//   - Allow: automatically approve the operation
//   - Deny: automatically reject the operation
//   - Ask: publish a permission.required event and await resolution
//
// # Permission Types
//
//   - Bash: command execution with pattern-based matching
//   - Edit / Write: file modification
//   - WebFetch: external web resource access
//   - ExternalDir: operations outside the project's working directory
//
// # Core Components
//
// ## Checker
//
// The Checker is the central component that manages permission requests
// and approvals. It maintains per-agent state for approved permissions
// and resolves prompts through the event bus.
//
//	checker := NewChecker()
//	req := Request{
//		Type:    PermBash,
//		AgentID: "agent-123",
//		Pattern: []string{"git *"},
//		Title:   "Execute git command",
//	}
//	err := checker.Check(ctx, req, ActionAsk)
//
// ## Bash Command Parsing
//
// ParseBashCommand (internal/permission/bash_parser.go) extracts command
// names, arguments, and subcommands for fine-grained permission control:
//
//	commands, err := ParseBashCommand("git commit -m 'fix bug'")
//	// Returns: BashCommand{Name: "git", Subcommand: "commit", Args: ["commit", "-m", "fix bug"]}
//
// ## Pattern Matching
//
// Bash permissions support wildcard patterns with hierarchical matching:
//   - "git commit *" - matches git commit with any arguments
//   - "git *"        - matches any git subcommand
//   - "git"          - matches git with no arguments
//   - "*"            - matches any command
//
// # Error Handling
//
// Permission denials are represented by RejectedError:
//
//	if err != nil && IsRejectedError(err) {
//		rejErr := err.(*RejectedError)
//		logging.Error().Str("type", string(rejErr.Type)).Msg(rejErr.Message)
//	}
//
// # Thread Safety
//
// All components in this package are thread-safe and can be used
// concurrently across goroutines handling different agents.
package permission
