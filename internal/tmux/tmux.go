// Package tmux is the multiplexer adapter (spec §4.2): a thin, stateless
// wrapper over the tmux(1) binary. Every call shells out; the adapter
// retains no state between calls and leaves all session bookkeeping to
// internal/orchestrator.
//
// Grounded on the PTY/process-management shape of the pack's terminal
// multiplexer reference (os/exec.CommandContext, explicit timeouts) and
// on the teacher's internal/command.Executor for command construction,
// adapted from running user-authored templates to running the fixed
// tmux(1) verbs this package needs.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/orka-sh/orka-core/internal/orkaerr"
)

// DefaultTimeout is the per-call timeout (spec §5 "Multiplexer calls: 5s default").
const DefaultTimeout = 5 * time.Second

// Adapter wraps a tmux binary path.
type Adapter struct {
	Binary  string
	Timeout time.Duration
}

// New creates an Adapter for the given tmux binary (usually just "tmux",
// resolved via PATH).
func New(binary string) *Adapter {
	if binary == "" {
		binary = "tmux"
	}
	return &Adapter{Binary: binary, Timeout: DefaultTimeout}
}

// CheckAvailable verifies the tmux binary is reachable, for the CLI's
// startup doctor check (spec-adjacent: ENOENT is fatal per §4.2).
func (a *Adapter) CheckAvailable(ctx context.Context) error {
	_, err := a.run(ctx, 1, "-V")
	return err
}

func (a *Adapter) run(ctx context.Context, attempts int, args ...string) (string, error) {
	var out string
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, a.Timeout)
		defer cancel()

		cmd := exec.CommandContext(callCtx, a.Binary, args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return backoff.Permanent(orkaerr.FatalStartup(
					"tmux binary not found on PATH", err))
			}
			var execErr *exec.Error
			if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
				return backoff.Permanent(orkaerr.FatalStartup(
					"tmux binary not found on PATH", err))
			}
			return orkaerr.Wrap(orkaerr.KindExternal,
				"tmux "+strings.Join(args, " ")+": "+strings.TrimSpace(stderr.String()), err)
		}
		out = stdout.String()
		return nil
	}

	if attempts <= 1 {
		err := op()
		return out, err
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts-1))
	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	return out, err
}

// readAttempts is used for idempotent, read-only calls (spec §4.2: retried
// on transient failure). writeAttempts is used for pane-mutating calls,
// which must not be retried blindly since a partial retry could double up
// keystrokes.
const (
	readAttempts  = 3
	writeAttempts = 1
)

// SessionExists reports whether a tmux session with the given name exists.
func (a *Adapter) SessionExists(ctx context.Context, name string) (bool, error) {
	_, err := a.run(ctx, readAttempts, "has-session", "-t", name)
	if err != nil {
		if orkaerr.Is(err, orkaerr.KindFatalStartup) {
			return false, err
		}
		// has-session exits non-zero when the session is simply absent;
		// that's a normal "false" answer, not an adapter failure.
		return false, nil
	}
	return true, nil
}

// CreateSession creates a detached session named name, rooted at cwd.
func (a *Adapter) CreateSession(ctx context.Context, name, cwd string) error {
	_, err := a.run(ctx, writeAttempts, "new-session", "-d", "-s", name, "-c", cwd)
	return err
}

// KillSession destroys a session and every pane in it.
func (a *Adapter) KillSession(ctx context.Context, name string) error {
	_, err := a.run(ctx, writeAttempts, "kill-session", "-t", name)
	return err
}

// SplitPane splits the session's active pane and returns the new pane ID.
func (a *Adapter) SplitPane(ctx context.Context, name string, vertical bool) (string, error) {
	flag := "-h"
	if vertical {
		flag = "-v"
	}
	out, err := a.run(ctx, writeAttempts, "split-window", flag, "-t", name, "-P", "-F", "#{pane_id}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// KillPane destroys a single pane.
func (a *Adapter) KillPane(ctx context.Context, paneID string) error {
	_, err := a.run(ctx, writeAttempts, "kill-pane", "-t", paneID)
	return err
}

// ListPanes returns every pane ID belonging to a session.
func (a *Adapter) ListPanes(ctx context.Context, name string) ([]string, error) {
	out, err := a.run(ctx, readAttempts, "list-panes", "-t", name, "-F", "#{pane_id}")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// GetMainPane returns the first (by pane index) pane in the session,
// conventionally titled MAIN by the orchestrator.
func (a *Adapter) GetMainPane(ctx context.Context, name string) (string, error) {
	out, err := a.run(ctx, readAttempts, "list-panes", "-t", name, "-F", "#{pane_index} #{pane_id}")
	if err != nil {
		return "", err
	}
	lines := splitNonEmptyLines(out)
	if len(lines) == 0 {
		return "", orkaerr.NotFound("pane", name)
	}
	var best, bestID string
	for _, line := range lines {
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		if best == "" || parts[0] < best {
			best, bestID = parts[0], parts[1]
		}
	}
	return bestID, nil
}

// SetPaneTitle sets a pane's displayed title.
func (a *Adapter) SetPaneTitle(ctx context.Context, paneID, title string) error {
	_, err := a.run(ctx, writeAttempts, "select-pane", "-t", paneID, "-T", title)
	return err
}

// SendKeys types text into a pane without pressing enter.
func (a *Adapter) SendKeys(ctx context.Context, paneID, text string) error {
	_, err := a.run(ctx, writeAttempts, "send-keys", "-t", paneID, "-l", "--", text)
	return err
}

// SendEnter presses enter in a pane.
func (a *Adapter) SendEnter(ctx context.Context, paneID string) error {
	_, err := a.run(ctx, writeAttempts, "send-keys", "-t", paneID, "Enter")
	return err
}

// CapturePane returns the last `lines` lines of a pane's visible buffer.
func (a *Adapter) CapturePane(ctx context.Context, paneID string, lines int) (string, error) {
	start := "-" + strconv.Itoa(lines)
	out, err := a.run(ctx, readAttempts, "capture-pane", "-p", "-t", paneID, "-S", start)
	if err != nil {
		return "", err
	}
	return out, nil
}

// SelectPane focuses a pane.
func (a *Adapter) SelectPane(ctx context.Context, paneID string) error {
	_, err := a.run(ctx, writeAttempts, "select-pane", "-t", paneID)
	return err
}

// GetActivePane returns the currently active pane in a session.
func (a *Adapter) GetActivePane(ctx context.Context, name string) (string, error) {
	out, err := a.run(ctx, readAttempts, "list-panes", "-t", name, "-f", "#{pane_active}", "-F", "#{pane_id}")
	if err != nil {
		return "", err
	}
	lines := splitNonEmptyLines(out)
	if len(lines) == 0 {
		return "", orkaerr.NotFound("active pane", name)
	}
	return lines[0], nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
