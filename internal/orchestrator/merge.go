package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/orka-sh/orka-core/internal/event"
	"github.com/orka-sh/orka-core/internal/logging"
	"github.com/orka-sh/orka-core/internal/orkaerr"
	"github.com/orka-sh/orka-core/pkg/types"
)

// exportsDir is the project-relative directory export artifacts are
// written to (spec §4.3 "Export phase").
const exportsDir = ".orka/exports"

func (o *Orchestrator) exportsAbsDir() string {
	return filepath.Join(o.projectPath, exportsDir)
}

const exportPromptTemplate = `Please write a six-section markdown summary of this branch's work to the
absolute path %s. The sections, in order, must be:
Executive Summary, Changes Made, Results, Recommendations, Open Questions,
Next Steps. Write the file now; do not ask for confirmation.`

const mergePromptTemplate = `The fork %q has finished its work and exported a summary to the relative
path %s. Please read that file and integrate its findings into this
conversation.`

// ExportFork injects the export prompt into a fork's pane and records the
// timestamped contextPath it was asked to write to. The file is not
// written synchronously — callers wait for it separately (spec §4.3).
func (o *Orchestrator) ExportFork(ctx context.Context, sessionID, forkID string) (string, error) {
	snapshot, err := o.store.Snapshot()
	if err != nil {
		return "", err
	}
	sess := snapshot.FindSession(sessionID)
	if sess == nil {
		return "", orkaerr.NotFound("session", sessionID)
	}
	fork := sess.FindFork(forkID)
	if fork == nil {
		return "", orkaerr.NotFound("fork", forkID)
	}
	if fork.PaneID == "" {
		return "", orkaerr.Precondition("fork has no pane: " + forkID)
	}

	if err := os.MkdirAll(o.exportsAbsDir(), 0o755); err != nil {
		return "", orkaerr.Wrap(orkaerr.KindExternal, "failed to create exports directory", err)
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	relPath := filepath.Join(exportsDir, fmt.Sprintf("fork-%s-%s.md", fork.Name, stamp))
	absPath := filepath.Join(o.projectPath, relPath)

	prompt := fmt.Sprintf(exportPromptTemplate, absPath)
	if err := o.typeAndRun(ctx, fork.PaneID, prompt); err != nil {
		return "", orkaerr.Wrap(orkaerr.KindExternal, "failed to inject export prompt", err)
	}

	fork.ContextPath = relPath
	if _, err := o.store.UpdateFork(sessionID, *fork); err != nil {
		return "", err
	}

	event.Publish(event.Event{Type: event.ForkExported, Data: event.ForkExportedData{
		SessionID: sessionID, ForkID: forkID, ContextPath: relPath,
	}})
	return relPath, nil
}

// MergeFork resolves the fork's export (falling back to a glob search if
// the recorded file moved), injects the merge prompt into the parent
// pane, kills the fork's pane, and marks the fork merged.
func (o *Orchestrator) MergeFork(ctx context.Context, sessionID, forkID string) (*types.Session, error) {
	snapshot, err := o.store.Snapshot()
	if err != nil {
		return nil, err
	}
	sess := snapshot.FindSession(sessionID)
	if sess == nil {
		return nil, orkaerr.NotFound("session", sessionID)
	}
	fork := sess.FindFork(forkID)
	if fork == nil {
		return nil, orkaerr.NotFound("fork", forkID)
	}
	if fork.ContextPath == "" {
		return nil, orkaerr.Precondition("fork has no export: " + forkID)
	}

	relPath, err := o.resolveExportFile(*fork)
	if err != nil {
		return nil, err
	}

	parentPane, _, ok := sess.PaneOf(fork.ParentID)
	if !ok {
		return nil, orkaerr.NotFound("branch pane", fork.ParentID)
	}

	prompt := fmt.Sprintf(mergePromptTemplate, fork.Name, relPath)
	if err := o.typeAndRun(ctx, parentPane, prompt); err != nil {
		return nil, orkaerr.Wrap(orkaerr.KindExternal, "failed to inject merge prompt", err)
	}

	if fork.PaneID != "" {
		if err := o.tmux.KillPane(ctx, fork.PaneID); err != nil {
			logging.Warn().Err(err).Str("forkID", forkID).Msg("kill-pane failed during merge")
		}
	}

	now := time.Now().UnixMilli()
	fork.Status = types.BranchMerged
	fork.ContextPath = relPath
	fork.PaneID = ""
	fork.MergedAt = &now

	saved, err := o.store.UpdateFork(sessionID, *fork)
	if err != nil {
		return nil, err
	}
	event.Publish(event.Event{Type: event.ForkMerged, Data: event.ForkMergedData{
		SessionID: sessionID, ForkID: forkID, ParentID: fork.ParentID,
	}})
	return saved, nil
}

// resolveExportFile returns the relative path to use for a merge: the
// recorded contextPath if it still exists, or else the most recent file
// matching fork-<name>-*.md in the exports directory (spec §4.3 step 2,
// §8 property 6 "export path drift").
func (o *Orchestrator) resolveExportFile(fork types.Fork) (string, error) {
	absPath := filepath.Join(o.projectPath, fork.ContextPath)
	if info, err := os.Stat(absPath); err == nil && info.Size() > 0 {
		return fork.ContextPath, nil
	}

	pattern := fmt.Sprintf("fork-%s-*.md", fork.Name)
	matches, err := doublestar.Glob(os.DirFS(o.exportsAbsDir()), pattern)
	if err != nil {
		return "", orkaerr.Wrap(orkaerr.KindExternal, "failed to search exports directory", err)
	}
	if len(matches) == 0 {
		return "", orkaerr.Precondition("no export found for fork: " + fork.Name)
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, _ := os.Stat(filepath.Join(o.exportsAbsDir(), matches[i]))
		fj, _ := os.Stat(filepath.Join(o.exportsAbsDir(), matches[j]))
		if fi == nil || fj == nil {
			return matches[i] > matches[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})

	return filepath.Join(exportsDir, matches[0]), nil
}

// WaitForExport blocks until the fork's export file exists and is
// non-empty, an fsnotify watch on the exports directory firing it early,
// a polling fallback catching it if the watch misses the create event,
// or ctx expiring first.
func (o *Orchestrator) WaitForExport(ctx context.Context, sessionID, forkID string) error {
	fork, err := o.store.GetFork(sessionID, forkID)
	if err != nil {
		return err
	}
	if fork.ContextPath == "" {
		return orkaerr.Precondition("fork has no export recorded: " + forkID)
	}
	absPath := filepath.Join(o.projectPath, fork.ContextPath)

	if fileReady(absPath) {
		return nil
	}

	if err := os.MkdirAll(o.exportsAbsDir(), 0o755); err != nil {
		return orkaerr.Wrap(orkaerr.KindExternal, "failed to create exports directory", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		_ = watcher.Add(o.exportsAbsDir())
	}

	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()

	for {
		if fileReady(absPath) {
			return nil
		}
		var watchEvents <-chan fsnotify.Event
		if watcher != nil {
			watchEvents = watcher.Events
		}
		select {
		case <-ctx.Done():
			return orkaerr.Cancellation("export wait canceled")
		case <-watchEvents:
			// loop around and re-check fileReady
		case <-poll.C:
			// loop around and re-check fileReady
		}
	}
}

func fileReady(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// AutoMergeFork runs the full export → wait → merge convenience (spec
// §4.3 "Auto-merge convenience").
func (o *Orchestrator) AutoMergeFork(ctx context.Context, sessionID, forkID string, wait time.Duration) (*types.Session, error) {
	if _, err := o.ExportFork(ctx, sessionID, forkID); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := o.WaitForExport(waitCtx, sessionID, forkID); err != nil && !orkaerr.Is(err, orkaerr.KindCancellation) {
		return nil, err
	}

	return o.MergeFork(ctx, sessionID, forkID)
}
