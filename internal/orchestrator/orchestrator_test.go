package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/orka-sh/orka-core/internal/orkaerr"
	"github.com/orka-sh/orka-core/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeMux is an in-memory stand-in for tmux.Adapter: no real process is
// ever shelled out, so tests can run without a tmux binary on PATH.
type fakeMux struct {
	mu          sync.Mutex
	sessions    map[string]bool
	panes       map[string][]string // session -> pane IDs, index 0 is main
	nextPane    int
	titles      map[string]string
	sentKeys    []string
	killedPanes map[string]bool
}

func newFakeMux() *fakeMux {
	return &fakeMux{
		sessions:    make(map[string]bool),
		panes:       make(map[string][]string),
		titles:      make(map[string]string),
		killedPanes: make(map[string]bool),
	}
}

func (f *fakeMux) newPaneID() string {
	f.nextPane++
	return "%" + string(rune('0'+f.nextPane))
}

func (f *fakeMux) SessionExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[name], nil
}

func (f *fakeMux) CreateSession(ctx context.Context, name, cwd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[name] = true
	pane := f.newPaneID()
	f.panes[name] = []string{pane}
	return nil
}

func (f *fakeMux) KillSession(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, name)
	delete(f.panes, name)
	return nil
}

func (f *fakeMux) SplitPane(ctx context.Context, name string, vertical bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pane := f.newPaneID()
	f.panes[name] = append(f.panes[name], pane)
	return pane, nil
}

func (f *fakeMux) KillPane(ctx context.Context, paneID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killedPanes[paneID] = true
	for name, panes := range f.panes {
		for i, p := range panes {
			if p == paneID {
				f.panes[name] = append(panes[:i], panes[i+1:]...)
			}
		}
	}
	return nil
}

func (f *fakeMux) ListPanes(ctx context.Context, name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.panes[name]...), nil
}

func (f *fakeMux) GetMainPane(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	panes := f.panes[name]
	if len(panes) == 0 {
		return "", orkaerr.NotFound("pane", name)
	}
	return panes[0], nil
}

func (f *fakeMux) SetPaneTitle(ctx context.Context, paneID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles[paneID] = title
	return nil
}

func (f *fakeMux) SendKeys(ctx context.Context, paneID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentKeys = append(f.sentKeys, text)
	return nil
}

func (f *fakeMux) SendEnter(ctx context.Context, paneID string) error {
	return nil
}

type fakeBridge struct {
	nextPID int
}

func (b *fakeBridge) Start(ctx context.Context, paneID string) (int, int, error) {
	b.nextPID++
	return 9000 + b.nextPID, b.nextPID, nil
}

func (b *fakeBridge) Stop(ctx context.Context, pid int) error { return nil }

type fakeAssistant struct{}

func (fakeAssistant) Invocation(resumeFrom, sessionID string, forkSession bool) string {
	return "assistant --session " + sessionID
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeMux) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(dir)
	mux := newFakeMux()
	o := &Orchestrator{
		projectPath: dir,
		store:       st,
		tmux:        mux,
		bridge:      &fakeBridge{},
		assistant:   fakeAssistant{},
		panes:       newPaneLocks(),
	}
	return o, mux
}

func TestCreateSession(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	sess, err := o.CreateSession(ctx, CreateSessionOptions{Name: "demo"})
	require.NoError(t, err)
	require.Equal(t, "demo", sess.Name)
	require.NotEmpty(t, sess.Main.AssistantSessionID)
	require.NotEmpty(t, sess.Main.PaneID)
	require.NotNil(t, sess.Bridge)
}

func TestCreateForkAndCloseFork(t *testing.T) {
	o, mux := newTestOrchestrator(t)
	ctx := context.Background()

	sess, err := o.CreateSession(ctx, CreateSessionOptions{Name: "demo"})
	require.NoError(t, err)

	updated, err := o.CreateFork(ctx, sess.ID, CreateForkOptions{Name: "fork-a"})
	require.NoError(t, err)
	require.Len(t, updated.Forks, 1)
	forkID := updated.Forks[0].ID

	// a second active fork off the same parent is rejected (invariant 3).
	_, err = o.CreateFork(ctx, sess.ID, CreateForkOptions{Name: "fork-b"})
	require.Error(t, err)
	require.True(t, orkaerr.Is(err, orkaerr.KindPrecondition))

	require.NoError(t, o.CloseFork(ctx, sess.ID, forkID))
	require.True(t, mux.killedPanes[updated.Forks[0].PaneID])

	// after closing, a new fork off the same parent is allowed again.
	_, err = o.CreateFork(ctx, sess.ID, CreateForkOptions{Name: "fork-c"})
	require.NoError(t, err)
}

func TestCloseAndDeleteSession(t *testing.T) {
	o, mux := newTestOrchestrator(t)
	ctx := context.Background()

	sess, err := o.CreateSession(ctx, CreateSessionOptions{Name: "demo"})
	require.NoError(t, err)
	_, err = o.CreateFork(ctx, sess.ID, CreateForkOptions{Name: "fork-a"})
	require.NoError(t, err)

	closed, err := o.CloseSession(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, mux.sessions[closed.MultiplexerName])
	for _, f := range closed.Forks {
		require.NotEqual(t, "active", string(f.Status))
	}

	require.NoError(t, o.DeleteSession(ctx, sess.ID))
	_, err = o.store.GetFork(sess.ID, "anything")
	require.Error(t, err)
}

func TestResumeSessionRecreatesMissingMultiplexer(t *testing.T) {
	o, mux := newTestOrchestrator(t)
	ctx := context.Background()

	sess, err := o.CreateSession(ctx, CreateSessionOptions{Name: "demo"})
	require.NoError(t, err)
	_, err = o.CloseSession(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, mux.sessions[sess.MultiplexerName])

	resumed, err := o.ResumeSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, mux.sessions[resumed.MultiplexerName])
	require.Equal(t, "active", string(resumed.Status))
}

func TestExportAndMergeFork(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	sess, err := o.CreateSession(ctx, CreateSessionOptions{Name: "demo"})
	require.NoError(t, err)
	updated, err := o.CreateFork(ctx, sess.ID, CreateForkOptions{Name: "fork-a"})
	require.NoError(t, err)
	forkID := updated.Forks[0].ID

	relPath, err := o.ExportFork(ctx, sess.ID, forkID)
	require.NoError(t, err)
	require.Contains(t, relPath, "fork-fork-a-")

	absPath := filepath.Join(o.projectPath, relPath)
	require.NoError(t, os.WriteFile(absPath, []byte("# Executive Summary\n..."), 0o644))

	merged, err := o.MergeFork(ctx, sess.ID, forkID)
	require.NoError(t, err)
	mergedFork := merged.FindFork(forkID)
	require.NotNil(t, mergedFork)
	require.Equal(t, "merged", string(mergedFork.Status))
	require.NotNil(t, mergedFork.MergedAt)
}

func TestMergeWithoutExportIsRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	sess, err := o.CreateSession(ctx, CreateSessionOptions{Name: "demo"})
	require.NoError(t, err)
	updated, err := o.CreateFork(ctx, sess.ID, CreateForkOptions{Name: "fork-a"})
	require.NoError(t, err)
	forkID := updated.Forks[0].ID

	_, err = o.MergeFork(ctx, sess.ID, forkID)
	require.Error(t, err)
	require.True(t, orkaerr.Is(err, orkaerr.KindPrecondition))
}

func TestMergeFallsBackToGlobWhenExportPathDrifts(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	sess, err := o.CreateSession(ctx, CreateSessionOptions{Name: "demo"})
	require.NoError(t, err)
	updated, err := o.CreateFork(ctx, sess.ID, CreateForkOptions{Name: "fork-a"})
	require.NoError(t, err)
	forkID := updated.Forks[0].ID

	_, err = o.ExportFork(ctx, sess.ID, forkID)
	require.NoError(t, err)

	// simulate the recorded file having moved: the assistant wrote a
	// differently-stamped file instead of the one the orchestrator asked
	// for, so the recorded contextPath now points nowhere.
	fork, err := o.store.GetFork(sess.ID, forkID)
	require.NoError(t, err)
	fork.ContextPath = filepath.Join(exportsDir, "fork-fork-a-19990101T000000Z.md")
	_, err = o.store.UpdateFork(sess.ID, *fork)
	require.NoError(t, err)

	driftedAbs := filepath.Join(o.exportsAbsDir(), "fork-fork-a-20300101T000000Z.md")
	require.NoError(t, os.WriteFile(driftedAbs, []byte("# Executive Summary\n..."), 0o644))

	merged, err := o.MergeFork(ctx, sess.ID, forkID)
	require.NoError(t, err)
	mergedFork := merged.FindFork(forkID)
	require.Contains(t, mergedFork.ContextPath, "20300101T000000Z")
}

func TestWaitForExportTimesOutWhenFileNeverAppears(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	sess, err := o.CreateSession(ctx, CreateSessionOptions{Name: "demo"})
	require.NoError(t, err)
	updated, err := o.CreateFork(ctx, sess.ID, CreateForkOptions{Name: "fork-a"})
	require.NoError(t, err)
	forkID := updated.Forks[0].ID

	_, err = o.ExportFork(ctx, sess.ID, forkID)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = o.WaitForExport(waitCtx, sess.ID, forkID)
	require.Error(t, err)
	require.True(t, orkaerr.Is(err, orkaerr.KindCancellation))
}
