// Package hook implements the Hook Receiver (spec §4.4, C3): a small,
// stateless HTTP listener dedicated to lifecycle hooks emitted by the
// assistant CLI, running on its own port so it can be toggled
// independently of the control surface.
//
// Grounded on the teacher's internal/server.Server (chi router, own
// http.Server, middleware stack) but stripped down to a single route —
// all the heavy lifting after normalization belongs to internal/supervisor.
package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/orka-sh/orka-core/internal/logging"
	"github.com/orka-sh/orka-core/pkg/types"
)

// Lookup resolves an agentId to the project and session it belongs to.
// Implemented by the orchestrator layer; the receiver never reaches into
// the state store directly (spec §4.4 step 3, "look up the agent").
type Lookup interface {
	Resolve(agentID string) (projectPath, sessionID string, ok bool)
}

// Sink accepts a normalized hook event for asynchronous processing by a
// per-agent supervisor (spec §4.4 step 4, "push into the inbound queue").
type Sink interface {
	Submit(ctx context.Context, ev types.HookEvent)
}

// Config configures the receiver's own HTTP server.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig uses 10s read/write timeouts (shorter than the control
// surface's) and runs on a distinct port (spec §4.4: "on its own port, distinct from the control surface").
func DefaultConfig(port int) Config {
	return Config{Port: port, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second}
}

// Receiver is the hook HTTP listener.
type Receiver struct {
	cfg     Config
	router  *chi.Mux
	httpSrv *http.Server
	lookup  Lookup
	sink    Sink
}

// New creates a Receiver. lookup and sink must be non-nil.
func New(cfg Config, lookup Lookup, sink Sink) *Receiver {
	r := &Receiver{cfg: cfg, router: chi.NewRouter(), lookup: lookup, sink: sink}
	r.router.Use(middleware.Recoverer)
	r.router.Use(middleware.Logger)
	r.router.Post("/hooks/{agentId}", r.handleHook)
	return r
}

// Router exposes the mux, mainly for tests.
func (r *Receiver) Router() *chi.Mux { return r.router }

// Start begins listening. It blocks until the server stops or errors;
// callers typically run it in a goroutine.
func (r *Receiver) Start() error {
	r.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", r.cfg.Port),
		Handler:      r.router,
		ReadTimeout:  r.cfg.ReadTimeout,
		WriteTimeout: r.cfg.WriteTimeout,
	}
	logging.Info().Int("port", r.cfg.Port).Msg("hook receiver listening")
	err := r.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the listener.
func (r *Receiver) Shutdown(ctx context.Context) error {
	if r.httpSrv == nil {
		return nil
	}
	return r.httpSrv.Shutdown(ctx)
}

// receipt is returned to the hook caller so it can correlate logs if needed.
type receipt struct {
	Accepted  bool   `json:"accepted"`
	ReceiptID string `json:"receiptId"`
}

func (r *Receiver) handleHook(w http.ResponseWriter, req *http.Request) {
	agentID := chi.URLParam(req, "agentId")

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	ev := normalize(body)

	projectPath, sessionID, ok := r.lookup.Resolve(agentID)
	if !ok {
		http.Error(w, "unknown agent: "+agentID, http.StatusNotFound)
		return
	}

	ev.AgentID = agentID
	ev.ProjectPath = projectPath
	ev.OrkaSessionID = sessionID

	r.sink.Submit(req.Context(), ev)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(receipt{Accepted: true, ReceiptID: ulid.Make().String()})
}

// normalize implements spec §4.4 steps 1-2: JSON-or-raw-text body parsing
// with a Stop-event fallback, and timestamp fill-in.
func normalize(body []byte) types.HookEvent {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return types.HookEvent{
			Type:      types.HookStop,
			RawStdin:  string(body),
			Timestamp: time.Now().UTC(),
		}
	}

	ev := types.HookEvent{Raw: raw}
	if t, ok := raw["event_type"].(string); ok && t != "" {
		ev.Type = types.HookEventType(t)
	} else {
		ev.Type = types.HookUnknown
	}
	if cwd, ok := raw["cwd"].(string); ok {
		ev.WorkingDir = cwd
	}
	if sid, ok := raw["session_id"].(string); ok {
		ev.SessionID = sid
	}
	if tool, ok := raw["tool"].(string); ok {
		ev.Tool = tool
	}
	if ti, ok := raw["tool_input"].(map[string]any); ok {
		ev.ToolInput = ti
	}
	if stdin, ok := raw["raw_stdin"].(string); ok {
		ev.RawStdin = stdin
	}
	if ts, ok := raw["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			ev.Timestamp = parsed
		}
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}
