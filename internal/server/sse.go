// Server-sent-events fallback for clients that cannot use the
// /ws/state WebSocket push (SPEC_FULL.md §4.6 supplemented feature 1).
//
// Grounded on the teacher's internal/server/sse.go: a hand-rolled SSE
// writer rather than a library (r3labs/sse assumes a client-reconnect
// model this control surface doesn't need), using http.ResponseController
// to disable the per-connection write deadline for the stream's lifetime,
// a heartbeat ticker to keep intermediary proxies from closing the
// connection, and a select loop over the request context, the event
// channel, and the ticker.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/orka-sh/orka-core/internal/event"
)

// SSEHeartbeatInterval matches the teacher's constant name and value.
const SSEHeartbeatInterval = 30 * time.Second

type sseWriter struct {
	w  http.ResponseWriter
	f  http.Flusher
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: w, f: f, rc: http.NewResponseController(w)}, true
}

func (s *sseWriter) writeEvent(ev event.Event) {
	data, err := marshalEventData(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data)
	s.f.Flush()
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	s.f.Flush()
}

// allEvents streams every published event as an SSE feed (spec §6 is
// silent on a path for this; the teacher's own convention of
// /api/events — a catch-all distinct from the per-session stream — is
// reused here).
func (s *Server) allEvents(w http.ResponseWriter, r *http.Request) {
	sw, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable the server's write-timeout for the life of this stream; SSE
	// connections are long-lived by design.
	_ = sw.rc.SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	sw.f.Flush()

	ch := make(chan event.Event, 16)
	unsub := event.SubscribeAll(func(ev event.Event) {
		select {
		case ch <- ev:
		default:
			// slow consumer: drop rather than block the publisher
		}
	})
	defer unsub()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			sw.writeEvent(ev)
		case <-ticker.C:
			sw.writeHeartbeat()
		}
	}
}
