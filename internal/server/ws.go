// WebSocket transport for the control surface (SPEC_FULL.md §4.6 "DOMAIN
// ADDITION — WebSocket transport"): the terminal relay proxy and the
// state-update push. github.com/gorilla/websocket is pulled in for this —
// the teacher's own server only ever streams via SSE.
package server

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/orka-sh/orka-core/internal/logging"
	"github.com/orka-sh/orka-core/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsTerminal forwards frames verbatim between the client and the
// session's external web-terminal bridge process (spec §1, §4.6: "the
// control surface does not terminate the terminal — it forwards frames
// to/from the external web-terminal bridge process"). The bridge itself
// is a black box; this handler only proxies bytes.
func (s *Server) wsTerminal(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	snapshot, err := s.reg.Store(projectPath).Snapshot()
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	sess := snapshot.FindSession(sessionID)
	if sess == nil || sess.Bridge == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session has no active bridge")
		return
	}

	upstream, err := net.DialTimeout("tcp", hostPort(sess.Bridge.Port), 2*time.Second)
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeProviderError, "bridge unreachable")
		return
	}
	defer upstream.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("sessionID", sessionID).Msg("terminal websocket upgrade failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := upstream.Read(buf)
			if n > 0 {
				if err := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if _, err := upstream.Write(data); err != nil {
			break
		}
	}
	<-done
}

func hostPort(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

// wsState pushes a {sessionId, delta} frame for every change the
// project's store broadcasts.
func (s *Server) wsState(w http.ResponseWriter, r *http.Request) {
	projectPath, err := resolveProjectQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid project encoding")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("state websocket upgrade failed")
		return
	}
	defer conn.Close()

	st := s.reg.Store(projectPath)
	changes := make(chan store.Change, 16)
	unsub := st.Subscribe(func(c store.Change) {
		select {
		case changes <- c:
		default:
		}
	})
	defer unsub()

	// Detect client disconnects without blocking the write loop below.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case c := <-changes:
			frame := map[string]any{"sessionId": c.SessionID, "delta": c.Delta}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}
