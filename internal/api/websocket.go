package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var logUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Management API traffic is operator tooling on a LAN or loopback
	// interface, same trust boundary as the rest of /api/*.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLogStream upgrades to a WebSocket and pushes the child process's log
// history followed by new lines as they arrive, per spec.md §4.5: "first
// frame a history envelope with the last N log lines; subsequent frames are
// log envelopes".
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	h := s.agent.Supervisor()
	if h == nil {
		http.Error(w, "inference process is not running", http.StatusConflict)
		return
	}

	conn, err := logUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Warn("log stream upgrade failed")
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	writeJSON := func(env logEnvelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(env)
	}

	history := h.LogHistory()
	if len(history) > s.cfg.LogHistoryLimit {
		history = history[len(history)-s.cfg.LogHistoryLimit:]
	}
	if err := writeJSON(logEnvelope{Type: "history", Lines: history, At: time.Now()}); err != nil {
		return
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	stop := func() { closeOnce.Do(func() { close(done) }) }

	h.OnLog(func(line string) {
		select {
		case <-done:
			return
		default:
		}
		if writeJSON(logEnvelope{Type: "log", Line: line, At: time.Now()}) != nil {
			stop()
		}
	})

	// Drain and discard client frames so pong control frames keep flowing;
	// the connection is one-way from the server's perspective otherwise.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			stop()
			return
		}
	}
}
