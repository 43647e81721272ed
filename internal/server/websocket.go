package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/devdebug/devdebug-ai/internal/investigation"
)

// defaultDevOrigins are accepted when no explicit allow list is set, so
// local frontends work out of the box.
var defaultDevOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

const writeDeadline = 30 * time.Second

// newUpgrader builds a websocket upgrader that enforces the configured
// origin allow list. "*" allows any origin; requests without an Origin
// header (CLI clients, same-host tools) are always accepted.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := allowedOrigins
	if len(allowed) == 0 {
		allowed = defaultDevOrigins
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, a := range allowed {
				if a == "*" || strings.EqualFold(a, origin) {
					return true
				}
			}
			return false
		},
	}
}

// handleInvestigationStream streams live session events over WebSocket.
// URL pattern: /ws/investigations/{id}. The connection closes when the
// session concludes.
func (s *Server) handleInvestigationStream(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/investigations/"), "/")
	if id == "" {
		http.Error(w, "investigation ID required", http.StatusBadRequest)
		return
	}

	rec, err := s.controller.Status(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "investigation not found", http.StatusNotFound)
		return
	}

	upgrader := newUpgrader(s.allowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe before re-checking state so a conclusion landing in
	// between is not lost.
	sub := s.controller.Subscribe(id)

	if report, ok := s.controller.Report(id); ok {
		// Already concluded; replay the terminal event and finish.
		writeEvent(conn, investigation.Event{
			SessionID: id,
			Type:      "conclusion",
			State:     investigation.StateConcluding,
			Report:    report,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	for ev := range sub.Ch {
		if err := writeEvent(conn, ev); err != nil {
			s.logger.Debug("websocket write failed",
				zap.String("session_id", id), zap.Error(err))
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev investigation.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
