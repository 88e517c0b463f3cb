package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is same-process with its frontends; origin policy is left to
	// the deployment proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsCommand is what the client sends.
type wsCommand struct {
	Command string `json:"command"`
}

// wsControl is a non-event control frame pushed to the client.
type wsControl struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// wsSink serializes writes to one connection. The bus and the control-frame
// writer share it.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// handleWebSocket upgrades the connection and attaches it to the session's
// event fan-out. The client drives with {command: start|ping}; the server
// answers with connected/pong/heartbeat control frames and pushes pipeline
// events as they are emitted.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()
	defer s.bus.DetachSocket(sessionID)

	sink := &wsSink{conn: conn}
	if err := sink.WriteJSON(wsControl{Type: "connected", SessionID: sessionID}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)

	// Idle heartbeats keep intermediaries from dropping the connection.
	go func() {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := sink.WriteJSON(wsControl{Type: "heartbeat"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Command {
		case "start":
			// Buffer events from here on even if no SSE consumer exists.
			s.bus.EnsureQueue(sessionID)
			s.bus.AttachSocket(sessionID, sink)
		case "ping":
			if err := sink.WriteJSON(wsControl{Type: "pong"}); err != nil {
				return
			}
		}
	}
}
