package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleEventStream serves the SSE feed for a session. The stream ends on an
// error event or on a complete event from the system agent; completes from
// individual phases keep the connection open for the next phase.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sessionID := r.PathValue("session_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	queue := s.bus.EnsureQueue(sessionID)
	ctx := r.Context()

	for {
		if ctx.Err() != nil {
			return
		}

		ev, ok := queue.Next(s.heartbeat)
		if !ok {
			// Producer released the queue and nothing is left to drain.
			if queue.Closed() {
				return
			}
			fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n")
			flusher.Flush()
			continue
		}

		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("Failed to marshal event", "session_id", sessionID, "error", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
		flusher.Flush()

		if ev.Terminal() {
			return
		}
	}
}
