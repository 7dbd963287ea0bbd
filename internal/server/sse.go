package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kaura24/regaudit/internal/bus"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// handleRunStream streams run progress as Server-Sent Events. Persisted
// audit-trail events are replayed first so a late subscriber sees the full
// history, then live bus events follow until the run reaches a terminal
// state or the client disconnects.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseRunID(w, r)
	if !ok {
		return
	}
	run, err := s.repo.GetRun(r.Context(), id)
	if err != nil {
		s.errorResponse(w, httpStatus(err), err.Error())
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Subscribe before replay so no live event falls into the gap.
	events, cancel := s.bus.Subscribe(id)
	defer cancel()

	history, err := s.repo.GetEvents(r.Context(), id)
	if err != nil {
		sse.WriteError(err.Error())
		return
	}
	for _, ev := range history {
		if err := sse.WriteEvent(string(bus.EventStageEvent), ev); err != nil {
			return
		}
	}

	// A run that already finished has nothing more to stream.
	if run.Status.IsTerminal() {
		sse.WriteEvent(string(bus.EventCompleted), map[string]string{ //nolint:errcheck
			"status": string(run.Status),
		})
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := sse.WriteEvent(string(ev.Type), ev.Payload); err != nil {
				return
			}
			if ev.Type == bus.EventCompleted || ev.Type == bus.EventError {
				return
			}
		}
	}
}
