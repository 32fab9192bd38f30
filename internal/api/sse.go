package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
	"github.com/hugo-lorenzo-mato/gitmcp/internal/events"
)

// knownEventTypes guards the types query parameter of the event stream.
var knownEventTypes = map[string]bool{
	events.TypeTaskQueued:           true,
	events.TypeTaskStarted:          true,
	events.TypeTaskProgress:         true,
	events.TypeTaskRetrying:         true,
	events.TypeTaskCompleted:        true,
	events.TypeTaskFailed:           true,
	events.TypeTaskCancelled:        true,
	events.TypeTaskTimedOut:         true,
	events.TypeWorkspaceCreated:     true,
	events.TypeWorkspaceQuarantined: true,
	events.TypeWorkspaceDeleted:     true,
}

// handleEvents streams bus events as Server-Sent Events. The optional
// types query parameter narrows the subscription to a comma-separated
// set of event types; without it the client receives everything.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	types, err := eventTypesFromQuery(r.URL.Query().Get("types"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	eventCh := s.bus.Subscribe(types...)
	defer s.bus.Unsubscribe(eventCh)

	s.log.Info("event stream client connected", "remote_addr", r.RemoteAddr)

	s.sendSSEEvent(w, flusher, "connected", map[string]string{
		"status": "connected",
	})

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("event stream client disconnected", "remote_addr", r.RemoteAddr)
			return

		case event, ok := <-eventCh:
			if !ok {
				s.log.Info("event bus closed, ending stream")
				return
			}
			s.sendEventToClient(w, flusher, event)
		}
	}
}

// sendEventToClient marshals a bus event and writes it to the stream.
// The payload passes through the sanitizer: failure events embed error
// strings that can quote remote URLs carrying userinfo.
func (s *Server) sendEventToClient(w http.ResponseWriter, flusher http.Flusher, event events.Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		s.log.Error("failed to marshal event", "type", event.EventType(), "error", err)
		return
	}
	s.writeSSE(w, flusher, event.EventType(), s.log.Sanitize(string(raw)))
}

// sendSSEEvent writes an arbitrary payload under the given event name.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.log.Error("failed to marshal SSE data", "error", err)
		return
	}
	s.writeSSE(w, flusher, eventType, string(raw))
}

// writeSSE emits one frame in the event: type\ndata: json\n\n wire format.
func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, eventType, data string) {
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func eventTypesFromQuery(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	types := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !knownEventTypes[p] {
			return nil, core.ErrValidation(core.CodeInvalidParamValue,
				fmt.Sprintf("unknown event type %q", p))
		}
		types = append(types, p)
	}
	return types, nil
}
