package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const eventStreamHeartbeat = 15 * time.Second

// streamEvents relays the progress feed as server-sent events. With document_id set,
// the stream opens with the current track state and carries only that document.
func (rt *Router) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported by response writer"})
		return
	}
	documentID := strings.TrimSpace(r.URL.Query().Get("document_id"))

	events, cancel := rt.analysis.Subscribe(defaultEventBuffer)
	defer cancel()
	if rt.metrics != nil {
		rt.metrics.EventStreamOpened()
		defer rt.metrics.EventStreamClosed()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if documentID != "" {
		if track, err := rt.analysis.Get(r.Context(), documentID); err == nil {
			if err := writeSSE(w, "snapshot", track); err != nil {
				return
			}
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(eventStreamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if documentID != "" && event.DocumentID != documentID {
				continue
			}
			if err := writeSSE(w, string(event.Kind), event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return nil
}
