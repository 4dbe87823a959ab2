package v0

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// heartbeatInterval is how often a comment line is sent to keep idle SSE
// connections from being reaped by intermediaries.
const heartbeatInterval = 30 * time.Second

// events handles GET /resources/{resource}/keys/{key}/events. It streams
// value updates and fetch failures as server-sent events until the client
// disconnects. The first "value" event carries the current cached state;
// "error" events report fetch failures without interrupting the value
// stream.
func (routes *Routes) events(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	key := chi.URLParam(r, "key")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	watch, err := routes.svc.WatchKey(r.Context(), resource, key)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer watch.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case value, ok := <-watch.Values():
			if !ok {
				return
			}
			var payload any
			if value == nil {
				payload = map[string]any{"key": key, "absent": true}
			} else {
				payload = value
			}
			if err := writeEvent(w, "value", payload); err != nil {
				slog.Debug("SSE client gone", "resource", resource, "key", key)
				return
			}
			flusher.Flush()

		case failure, ok := <-watch.Failures():
			if !ok {
				return
			}
			payload := map[string]string{"error": failure.Error()}
			if err := writeEvent(w, "error", payload); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// writeEvent writes one named server-sent event with a JSON payload.
func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
