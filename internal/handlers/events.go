package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/dialogue-engine/internal/services/events"
)

const keepaliveInterval = 30 * time.Second

// handleEvents streams session events as Server-Sent Events. The current
// view is sent first so a client never starts from a stale render.
// GET /v1/sessions/{id}/events
func (h *SessionHandler) handleEvents(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	sess, stream, cancel, err := h.sessions.Subscribe(r.Context(), id)
	switch {
	case errors.Is(err, ErrEventsDisabled):
		writeError(w, h.logger, http.StatusNotFound, "Event stream not enabled")
		return
	case errors.Is(err, ErrSessionNotFound):
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return
	case err != nil:
		h.logger.Error("Failed to open event stream", "session_id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to open event stream")
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("Failed to clear write deadline", "error", err)
	}

	h.logger.Info("SSE connection established",
		"session_id", id.String(),
		"remote_addr", r.RemoteAddr)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	view := sess.Engine.View()
	if err := h.sendSSE(w, rc, events.Event{
		Type:      events.EventTypeViewUpdated,
		SessionID: id.String(),
		Revision:  sess.Store.Revision(),
		View:      &view,
	}); err != nil {
		return
	}

	keepaliveTicker := time.NewTicker(keepaliveInterval)
	defer keepaliveTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "session_id", id.String())
			return

		case event, ok := <-stream:
			if !ok {
				return
			}
			if err := h.sendSSE(w, rc, event); err != nil {
				return
			}
			if event.Type == events.EventTypeSessionEnded {
				return
			}

		case <-keepaliveTicker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				h.logger.Error("Failed to write keepalive", "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *SessionHandler) sendSSE(w http.ResponseWriter, rc *http.ResponseController, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal SSE data", "error", err)
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		h.logger.Error("Failed to write event", "error", err)
		return err
	}
	if err := rc.Flush(); err != nil {
		h.logger.Error("Failed to flush event", "error", err)
		return err
	}
	return nil
}
