package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
	"github.com/jwebster45206/dialogue-engine/pkg/engine"
	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

// SessionResponse is returned by every session endpoint.
type SessionResponse struct {
	ID       string          `json:"id"`
	Revision uint64          `json:"revision"`
	View     engine.View     `json:"view"`
	State    state.WireState `json:"state"`
}

type CreateSessionRequest struct {
	GraphID string `json:"graph_id,omitempty"` // Optional: defaults to the first mounted graph
}

type ChoiceRequest struct {
	ChoiceID string `json:"choice_id"`
}

type SimulationRequest struct {
	Success bool `json:"success"`
}

type GotoRequest struct {
	NodeID string `json:"node_id"`
}

type SessionHandler struct {
	sessions *Sessions
	logger   *slog.Logger
}

func NewSessionHandler(sessions *Sessions, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// ServeHTTP handles HTTP requests for play sessions
// Routes:
// POST   /v1/sessions                 - Start a new session
// GET    /v1/sessions/{id}            - Current view and state
// DELETE /v1/sessions/{id}            - End a session and delete its save
// POST   /v1/sessions/{id}/choices    - Select a choice
// POST   /v1/sessions/{id}/interrupt  - Fire the armed interrupt now
// POST   /v1/sessions/{id}/simulation - Report a simulation result
// POST   /v1/sessions/{id}/goto       - Route to an entry point
// GET    /v1/sessions/{id}/events     - Stream view changes (SSE)
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")
	if path == "" {
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
			return
		}
		h.handleCreate(w, r)
		return
	}

	idStr, action, _ := strings.Cut(path, "/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid session ID", "id", idStr, "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	if action == "" {
		switch r.Method {
		case http.MethodGet:
			h.handleRead(w, r, id)
		case http.MethodDelete:
			h.handleDelete(w, r, id)
		default:
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET, DELETE")
		}
		return
	}

	if action == "events" {
		if r.Method != http.MethodGet {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET")
			return
		}
		h.handleEvents(w, r, id)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST")
		return
	}
	switch action {
	case "choices", "interrupt", "simulation", "goto":
		h.handleAction(w, r, id, action)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Unknown session action")
	}
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := h.sessions.Create(r.Context(), req.GraphID)
	if err != nil {
		h.writeEngineError(w, nil, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, sessionResponse(sess))
}

func (h *SessionHandler) handleRead(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	sess, ok := h.lookup(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sessionResponse(sess))
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("Failed to delete session", "session_id", id, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleAction(w http.ResponseWriter, r *http.Request, id uuid.UUID, action string) {
	sess, ok := h.lookup(w, r, id)
	if !ok {
		return
	}

	ctx := r.Context()
	var err error
	switch action {
	case "choices":
		var req ChoiceRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, err.Error())
			return
		}
		if req.ChoiceID == "" {
			writeError(w, h.logger, http.StatusBadRequest, "choice_id is required")
			return
		}
		err = sess.Engine.SelectChoice(ctx, req.ChoiceID)

	case "interrupt":
		err = sess.Engine.OnInterruptElapsed(ctx)

	case "simulation":
		var req SimulationRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, err.Error())
			return
		}
		err = sess.Engine.CompleteSimulation(ctx, req.Success)

	case "goto":
		var req GotoRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, err.Error())
			return
		}
		if req.NodeID == "" {
			writeError(w, h.logger, http.StatusBadRequest, "node_id is required")
			return
		}
		err = sess.Engine.Goto(ctx, req.NodeID)
	}

	if err != nil {
		h.writeEngineError(w, sess, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sessionResponse(sess))
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request, id uuid.UUID) (*Session, bool) {
	sess, err := h.sessions.Get(r.Context(), id)
	if err == nil {
		return sess, true
	}
	if errors.Is(err, ErrSessionNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return nil, false
	}
	h.logger.Error("Failed to load session", "session_id", id, "error", err)
	writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session")
	return nil, false
}

// writeEngineError maps engine errors to statuses. A refused transition
// carries the current view so the client can keep rendering.
func (h *SessionHandler) writeEngineError(w http.ResponseWriter, sess *Session, err error) {
	resp := ErrorResponse{Error: err.Error()}
	if sess != nil {
		v := sess.Engine.View()
		resp.View = &v
	}

	var integrityErr *engine.IntegrityError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &integrityErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrChoiceUnavailable),
		errors.Is(err, engine.ErrNoActiveInterrupt),
		errors.Is(err, engine.ErrNoSimulation),
		errors.Is(err, engine.ErrNotEntryPoint):
		status = http.StatusConflict
	case errors.Is(err, dialogue.ErrGraphNotFound),
		errors.Is(err, engine.ErrNodeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrClosed):
		status = http.StatusGone
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Session operation failed", "error", err)
	} else {
		h.logger.Debug("Session operation refused", "error", err, "status", status)
	}
	writeJSON(w, h.logger, status, resp)
}

func sessionResponse(sess *Session) SessionResponse {
	return SessionResponse{
		ID:       sess.ID.String(),
		Revision: sess.Store.Revision(),
		View:     sess.Engine.View(),
		State:    state.Serialize(sess.Engine.State()),
	}
}
