package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/dialogue-engine/internal/services"
	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
)

type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components"`
	Graphs     int               `json:"graphs"`
	Nodes      int               `json:"nodes"`
	Sessions   int               `json:"sessions"`
}

type HealthHandler struct {
	library    *dialogue.Library
	sessions   *Sessions
	components map[string]services.HealthChecker
	logger     *slog.Logger
}

// NewHealthHandler reports on the content library, live sessions and every
// named component.
func NewHealthHandler(library *dialogue.Library, sessions *Sessions, components map[string]services.HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		library:    library,
		sessions:   sessions,
		components: components,
		logger:     logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.components))
	overallStatus := "healthy"
	for name, c := range h.components {
		if err := c.Ping(ctx); err != nil {
			h.logger.Warn("Component health check failed", "component", name, "error", err)
			components[name] = "unhealthy"
			overallStatus = "degraded"
			continue
		}
		components[name] = "healthy"
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "dialogue-engine",
		Components: components,
		Graphs:     len(h.library.Graphs()),
		Nodes:      h.library.NodeCount(),
		Sessions:   h.sessions.Len(),
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, h.logger, statusCode, response)
}
