package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/dialogue-engine/internal/services"
	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

func TestHealthHandler_ServeHTTP(t *testing.T) {
	lib := sampleLibrary(t)

	tests := []struct {
		name            string
		setupBackend    func() *storage.MemoryBackend
		expectedStatus  int
		expectedHealth  string
		expectedStorage string
	}{
		{
			name:            "all healthy",
			setupBackend:    storage.NewMemoryBackend,
			expectedStatus:  http.StatusOK,
			expectedHealth:  "healthy",
			expectedStorage: "healthy",
		},
		{
			name: "unhealthy storage",
			setupBackend: func() *storage.MemoryBackend {
				backend := storage.NewMemoryBackend()
				backend.SetPingError(errors.New("connection failed"))
				return backend
			},
			expectedStatus:  http.StatusServiceUnavailable,
			expectedHealth:  "degraded",
			expectedStorage: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := tt.setupBackend()
			sessions := newTestSessions(t, lib, backend)
			handler := NewHealthHandler(lib, sessions, map[string]services.HealthChecker{"storage": backend}, testLogger())

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var response HealthResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
			assert.Equal(t, tt.expectedHealth, response.Status)
			assert.Equal(t, "dialogue-engine", response.Service)
			assert.Equal(t, tt.expectedStorage, response.Components["storage"])
			assert.Equal(t, 3, response.Graphs)
			assert.Equal(t, lib.NodeCount(), response.Nodes)
			assert.Zero(t, response.Sessions)
		})
	}
}
