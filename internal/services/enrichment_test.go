package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/dialogue-engine/pkg/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnrichmentService_Enrich(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/enrich", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"text": "Offer him your scarf.", "confidence": 1.4}`))
	}))
	defer server.Close()

	svc := NewEnrichmentService(server.URL+"/", time.Second, 0, testLogger())
	resp, err := svc.Enrich(context.Background(), engine.EnrichmentRequest{
		SceneText:     "Snow falls on the platform.",
		TargetPattern: "helping",
		Persona:       "new traveler",
	})
	require.NoError(t, err)
	assert.Equal(t, "Offer him your scarf.", resp.Text)
	assert.Equal(t, 1.0, resp.Confidence)

	assert.Equal(t, map[string]any{
		"scene_text":       "Snow falls on the platform.",
		"target_pattern":   "helping",
		"persona":          "new traveler",
		"existing_choices": []any{},
	}, got)
}

func TestEnrichmentService_Errors(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		errContains string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			},
			errContains: "status 503: model overloaded",
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
			errContains: "failed to parse response",
		},
		{
			name: "slow server",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
			},
			errContains: "failed to make request",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			svc := NewEnrichmentService(server.URL, 50*time.Millisecond, 0, testLogger())
			_, err := svc.Enrich(context.Background(), engine.EnrichmentRequest{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestEnrichmentService_RateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"text": "x", "confidence": 0.5}`))
	}))
	defer server.Close()

	// One request per minute: the second call must give up when its context ends.
	svc := NewEnrichmentService(server.URL, time.Second, 1.0/60, testLogger())
	_, err := svc.Enrich(context.Background(), engine.EnrichmentRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.Enrich(ctx, engine.EnrichmentRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnrichmentService_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	require.NoError(t, NewEnrichmentService(server.URL, time.Second, 0, testLogger()).Ping(context.Background()))
	assert.Error(t, NewEnrichmentService(server.URL+"/nested", time.Second, 0, testLogger()).Ping(context.Background()))
}
