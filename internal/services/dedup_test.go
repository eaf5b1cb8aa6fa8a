package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupService_Deduplicate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/dedup", r.URL.Path)
		var req dedupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.9, req.Threshold)
		_ = json.NewEncoder(w).Encode(dedupResponse{Texts: req.Texts[:2]})
	}))
	defer server.Close()

	svc := NewDedupService(server.URL, time.Second, 0, testLogger())
	got, err := svc.Deduplicate(context.Background(), []string{"Wait", "Leave", "Wait quietly"}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, []string{"Wait", "Leave"}, got)
}

func TestDedupService_MissingTexts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := NewDedupService(server.URL, time.Second, 0, testLogger()).Deduplicate(context.Background(), []string{"a"}, 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no texts")
}

func TestLocalDeduplicator(t *testing.T) {
	got, err := LocalDeduplicator{}.Deduplicate(context.Background(), []string{"Ask about trains", "ask about TRAINS", "Leave"}, 0.85)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ask about trains", "Leave"}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = LocalDeduplicator{}.Deduplicate(ctx, []string{"a"}, 0.5)
	assert.ErrorIs(t, err, context.Canceled)
}
