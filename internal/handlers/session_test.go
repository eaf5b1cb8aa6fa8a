package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/dialogue-engine/internal/services"
	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
	"github.com/jwebster45206/dialogue-engine/pkg/engine"
	"github.com/jwebster45206/dialogue-engine/pkg/persistence"
	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

// idleScheduler never fires; tests drive interrupts through the API.
type idleScheduler struct{}

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

func (idleScheduler) AfterFunc(time.Duration, func()) engine.Timer { return idleTimer{} }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleLibrary(t *testing.T) *dialogue.Library {
	t.Helper()
	lib, err := dialogue.LoadLibrary("../../data/content")
	require.NoError(t, err)
	return lib
}

func newTestSessions(t *testing.T, lib *dialogue.Library, backend storage.Backend) *Sessions {
	t.Helper()
	sessions := NewSessions(SessionConfig{
		Library: lib,
		Backend: backend,
		Store:   persistence.Options{KeyPrefix: "test:v1:"},
		Engine:  engine.Options{Scheduler: idleScheduler{}},
	}, testLogger())
	t.Cleanup(func() { _ = sessions.Close(context.Background()) })
	return sessions
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeSession(t *testing.T, rr *httptest.ResponseRecorder) SessionResponse {
	t.Helper()
	var resp SessionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), rr.Body.String())
	return resp
}

func choiceIDs(v engine.View) []string {
	ids := make([]string, 0, len(v.Choices))
	for _, c := range v.Choices {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestSessionHandler_Flow(t *testing.T) {
	backend := storage.NewMemoryBackend()
	h := NewSessionHandler(newTestSessions(t, sampleLibrary(t), backend), testLogger())

	rr := do(t, h, http.MethodPost, "/v1/sessions", `{"graph_id": "samuel_main"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	created := decodeSession(t, rr)
	_, err := uuid.Parse(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "samuel_intro", created.View.NodeID)
	assert.Equal(t, []string{"ask_trains", "offer_help", "wander", "wait"}, choiceIDs(created.View))
	assert.Contains(t, created.View.Text, "Another one off the night train.")
	assert.Contains(t, created.State.GlobalFlags, "arrived")
	require.NotNil(t, created.View.Interrupt)
	assert.Equal(t, "samuel_impatient", created.View.Interrupt.Target)

	base := "/v1/sessions/" + created.ID

	rr = do(t, h, http.MethodPost, base+"/choices", `{"choice_id": "offer_help"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	luggage := decodeSession(t, rr)
	assert.Equal(t, "samuel_luggage", luggage.View.NodeID)
	assert.Equal(t, []string{"1"}, choiceIDs(luggage.View), "trust 2 hides the locked door")
	assert.Equal(t, 5, luggage.State.Orbs.Balance)
	assert.Contains(t, luggage.View.Text, "You now hold 5.")
	assert.Greater(t, luggage.Revision, created.Revision)

	rr = do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "samuel_luggage", decodeSession(t, rr).View.NodeID)

	rr = do(t, h, http.MethodPost, base+"/goto", `{"node_id": "samuel_return"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, decodeSession(t, rr).View.Text, "My back thanks you.")

	rr = do(t, h, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSessionHandler_RefusedActions(t *testing.T) {
	h := NewSessionHandler(newTestSessions(t, sampleLibrary(t), storage.NewMemoryBackend()), testLogger())

	created := decodeSession(t, do(t, h, http.MethodPost, "/v1/sessions", `{"graph_id": "samuel_main"}`))
	base := "/v1/sessions/" + created.ID

	tests := []struct {
		name           string
		action         string
		body           string
		expectedStatus int
		errContains    string
	}{
		{"hidden choice", "/choices", `{"choice_id": "nope"}`, http.StatusConflict, "choice unavailable"},
		{"missing choice id", "/choices", `{}`, http.StatusBadRequest, "choice_id is required"},
		{"unknown field", "/choices", `{"choice": "wait"}`, http.StatusBadRequest, "unknown field"},
		{"no simulation", "/simulation", `{"success": true}`, http.StatusConflict, "has no simulation"},
		{"not an entry point", "/goto", `{"node_id": "samuel_trains"}`, http.StatusConflict, "not an entry point"},
		{"unknown goto node", "/goto", `{"node_id": "nowhere"}`, http.StatusNotFound, "node not found"},
		{"unknown action", "/dance", ``, http.StatusNotFound, "Unknown session action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, base+tt.action, tt.body)
			assert.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Contains(t, resp.Error, tt.errContains)
		})
	}
}

func TestSessionHandler_InterruptAndWait(t *testing.T) {
	h := NewSessionHandler(newTestSessions(t, sampleLibrary(t), storage.NewMemoryBackend()), testLogger())
	created := decodeSession(t, do(t, h, http.MethodPost, "/v1/sessions", `{"graph_id": "samuel_main"}`))
	base := "/v1/sessions/" + created.ID

	// Waiting stays on the node and cancels the interrupt.
	rr := do(t, h, http.MethodPost, base+"/choices", `{"choice_id": "wait"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	waited := decodeSession(t, rr)
	assert.Equal(t, "samuel_intro", waited.View.NodeID)
	assert.Nil(t, waited.View.Interrupt)
	assert.Equal(t, 1, waited.State.Patterns.Patience)

	rr = do(t, h, http.MethodPost, base+"/interrupt", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	// A fresh session still has its interrupt armed.
	other := decodeSession(t, do(t, h, http.MethodPost, "/v1/sessions", `{"graph_id": "samuel_main"}`))
	rr = do(t, h, http.MethodPost, "/v1/sessions/"+other.ID+"/interrupt", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	fired := decodeSession(t, rr)
	assert.Equal(t, "samuel_impatient", fired.View.NodeID)
	require.Len(t, fired.State.Characters, 1)
	assert.Equal(t, -1, fired.State.Characters[0].Trust)
}

func TestSessionHandler_BrokenLink(t *testing.T) {
	g, err := dialogue.Decode([]byte(`{
		"id": "broken",
		"character_id": "ghost",
		"start_node": "hall",
		"nodes": [
			{"id": "hall", "content": "A draughty hall.", "choices": [
				{"id": "door", "text": "Open the door.", "target": "missing_room", "consequence": {"orb_delta": 3}},
				{"id": "stay", "text": "Stay."}
			]}
		]
	}`), ".json")
	require.NoError(t, err)
	lib := dialogue.NewLibrary()
	require.NoError(t, lib.Mount(g))

	h := NewSessionHandler(newTestSessions(t, lib, storage.NewMemoryBackend()), testLogger())
	created := decodeSession(t, do(t, h, http.MethodPost, "/v1/sessions", ""))

	rr := do(t, h, http.MethodPost, "/v1/sessions/"+created.ID+"/choices", `{"choice_id": "door"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotNil(t, resp.View)
	assert.Equal(t, "hall", resp.View.NodeID)
	require.NotNil(t, resp.View.Error)
	assert.Equal(t, "missing_room", resp.View.Error.Target)

	rr = do(t, h, http.MethodGet, "/v1/sessions/"+created.ID, "")
	assert.Equal(t, 0, decodeSession(t, rr).State.Orbs.Balance, "consequence is not applied")
}

func TestSessionHandler_ResumeFromBackend(t *testing.T) {
	ctx := context.Background()
	lib := sampleLibrary(t)
	backend := storage.NewMemoryBackend()

	first := newTestSessions(t, lib, backend)
	sess, err := first.Create(ctx, "samuel_main")
	require.NoError(t, err)
	require.NoError(t, sess.Engine.SelectChoice(ctx, "ask_trains"))
	require.NoError(t, first.Close(ctx))
	assert.Contains(t, backend.Keys(), "test:v1:"+sess.ID.String()+":game_state")

	h := NewSessionHandler(newTestSessions(t, lib, backend), testLogger())
	rr := do(t, h, http.MethodGet, "/v1/sessions/"+sess.ID.String(), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resumed := decodeSession(t, rr)
	assert.Equal(t, "samuel_trains", resumed.View.NodeID)
	require.Len(t, resumed.State.Thoughts, 1)
	assert.Equal(t, 50, resumed.State.Thoughts[0].Progress, "resuming does not re-apply entry effects")

	rr = do(t, h, http.MethodDelete, "/v1/sessions/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSessionHandler_BadRequests(t *testing.T) {
	h := NewSessionHandler(newTestSessions(t, sampleLibrary(t), storage.NewMemoryBackend()), testLogger())

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
	}{
		{"list not supported", http.MethodGet, "/v1/sessions", "", http.StatusMethodNotAllowed},
		{"invalid id", http.MethodGet, "/v1/sessions/not-a-uuid", "", http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/v1/sessions/" + uuid.NewString(), "", http.StatusNotFound},
		{"patch not supported", http.MethodPatch, "/v1/sessions/" + uuid.NewString(), "", http.StatusMethodNotAllowed},
		{"get on action", http.MethodGet, "/v1/sessions/" + uuid.NewString() + "/choices", "", http.StatusMethodNotAllowed},
		{"unknown graph", http.MethodPost, "/v1/sessions", `{"graph_id": "nope"}`, http.StatusNotFound},
		{"malformed body", http.MethodPost, "/v1/sessions", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
		})
	}
}

func TestSessionHandler_AugmentedChoice(t *testing.T) {
	tests := []struct {
		name            string
		response        engine.EnrichmentResponse
		err             error
		expectedChoices []string
	}{
		{
			name:            "confident suggestion is offered",
			response:        engine.EnrichmentResponse{Text: "Wait for the grille to speak again.", Confidence: 0.9},
			expectedChoices: []string{"0", engine.AugmentedChoiceID},
		},
		{
			name:            "low confidence is dropped",
			response:        engine.EnrichmentResponse{Text: "Knock on the grille.", Confidence: 0.2},
			expectedChoices: []string{"0"},
		},
		{
			name:            "service failure keeps authored choices",
			err:             errors.New("connection refused"),
			expectedChoices: []string{"0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enricher := services.NewMockEnricher()
			enricher.EnrichFunc = func(ctx context.Context, req engine.EnrichmentRequest) (engine.EnrichmentResponse, error) {
				return tt.response, tt.err
			}
			sessions := NewSessions(SessionConfig{
				Library: sampleLibrary(t),
				Backend: storage.NewMemoryBackend(),
				Engine: engine.Options{
					Scheduler:    idleScheduler{},
					Enricher:     enricher,
					Deduplicator: services.LocalDeduplicator{},
				},
			}, testLogger())
			t.Cleanup(func() { _ = sessions.Close(context.Background()) })
			h := NewSessionHandler(sessions, testLogger())

			rr := do(t, h, http.MethodPost, "/v1/sessions", `{"graph_id": "oracle_vault"}`)
			require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
			created := decodeSession(t, rr)
			assert.Equal(t, tt.expectedChoices, choiceIDs(created.View))

			calls := enricher.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "patience", calls[0].TargetPattern)
			assert.Equal(t, []string{"Ask what the letters mean."}, calls[0].ExistingChoices)

			if len(tt.expectedChoices) == 1 {
				return
			}
			assert.True(t, created.View.Choices[1].Augmented)

			rr = do(t, h, http.MethodPost, "/v1/sessions/"+created.ID+"/choices", `{"choice_id": "augmented"}`)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			moved := decodeSession(t, rr)
			assert.Equal(t, "oracle_answer", moved.View.NodeID)
			assert.Equal(t, 1, moved.State.Patterns.Patience)
		})
	}
}

// gatedBackend holds the first lookup of key until release is closed.
type gatedBackend struct {
	storage.Backend
	key     string
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *gatedBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	if key == b.key {
		b.once.Do(func() {
			close(b.entered)
			<-b.release
		})
	}
	return b.Backend.GetItem(ctx, key)
}

func TestSessions_ResumeDoesNotBlockLookups(t *testing.T) {
	ctx := context.Background()
	lib := sampleLibrary(t)
	backend := storage.NewMemoryBackend()

	first := newTestSessions(t, lib, backend)
	saved, err := first.Create(ctx, "samuel_main")
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	gated := &gatedBackend{
		Backend: backend,
		key:     "test:v1:" + saved.ID.String() + ":game_state",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	sessions := newTestSessions(t, lib, gated)
	live, err := sessions.Create(ctx, "maya_workshop")
	require.NoError(t, err)

	results := make(chan *Session, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := sessions.Get(ctx, saved.ID)
			assert.NoError(t, err)
			results <- sess
		}()
	}
	<-gated.entered

	lookupCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	got, err := sessions.Get(lookupCtx, live.ID)
	require.NoError(t, err, "live lookup waits behind a resume")
	assert.Same(t, live, got)

	close(gated.release)
	wg.Wait()
	close(results)
	var resumed []*Session
	for sess := range results {
		resumed = append(resumed, sess)
	}
	require.Len(t, resumed, 2)
	require.NotNil(t, resumed[0])
	assert.Same(t, resumed[0], resumed[1], "concurrent lookups share one resume")
	assert.Equal(t, 2, sessions.Len())
}

func TestSessions_DeletedSessionRefusesTransitions(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend()
	sessions := newTestSessions(t, sampleLibrary(t), backend)
	h := NewSessionHandler(sessions, testLogger())

	sess, err := sessions.Create(ctx, "samuel_main")
	require.NoError(t, err)
	require.NoError(t, sessions.Delete(ctx, sess.ID))

	assert.ErrorIs(t, sess.Engine.SelectChoice(ctx, "ask_trains"), engine.ErrClosed)
	require.NoError(t, sess.Store.Flush(ctx))
	_, found, err := backend.GetItem(ctx, sess.Store.StateKey())
	require.NoError(t, err)
	assert.False(t, found, "a late transition does not bring the save back")

	rr := httptest.NewRecorder()
	h.writeEngineError(rr, sess, engine.ErrClosed)
	assert.Equal(t, http.StatusGone, rr.Code)
}
