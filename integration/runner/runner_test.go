package runner

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/dialogue-engine/internal/handlers"
	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
	"github.com/jwebster45206/dialogue-engine/pkg/engine"
	"github.com/jwebster45206/dialogue-engine/pkg/persistence"
	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

const casesDir = "../cases"

// manualScheduler never fires; suites fire interrupts through the API.
type manualScheduler struct{}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (manualScheduler) AfterFunc(time.Duration, func()) engine.Timer { return manualTimer{} }

func newTestAPI(t *testing.T) string {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	lib, err := dialogue.LoadLibrary("../../data/content")
	require.NoError(t, err)

	sessions := handlers.NewSessions(handlers.SessionConfig{
		Library: lib,
		Backend: storage.NewMemoryBackend(),
		Store:   persistence.Options{KeyPrefix: "runner:v1:"},
		Engine:  engine.Options{Scheduler: manualScheduler{}},
	}, log)
	t.Cleanup(func() { _ = sessions.Close(context.Background()) })

	mux := http.NewServeMux()
	sessionHandler := handlers.NewSessionHandler(sessions, log)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server.URL
}

func TestLoadTestSuiteWithExpansion(t *testing.T) {
	jobs, err := LoadTestSuiteWithExpansion(filepath.Join(casesDir, "sequences", "station.json"), casesDir)
	require.NoError(t, err)
	require.Len(t, jobs, 5)
	assert.Equal(t, "Samuel: carry the letters", jobs[0].Name)
	assert.Equal(t, filepath.Join(casesDir, "locked_room.json"), jobs[4].CaseFile)

	_, err = LoadTestSuiteWithExpansion(filepath.Join(casesDir, "missing.json"), casesDir)
	assert.Error(t, err)
}

func TestRunSuite_Cases(t *testing.T) {
	baseURL := newTestAPI(t)
	files, err := filepath.Glob(filepath.Join(casesDir, "*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		jobs, err := LoadTestSuiteWithExpansion(file, casesDir)
		require.NoError(t, err)
		for _, job := range jobs {
			t.Run(job.Name, func(t *testing.T) {
				r := NewRunner(baseURL)
				r.Logger = t.Logf
				result, err := r.RunSuite(context.Background(), job.Suite)
				require.NoError(t, err)
				assert.NotEmpty(t, result.SessionID)
				for _, step := range result.Results {
					assert.True(t, step.Success, "%s: %v", step.StepName, step.Error)
				}
			})
		}
	}
}

func TestRunSuite_ReportsFailures(t *testing.T) {
	baseURL := newTestAPI(t)
	wrongNode := "samuel_trains"
	conflict := 409

	tests := []struct {
		name          string
		mode          ErrorHandlingMode
		steps         []TestStep
		expectedSteps int
		expectedError string
	}{
		{
			name: "wrong node stops in exit mode",
			mode: ErrorHandlingExit,
			steps: []TestStep{
				{Name: "help", Action: "choice:offer_help", Expectations: Expectations{NodeID: &wrongNode}},
				{Name: "never runs", Action: "choice:1"},
			},
			expectedSteps: 1,
			expectedError: "expected node samuel_trains, got samuel_luggage",
		},
		{
			name: "continue mode runs every step",
			mode: ErrorHandlingContinue,
			steps: []TestStep{
				{Name: "unknown", Action: "dance"},
				{Name: "help", Action: "choice:offer_help"},
			},
			expectedSteps: 2,
			expectedError: `unknown action "dance"`,
		},
		{
			name: "refusal expected but action succeeded",
			mode: ErrorHandlingExit,
			steps: []TestStep{
				{Name: "help", Action: "choice:offer_help", Expectations: Expectations{ErrorStatus: &conflict}},
			},
			expectedSteps: 1,
			expectedError: "expected the action to be refused with status 409",
		},
		{
			name: "unexpected refusal",
			mode: ErrorHandlingExit,
			steps: []TestStep{
				{Name: "missing", Action: "choice:missing"},
			},
			expectedSteps: 1,
			expectedError: "API returned status 409",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(baseURL)
			r.ErrorHandlingMode = tt.mode
			result, err := r.RunSuite(context.Background(), TestSuite{
				Name:    tt.name,
				GraphID: "samuel_main",
				Steps:   tt.steps,
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
			assert.Len(t, result.Results, tt.expectedSteps)
		})
	}
}

func TestRunSuite_GraphOverride(t *testing.T) {
	baseURL := newTestAPI(t)
	gate := "oracle_gate"

	r := NewRunner(baseURL)
	r.GraphOverride = "oracle_vault"
	_, err := r.RunSuite(context.Background(), TestSuite{
		Name:    "override",
		GraphID: "samuel_main",
		Steps:   []TestStep{{Action: "goto:oracle_gate", Expectations: Expectations{NodeID: &gate}}},
	})
	require.NoError(t, err)
}

func TestRunSuite_UnknownGraph(t *testing.T) {
	r := NewRunner(newTestAPI(t))
	_, err := r.RunSuite(context.Background(), TestSuite{Name: "bad", GraphID: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create session")
}
