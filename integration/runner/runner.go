package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jwebster45206/dialogue-engine/internal/apiclient"
	"github.com/jwebster45206/dialogue-engine/internal/handlers"
	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// ResetAction starts a fresh session for the suite's graph.
const ResetAction = "reset"

// Runner plays scripted dialogue suites against a running dialogue-engine API
type Runner struct {
	BaseURL           string
	Client            *apiclient.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
	GraphOverride     string // If set, overrides the graph for all test cases
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Runner{
		BaseURL:           baseURL,
		Client:            apiclient.New(baseURL, 30*time.Second),
		Timeout:           10 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite in a fresh session
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	graphID := suite.GraphID
	if r.GraphOverride != "" {
		graphID = r.GraphOverride
	}

	sess, err := r.Client.CreateSession(ctx, graphID)
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.SessionID = sess.ID
	defer func() {
		if err := r.Client.DeleteSession(context.WithoutCancel(ctx), result.SessionID); err != nil {
			r.Logger("    Warning: failed to delete session %s: %v", result.SessionID, err)
		}
	}()

	for i, step := range suite.Steps {
		name := step.Name
		if name == "" {
			name = step.Action
		}
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), name)

		stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
		stepResult := r.executeStep(stepCtx, &result.SessionID, graphID, step)
		cancel()
		stepResult.TestName = suite.Name
		stepResult.StepName = name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// executeStep performs one action and checks the session against the step's
// expectations. A reset replaces *sessionID with a new session.
func (r *Runner) executeStep(ctx context.Context, sessionID *string, graphID string, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{}

	actionErr := r.act(ctx, sessionID, graphID, step.Action)
	if step.Action == ResetAction {
		result.IsReset = true
	}

	if err := checkRefusal(step.Expectations.ErrorStatus, actionErr); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	// Read back through GET so the saved state is what gets checked
	sess, err := r.Client.GetSession(ctx, *sessionID)
	if err != nil {
		result.Error = fmt.Errorf("failed to get session: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	result.NodeID = sess.View.NodeID

	if err := checkExpectations(step.Expectations, sess); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// act sends the API call named by action.
func (r *Runner) act(ctx context.Context, sessionID *string, graphID, action string) error {
	verb, arg, _ := strings.Cut(action, ":")
	var err error
	switch verb {
	case "choice":
		_, err = r.Client.SelectChoice(ctx, *sessionID, arg)
	case "interrupt":
		_, err = r.Client.FireInterrupt(ctx, *sessionID)
	case "simulation":
		switch arg {
		case "success", "failure":
			_, err = r.Client.CompleteSimulation(ctx, *sessionID, arg == "success")
		default:
			return fmt.Errorf("simulation result must be success or failure, got %q", arg)
		}
	case "goto":
		_, err = r.Client.Goto(ctx, *sessionID, arg)
	case ResetAction:
		if err := r.Client.DeleteSession(ctx, *sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		sess, err := r.Client.CreateSession(ctx, graphID)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		*sessionID = sess.ID
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return err
}

// checkRefusal compares the outcome of an action with the expected status.
func checkRefusal(expected *int, err error) error {
	if expected == nil {
		if err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
		return nil
	}
	if err == nil {
		return fmt.Errorf("expected the action to be refused with status %d, but it succeeded", *expected)
	}
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("expected status %d, got transport error: %w", *expected, err)
	}
	if apiErr.Status != *expected {
		return fmt.Errorf("expected status %d, got %d: %s", *expected, apiErr.Status, apiErr.Message)
	}
	return nil
}

// checkExpectations validates the test expectations against the session
func checkExpectations(exp Expectations, sess *handlers.SessionResponse) error {
	view := sess.View
	ws := sess.State

	if exp.NodeID != nil && view.NodeID != *exp.NodeID {
		return fmt.Errorf("expected node %s, got %s", *exp.NodeID, view.NodeID)
	}

	lowerText := strings.ToLower(view.Text)
	for _, expectedText := range exp.TextContains {
		if !strings.Contains(lowerText, strings.ToLower(expectedText)) {
			return fmt.Errorf("expected text to contain '%s', got %q", expectedText, view.Text)
		}
	}
	for _, unexpectedText := range exp.TextNotContains {
		if strings.Contains(lowerText, strings.ToLower(unexpectedText)) {
			return fmt.Errorf("expected text to NOT contain '%s', got %q", unexpectedText, view.Text)
		}
	}

	if exp.Choices != nil {
		actual := make([]string, 0, len(view.Choices))
		for _, c := range view.Choices {
			actual = append(actual, c.ID)
		}
		if !slices.Equal(actual, exp.Choices) {
			return fmt.Errorf("expected choices %v, got %v", exp.Choices, actual)
		}
	}

	if exp.Terminal != nil && view.Terminal != *exp.Terminal {
		return fmt.Errorf("expected terminal to be %t, got %t", *exp.Terminal, view.Terminal)
	}

	if exp.Interrupt != nil {
		actual := ""
		if view.Interrupt != nil {
			actual = view.Interrupt.Target
		}
		if actual != *exp.Interrupt {
			return fmt.Errorf("expected interrupt target %q, got %q", *exp.Interrupt, actual)
		}
	}

	if exp.Simulation != nil {
		actual := ""
		if view.Simulation != nil {
			actual = view.Simulation.Type
		}
		if actual != *exp.Simulation {
			return fmt.Errorf("expected simulation %q, got %q", *exp.Simulation, actual)
		}
	}

	for characterID, expected := range exp.Trust {
		actual := 0
		for _, c := range ws.Characters {
			if c.ID == characterID {
				actual = c.Trust
			}
		}
		if actual != expected {
			return fmt.Errorf("expected trust of %s to be %d, got %d", characterID, expected, actual)
		}
	}

	for name, expected := range exp.Patterns {
		p, err := state.ParsePattern(name)
		if err != nil {
			return err
		}
		if actual := ws.Patterns.Get(p); actual != expected {
			return fmt.Errorf("expected pattern %s to be %d, got %d", name, expected, actual)
		}
	}

	for _, flag := range exp.Flags {
		if !slices.Contains(ws.GlobalFlags, flag) {
			return fmt.Errorf("expected flag %s to be set, flags: %v", flag, ws.GlobalFlags)
		}
	}

	if exp.Orbs != nil && ws.Orbs.Balance != *exp.Orbs {
		return fmt.Errorf("expected orb balance %d, got %d", *exp.Orbs, ws.Orbs.Balance)
	}

	for id, expected := range exp.Thoughts {
		idx := slices.IndexFunc(ws.Thoughts, func(t state.Thought) bool { return t.ID == id })
		if idx < 0 {
			return fmt.Errorf("expected thought %s to exist", id)
		}
		if actual := ws.Thoughts[idx].Progress; actual != expected {
			return fmt.Errorf("expected thought %s progress %d, got %d", id, expected, actual)
		}
	}

	return nil
}
