package runner

import (
	"time"
)

// TestSuite defines a complete playthrough scenario.
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name    string     `json:"name"`
	GraphID string     `json:"graph_id,omitempty"` // Used for regular tests
	Steps   []TestStep `json:"steps,omitempty"`    // Used for regular tests
	Cases   []string   `json:"cases,omitempty"`    // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one player action and its expected outcome. Action is one of
//
//	choice:<id>          select a visible choice
//	interrupt            fire the armed interrupt
//	simulation:success   report a simulation result (or simulation:failure)
//	goto:<node_id>       route to an entry point
//	reset                delete the session and start a new one
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	Action       string       `json:"action"`
	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a step executes. Nil fields are
// not checked.
type Expectations struct {
	// View
	NodeID          *string  `json:"node_id,omitempty"`
	TextContains    []string `json:"text_contains,omitempty"`
	TextNotContains []string `json:"text_not_contains,omitempty"`
	Choices         []string `json:"choices,omitempty"` // Visible choice IDs, in order
	Terminal        *bool    `json:"terminal,omitempty"`
	Interrupt       *string  `json:"interrupt,omitempty"`  // Armed interrupt target; "" means none armed
	Simulation      *string  `json:"simulation,omitempty"` // Simulation type; "" means none

	// State
	Trust    map[string]int `json:"trust,omitempty"` // Character ID to trust
	Patterns map[string]int `json:"patterns,omitempty"`
	Flags    []string       `json:"flags,omitempty"` // Flags that must be set
	Orbs     *int           `json:"orbs,omitempty"`
	Thoughts map[string]int `json:"thoughts,omitempty"` // Thought ID to progress

	// Refusals
	ErrorStatus *int `json:"error_status,omitempty"` // Expected HTTP status when the action is refused
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName string
	StepName string
	Success  bool
	Error    error
	Duration time.Duration
	NodeID   string
	IsReset  bool // True if this was a reset step (should not count toward pass/fail metrics)
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	Error     error
	Duration  time.Duration
	SessionID string // ID of the session used for this test
}
