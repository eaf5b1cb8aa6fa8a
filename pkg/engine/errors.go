package engine

import (
	"errors"
	"fmt"

	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
)

var (
	ErrChoiceUnavailable = errors.New("choice unavailable")
	ErrNoActiveInterrupt = errors.New("no active interrupt")
	ErrNoSimulation      = errors.New("node has no simulation")
	ErrNotEntryPoint     = errors.New("node is not an entry point")
	ErrNotStarted        = errors.New("engine not started")
	ErrClosed            = errors.New("engine closed")
	ErrNodeNotFound      = dialogue.ErrNodeNotFound
	ErrDuplicateNode     = dialogue.ErrDuplicateNode
)

// IntegrityError reports an edge whose target is not mounted. The engine
// refuses the transition and keeps the cursor where it was.
type IntegrityError struct {
	NodeID string `json:"node_id"` // Node the edge leaves from
	Via    string `json:"via"`     // "choice:<id>", "interrupt", "simulation:success", ...
	Target string `json:"target"`  // Unresolved node ID
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("content integrity: %s on node %s targets unknown node %q", e.Via, e.NodeID, e.Target)
}

func (e *IntegrityError) Unwrap() error { return ErrNodeNotFound }
