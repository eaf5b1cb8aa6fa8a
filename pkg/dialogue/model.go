// Package dialogue holds the dialogue graph model: nodes, choices, content
// variants and the library that mounts several graphs as one.
package dialogue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jwebster45206/dialogue-engine/pkg/conditionals"
	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

// Variant is one candidate content text for a node.
type Variant struct {
	When *conditionals.Predicate `json:"when,omitempty"` // Activation condition; nil means unconditional
	Text string                  `json:"text"`           // Template source

	template *Template
}

// Template returns the compiled template. Nil before the graph is compiled.
func (v *Variant) Template() *Template { return v.template }

// Content is the ordered list of variants of a node.
type Content []Variant

// UnmarshalJSON accepts a plain string as a single unconditional variant.
func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = Content{{Text: text}}
		return nil
	}
	var variants []Variant
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&variants); err != nil {
		return fmt.Errorf("content must be a string or a list of variants: %w", err)
	}
	*c = variants
	return nil
}

// Choice is a player-selectable edge. A choice without a Target never moves
// the cursor.
type Choice struct {
	ID          string                  `json:"id,omitempty"`          // Defaults to the choice's index in the node
	Text        string                  `json:"text"`                  // Display text
	Target      string                  `json:"target,omitempty"`      // Node entered when selected
	When        *conditionals.Predicate `json:"when,omitempty"`        // Visibility condition
	Consequence *state.StateChange      `json:"consequence,omitempty"` // Applied before the transition
	Pattern     state.Pattern           `json:"pattern,omitempty"`     // Behavioral pattern this choice expresses
}

// Interrupt moves the player on automatically when they stay on a node for
// too long.
type Interrupt struct {
	DurationMS  int                `json:"duration_ms"`
	Target      string             `json:"target"`
	Consequence *state.StateChange `json:"consequence,omitempty"`
}

// Duration returns the interrupt delay.
func (i Interrupt) Duration() time.Duration {
	return time.Duration(i.DurationMS) * time.Millisecond
}

// Simulation hands control to an external mini-game. The engine resumes at
// SuccessTarget or FailureTarget.
type Simulation struct {
	Type          string `json:"type"`
	Title         string `json:"title,omitempty"`
	SuccessTarget string `json:"success_target"`
	FailureTarget string `json:"failure_target"`
}

// PatternUnlock marks a node reachable once a pattern reaches Threshold,
// independent of any choice leading to it.
type PatternUnlock struct {
	Pattern   state.Pattern `json:"pattern"`
	Threshold int           `json:"threshold"`
}

type Node struct {
	ID            string              `json:"id"`
	Speaker       string              `json:"speaker,omitempty"`
	Content       Content             `json:"content"`
	Choices       []Choice            `json:"choices,omitempty"`
	OnEnter       []state.StateChange `json:"on_enter,omitempty"`
	Interrupt     *Interrupt          `json:"interrupt,omitempty"`
	Simulation    *Simulation         `json:"simulation,omitempty"`
	PatternUnlock *PatternUnlock      `json:"pattern_unlock,omitempty"`
	Tags          []string            `json:"tags,omitempty"`

	graphID string
}

// GraphID returns the ID of the graph the node was compiled into.
func (n *Node) GraphID() string { return n.graphID }

// IsTerminal reports whether the node offers no way forward.
func (n *Node) IsTerminal() bool {
	return len(n.Choices) == 0 && n.Interrupt == nil && n.Simulation == nil
}

// Edge is a structural link from a node to a target node ID.
type Edge struct {
	From   string
	To     string
	Reason string // "choice:<id>", "interrupt", "simulation:success" or "simulation:failure"
}

// Edges lists every structural link out of the node, in declaration order.
// Choices without a target contribute nothing.
func (n *Node) Edges() []Edge {
	var edges []Edge
	for _, c := range n.Choices {
		if c.Target != "" {
			edges = append(edges, Edge{From: n.ID, To: c.Target, Reason: "choice:" + c.ID})
		}
	}
	if n.Interrupt != nil && n.Interrupt.Target != "" {
		edges = append(edges, Edge{From: n.ID, To: n.Interrupt.Target, Reason: "interrupt"})
	}
	if n.Simulation != nil {
		if n.Simulation.SuccessTarget != "" {
			edges = append(edges, Edge{From: n.ID, To: n.Simulation.SuccessTarget, Reason: "simulation:success"})
		}
		if n.Simulation.FailureTarget != "" {
			edges = append(edges, Edge{From: n.ID, To: n.Simulation.FailureTarget, Reason: "simulation:failure"})
		}
	}
	return edges
}

// Graph is one character's dialogue tree.
type Graph struct {
	ID          string   `json:"id"`
	CharacterID string   `json:"character_id"`
	StartNode   string   `json:"start_node"`
	EntryPoints []string `json:"entry_points,omitempty"` // Nodes other graphs or the game may route to directly
	Nodes       []*Node  `json:"nodes"`

	compiled bool
	index    map[string]*Node
}

// Node returns the node with the given ID from this graph only.
func (g *Graph) Node(id string) (*Node, bool) {
	if g.index == nil {
		for _, n := range g.Nodes {
			if n.ID == id {
				return n, true
			}
		}
		return nil, false
	}
	n, ok := g.index[id]
	return n, ok
}
