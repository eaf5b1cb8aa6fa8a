package dialogue

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jwebster45206/dialogue-engine/pkg/conditionals"
	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

var validIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

// IsValidID reports whether id is lowercase snake_case.
func IsValidID(id string) bool {
	return validIDRegex.MatchString(id)
}

// Compile prepares a graph for use: it assigns default choice IDs, parses
// every content template, validates conditions and state changes, and
// records node ownership. Compiling twice is a no-op. All problems found
// are returned together.
func Compile(g *Graph) error {
	if g.compiled {
		return nil
	}

	var errs []error
	addErr := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !IsValidID(g.ID) {
		addErr("graph id %q should be lowercase snake_case", g.ID)
	}
	if g.CharacterID == "" {
		addErr("graph %s: character_id is required", g.ID)
	}

	index := make(map[string]*Node, len(g.Nodes))
	for i, n := range g.Nodes {
		if n == nil {
			addErr("graph %s: node %d is empty", g.ID, i)
			continue
		}
		if !IsValidID(n.ID) {
			addErr("graph %s: node id %q should be lowercase snake_case", g.ID, n.ID)
		}
		if _, dup := index[n.ID]; dup {
			addErr("graph %s: %w: %s", g.ID, ErrDuplicateNode, n.ID)
			continue
		}
		index[n.ID] = n
		errs = append(errs, compileNode(g.ID, n)...)
	}

	if _, ok := index[g.StartNode]; !ok {
		addErr("graph %s: start node %q is not in the graph", g.ID, g.StartNode)
	}
	for _, id := range g.EntryPoints {
		if _, ok := index[id]; !ok {
			addErr("graph %s: entry point %q is not in the graph", g.ID, id)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	g.index = index
	g.compiled = true
	return nil
}

func compileNode(graphID string, n *Node) []error {
	var errs []error
	where := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("graph %s node %s: %s", graphID, n.ID, fmt.Sprintf(format, args...)))
	}

	n.graphID = graphID

	if len(n.Content) == 0 {
		where("content needs at least one variant")
	}
	for i := range n.Content {
		v := &n.Content[i]
		tmpl, err := ParseTemplate(v.Text)
		if err != nil {
			where("content[%d]: %v", i, err)
			continue
		}
		v.template = tmpl
		if err := validatePredicate(v.When); err != nil {
			where("content[%d] when: %v", i, err)
		}
	}

	seen := make(map[string]bool, len(n.Choices))
	for i := range n.Choices {
		c := &n.Choices[i]
		if c.ID == "" {
			c.ID = strconv.Itoa(i)
		}
		if seen[c.ID] {
			where("duplicate choice id %q", c.ID)
		}
		seen[c.ID] = true
		if c.Text == "" {
			where("choice %s has no text", c.ID)
		}
		if err := validatePredicate(c.When); err != nil {
			where("choice %s when: %v", c.ID, err)
		}
		if c.Pattern != "" {
			if _, err := state.ParsePattern(string(c.Pattern)); err != nil {
				where("choice %s: %v", c.ID, err)
			}
		}
		if err := validateChange(c.Consequence); err != nil {
			where("choice %s consequence: %v", c.ID, err)
		}
	}

	for i := range n.OnEnter {
		if err := validateChange(&n.OnEnter[i]); err != nil {
			where("on_enter[%d]: %v", i, err)
		}
	}

	if it := n.Interrupt; it != nil {
		if it.DurationMS <= 0 {
			where("interrupt duration_ms must be positive")
		}
		if it.Target == "" {
			where("interrupt needs a target")
		}
		if err := validateChange(it.Consequence); err != nil {
			where("interrupt consequence: %v", err)
		}
	}

	if sim := n.Simulation; sim != nil {
		if sim.Type == "" {
			where("simulation needs a type")
		}
		if sim.SuccessTarget == "" || sim.FailureTarget == "" {
			where("simulation needs success_target and failure_target")
		}
	}

	if pu := n.PatternUnlock; pu != nil {
		if _, err := state.ParsePattern(string(pu.Pattern)); err != nil {
			where("pattern_unlock: %v", err)
		}
		if pu.Threshold <= 0 {
			where("pattern_unlock threshold must be positive")
		}
	}

	return errs
}

func validatePredicate(p *conditionals.Predicate) error {
	if p == nil {
		return nil
	}
	return p.Validate()
}

func validateChange(ch *state.StateChange) error {
	if ch == nil {
		return nil
	}
	for p := range ch.Patterns {
		if _, err := state.ParsePattern(string(p)); err != nil {
			return err
		}
	}
	switch ch.Relationship {
	case "", state.RelationshipStranger, state.RelationshipAcquaintance, state.RelationshipConfidant:
	default:
		return fmt.Errorf("unknown relationship %q", ch.Relationship)
	}
	switch ch.NervousSystem {
	case "", state.NervousVentral, state.NervousSympathetic, state.NervousDorsal:
	default:
		return fmt.Errorf("unknown nervous system state %q", ch.NervousSystem)
	}
	if ch.Thought != nil && ch.Thought.ID == "" {
		return fmt.Errorf("thought needs an id")
	}
	if ch.Mystery != nil && ch.Mystery.ID == "" {
		return fmt.Errorf("mystery needs an id")
	}
	return nil
}
