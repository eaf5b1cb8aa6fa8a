package state

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/jwebster45206/dialogue-engine/pkg/conditionals"
)

// Read-only selectors over a GameState.

// Trust returns the trust of a character; unknown characters have trust 0.
func (gs *GameState) Trust(characterID string) int {
	if c, ok := gs.Characters[characterID]; ok {
		return c.Trust
	}
	return 0
}

// HasFlag reports whether a global flag is set.
func (gs *GameState) HasFlag(flag string) bool {
	return gs.Global.Flags.Has(flag)
}

// HasKnowledge reports whether a character carries a knowledge flag.
func (gs *GameState) HasKnowledge(characterID, flag string) bool {
	if c, ok := gs.Characters[characterID]; ok {
		return c.KnowledgeFlags.Has(flag)
	}
	return false
}

// Flags returns the global flags in sorted order.
func (gs *GameState) Flags() []string {
	return gs.Global.Flags.Sorted()
}

// OrbBalance returns the current orb balance.
func (gs *GameState) OrbBalance() int {
	return gs.Global.Orbs.Balance
}

// Thoughts returns all thoughts ordered by when they were added, then by ID.
func (gs *GameState) Thoughts() []Thought {
	out := make([]Thought, 0, len(gs.Global.Thoughts))
	for _, t := range gs.Global.Thoughts {
		out = append(out, t)
	}
	sortThoughts(out)
	return out
}

// HasVisited reports whether the node appears in the character's history.
// An empty characterID matches any character.
func (gs *GameState) HasVisited(characterID, nodeID string) bool {
	if characterID == "" {
		return gs.VisitedNodes().Has(nodeID)
	}
	c, ok := gs.Characters[characterID]
	return ok && slices.Contains(c.ConversationHistory, nodeID)
}

// VisitedNodes derives the set of visited node IDs across all characters.
func (gs *GameState) VisitedNodes() StringSet {
	out := StringSet{}
	for _, c := range gs.Characters {
		for _, id := range c.ConversationHistory {
			out[id] = struct{}{}
		}
	}
	return out
}

// PersonaSummary is a compact, single-line description of the player used by
// external enrichment services. It contains no identifiers from the save.
func (gs *GameState) PersonaSummary() string {
	var parts []string
	if p, ok := gs.Patterns.Dominant(); ok {
		parts = append(parts, "leans "+string(p))
	}

	var scores []string
	for _, p := range AllPatterns {
		if v := gs.Patterns.Get(p); v > 0 {
			scores = append(scores, fmt.Sprintf("%s=%d", p, v))
		}
	}
	if len(scores) > 0 {
		parts = append(parts, "patterns "+strings.Join(scores, ","))
	}

	ids := make([]string, 0, len(gs.Characters))
	for id := range gs.Characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var bonds []string
	for _, id := range ids {
		if c := gs.Characters[id]; c.Relationship != RelationshipStranger || c.Trust != 0 {
			bonds = append(bonds, fmt.Sprintf("%s:%d", id, c.Trust))
		}
	}
	if len(bonds) > 0 {
		parts = append(parts, "trust "+strings.Join(bonds, ","))
	}

	internalized := 0
	for _, t := range gs.Global.Thoughts {
		if t.Status == ThoughtInternalized {
			internalized++
		}
	}
	if internalized > 0 {
		parts = append(parts, fmt.Sprintf("%d internalized thoughts", internalized))
	}

	if len(parts) == 0 {
		return "new traveler"
	}
	return strings.Join(parts, "; ")
}

// View adapts a GameState for predicate evaluation and text rendering from
// the point of view of the character owning the current node.
func View(gs *GameState, currentCharacter string) StateView {
	return StateView{gs: gs, current: currentCharacter}
}

// StateView is a read-only view of a GameState bound to a current character.
type StateView struct {
	gs      *GameState
	current string
}

var _ conditionals.StateView = StateView{}

func (v StateView) CurrentCharacter() string       { return v.current }
func (v StateView) TrustOf(characterID string) int { return v.gs.Trust(characterID) }
func (v StateView) HasGlobalFlag(flag string) bool { return v.gs.HasFlag(flag) }
func (v StateView) OrbBalance() int                { return v.gs.OrbBalance() }
func (v StateView) HasKnowledgeFlag(characterID, flag string) bool {
	return v.gs.HasKnowledge(characterID, flag)
}

func (v StateView) HasVisited(characterID, nodeID string) bool {
	return v.gs.HasVisited(characterID, nodeID)
}

func (v StateView) PatternScore(pattern string) int {
	return v.gs.Patterns.Get(Pattern(pattern))
}

func sortThoughts(ts []Thought) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].AddedAt.Equal(ts[j].AddedAt) {
			return ts[i].AddedAt.Before(ts[j].AddedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}
