package state

import (
	"maps"
	"slices"
	"time"
)

// StateChange is a compact, typed description of one mutation to a GameState.
// Content files carry StateChanges as node entry effects and choice
// consequences; the engine adds navigation fields (Visit, Cursor, At).
type StateChange struct {
	// Character-scoped fields apply to CharacterID. The engine fills an empty
	// CharacterID with the character owning the current node.
	CharacterID     string             `json:"character_id,omitempty"`
	TrustDelta      int                `json:"trust_delta,omitempty"`
	AddKnowledge    []string           `json:"add_knowledge,omitempty"`
	RemoveKnowledge []string           `json:"remove_knowledge,omitempty"`
	Relationship    RelationshipStatus `json:"relationship,omitempty"`
	NervousSystem   NervousSystemState `json:"nervous_system,omitempty"`

	AddFlags     []string        `json:"add_flags,omitempty"`
	RemoveFlags  []string        `json:"remove_flags,omitempty"`
	Patterns     map[Pattern]int `json:"patterns,omitempty"` // increments; non-positive values are ignored
	OrbDelta     int             `json:"orb_delta,omitempty"`
	EpisodeDelta int             `json:"episode_delta,omitempty"`
	Thought      *ThoughtChange  `json:"thought,omitempty"`
	Mystery      *MysteryChange  `json:"mystery,omitempty"`

	Visit  string    `json:"-"` // node ID appended to CharacterID's conversation history
	Cursor *Cursor   `json:"-"`
	At     time.Time `json:"-"`
}

// ThoughtChange creates or advances the thought with the given ID.
type ThoughtChange struct {
	ID            string `json:"id"`
	Title         string `json:"title,omitempty"`
	ProgressDelta int    `json:"progress_delta,omitempty"`
	Internalize   bool   `json:"internalize,omitempty"`
}

// MysteryChange advances a mystery to at least Stage and/or records a clue.
type MysteryChange struct {
	ID    string `json:"id"`
	Stage int    `json:"stage,omitempty"`
	Clue  string `json:"clue,omitempty"`
}

// IsEmpty reports whether the change describes no mutation at all.
func (ch StateChange) IsEmpty() bool {
	return !ch.touchesCharacter() &&
		len(ch.AddFlags) == 0 &&
		len(ch.RemoveFlags) == 0 &&
		len(ch.Patterns) == 0 &&
		ch.OrbDelta == 0 &&
		ch.EpisodeDelta == 0 &&
		ch.Thought == nil &&
		ch.Mystery == nil &&
		ch.Cursor == nil
}

// WithCharacter returns a copy of the change scoped to id when no character
// was specified.
func (ch StateChange) WithCharacter(id string) StateChange {
	if ch.CharacterID == "" {
		ch.CharacterID = id
	}
	return ch
}

func (ch StateChange) touchesCharacter() bool {
	return ch.CharacterID != "" && (ch.TrustDelta != 0 ||
		len(ch.AddKnowledge) > 0 ||
		len(ch.RemoveKnowledge) > 0 ||
		ch.Relationship != "" ||
		ch.NervousSystem != "" ||
		ch.Visit != "")
}

// Apply returns a new state with exactly the described change applied.
// gs is not modified; fields the change does not touch are shared with gs.
// When the change has no effect gs itself is returned.
//
// Unknown characters are created with defaults. Orb debits clamp the balance
// at zero. Pattern increments append a snapshot to the pattern history.
func Apply(gs *GameState, ch StateChange) *GameState {
	if gs == nil {
		return nil
	}

	next := *gs
	changed := false

	if ch.CharacterID != "" {
		if chars, ok := applyCharacter(gs.Characters, ch); ok {
			next.Characters = chars
			changed = true
		}
	}

	if flags, ok := addRemove(gs.Global.Flags, ch.AddFlags, ch.RemoveFlags); ok {
		next.Global.Flags = flags
		changed = true
	}

	if patterns := applyPatterns(gs.Patterns, ch.Patterns); patterns != gs.Patterns {
		next.Patterns = patterns
		nodeID := ch.Visit
		if nodeID == "" {
			nodeID = gs.Cursor.NodeID
		}
		next.Global.PatternHistory = append(slices.Clip(gs.Global.PatternHistory), PatternSnapshot{
			At:       ch.At,
			NodeID:   nodeID,
			Patterns: patterns,
		})
		changed = true
	}

	if orbs, ok := applyOrbs(gs.Global.Orbs, ch.OrbDelta); ok {
		next.Global.Orbs = orbs
		changed = true
	}

	if ch.EpisodeDelta > 0 {
		next.Global.Episode += ch.EpisodeDelta
		changed = true
	}

	if ch.Thought != nil && ch.Thought.ID != "" {
		next.Global.Thoughts = applyThought(gs.Global.Thoughts, *ch.Thought, ch.At)
		changed = true
	}

	if ch.Mystery != nil && ch.Mystery.ID != "" {
		if mysteries, ok := applyMystery(gs.Global.Mysteries, *ch.Mystery); ok {
			next.Global.Mysteries = mysteries
			changed = true
		}
	}

	if ch.Cursor != nil && *ch.Cursor != gs.Cursor {
		next.Cursor = *ch.Cursor
		changed = true
	}

	if !changed {
		return gs
	}
	if !ch.At.IsZero() {
		next.UpdatedAt = ch.At
	}
	return &next
}

// ApplyAll folds the changes over gs in order.
func ApplyAll(gs *GameState, changes ...StateChange) *GameState {
	for _, ch := range changes {
		gs = Apply(gs, ch)
	}
	return gs
}

func applyCharacter(chars map[string]*CharacterState, ch StateChange) (map[string]*CharacterState, bool) {
	prev, exists := chars[ch.CharacterID]
	var c *CharacterState
	if exists {
		c = prev.clone()
	} else {
		c = NewCharacter(ch.CharacterID)
	}

	dirty := !exists
	if ch.TrustDelta != 0 {
		c.Trust += ch.TrustDelta
		dirty = true
	}

	if knowledge, ok := addRemove(c.KnowledgeFlags, ch.AddKnowledge, ch.RemoveKnowledge); ok {
		c.KnowledgeFlags = knowledge
		dirty = true
	}

	if ch.Visit != "" {
		c.ConversationHistory = append(slices.Clip(c.ConversationHistory), ch.Visit)
		dirty = true
	}
	if ch.Relationship != "" && ch.Relationship != c.Relationship {
		c.Relationship = ch.Relationship
		dirty = true
	}
	if ch.NervousSystem != "" && ch.NervousSystem != c.NervousSystem {
		c.NervousSystem = ch.NervousSystem
		dirty = true
	}

	if !dirty {
		return chars, false
	}
	out := maps.Clone(chars)
	if out == nil {
		out = make(map[string]*CharacterState, 1)
	}
	out[ch.CharacterID] = c
	return out, true
}

func applyPatterns(ps Patterns, increments map[Pattern]int) Patterns {
	for p, delta := range increments {
		ps = ps.add(p, delta)
	}
	return ps
}

// applyOrbs reports false when the delta leaves the economy untouched, such as
// a debit against an empty balance.
func applyOrbs(orbs OrbEconomy, delta int) (OrbEconomy, bool) {
	if delta == 0 || (delta < 0 && orbs.Balance == 0) {
		return orbs, false
	}
	orbs.Balance += delta
	if orbs.Balance < 0 {
		orbs.Balance = 0
	}
	if delta > 0 {
		orbs.TotalEarned += delta
		var reached []string
		for _, m := range OrbMilestones {
			if orbs.TotalEarned >= m.Threshold {
				reached = append(reached, m.Name)
			}
		}
		orbs.Milestones, _ = orbs.Milestones.with(reached...)
	}
	return orbs, true
}

func applyThought(thoughts map[string]Thought, tc ThoughtChange, at time.Time) map[string]Thought {
	t, exists := thoughts[tc.ID]
	if !exists {
		t = Thought{
			ID:      tc.ID,
			Status:  ThoughtDeveloping,
			AddedAt: at,
		}
	}
	if tc.Title != "" {
		t.Title = tc.Title
	}

	t.Progress = min(max(t.Progress+tc.ProgressDelta, 0), 100)
	if t.Status != ThoughtInternalized && (tc.Internalize || t.Progress >= 100) {
		t.Status = ThoughtInternalized
		t.Progress = 100
		internalizedAt := at
		t.InternalizedAt = &internalizedAt
	}
	t.UpdatedAt = at

	out := maps.Clone(thoughts)
	if out == nil {
		out = make(map[string]Thought, 1)
	}
	out[tc.ID] = t
	return out
}

func applyMystery(mysteries map[string]Mystery, mc MysteryChange) (map[string]Mystery, bool) {
	m, exists := mysteries[mc.ID]
	if !exists {
		m = Mystery{Clues: StringSet{}}
	}
	dirty := !exists
	if mc.Stage > m.Stage {
		m.Stage = mc.Stage
		dirty = true
	}
	if clues, ok := m.Clues.with(mc.Clue); ok {
		m.Clues = clues
		dirty = true
	}
	if !dirty {
		return mysteries, false
	}
	out := maps.Clone(mysteries)
	if out == nil {
		out = make(map[string]Mystery, 1)
	}
	out[mc.ID] = m
	return out, true
}

func addRemove(s StringSet, add, remove []string) (StringSet, bool) {
	added, addChanged := s.with(add...)
	out, removeChanged := added.without(remove...)
	return out, addChanged || removeChanged
}
