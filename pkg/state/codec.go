package state

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Serialize lowers a hydrated state to its wire form. Set-valued collections
// are emitted in sorted order so equal states serialize identically.
// Conversation history and pattern history keep their order.
func Serialize(gs *GameState) WireState {
	ws := WireState{
		SaveID:             gs.SaveID.String(),
		Characters:         make([]WireCharacter, 0, len(gs.Characters)),
		Patterns:           gs.Patterns,
		GlobalFlags:        gs.Global.Flags.Sorted(),
		Episode:            gs.Global.Episode,
		Mysteries:          make([]WireMystery, 0, len(gs.Global.Mysteries)),
		Thoughts:           gs.Thoughts(),
		PatternHistory:     append([]PatternSnapshot{}, gs.Global.PatternHistory...),
		CurrentCharacterID: gs.Cursor.CharacterID,
		CurrentNodeID:      gs.Cursor.NodeID,
		CreatedAt:          gs.CreatedAt,
		UpdatedAt:          gs.UpdatedAt,
		Orbs: WireOrbs{
			Balance:     gs.Global.Orbs.Balance,
			TotalEarned: gs.Global.Orbs.TotalEarned,
			Milestones:  gs.Global.Orbs.Milestones.Sorted(),
		},
	}

	for _, c := range gs.Characters {
		ws.Characters = append(ws.Characters, WireCharacter{
			ID:                  c.ID,
			Trust:               c.Trust,
			KnowledgeFlags:      c.KnowledgeFlags.Sorted(),
			ConversationHistory: append([]string{}, c.ConversationHistory...),
			Relationship:        c.Relationship,
			NervousSystem:       c.NervousSystem,
		})
	}
	sort.Slice(ws.Characters, func(i, j int) bool { return ws.Characters[i].ID < ws.Characters[j].ID })

	for id, m := range gs.Global.Mysteries {
		ws.Mysteries = append(ws.Mysteries, WireMystery{ID: id, Stage: m.Stage, Clues: m.Clues.Sorted()})
	}
	sort.Slice(ws.Mysteries, func(i, j int) bool { return ws.Mysteries[i].ID < ws.Mysteries[j].ID })

	return ws
}

// Deserialize hydrates a wire state. It never fails: entries without an ID are
// dropped, duplicates collapse (last one wins), enum fields fall back to
// defaults and numeric invariants (orb balance, thought progress) are
// restored.
func Deserialize(ws WireState) *GameState {
	saveID, err := uuid.Parse(ws.SaveID)
	if err != nil {
		saveID = uuid.Nil
	}

	gs := New(saveID, ws.CreatedAt)
	gs.UpdatedAt = ws.UpdatedAt
	gs.Patterns = clampPatterns(ws.Patterns)
	gs.Global.Flags = NewStringSet(nonEmpty(ws.GlobalFlags)...)
	gs.Global.Episode = max(ws.Episode, 1)
	gs.Global.PatternHistory = append([]PatternSnapshot(nil), ws.PatternHistory...)
	gs.Cursor = Cursor{CharacterID: ws.CurrentCharacterID, NodeID: ws.CurrentNodeID}

	for _, wc := range ws.Characters {
		if wc.ID == "" {
			continue
		}
		c := NewCharacter(wc.ID)
		c.Trust = wc.Trust
		c.KnowledgeFlags = NewStringSet(nonEmpty(wc.KnowledgeFlags)...)
		c.ConversationHistory = append([]string(nil), nonEmpty(wc.ConversationHistory)...)
		if validRelationship(wc.Relationship) {
			c.Relationship = wc.Relationship
		}
		if validNervousSystem(wc.NervousSystem) {
			c.NervousSystem = wc.NervousSystem
		}
		gs.Characters[wc.ID] = c
	}

	for _, wm := range ws.Mysteries {
		if wm.ID == "" {
			continue
		}
		gs.Global.Mysteries[wm.ID] = Mystery{Stage: max(wm.Stage, 0), Clues: NewStringSet(nonEmpty(wm.Clues)...)}
	}

	gs.Global.Orbs = OrbEconomy{
		Balance:     max(ws.Orbs.Balance, 0),
		TotalEarned: max(ws.Orbs.TotalEarned, 0),
		Milestones:  NewStringSet(nonEmpty(ws.Orbs.Milestones)...),
	}

	for _, t := range ws.Thoughts {
		if t.ID == "" {
			continue
		}
		gs.Global.Thoughts[t.ID] = normalizeThought(t)
	}

	return gs
}

func normalizeThought(t Thought) Thought {
	t.Progress = min(max(t.Progress, 0), 100)
	if t.Progress == 100 {
		t.Status = ThoughtInternalized
	}
	switch t.Status {
	case ThoughtInternalized:
		t.Progress = 100
		if t.InternalizedAt == nil {
			at := t.UpdatedAt
			t.InternalizedAt = &at
		}
	default:
		t.Status = ThoughtDeveloping
	}
	return t
}

func clampPatterns(ps Patterns) Patterns {
	return Patterns{
		Analytical: max(ps.Analytical, 0),
		Patience:   max(ps.Patience, 0),
		Exploring:  max(ps.Exploring, 0),
		Helping:    max(ps.Helping, 0),
		Building:   max(ps.Building, 0),
	}
}

func validRelationship(r RelationshipStatus) bool {
	switch r {
	case RelationshipStranger, RelationshipAcquaintance, RelationshipConfidant:
		return true
	}
	return false
}

func validNervousSystem(n NervousSystemState) bool {
	switch n {
	case NervousVentral, NervousSympathetic, NervousDorsal:
		return true
	}
	return false
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// NewEnvelope wraps the serialized state at the current schema version.
func NewEnvelope(gs *GameState, savedAt time.Time) Envelope {
	return Envelope{Version: SchemaVersion, SavedAt: savedAt, State: Serialize(gs)}
}
