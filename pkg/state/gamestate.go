package state

import (
	"time"

	"github.com/google/uuid"
)

// RelationshipStatus describes how close the player is to a character.
type RelationshipStatus string

const (
	RelationshipStranger     RelationshipStatus = "stranger"
	RelationshipAcquaintance RelationshipStatus = "acquaintance"
	RelationshipConfidant    RelationshipStatus = "confidant"
)

// NervousSystemState drives ambient presentation only. It is never used for gating.
type NervousSystemState string

const (
	NervousVentral     NervousSystemState = "ventral"     // safe and social
	NervousSympathetic NervousSystemState = "sympathetic" // mobilized, anxious
	NervousDorsal      NervousSystemState = "dorsal"      // shut down
)

// CharacterState is the per-character record of a playthrough.
// Values are treated as immutable once published in a GameState: Apply
// replaces a character record rather than editing it.
type CharacterState struct {
	ID                  string
	Trust               int
	KnowledgeFlags      StringSet
	ConversationHistory []string
	Relationship        RelationshipStatus
	NervousSystem       NervousSystemState
}

// NewCharacter returns a character with default values.
func NewCharacter(id string) *CharacterState {
	return &CharacterState{
		ID:             id,
		KnowledgeFlags: StringSet{},
		Relationship:   RelationshipStranger,
		NervousSystem:  NervousVentral,
	}
}

func (c *CharacterState) clone() *CharacterState {
	cp := *c
	return &cp
}

// ThoughtStatus is the lifecycle stage of a Thought.
type ThoughtStatus string

const (
	ThoughtDeveloping   ThoughtStatus = "developing"
	ThoughtInternalized ThoughtStatus = "internalized"
)

// Thought is an accumulated narrative insight.
type Thought struct {
	ID             string        `json:"id"`
	Title          string        `json:"title,omitempty"`
	Status         ThoughtStatus `json:"status"`
	Progress       int           `json:"progress"` // 0-100
	AddedAt        time.Time     `json:"added_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	InternalizedAt *time.Time    `json:"internalized_at,omitempty"`
}

// Mystery tracks discovery progress of one ongoing mystery.
type Mystery struct {
	Stage int
	Clues StringSet
}

// OrbEconomy is the orb resource counter with named threshold milestones.
type OrbEconomy struct {
	Balance     int
	TotalEarned int
	Milestones  StringSet
}

// OrbMilestone names a lifetime-earned threshold.
type OrbMilestone struct {
	Name      string
	Threshold int
}

// OrbMilestones are reached once TotalEarned crosses Threshold, and never lost.
var OrbMilestones = []OrbMilestone{
	{Name: "first_orb", Threshold: 1},
	{Name: "glimmer", Threshold: 10},
	{Name: "radiant", Threshold: 50},
	{Name: "luminous", Threshold: 100},
}

// PatternSnapshot records the pattern scores at one point in time.
type PatternSnapshot struct {
	At       time.Time `json:"at"`
	NodeID   string    `json:"node_id,omitempty"`
	Patterns Patterns  `json:"patterns"`
}

// GlobalState holds everything that is not scoped to a single character.
type GlobalState struct {
	Flags          StringSet
	Episode        int
	Mysteries      map[string]Mystery
	Orbs           OrbEconomy
	Thoughts       map[string]Thought
	PatternHistory []PatternSnapshot
}

// Cursor is the navigation position within the mounted dialogue graphs.
type Cursor struct {
	CharacterID string
	NodeID      string
}

// GameState is the hydrated state of one playthrough.
//
// A *GameState is never mutated after it has been returned from New, Apply or
// Deserialize. Reducers build a new GameState that shares every untouched
// field with its parent, so observers may compare by reference.
type GameState struct {
	SaveID     uuid.UUID
	Characters map[string]*CharacterState
	Patterns   Patterns
	Global     GlobalState
	Cursor     Cursor
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New returns a fresh default state.
func New(saveID uuid.UUID, now time.Time) *GameState {
	return &GameState{
		SaveID:     saveID,
		Characters: map[string]*CharacterState{},
		Global: GlobalState{
			Flags:     StringSet{},
			Episode:   1,
			Mysteries: map[string]Mystery{},
			Orbs:      OrbEconomy{Milestones: StringSet{}},
			Thoughts:  map[string]Thought{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Character returns the character record, or a default one when the
// character has never been referenced. The returned value must not be modified.
func (gs *GameState) Character(id string) *CharacterState {
	if c, ok := gs.Characters[id]; ok {
		return c
	}
	return NewCharacter(id)
}
