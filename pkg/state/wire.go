package state

import "time"

// SchemaVersion is the version of the wire envelope written by this build.
const SchemaVersion = 2

// Envelope wraps the wire state with its schema version for storage.
type Envelope struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	State   WireState `json:"state"`
}

// WireState is the JSON-safe form of GameState: every set and map is lowered
// to an array so the value survives a lossless text encoding.
type WireState struct {
	SaveID             string            `json:"save_id"`
	Characters         []WireCharacter   `json:"characters"`
	Patterns           Patterns          `json:"patterns"`
	GlobalFlags        []string          `json:"global_flags"`
	Episode            int               `json:"episode"`
	Mysteries          []WireMystery     `json:"mysteries"`
	Orbs               WireOrbs          `json:"orbs"`
	Thoughts           []Thought         `json:"thoughts"`
	PatternHistory     []PatternSnapshot `json:"pattern_history"`
	CurrentCharacterID string            `json:"current_character_id"`
	CurrentNodeID      string            `json:"current_node_id"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

type WireCharacter struct {
	ID                  string             `json:"id"`
	Trust               int                `json:"trust"`
	KnowledgeFlags      []string           `json:"knowledge_flags"`
	ConversationHistory []string           `json:"conversation_history"`
	Relationship        RelationshipStatus `json:"relationship_status"`
	NervousSystem       NervousSystemState `json:"nervous_system_state"`
}

type WireMystery struct {
	ID    string   `json:"id"`
	Stage int      `json:"stage"`
	Clues []string `json:"clues"`
}

type WireOrbs struct {
	Balance     int      `json:"balance"`
	TotalEarned int      `json:"total_earned"`
	Milestones  []string `json:"milestones"`
}
