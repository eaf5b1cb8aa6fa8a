package conditionals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the type of a Predicate.
type Kind string

const (
	KindTrust      Kind = "trust"       // Trust of a character within [Min, Max]
	KindPattern    Kind = "pattern"     // Pattern score >= Min
	KindFlag       Kind = "flag"        // Flag present (global, or knowledge flag when CharacterID is set)
	KindNotFlag    Kind = "not_flag"    // Flag absent
	KindVisited    Kind = "visited"     // Node in conversation history (any character unless CharacterID is set)
	KindNotVisited Kind = "not_visited" // Node not yet seen
	KindAll        Kind = "all"         // Every child predicate holds
)

// CurrentCharacter can be used as a CharacterID to refer to whichever
// character owns the node being evaluated. An empty CharacterID means the same
// thing for trust checks.
const CurrentCharacter = "$current"

// Predicate is a closed tagged union of state conditions.
// Only the fields relevant to Kind are read.
type Predicate struct {
	Kind        Kind        `json:"kind"`
	CharacterID string      `json:"character_id,omitempty"`
	Pattern     string      `json:"pattern,omitempty"`
	Flag        string      `json:"flag,omitempty"`
	Node        string      `json:"node,omitempty"`
	Min         *int        `json:"min,omitempty"`
	Max         *int        `json:"max,omitempty"`
	All         []Predicate `json:"all,omitempty"`
}

// StateView provides the minimal interface needed to evaluate predicates.
// This avoids an import cycle with the state package.
type StateView interface {
	CurrentCharacter() string
	TrustOf(characterID string) int
	PatternScore(pattern string) int
	HasGlobalFlag(flag string) bool
	HasKnowledgeFlag(characterID, flag string) bool
	HasVisited(characterID, nodeID string) bool
}

// Constructors used by content code and tests.

func TrustAtLeast(characterID string, min int) Predicate {
	return Predicate{Kind: KindTrust, CharacterID: characterID, Min: &min}
}

func TrustBetween(characterID string, min, max int) Predicate {
	return Predicate{Kind: KindTrust, CharacterID: characterID, Min: &min, Max: &max}
}

func PatternAtLeast(pattern string, min int) Predicate {
	return Predicate{Kind: KindPattern, Pattern: pattern, Min: &min}
}

func FlagSet(flag string) Predicate {
	return Predicate{Kind: KindFlag, Flag: flag}
}

func FlagUnset(flag string) Predicate {
	return Predicate{Kind: KindNotFlag, Flag: flag}
}

func Knows(characterID, flag string) Predicate {
	return Predicate{Kind: KindFlag, CharacterID: characterID, Flag: flag}
}

func Visited(nodeID string) Predicate {
	return Predicate{Kind: KindVisited, Node: nodeID}
}

func NotVisited(nodeID string) Predicate {
	return Predicate{Kind: KindNotVisited, Node: nodeID}
}

func All(preds ...Predicate) Predicate {
	return Predicate{Kind: KindAll, All: preds}
}

// conditionShorthand is the loosely typed record content authors write, e.g.
//
//	{"trust": {"min": 8}, "patterns": {"helping": 2}, "has_flags": ["met_samuel"]}
type conditionShorthand struct {
	Trust *struct {
		Min *int `json:"min,omitempty"`
		Max *int `json:"max,omitempty"`
	} `json:"trust,omitempty"`
	Patterns   map[string]int `json:"patterns,omitempty"`
	HasFlags   []string       `json:"has_flags,omitempty"`
	LacksFlags []string       `json:"lacks_flags,omitempty"`
	Knows      []string       `json:"knows,omitempty"`
	DoesntKnow []string       `json:"doesnt_know,omitempty"`
	Seen       []string       `json:"seen,omitempty"`
	Unseen     []string       `json:"unseen,omitempty"`
}

// UnmarshalJSON accepts either the canonical form (an object with "kind") or
// the authoring shorthand, which is lowered to a conjunction.
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("predicate must be an object: %w", err)
	}

	if _, ok := probe["kind"]; ok {
		type Alias Predicate
		aux := (*Alias)(p)
		return json.Unmarshal(data, aux)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var sh conditionShorthand
	if err := dec.Decode(&sh); err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}
	*p = sh.lower()
	return nil
}

func (sh conditionShorthand) lower() Predicate {
	var parts []Predicate
	if sh.Trust != nil {
		parts = append(parts, Predicate{Kind: KindTrust, CharacterID: CurrentCharacter, Min: sh.Trust.Min, Max: sh.Trust.Max})
	}

	// Map iteration order is random; sort so the lowered form is stable.
	names := make([]string, 0, len(sh.Patterns))
	for name := range sh.Patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, PatternAtLeast(name, sh.Patterns[name]))
	}

	for _, f := range sh.HasFlags {
		parts = append(parts, FlagSet(f))
	}
	for _, f := range sh.LacksFlags {
		parts = append(parts, FlagUnset(f))
	}
	for _, f := range sh.Knows {
		parts = append(parts, Knows(CurrentCharacter, f))
	}
	for _, f := range sh.DoesntKnow {
		parts = append(parts, Predicate{Kind: KindNotFlag, CharacterID: CurrentCharacter, Flag: f})
	}
	for _, id := range sh.Seen {
		parts = append(parts, Visited(id))
	}
	for _, id := range sh.Unseen {
		parts = append(parts, NotVisited(id))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	return All(parts...)
}

// Validate reports structural problems: unknown kinds, missing fields and
// inverted trust ranges.
func (p Predicate) Validate() error {
	switch p.Kind {
	case KindTrust:
		if p.Min == nil && p.Max == nil {
			return fmt.Errorf("trust predicate needs min or max")
		}
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			return fmt.Errorf("trust predicate min %d exceeds max %d", *p.Min, *p.Max)
		}
	case KindPattern:
		if p.Pattern == "" || p.Min == nil {
			return fmt.Errorf("pattern predicate needs pattern and min")
		}
	case KindFlag, KindNotFlag:
		if p.Flag == "" {
			return fmt.Errorf("%s predicate needs flag", p.Kind)
		}
	case KindVisited, KindNotVisited:
		if p.Node == "" {
			return fmt.Errorf("%s predicate needs node", p.Kind)
		}
	case KindAll:
		for i, child := range p.All {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("all[%d]: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unknown predicate kind %q", p.Kind)
	}
	return nil
}
