package persistence

import (
	"sort"

	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

// Document is a decoded but untyped stored payload.
type Document = map[string]any

type migration struct {
	from int
	fn   func(Document) Document
}

// Steps run in order; each moves a document from one version to the next.
var migrations = []migration{
	{from: 0, fn: migrateV0ToV1},
	{from: 1, fn: migrateV1ToV2},
}

// VersionOf returns the schema version recorded in a document. Documents
// written before versioning have none and are version 0.
func VersionOf(doc Document) int {
	if v, ok := asInt(doc["version"]); ok && v >= 0 {
		return v
	}
	return 0
}

// Migrate upgrades a document to state.SchemaVersion one step at a time.
// Malformed fields are replaced with defaults. Documents already at (or past)
// the current version are returned unchanged.
func Migrate(doc Document) Document {
	for _, m := range migrations {
		if VersionOf(doc) == m.from {
			doc = m.fn(doc)
		}
	}
	return doc
}

// Version 0 is the bare state object: characters keyed by ID and global flags
// under "flags".
func migrateV0ToV1(doc Document) Document {
	chars := []any{}
	switch raw := doc["characters"].(type) {
	case map[string]any:
		ids := make([]string, 0, len(raw))
		for id := range raw {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			chars = append(chars, characterV1(id, asObject(raw[id])))
		}
	case []any:
		for _, item := range raw {
			obj := asObject(item)
			if id := asString(obj["id"]); id != "" {
				chars = append(chars, characterV1(id, obj))
			}
		}
	}

	episode, ok := asInt(doc["episode"])
	if !ok || episode < 1 {
		episode = 1
	}

	st := Document{
		"save_id":              asString(doc["save_id"]),
		"characters":           chars,
		"patterns":             patternsObject(doc["patterns"]),
		"global_flags":         asStrings(doc["flags"]),
		"episode":              episode,
		"current_character_id": asString(doc["current_character_id"]),
		"current_node_id":      asString(doc["current_node_id"]),
	}
	return Document{
		"version":  1,
		"saved_at": doc["saved_at"],
		"state":    st,
	}
}

func characterV1(id string, obj Document) Document {
	trust, _ := asInt(obj["trust"])
	return Document{
		"id":                   id,
		"trust":                trust,
		"knowledge_flags":      asStrings(obj["knowledge_flags"]),
		"conversation_history": asStrings(obj["conversation_history"]),
	}
}

// Version 2 adds the orb economy, thoughts, mysteries, pattern history and
// the per-character relationship and nervous-system fields.
func migrateV1ToV2(doc Document) Document {
	st := asObject(doc["state"])
	out := make(Document, len(st)+4)
	for k, v := range st {
		out[k] = v
	}

	chars := []any{}
	for _, item := range asList(out["characters"]) {
		c := asObject(item)
		if asString(c["id"]) == "" {
			continue
		}
		if asString(c["relationship_status"]) == "" {
			c["relationship_status"] = string(state.RelationshipStranger)
		}
		if asString(c["nervous_system_state"]) == "" {
			c["nervous_system_state"] = string(state.NervousVentral)
		}
		chars = append(chars, c)
	}
	out["characters"] = chars
	out["patterns"] = patternsObject(out["patterns"])

	if _, ok := out["orbs"].(map[string]any); !ok {
		out["orbs"] = Document{"balance": 0, "total_earned": 0, "milestones": []any{}}
	}
	for _, key := range []string{"thoughts", "mysteries", "pattern_history"} {
		if _, ok := out[key].([]any); !ok {
			out[key] = []any{}
		}
	}

	return Document{
		"version":  state.SchemaVersion,
		"saved_at": doc["saved_at"],
		"state":    out,
	}
}

func patternsObject(v any) Document {
	in := asObject(v)
	out := make(Document, len(state.AllPatterns))
	for _, p := range state.AllPatterns {
		n, ok := asInt(in[string(p)])
		if !ok || n < 0 {
			n = 0
		}
		out[string(p)] = n
	}
	return out
}

// The helpers below read generic JSON values and fall back to zero values
// for anything of the wrong shape.

func asObject(v any) Document {
	if m, ok := v.(map[string]any); ok {
		out := make(Document, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out
	}
	return Document{}
}

func asList(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asStrings(v any) []any {
	out := []any{}
	for _, item := range asList(v) {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}
