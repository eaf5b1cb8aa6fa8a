package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jwebster45206/dialogue-engine/pkg/state"
)

// Load reads the slot from the backend, migrating and repairing it as needed,
// and primes the cache with the result. It never fails: a missing, unreadable
// or corrupted payload yields a fresh default state. A corrupted payload is
// copied to BackupKey before it is discarded.
func (s *Store) Load(ctx context.Context) *state.GameState {
	s.adoptLegacyKeys(ctx)

	gs := s.read(ctx)
	s.publish(gs, "load")
	return gs
}

func (s *Store) read(ctx context.Context) *state.GameState {
	fresh := func() *state.GameState { return state.New(s.opts.NewID(), s.opts.Now()) }
	key := s.StateKey()

	raw, found, err := s.backend.GetItem(ctx, key)
	if err != nil {
		s.logger.Error("Failed to read game state, starting fresh", "key", key, "error", err)
		return fresh()
	}
	if !found || raw == "" {
		s.logger.Debug("No saved game state", "key", key)
		return fresh()
	}

	doc, err := ParseDocument(raw)
	if err != nil {
		s.logger.Error("Corrupted game state, starting fresh", "key", key, "error", err, "bytes", len(raw))
		s.quarantine(ctx, key, raw)
		return fresh()
	}

	from := VersionOf(doc)
	if from > state.SchemaVersion {
		s.logger.Warn("Game state written by a newer schema, reading known fields", "version", from, "current", state.SchemaVersion)
	}
	doc = Migrate(doc)
	if from < state.SchemaVersion {
		s.logger.Info("Migrated game state", "from", from, "to", state.SchemaVersion)
	}

	env, dropped := DecodeEnvelope(doc)
	for _, field := range dropped {
		s.logger.Warn("Defaulted malformed game state field", "field", field)
	}
	return state.Deserialize(env.State)
}

func (s *Store) quarantine(ctx context.Context, key, raw string) {
	if err := s.backend.SetItem(ctx, s.BackupKey(), raw); err != nil {
		s.logger.Error("Failed to back up corrupted game state", "key", s.BackupKey(), "error", err)
		return
	}
	if err := s.backend.RemoveItem(ctx, key); err != nil {
		s.logger.Error("Failed to remove corrupted game state", "key", key, "error", err)
	}
}

// adoptLegacyKeys moves values stored under un-namespaced keys into this
// slot. A value already present under the namespaced key wins; the legacy
// key is removed either way.
func (s *Store) adoptLegacyKeys(ctx context.Context) {
	legacy := make([]string, 0, len(s.opts.LegacyKeys))
	for k := range s.opts.LegacyKeys {
		legacy = append(legacy, k)
	}
	sort.Strings(legacy)

	for _, oldKey := range legacy {
		newKey := s.Key(s.opts.LegacyKeys[oldKey])
		if oldKey == newKey {
			continue
		}

		value, found, err := s.backend.GetItem(ctx, oldKey)
		if err != nil {
			s.logger.Error("Failed to read legacy key", "key", oldKey, "error", err)
			continue
		}
		if !found {
			continue
		}

		_, exists, err := s.backend.GetItem(ctx, newKey)
		if err != nil {
			s.logger.Error("Failed to read namespaced key", "key", newKey, "error", err)
			continue
		}
		if !exists {
			if err := s.backend.SetItem(ctx, newKey, value); err != nil {
				s.logger.Error("Failed to adopt legacy key", "from", oldKey, "to", newKey, "error", err)
				continue
			}
			s.logger.Info("Adopted legacy key", "from", oldKey, "to", newKey)
		}

		if err := s.backend.RemoveItem(ctx, oldKey); err != nil {
			s.logger.Error("Failed to remove legacy key", "key", oldKey, "error", err)
		}
	}
}

// ParseDocument decodes a stored payload. The payload must be a JSON object.
func ParseDocument(raw string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse game state: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("failed to parse game state: payload is not an object")
	}
	return doc, nil
}

// DecodeEnvelope converts a migrated document to an Envelope field by field.
// A field (or list element) that does not decode is left at its zero value
// and its name is returned in dropped.
func DecodeEnvelope(doc Document) (env state.Envelope, dropped []string) {
	env.Version = VersionOf(doc)
	check := func(key string, err error) {
		if err != nil {
			dropped = append(dropped, key)
		}
	}
	check("saved_at", decodeValue(doc["saved_at"], &env.SavedAt))

	st := asObject(doc["state"])
	ws := &env.State
	check("save_id", decodeValue(st["save_id"], &ws.SaveID))
	check("patterns", decodeValue(st["patterns"], &ws.Patterns))
	check("global_flags", decodeValue(st["global_flags"], &ws.GlobalFlags))
	check("episode", decodeValue(st["episode"], &ws.Episode))
	check("orbs", decodeValue(st["orbs"], &ws.Orbs))
	check("current_character_id", decodeValue(st["current_character_id"], &ws.CurrentCharacterID))
	check("current_node_id", decodeValue(st["current_node_id"], &ws.CurrentNodeID))
	check("created_at", decodeValue(st["created_at"], &ws.CreatedAt))
	check("updated_at", decodeValue(st["updated_at"], &ws.UpdatedAt))

	var n int
	ws.Characters, n = decodeList[state.WireCharacter](st["characters"])
	dropped = appendDropped(dropped, "characters", n)
	ws.Mysteries, n = decodeList[state.WireMystery](st["mysteries"])
	dropped = appendDropped(dropped, "mysteries", n)
	ws.Thoughts, n = decodeList[state.Thought](st["thoughts"])
	dropped = appendDropped(dropped, "thoughts", n)
	ws.PatternHistory, n = decodeList[state.PatternSnapshot](st["pattern_history"])
	dropped = appendDropped(dropped, "pattern_history", n)

	return env, dropped
}

// decodeValue re-decodes a generic JSON value into dst. Absent values are
// not an error. On failure dst is left unchanged.
func decodeValue[T any](v any, dst *T) error {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*dst = out
	return nil
}

func decodeList[T any](v any) (out []T, dropped int) {
	for _, item := range asList(v) {
		var elem T
		if err := decodeValue(item, &elem); err != nil || item == nil {
			dropped++
			continue
		}
		out = append(out, elem)
	}
	return out, dropped
}

func appendDropped(dropped []string, field string, n int) []string {
	if n > 0 {
		dropped = append(dropped, fmt.Sprintf("%s (%d entries)", field, n))
	}
	return dropped
}
