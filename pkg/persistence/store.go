// Package persistence keeps the authoritative in-memory game state, notifies
// observers when it changes and writes it to a storage.Backend in the
// background.
package persistence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/dialogue-engine/pkg/state"
	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

const (
	DefaultKeyPrefix       = "dlg:v1:"
	DefaultSlot            = "default"
	DefaultMaxPayloadBytes = 5 << 20
	DefaultWriteTimeout    = 5 * time.Second

	stateSuffix  = "game_state"
	backupSuffix = "corrupt_backup"
)

// DefaultLegacyKeys maps keys written before namespacing to the suffix they
// are adopted under.
var DefaultLegacyKeys = map[string]string{
	"game_state":          stateSuffix,
	"dialogue_game_state": stateSuffix,
}

// Options configures a Store. Zero values select the defaults.
type Options struct {
	Slot            string
	KeyPrefix       string
	MaxPayloadBytes int // negative disables the limit
	WriteTimeout    time.Duration
	LegacyKeys      map[string]string
	Now             func() time.Time
	NewID           func() uuid.UUID
}

func (o Options) withDefaults() Options {
	if o.Slot == "" {
		o.Slot = DefaultSlot
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = DefaultKeyPrefix
	}
	if o.MaxPayloadBytes == 0 {
		o.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.LegacyKeys == nil {
		o.LegacyKeys = DefaultLegacyKeys
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.New
	}
	return o
}

// Snapshot is delivered to observers after every change of the cached state.
type Snapshot struct {
	State    *state.GameState
	Revision uint64
	Reason   string
}

// Observer receives snapshots. It is called synchronously from Commit, Load
// and Reset and must not call back into the Store's mutating methods.
type Observer func(Snapshot)

// Store is the persistence layer for one save slot.
type Store struct {
	backend storage.Backend
	logger  *slog.Logger
	opts    Options

	mu        sync.Mutex
	current   *state.GameState
	revision  uint64
	observers map[int]Observer
	nextObsID int

	writer *writer
}

// New creates a store and starts its background writer. Call Close to stop it.
func New(backend storage.Backend, logger *slog.Logger, opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{
		backend:   backend,
		logger:    logger.With("slot", opts.Slot),
		opts:      opts,
		observers: make(map[int]Observer),
	}
	s.current = state.New(opts.NewID(), opts.Now())
	s.writer = newWriter(backend, s.logger, opts.WriteTimeout)
	return s
}

// Key returns the namespaced backend key for a suffix in this slot.
func (s *Store) Key(suffix string) string {
	return s.opts.KeyPrefix + s.opts.Slot + ":" + suffix
}

// StateKey is the key the game state is written under.
func (s *Store) StateKey() string {
	return s.Key(stateSuffix)
}

// BackupKey is the key a corrupted payload is moved to.
func (s *Store) BackupKey() string {
	return s.Key(backupSuffix)
}

// Current returns the cached state. It is never nil.
func (s *Store) Current() *state.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Revision increases by one on every change of the cached state.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Commit makes gs the authoritative state and schedules it to be written.
// The cache is updated before Commit returns. Encoding, quota and backend
// failures are logged; they never reach the caller.
func (s *Store) Commit(gs *state.GameState, reason string) {
	if gs == nil {
		s.logger.Warn("Ignoring commit of nil game state", "reason", reason)
		return
	}

	payload, err := json.Marshal(state.NewEnvelope(gs, s.opts.Now()))
	if err != nil {
		s.logger.Error("Failed to encode game state", "reason", reason, "error", err)
	}

	if !s.publish(gs, reason) {
		s.logger.Debug("Commit without change", "reason", reason)
		return
	}

	if err != nil {
		return
	}
	if s.opts.MaxPayloadBytes > 0 && len(payload) > s.opts.MaxPayloadBytes {
		s.logger.Error("Game state exceeds storage quota, skipping write",
			"reason", reason, "bytes", len(payload), "limit", s.opts.MaxPayloadBytes)
		return
	}
	s.writer.enqueue(writeOp{key: s.StateKey(), value: string(payload), reason: reason})
}

// Reset replaces the state with a fresh default and removes the stored copy.
func (s *Store) Reset(ctx context.Context) *state.GameState {
	fresh := state.New(s.opts.NewID(), s.opts.Now())
	s.publish(fresh, "reset")
	s.writer.enqueue(writeOp{key: s.StateKey(), remove: true, reason: "reset"})
	return fresh
}

// Flush blocks until every write scheduled before the call has completed.
func (s *Store) Flush(ctx context.Context) error {
	return s.writer.flush(ctx)
}

// Close drains pending writes and stops the writer. Later commits still
// update the cache but are not written.
func (s *Store) Close() error {
	s.writer.close()
	return nil
}

// publish swaps the cached state and notifies observers. It reports whether
// the state changed.
func (s *Store) publish(gs *state.GameState, reason string) bool {
	s.mu.Lock()
	if gs == s.current {
		s.mu.Unlock()
		return false
	}
	s.current = gs
	s.revision++
	snap := Snapshot{State: gs, Revision: s.revision, Reason: reason}
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
	return true
}
