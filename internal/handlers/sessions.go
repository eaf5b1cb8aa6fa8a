package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/dialogue-engine/internal/logger"
	"github.com/jwebster45206/dialogue-engine/internal/services/events"
	"github.com/jwebster45206/dialogue-engine/pkg/dialogue"
	"github.com/jwebster45206/dialogue-engine/pkg/engine"
	"github.com/jwebster45206/dialogue-engine/pkg/persistence"
	"github.com/jwebster45206/dialogue-engine/pkg/storage"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEventsDisabled  = errors.New("session events are not enabled")
)

// SessionConfig is shared by every session. Store.Slot and Engine.Committer
// are set per session.
type SessionConfig struct {
	Library *dialogue.Library
	Backend storage.Backend
	Store   persistence.Options
	Engine  engine.Options
	Events  events.Broadcaster // Optional: receives every view change
}

const publishTimeout = 2 * time.Second

// Session is one playthrough: an engine committing to its own save slot.
type Session struct {
	ID     uuid.UUID
	Engine *engine.Engine
	Store  *persistence.Store
}

func (s *Session) close() {
	s.Engine.Close()
	_ = s.Store.Close()
}

// Sessions keeps live sessions in memory and resumes saved ones from the
// backend on first use.
type Sessions struct {
	cfg    SessionConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	resuming map[uuid.UUID]*pendingResume
}

// pendingResume lets concurrent lookups of a saved session share one resume.
type pendingResume struct {
	done chan struct{}
	sess *Session
	err  error
}

func NewSessions(cfg SessionConfig, logger *slog.Logger) *Sessions {
	// Session slots never adopt un-namespaced keys.
	cfg.Store.LegacyKeys = map[string]string{}
	return &Sessions{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
		resuming: make(map[uuid.UUID]*pendingResume),
	}
}

func (s *Sessions) open(id uuid.UUID) *Session {
	storeOpts := s.cfg.Store
	storeOpts.Slot = id.String()
	log := logger.WithSession(s.logger, id.String())
	store := persistence.New(s.cfg.Backend, log, storeOpts)

	engineOpts := s.cfg.Engine
	engineOpts.Committer = store
	sess := &Session{
		ID:     id,
		Engine: engine.New(s.cfg.Library, log, engineOpts),
		Store:  store,
	}
	if s.cfg.Events != nil {
		sess.Engine.OnChange(func(v engine.View) {
			s.publish(events.Event{
				Type:      events.EventTypeViewUpdated,
				SessionID: id.String(),
				Revision:  store.Revision(),
				View:      &v,
			})
		})
	}
	return sess
}

// publish runs outside the engine lock, including from interrupt timers.
func (s *Sessions) publish(event events.Event) {
	if s.cfg.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.cfg.Events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish session event", "session_id", event.SessionID, "event_type", event.Type, "error", err)
	}
}

// Subscribe streams events for a live or saved session.
func (s *Sessions) Subscribe(ctx context.Context, id uuid.UUID) (*Session, <-chan events.Event, func(), error) {
	if s.cfg.Events == nil {
		return nil, nil, nil, ErrEventsDisabled
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	ch, cancel, err := s.cfg.Events.Subscribe(ctx, id.String())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	return sess, ch, cancel, nil
}

// Create starts a new playthrough at the start node of graphID, or of the
// first mounted graph when graphID is empty.
func (s *Sessions) Create(ctx context.Context, graphID string) (*Session, error) {
	sess := s.open(uuid.New())
	if err := sess.Engine.Start(ctx, sess.Store.Current(), graphID); err != nil {
		sess.close()
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	s.logger.Info("Session created", "session_id", sess.ID, "graph_id", graphID)
	return sess, nil
}

// Get returns a live session, resuming it from the backend if it was saved
// by an earlier process. The resume runs without holding the session map
// lock; concurrent lookups of the same ID wait for it.
func (s *Sessions) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	if p, ok := s.resuming[id]; ok {
		s.mu.Unlock()
		select {
		case <-p.done:
			return p.sess, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingResume{done: make(chan struct{})}
	s.resuming[id] = p
	s.mu.Unlock()

	p.sess, p.err = s.resume(ctx, id)

	s.mu.Lock()
	delete(s.resuming, id)
	if p.err == nil {
		s.sessions[id] = p.sess
	}
	s.mu.Unlock()
	close(p.done)
	return p.sess, p.err
}

func (s *Sessions) resume(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess := s.open(id)
	_, found, err := s.cfg.Backend.GetItem(ctx, sess.Store.StateKey())
	if err != nil {
		sess.close()
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if !found {
		sess.close()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	gs := sess.Store.Load(ctx)
	if err := sess.Engine.Start(ctx, gs, ""); err != nil {
		sess.close()
		return nil, fmt.Errorf("failed to resume session: %w", err)
	}
	s.logger.Info("Session resumed", "session_id", id, "node_id", gs.Cursor.NodeID)
	return sess, nil
}

// Delete ends a session and removes its saved state.
func (s *Sessions) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		sess.Engine.Close()
		sess.Store.Reset(ctx)
		_ = sess.Store.Close()
		s.publish(events.Event{Type: events.EventTypeSessionEnded, SessionID: id.String()})
		s.logger.Info("Session deleted", "session_id", id)
		return nil
	}

	probe := s.open(id)
	defer probe.close()
	_, found, err := s.cfg.Backend.GetItem(ctx, probe.Store.StateKey())
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := s.cfg.Backend.RemoveItem(ctx, probe.Store.StateKey()); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.publish(events.Event{Type: events.EventTypeSessionEnded, SessionID: id.String()})
	s.logger.Info("Session deleted", "session_id", id)
	return nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close flushes and stops every live session.
func (s *Sessions) Close(ctx context.Context) error {
	s.mu.Lock()
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.sessions = make(map[uuid.UUID]*Session)
	s.mu.Unlock()

	var errs []error
	for _, sess := range live {
		sess.Engine.Close()
		if err := sess.Store.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", sess.ID, err))
		}
		_ = sess.Store.Close()
	}
	return errors.Join(errs...)
}
