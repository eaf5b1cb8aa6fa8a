package events

import (
	"context"
	"log/slog"
	"sync"
)

// LocalBroadcaster delivers events within one process. A subscriber that
// falls behind loses events rather than blocking the publisher.
type LocalBroadcaster struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event
}

var _ Broadcaster = (*LocalBroadcaster)(nil)

func NewLocalBroadcaster(logger *slog.Logger) *LocalBroadcaster {
	return &LocalBroadcaster{
		logger: logger,
		subs:   make(map[string]map[int]chan Event),
	}
}

func (b *LocalBroadcaster) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("Dropping event for slow subscriber", "session_id", event.SessionID, "event_type", event.Type)
		}
	}
	return nil
}

func (b *LocalBroadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan Event)
	}
	b.subs[sessionID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[sessionID], id)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
		})
	}
	context.AfterFunc(ctx, cancel)
	return ch, cancel, nil
}

// Subscribers returns the number of open subscriptions for a session.
func (b *LocalBroadcaster) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sessionID])
}
