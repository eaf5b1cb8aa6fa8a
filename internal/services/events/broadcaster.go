// Package events fans session view changes out to stream subscribers.
package events

import (
	"context"

	"github.com/jwebster45206/dialogue-engine/pkg/engine"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeViewUpdated  EventType = "view.updated"
	EventTypeSessionEnded EventType = "session.ended"
)

// Event is published for one session.
type Event struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"session_id"`
	Revision  uint64       `json:"revision,omitempty"`
	View      *engine.View `json:"view,omitempty"`
}

// Broadcaster publishes session events and hands them to subscribers of that
// session. The returned channel is closed once cancel is called or ctx ends.
type Broadcaster interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, sessionID string) (events <-chan Event, cancel func(), err error)
}

const subscriberBuffer = 16

func channelName(sessionID string) string {
	return "dialogue-events:" + sessionID
}
