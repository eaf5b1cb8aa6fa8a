package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster publishes events to Redis Pub/Sub so every API replica
// serving a session's stream sees them.
type RedisBroadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ Broadcaster = (*RedisBroadcaster)(nil)

// NewRedisBroadcaster creates a new event broadcaster
func NewRedisBroadcaster(redisClient *redis.Client, logger *slog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, event Event) error {
	channel := channelName(event.SessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"revision", event.Revision,
	)
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published after it returns are delivered.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	channel := channelName(sessionID)
	pubsub := b.redisClient.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan Event, subscriberBuffer)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				b.logger.Error("Failed to close pubsub", "error", err)
			}
		})
	}

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Error("Failed to unmarshal event", "error", err, "payload", msg.Payload)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					cancel()
					return
				}
			}
		}
	}()

	b.logger.Debug("Subscribed to channel", "channel", channel)
	return out, cancel, nil
}
