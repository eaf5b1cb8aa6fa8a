package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/dialogue-engine/pkg/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertClosed(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed")
	}
}

func broadcasters(t *testing.T) map[string]Broadcaster {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Broadcaster{
		"local": NewLocalBroadcaster(testLogger()),
		"redis": NewRedisBroadcaster(client, testLogger()),
	}
}

func TestBroadcaster_PublishSubscribe(t *testing.T) {
	for name, b := range broadcasters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ch, cancel, err := b.Subscribe(ctx, "s1")
			require.NoError(t, err)
			defer cancel()

			other, cancelOther, err := b.Subscribe(ctx, "s2")
			require.NoError(t, err)
			defer cancelOther()

			view := engine.View{NodeID: "samuel_intro", Text: "hello"}
			require.NoError(t, b.Publish(ctx, Event{Type: EventTypeViewUpdated, SessionID: "s1", Revision: 3, View: &view}))
			require.NoError(t, b.Publish(ctx, Event{Type: EventTypeSessionEnded, SessionID: "s1"}))

			got := receive(t, ch)
			assert.Equal(t, EventTypeViewUpdated, got.Type)
			assert.Equal(t, uint64(3), got.Revision)
			require.NotNil(t, got.View)
			assert.Equal(t, "samuel_intro", got.View.NodeID)

			assert.Equal(t, EventTypeSessionEnded, receive(t, ch).Type)

			select {
			case event := <-other:
				t.Fatalf("unexpected event on other session: %+v", event)
			default:
			}
		})
	}
}

func TestBroadcaster_CancelClosesChannel(t *testing.T) {
	for name, b := range broadcasters(t) {
		t.Run(name, func(t *testing.T) {
			ch, cancel, err := b.Subscribe(context.Background(), "s1")
			require.NoError(t, err)
			cancel()
			cancel()
			assertClosed(t, ch)
		})
	}
}

func TestBroadcaster_ContextEndsSubscription(t *testing.T) {
	for name, b := range broadcasters(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancelCtx := context.WithCancel(context.Background())
			ch, cancel, err := b.Subscribe(ctx, "s1")
			require.NoError(t, err)
			defer cancel()
			cancelCtx()
			assertClosed(t, ch)
		})
	}
}

func TestLocalBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewLocalBroadcaster(testLogger())
	ch, cancel, err := b.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	defer cancel()
	assert.Equal(t, 1, b.Subscribers("s1"))

	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, b.Publish(context.Background(), Event{Type: EventTypeViewUpdated, SessionID: "s1", Revision: uint64(i)}))
	}
	assert.Len(t, ch, subscriberBuffer)

	cancel()
	assert.Equal(t, 0, b.Subscribers("s1"))
}

func TestRedisBroadcaster_SubscribeFailsWhenDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	b := NewRedisBroadcaster(client, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err := b.Subscribe(ctx, "s1")
	assert.Error(t, err)
	assert.Error(t, b.Publish(ctx, Event{Type: EventTypeViewUpdated, SessionID: "s1"}))
}
