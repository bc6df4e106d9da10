package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/edusupport/internal/observability"
)

func newTestBroker(buffer int) Broker {
	return NewMemoryBroker(buffer, zap.NewNop(), observability.NewMetrics())
}

func collect(t *testing.T, sub *Subscription, n int) []RoomEvent {
	t.Helper()
	out := make([]RoomEvent, 0, n)
	for len(out) < n {
		select {
		case event, ok := <-sub.C:
			require.True(t, ok, "subscription closed early")
			out = append(out, event)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d of %d", len(out)+1, n)
		}
	}
	return out
}

func TestMemoryBroker_DeliversToJoinedOnly(t *testing.T) {
	broker := newTestBroker(8)
	defer broker.Close() //nolint:errcheck
	ctx := context.Background()

	sub, err := broker.Join("t1")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "t1", RoomEvent{Type: EventTyping, Typing: &TypingPayload{UserID: "u1"}}))
	events := collect(t, sub, 1)
	assert.Equal(t, EventTyping, events[0].Type)
	assert.Equal(t, "t1", events[0].RoomID)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())

	broker.Leave("t1", sub)
	// Publishing after leave must not reach the closed subscription.
	require.NoError(t, broker.Publish(ctx, "t1", RoomEvent{Type: EventStopTyping, Typing: &TypingPayload{UserID: "u1"}}))
	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed after leave")
}

func TestMemoryBroker_RoomIsolation(t *testing.T) {
	broker := newTestBroker(8)
	defer broker.Close() //nolint:errcheck
	ctx := context.Background()

	subA, err := broker.Join("room-a")
	require.NoError(t, err)
	subB, err := broker.Join("room-b")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "room-a", RoomEvent{Type: EventTyping, Typing: &TypingPayload{UserID: "u1"}}))

	events := collect(t, subA, 1)
	assert.Equal(t, "room-a", events[0].RoomID)

	select {
	case event := <-subB.C:
		t.Fatalf("room-b received foreign event %s", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBroker_PublishOrder(t *testing.T) {
	broker := newTestBroker(32)
	defer broker.Close() //nolint:errcheck
	ctx := context.Background()

	sub, err := broker.Join("t1")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, broker.Publish(ctx, "t1", RoomEvent{
			Type:    EventNewMessage,
			Message: &MessagePayload{MessageID: "m", Seq: int64(i)},
		}))
	}

	events := collect(t, sub, 10)
	for i, event := range events {
		assert.Equal(t, int64(i), event.Message.Seq, "events must arrive in publish order")
	}
}

func TestMemoryBroker_SlowSubscriberDrops(t *testing.T) {
	broker := newTestBroker(1)
	defer broker.Close() //nolint:errcheck
	ctx := context.Background()

	sub, err := broker.Join("t1")
	require.NoError(t, err)

	// Buffer of one: the second publish must drop, not block.
	require.NoError(t, broker.Publish(ctx, "t1", RoomEvent{Type: EventTyping, Typing: &TypingPayload{UserID: "u1"}}))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = broker.Publish(ctx, "t1", RoomEvent{Type: EventStopTyping, Typing: &TypingPayload{UserID: "u1"}})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	events := collect(t, sub, 1)
	assert.Equal(t, EventTyping, events[0].Type)
}

func TestMemoryBroker_Closed(t *testing.T) {
	broker := newTestBroker(8)
	sub, err := broker.Join("t1")
	require.NoError(t, err)
	require.NoError(t, broker.Close())

	_, ok := <-sub.C
	assert.False(t, ok, "close must release subscribers")

	_, err = broker.Join("t1")
	assert.ErrorIs(t, err, ErrBrokerClosed)
	assert.ErrorIs(t, broker.Publish(context.Background(), "t1", RoomEvent{Type: EventTyping}), ErrBrokerClosed)
}
