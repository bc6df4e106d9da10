package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/edusupport/internal/observability"
)

const roomChannelPrefix = "room:"

// redisBroker fans room events out over Redis pub/sub so multiple service
// processes share one broadcast channel. Redis preserves per-channel publish
// order, which carries the per-room ordering guarantee across processes.
type redisBroker struct {
	client  *redis.Client
	buffer  int
	logger  *zap.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	closed bool
}

// NewRedisBroker creates a Redis-backed broker.
func NewRedisBroker(client *redis.Client, buffer int, logger *zap.Logger, metrics *observability.Metrics) Broker {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisBroker{
		client:  client,
		buffer:  buffer,
		logger:  logger,
		metrics: metrics,
	}
}

func (b *redisBroker) Join(roomID string) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	b.mu.Unlock()

	pubsub := b.client.Subscribe(context.Background(), roomChannelPrefix+roomID)
	ch := make(chan RoomEvent, b.buffer)
	sub := &Subscription{
		C:      ch,
		ch:     ch,
		roomID: roomID,
		stop:   func() { _ = pubsub.Close() },
	}

	go b.pump(pubsub, sub)
	return sub, nil
}

func (b *redisBroker) pump(pubsub *redis.PubSub, sub *Subscription) {
	defer sub.close()
	for msg := range pubsub.Channel() {
		var event RoomEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.logger.Warn("discarding malformed room event", zap.Error(err))
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.metrics.RecordDroppedEvent()
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("room_id", sub.roomID),
				zap.String("event_type", string(event.Type)))
		}
	}
}

func (b *redisBroker) Leave(_ string, sub *Subscription) {
	if sub == nil || sub.stop == nil {
		return
	}
	sub.stop()
}

func (b *redisBroker) Publish(ctx context.Context, roomID string, event RoomEvent) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	b.mu.Unlock()

	stampEvent(&event, roomID)
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	b.metrics.RecordEvent(string(event.Type))
	return b.client.Publish(ctx, roomChannelPrefix+roomID, payload).Err()
}

func (b *redisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
