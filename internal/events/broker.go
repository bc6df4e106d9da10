package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/edusupport/internal/observability"
)

// ErrBrokerClosed is returned by operations on a closed broker.
var ErrBrokerClosed = errors.New("broker closed")

// Subscription is one membership of a room. Events published to the room
// while the subscription is active arrive on C in publish order. The channel
// is closed on Leave or broker shutdown.
type Subscription struct {
	C      <-chan RoomEvent
	roomID string
	ch     chan RoomEvent
	once   sync.Once
	stop   func()
}

// RoomID returns the room this subscription belongs to.
func (s *Subscription) RoomID() string {
	return s.roomID
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broker is the room-scoped broadcast channel: best-effort, low-latency
// fan-out to currently joined subscribers. Durability comes from the message
// store alone; disconnected participants reconcile by re-fetching the
// transcript on (re)join.
type Broker interface {
	Join(roomID string) (*Subscription, error)
	Leave(roomID string, sub *Subscription)
	Publish(ctx context.Context, roomID string, event RoomEvent) error
	Close() error
}

// memoryBroker is the single-process Broker. A mutex serializes publishes so
// subscribers of one room observe events in publish order.
type memoryBroker struct {
	mu      sync.Mutex
	rooms   map[string]map[*Subscription]struct{}
	buffer  int
	closed  bool
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewMemoryBroker creates an in-process broker. buffer sizes each
// subscriber's event channel; events for subscribers whose channel is full
// are dropped and counted, never reordered.
func NewMemoryBroker(buffer int, logger *zap.Logger, metrics *observability.Metrics) Broker {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &memoryBroker{
		rooms:   make(map[string]map[*Subscription]struct{}),
		buffer:  buffer,
		logger:  logger,
		metrics: metrics,
	}
}

func (b *memoryBroker) Join(roomID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	ch := make(chan RoomEvent, b.buffer)
	sub := &Subscription{C: ch, ch: ch, roomID: roomID}
	if b.rooms[roomID] == nil {
		b.rooms[roomID] = make(map[*Subscription]struct{})
	}
	b.rooms[roomID][sub] = struct{}{}
	return sub, nil
}

func (b *memoryBroker) Leave(roomID string, sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if members, ok := b.rooms[roomID]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(b.rooms, roomID)
		}
	}
	b.mu.Unlock()
	sub.close()
}

func (b *memoryBroker) Publish(_ context.Context, roomID string, event RoomEvent) error {
	stampEvent(&event, roomID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	b.metrics.RecordEvent(string(event.Type))
	for sub := range b.rooms[roomID] {
		select {
		case sub.ch <- event:
		default:
			// Slow subscriber: drop rather than block or reorder. The client
			// reconciles through the transcript on reconnect.
			b.metrics.RecordDroppedEvent()
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("room_id", roomID),
				zap.String("event_type", string(event.Type)))
		}
	}
	return nil
}

func (b *memoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for roomID, members := range b.rooms {
		for sub := range members {
			sub.close()
		}
		delete(b.rooms, roomID)
	}
	return nil
}

func stampEvent(event *RoomEvent, roomID string) {
	event.RoomID = roomID
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
}
