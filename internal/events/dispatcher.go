package events

import (
	"context"
	"sync"

	"github.com/spec-kit/edusupport/internal/domain"
)

// DomainEventType enumerates in-process domain event identifiers consumed by
// background listeners such as notifications.
type DomainEventType string

const (
	DomainEventTicketCreated       DomainEventType = "ticket_created"
	DomainEventTicketStatusChanged DomainEventType = "ticket_status_changed"
	DomainEventChatMessageAdded    DomainEventType = "chat_message_added"
	DomainEventConversationCreated DomainEventType = "conversation_created"
)

// DomainEvent represents an event emitted by services for in-process listeners.
type DomainEvent struct {
	ID       string          `json:"id"`
	Type     DomainEventType `json:"type"`
	TicketID string          `json:"ticket_id"`
	ActorID  string          `json:"actor_id"`
	Role     domain.UserRole `json:"role"`
	Payload  interface{}     `json:"payload"`
}

// StatusChangedPayload describes a ticket status transition.
type StatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Implicit  bool                `json:"implicit"`
}

// MessageAddedPayload describes a persisted chat message.
type MessageAddedPayload struct {
	MessageID   string `json:"message_id"`
	BodyPreview string `json:"body_preview"`
}

// DomainEventHandler handles a published domain event.
type DomainEventHandler func(context.Context, DomainEvent) error

// Dispatcher allows synchronous in-process event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event DomainEvent) error
	Subscribe(eventType DomainEventType, handler DomainEventHandler)
}

type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[DomainEventType][]DomainEventHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[DomainEventType][]DomainEventHandler),
	}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event DomainEvent) error {
	d.mu.RLock()
	handlers := append([]DomainEventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			// continue processing other handlers despite errors
		}
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType DomainEventType, handler DomainEventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}
