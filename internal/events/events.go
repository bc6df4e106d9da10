package events

import (
	"time"

	"github.com/spec-kit/edusupport/internal/domain"
)

// EventType enumerates room event identifiers. The names match the wire
// protocol consumed by the realtime front end.
type EventType string

const (
	EventNewMessage          EventType = "newMessage"
	EventDelivered           EventType = "delivered"
	EventMessageSeen         EventType = "messageSeen"
	EventTyping              EventType = "typing"
	EventStopTyping          EventType = "stopTyping"
	EventTicketStatusChanged EventType = "ticketStatusChanged"
)

// RoomEvent is the envelope fanned out to subscribers of a room. RoomID is
// the ticket identifier. Exactly one payload field is set, matching Type.
type RoomEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	RoomID    string          `json:"room_id"`
	Timestamp time.Time       `json:"timestamp"`
	Message   *MessagePayload `json:"message,omitempty"`
	Receipt   *ReceiptPayload `json:"receipt,omitempty"`
	Typing    *TypingPayload  `json:"typing,omitempty"`
	Status    *StatusPayload  `json:"status,omitempty"`
}

// MessagePayload carries a newly persisted message.
type MessagePayload struct {
	MessageID      string                       `json:"message_id"`
	ConversationID string                       `json:"conversation_id"`
	SenderID       string                       `json:"sender_id"`
	Body           string                       `json:"body"`
	Seq            int64                        `json:"seq"`
	Attachments    []domain.AttachmentReference `json:"attachments,omitempty"`
	CreatedAt      time.Time                    `json:"created_at"`
}

// ReceiptPayload carries a delivered or seen acknowledgement.
type ReceiptPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// TypingPayload carries an ephemeral typing signal.
type TypingPayload struct {
	UserID string `json:"user_id"`
}

// StatusPayload carries a ticket status change.
type StatusPayload struct {
	TicketID  string              `json:"ticket_id"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// MessageFromDomain builds the broadcast payload for a persisted message.
func MessageFromDomain(msg *domain.ChatMessage) *MessagePayload {
	return &MessagePayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		Seq:            msg.Seq,
		Attachments:    msg.Attachments,
		CreatedAt:      msg.CreatedAt,
	}
}
