package domain

import "time"

// ChatMessage is an append-only transcript entry. Once persisted it is never
// edited or deleted; only its delivered/seen sets grow.
type ChatMessage struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	Seq            int64
	Attachments    []AttachmentReference
	DeliveredBy    []string
	SeenBy         []string
	CreatedAt      time.Time
}

// DeliveredTo reports whether the user has marked the message delivered.
func (m *ChatMessage) DeliveredTo(userID string) bool {
	return containsID(m.DeliveredBy, userID)
}

// SeenByUser reports whether the user has marked the message seen.
func (m *ChatMessage) SeenByUser(userID string) bool {
	return containsID(m.SeenBy, userID)
}

// AttachmentReference stores metadata for message attachments. Raw bytes live
// in external storage; only the reference travels with the message.
type AttachmentReference struct {
	ID         string
	MessageID  string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}

// MessageReceipt records a recipient's delivered/seen marks for one message.
// Marks are monotone: timestamps are only ever set, never cleared.
type MessageReceipt struct {
	MessageID   string
	UserID      string
	DeliveredAt *time.Time
	SeenAt      *time.Time
}

// DeliveryState is the tri-state rendering status of a message for a viewer.
type DeliveryState string

const (
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliverySeen      DeliveryState = "seen"
)

// DeliveryStateFor derives the tri-state status of a message for a viewer.
// Seen implies delivered implies sent.
func DeliveryStateFor(m *ChatMessage, viewerID string) DeliveryState {
	if m.SeenByUser(viewerID) {
		return DeliverySeen
	}
	if m.DeliveredTo(viewerID) {
		return DeliveryDelivered
	}
	return DeliverySent
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
