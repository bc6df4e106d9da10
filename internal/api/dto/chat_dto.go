package dto

import (
	"time"

	"github.com/spec-kit/edusupport/internal/domain"
	"github.com/spec-kit/edusupport/internal/service"
)

// SendMessageRequest payload.
type SendMessageRequest struct {
	Body        string            `json:"body"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
}

// AttachmentInput describes one attachment reference on a new message.
type AttachmentInput struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// AttachmentResponse is the public view of an attachment reference.
type AttachmentResponse struct {
	ID         string `json:"id"`
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// MessageResponse is one transcript entry. Delivery is the tri-state status
// of the message from the requesting viewer's side.
type MessageResponse struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversation_id"`
	SenderID       string               `json:"sender_id"`
	Body           string               `json:"body"`
	Seq            int64                `json:"seq"`
	Attachments    []AttachmentResponse `json:"attachments,omitempty"`
	DeliveredBy    []string             `json:"delivered_by,omitempty"`
	SeenBy         []string             `json:"seen_by,omitempty"`
	Delivery       domain.DeliveryState `json:"delivery"`
	CreatedAt      time.Time            `json:"created_at"`
}

// SendMessageResponse reports the stored message and the ticket status after
// any message-driven transition.
type SendMessageResponse struct {
	Message      MessageResponse     `json:"message"`
	TicketStatus domain.TicketStatus `json:"ticket_status"`
}

// TranscriptResponse is the full ordered history of a ticket conversation.
type TranscriptResponse struct {
	TicketID       string              `json:"ticket_id"`
	ConversationID string              `json:"conversation_id,omitempty"`
	TicketStatus   domain.TicketStatus `json:"ticket_status"`
	Messages       []MessageResponse   `json:"messages"`
}

// DeliveryStatusResponse reports a message's tri-state status for the viewer.
type DeliveryStatusResponse struct {
	MessageID string               `json:"message_id"`
	Delivery  domain.DeliveryState `json:"delivery"`
}

// AttachmentInputsToService maps request attachments to the service form.
func AttachmentInputsToService(inputs []AttachmentInput) []service.MessageAttachmentInput {
	if len(inputs) == 0 {
		return nil
	}
	out := make([]service.MessageAttachmentInput, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, service.MessageAttachmentInput{
			StorageKey: in.StorageKey,
			FileName:   in.FileName,
			MimeType:   in.MimeType,
			SizeBytes:  in.SizeBytes,
		})
	}
	return out
}

// MessageFromDomain maps a message to its response form from the viewer's
// perspective. For the viewer's own messages the tri-state reflects the
// recipient's receipts, so senders see their ticks advance.
func MessageFromDomain(msg *domain.ChatMessage, viewerID string) MessageResponse {
	delivery := domain.DeliveryStateFor(msg, viewerID)
	if msg.SenderID == viewerID {
		switch {
		case len(msg.SeenBy) > 0:
			delivery = domain.DeliverySeen
		case len(msg.DeliveredBy) > 0:
			delivery = domain.DeliveryDelivered
		default:
			delivery = domain.DeliverySent
		}
	}
	attachments := make([]AttachmentResponse, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, AttachmentResponse{
			ID:         att.ID,
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}
	return MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		Seq:            msg.Seq,
		Attachments:    attachments,
		DeliveredBy:    msg.DeliveredBy,
		SeenBy:         msg.SeenBy,
		Delivery:       delivery,
		CreatedAt:      msg.CreatedAt,
	}
}
