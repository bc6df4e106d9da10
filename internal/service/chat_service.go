package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/edusupport/internal/config"
	"github.com/spec-kit/edusupport/internal/domain"
	"github.com/spec-kit/edusupport/internal/events"
	"github.com/spec-kit/edusupport/internal/repository"
	apperrors "github.com/spec-kit/edusupport/pkg/util"
)

// ChatService coordinates the chat workflow: submit, persist, ticket status
// transition, broadcast, and receipt tracking. Correctness rests on the
// store's idempotent writes and unique indexes, not on mutual exclusion.
type ChatService struct {
	tickets       repository.TicketRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	attachments   repository.AttachmentRepository
	receipts      repository.ReceiptRepository
	broker        events.Broker
	dispatcher    events.Dispatcher
	logger        *zap.Logger

	maxAttachments int
	maxBodyBytes   int
}

// ChatDependencies bundles collaborators for the chat service.
type ChatDependencies struct {
	TicketRepo       repository.TicketRepository
	ConversationRepo repository.ConversationRepository
	MessageRepo      repository.MessageRepository
	AttachmentRepo   repository.AttachmentRepository
	ReceiptRepo      repository.ReceiptRepository
	Broker           events.Broker
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// MessageAttachmentInput defines attachment metadata supplied on submit.
type MessageAttachmentInput struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// NewChatService constructs the service.
func NewChatService(cfg config.ChatConfig, deps ChatDependencies) *ChatService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		tickets:        deps.TicketRepo,
		conversations:  deps.ConversationRepo,
		messages:       deps.MessageRepo,
		attachments:    deps.AttachmentRepo,
		receipts:       deps.ReceiptRepo,
		broker:         deps.Broker,
		dispatcher:     deps.Dispatcher,
		logger:         logger,
		maxAttachments: cfg.MaxAttachments,
		maxBodyBytes:   cfg.MaxBodyBytes,
	}
}

// SubmitMessage validates access, persists the message, applies the
// message-driven ticket transition and broadcasts the result. The returned
// ticket reflects any status change; callers must not assume the status is
// unchanged. Broadcast failures are logged and never fail the submit: the
// message is durably stored and other participants pick it up on their next
// transcript fetch.
func (s *ChatService) SubmitMessage(ctx context.Context, actor *domain.User, ticketID, body string, attachments []MessageAttachmentInput) (*domain.ChatMessage, *domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.ensureParticipant(actor, ticket); err != nil {
		return nil, nil, err
	}
	if actor.Role == domain.RoleStudent && !domain.CanStudentMessage(ticket.Status) {
		return nil, nil, apperrors.NewForbidden("ticket is not open for student messages")
	}

	body = strings.TrimSpace(body)
	if body == "" && len(attachments) == 0 {
		return nil, nil, apperrors.NewValidationError("message body or attachment is required", nil)
	}
	if s.maxBodyBytes > 0 && len(body) > s.maxBodyBytes {
		return nil, nil, apperrors.NewValidationError("message body too large", map[string]any{"max_bytes": s.maxBodyBytes})
	}
	if s.maxAttachments > 0 && len(attachments) > s.maxAttachments {
		return nil, nil, apperrors.NewValidationError("too many attachments", map[string]any{"max": s.maxAttachments})
	}

	conv, err := s.getOrCreateConversation(ctx, ticket, actor)
	if err != nil {
		return nil, nil, err
	}

	msg := &domain.ChatMessage{
		ConversationID: conv.ID,
		SenderID:       actor.ID,
		Body:           body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	for _, att := range attachments {
		record := &domain.AttachmentReference{
			MessageID:  msg.ID,
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		}
		if err := s.attachments.Create(ctx, record); err != nil {
			return nil, nil, apperrors.MapError(err)
		}
		msg.Attachments = append(msg.Attachments, *record)
	}
	if err := s.conversations.TouchActivity(ctx, conv.ID); err != nil {
		s.logger.Warn("failed to bump conversation activity", zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	if next, changed := domain.ApplyMessageTransition(actor.Role, ticket.Status); changed {
		old := ticket.Status
		ticket.Status = next
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, nil, apperrors.MapError(err)
		}
		s.announceStatusChange(ctx, actor, ticket, old, true)
	}

	s.publishRoomEvent(ctx, ticket.ID, events.RoomEvent{
		Type:    events.EventNewMessage,
		Message: events.MessageFromDomain(msg),
	})
	s.publishDomainEvent(ctx, events.DomainEvent{
		Type:     events.DomainEventChatMessageAdded,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Role:     actor.Role,
		Payload: events.MessageAddedPayload{
			MessageID:   msg.ID,
			BodyPreview: stringPreview(msg.Body, 120),
		},
	})
	return msg, ticket, nil
}

// Transcript returns the full ordered message log of the ticket's
// conversation with delivered/seen sets hydrated. Used for initial load and
// for reconciliation after a reconnect.
func (s *ChatService) Transcript(ctx context.Context, actor *domain.User, ticketID string) (*domain.Conversation, []domain.ChatMessage, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.ensureParticipant(actor, ticket); err != nil {
		return nil, nil, err
	}

	conv, err := s.conversations.GetByTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No message posted yet; the conversation is created lazily.
			return nil, []domain.ChatMessage{}, nil
		}
		return nil, nil, apperrors.MapError(err)
	}

	msgs, err := s.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if err := s.hydrate(ctx, conv.ID, msgs); err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// MarkDelivered records that the message event reached the recipient's
// client. Idempotent; a sender marking their own message is a no-op.
func (s *ChatService) MarkDelivered(ctx context.Context, messageID, userID string) error {
	msg, conv, err := s.messageRoom(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return nil
	}
	if !conv.IsParticipant(userID) {
		return apperrors.NewForbidden("not a participant of this conversation")
	}
	if err := s.receipts.MarkDelivered(ctx, messageID, userID); err != nil {
		return apperrors.MapError(err)
	}
	s.publishRoomEvent(ctx, conv.TicketID, events.RoomEvent{
		Type:    events.EventDelivered,
		Receipt: &events.ReceiptPayload{MessageID: messageID, UserID: userID},
	})
	return nil
}

// MarkSeen records a read receipt. Seen implies delivered; marking twice has
// no additional effect.
func (s *ChatService) MarkSeen(ctx context.Context, messageID, userID string) error {
	msg, conv, err := s.messageRoom(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return nil
	}
	if !conv.IsParticipant(userID) {
		return apperrors.NewForbidden("not a participant of this conversation")
	}
	if err := s.receipts.MarkSeen(ctx, messageID, userID); err != nil {
		return apperrors.MapError(err)
	}
	s.publishRoomEvent(ctx, conv.TicketID, events.RoomEvent{
		Type:    events.EventMessageSeen,
		Receipt: &events.ReceiptPayload{MessageID: messageID, UserID: userID},
	})
	return nil
}

// DeliveryStatus derives the tri-state rendering status of a message for a
// viewer: seen implies delivered implies sent. An unknown message is NotFound,
// never "sent".
func (s *ChatService) DeliveryStatus(ctx context.Context, messageID, viewerID string) (domain.DeliveryState, error) {
	_, conv, err := s.messageRoom(ctx, messageID)
	if err != nil {
		return "", err
	}
	if !conv.IsParticipant(viewerID) {
		return "", apperrors.NewForbidden("not a participant of this conversation")
	}
	receipt, err := s.receipts.Get(ctx, messageID, viewerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No receipt row yet for this viewer.
			return domain.DeliverySent, nil
		}
		return "", apperrors.MapError(err)
	}
	if receipt.SeenAt != nil {
		return domain.DeliverySeen, nil
	}
	if receipt.DeliveredAt != nil {
		return domain.DeliveryDelivered, nil
	}
	return domain.DeliverySent, nil
}

// NotifyTyping broadcasts an ephemeral typing signal; never persisted.
func (s *ChatService) NotifyTyping(ctx context.Context, roomID, userID string) {
	s.publishRoomEvent(ctx, roomID, events.RoomEvent{
		Type:   events.EventTyping,
		Typing: &events.TypingPayload{UserID: userID},
	})
}

// NotifyStopTyping broadcasts the end of a typing signal.
func (s *ChatService) NotifyStopTyping(ctx context.Context, roomID, userID string) {
	s.publishRoomEvent(ctx, roomID, events.RoomEvent{
		Type:   events.EventStopTyping,
		Typing: &events.TypingPayload{UserID: userID},
	})
}

// UpdateStatus applies an explicit status change by a teacher or admin. The
// manual override is unconstrained; entering RESOLVED or CLOSED stamps the
// matching timestamp, leaving clears it.
func (s *ChatService) UpdateStatus(ctx context.Context, actor *domain.User, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	if actor.Role != domain.RoleTeacher && actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("only teachers or admins can change ticket status")
	}
	if !domain.ValidStatus(newStatus) {
		return nil, apperrors.NewValidationError("unknown ticket status", map[string]any{"status": newStatus})
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleTeacher && (ticket.TeacherID == nil || *ticket.TeacherID != actor.ID) {
		return nil, apperrors.NewForbidden("ticket is not assigned to you")
	}

	old := ticket.Status
	ticket.Status = newStatus
	stampStatusTimes(ticket)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.announceStatusChange(ctx, actor, ticket, old, false)
	return ticket, nil
}

func (s *ChatService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *ChatService) ensureParticipant(actor *domain.User, ticket *domain.Ticket) error {
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	if !ticket.IsParticipant(actor.ID) {
		return apperrors.NewForbidden("not a participant of this ticket")
	}
	return nil
}

// getOrCreateConversation creates the room lazily on first message. Two
// near-simultaneous first messages race on the ticket_id unique index; the
// loser re-fetches the winner instead of failing the submit.
func (s *ChatService) getOrCreateConversation(ctx context.Context, ticket *domain.Ticket, actor *domain.User) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByTicket(ctx, ticket.ID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}
	if ticket.TeacherID == nil {
		return nil, apperrors.NewValidationError("ticket is not assigned to a teacher yet", nil)
	}

	conv = &domain.Conversation{
		TicketID:  ticket.ID,
		StudentID: ticket.StudentID,
		TeacherID: *ticket.TeacherID,
	}
	createErr := s.conversations.Create(ctx, conv)
	if createErr == nil {
		s.publishDomainEvent(ctx, events.DomainEvent{
			Type:     events.DomainEventConversationCreated,
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Role:     actor.Role,
		})
		return conv, nil
	}
	if errors.Is(createErr, repository.ErrConversationExists) {
		conv, err = s.conversations.GetByTicket(ctx, ticket.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		return conv, nil
	}
	return nil, apperrors.MapError(createErr)
}

func (s *ChatService) messageRoom(ctx context.Context, messageID string) (*domain.ChatMessage, *domain.Conversation, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, apperrors.NewNotFound("message", map[string]any{"message_id": messageID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	conv, err := s.conversations.GetByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return msg, conv, nil
}

func (s *ChatService) hydrate(ctx context.Context, conversationID string, msgs []domain.ChatMessage) error {
	attachments, err := s.attachments.ListByConversation(ctx, conversationID)
	if err != nil {
		return apperrors.MapError(err)
	}
	receipts, err := s.receipts.ListByConversation(ctx, conversationID)
	if err != nil {
		return apperrors.MapError(err)
	}

	attByMsg := make(map[string][]domain.AttachmentReference)
	for _, att := range attachments {
		attByMsg[att.MessageID] = append(attByMsg[att.MessageID], att)
	}
	deliveredByMsg := make(map[string][]string)
	seenByMsg := make(map[string][]string)
	for _, receipt := range receipts {
		if receipt.DeliveredAt != nil {
			deliveredByMsg[receipt.MessageID] = append(deliveredByMsg[receipt.MessageID], receipt.UserID)
		}
		if receipt.SeenAt != nil {
			seenByMsg[receipt.MessageID] = append(seenByMsg[receipt.MessageID], receipt.UserID)
		}
	}
	for i := range msgs {
		msgs[i].Attachments = attByMsg[msgs[i].ID]
		msgs[i].DeliveredBy = deliveredByMsg[msgs[i].ID]
		msgs[i].SeenBy = seenByMsg[msgs[i].ID]
	}
	return nil
}

func (s *ChatService) announceStatusChange(ctx context.Context, actor *domain.User, ticket *domain.Ticket, old domain.TicketStatus, implicit bool) {
	s.publishRoomEvent(ctx, ticket.ID, events.RoomEvent{
		Type:   events.EventTicketStatusChanged,
		Status: &events.StatusPayload{TicketID: ticket.ID, NewStatus: ticket.Status},
	})
	s.publishDomainEvent(ctx, events.DomainEvent{
		Type:     events.DomainEventTicketStatusChanged,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Role:     actor.Role,
		Payload: events.StatusChangedPayload{
			OldStatus: old,
			NewStatus: ticket.Status,
			Implicit:  implicit,
		},
	})
}

func (s *ChatService) publishRoomEvent(ctx context.Context, roomID string, event events.RoomEvent) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, roomID, event); err != nil {
		s.logger.Warn("room broadcast failed",
			zap.String("room_id", roomID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func (s *ChatService) publishDomainEvent(ctx context.Context, event events.DomainEvent) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

var nowFunc = time.Now

func stampStatusTimes(ticket *domain.Ticket) {
	now := nowFunc()
	switch ticket.Status {
	case domain.TicketStatusResolved:
		ticket.ResolvedAt = &now
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &now
	default:
		ticket.ResolvedAt = nil
		ticket.ClosedAt = nil
	}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	cut := max
	suffix := ""
	if max > 3 {
		cut = max - 3
		suffix = "..."
	}
	// Back off to a rune boundary so the preview stays valid UTF-8.
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + suffix
}
