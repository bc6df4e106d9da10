package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/edusupport/internal/domain"
	"github.com/spec-kit/edusupport/internal/events"
)

// ReceiptMarker issues delivered/seen acknowledgements on behalf of the
// session's viewer. Implemented by service.ChatService.
type ReceiptMarker interface {
	MarkDelivered(ctx context.Context, messageID, userID string) error
	MarkSeen(ctx context.Context, messageID, userID string) error
}

// Session is one participant's view of a room: the local transcript merged
// from the seeded history and incoming broadcast events. Merging is
// idempotent; duplicate suppression uses a message-ID index rather than a
// tail comparison so re-delivery after a reconnect cannot reintroduce a
// message anywhere in the list.
type Session struct {
	roomID string
	userID string
	marker ReceiptMarker
	logger *zap.Logger

	mu         sync.Mutex
	transcript []domain.ChatMessage
	index      map[string]int
	seenLocal  map[string]struct{}
	typingUser string
	status     domain.TicketStatus
}

// New creates a session for a viewer joined to a room.
func New(roomID, userID string, marker ReceiptMarker, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		roomID:    roomID,
		userID:    userID,
		marker:    marker,
		logger:    logger,
		index:     make(map[string]int),
		seenLocal: make(map[string]struct{}),
	}
}

// Seed loads the transcript fetched from the store on (re)join. It replaces
// any prior local state; reconciliation after a disconnect is exactly a
// re-seed.
func (s *Session) Seed(status domain.TicketStatus, msgs []domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.transcript = make([]domain.ChatMessage, 0, len(msgs))
	s.index = make(map[string]int, len(msgs))
	s.seenLocal = make(map[string]struct{}, len(msgs))
	for _, msg := range msgs {
		if _, dup := s.index[msg.ID]; dup {
			continue
		}
		s.index[msg.ID] = len(s.transcript)
		s.transcript = append(s.transcript, msg)
		if msg.SeenByUser(s.userID) {
			s.seenLocal[msg.ID] = struct{}{}
		}
	}
}

// HandleEvent merges one broadcast event into local state. Safe to call with
// re-delivered events; the merge is idempotent.
func (s *Session) HandleEvent(ctx context.Context, event events.RoomEvent) {
	switch event.Type {
	case events.EventNewMessage:
		s.onNewMessage(ctx, event)
	case events.EventDelivered:
		s.onReceipt(event, false)
	case events.EventMessageSeen:
		s.onReceipt(event, true)
	case events.EventTyping:
		s.onTyping(event)
	case events.EventStopTyping:
		s.onStopTyping(event)
	case events.EventTicketStatusChanged:
		s.onStatusChanged(event)
	}
}

func (s *Session) onNewMessage(ctx context.Context, event events.RoomEvent) {
	payload := event.Message
	if payload == nil {
		return
	}

	s.mu.Lock()
	_, dup := s.index[payload.MessageID]
	if !dup {
		s.index[payload.MessageID] = len(s.transcript)
		s.transcript = append(s.transcript, domain.ChatMessage{
			ID:             payload.MessageID,
			ConversationID: payload.ConversationID,
			SenderID:       payload.SenderID,
			Body:           payload.Body,
			Seq:            payload.Seq,
			Attachments:    payload.Attachments,
			CreatedAt:      payload.CreatedAt,
		})
	}
	// A message from the typing user supersedes their typing signal.
	if s.typingUser == payload.SenderID {
		s.typingUser = ""
	}
	foreign := payload.SenderID != s.userID
	s.mu.Unlock()

	if !dup && foreign {
		if err := s.marker.MarkDelivered(ctx, payload.MessageID, s.userID); err != nil {
			s.logger.Warn("delivered ack failed",
				zap.String("message_id", payload.MessageID),
				zap.Error(err))
		}
	}
}

func (s *Session) onReceipt(event events.RoomEvent, seen bool) {
	payload := event.Receipt
	if payload == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[payload.MessageID]
	if !ok {
		return
	}
	msg := &s.transcript[pos]
	if seen {
		if !msg.SeenByUser(payload.UserID) {
			msg.SeenBy = append(msg.SeenBy, payload.UserID)
		}
		if payload.UserID == s.userID {
			s.seenLocal[payload.MessageID] = struct{}{}
		}
	}
	// Seen implies delivered; record the weaker mark either way.
	if !msg.DeliveredTo(payload.UserID) {
		msg.DeliveredBy = append(msg.DeliveredBy, payload.UserID)
	}
}

func (s *Session) onTyping(event events.RoomEvent) {
	if event.Typing == nil || event.Typing.UserID == s.userID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// At most one indicator per room; the last signal wins.
	s.typingUser = event.Typing.UserID
}

func (s *Session) onStopTyping(event events.RoomEvent) {
	if event.Typing == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingUser == event.Typing.UserID {
		s.typingUser = ""
	}
}

func (s *Session) onStatusChanged(event events.RoomEvent) {
	if event.Status == nil || event.Status.TicketID != s.roomID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = event.Status.NewStatus
}

// SeenSweep marks every foreign message the viewer has not yet seen. It is
// re-run on every transcript change and is idempotent: messages already
// swept are skipped, and a redundant MarkSeen is harmless.
func (s *Session) SeenSweep(ctx context.Context) {
	s.mu.Lock()
	pending := make([]string, 0)
	for _, msg := range s.transcript {
		if msg.SenderID == s.userID {
			continue
		}
		if _, done := s.seenLocal[msg.ID]; done {
			continue
		}
		pending = append(pending, msg.ID)
	}
	s.mu.Unlock()

	for _, messageID := range pending {
		if err := s.marker.MarkSeen(ctx, messageID, s.userID); err != nil {
			s.logger.Warn("seen ack failed",
				zap.String("message_id", messageID),
				zap.Error(err))
			continue
		}
		s.mu.Lock()
		s.seenLocal[messageID] = struct{}{}
		s.mu.Unlock()
	}
}

// Transcript returns a copy of the merged message log in order.
func (s *Session) Transcript() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// TypingUser returns the user currently typing, or empty.
func (s *Session) TypingUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingUser
}

// Status returns the last observed ticket status.
func (s *Session) Status() domain.TicketStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
