package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/edusupport/internal/domain"
	"github.com/spec-kit/edusupport/internal/events"
)

type recordingMarker struct {
	mu        sync.Mutex
	delivered []string
	seen      []string
	failSeen  error
}

func (m *recordingMarker) MarkDelivered(_ context.Context, messageID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = append(m.delivered, messageID)
	return nil
}

func (m *recordingMarker) MarkSeen(_ context.Context, messageID, _ string) error {
	if m.failSeen != nil {
		return m.failSeen
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, messageID)
	return nil
}

func newMessageEvent(msgID, senderID string, seq int64) events.RoomEvent {
	return events.RoomEvent{
		Type: events.EventNewMessage,
		Message: &events.MessagePayload{
			MessageID: msgID,
			SenderID:  senderID,
			Body:      "hello",
			Seq:       seq,
		},
	}
}

func TestSession_DuplicateMessageAppearsOnce(t *testing.T) {
	marker := &recordingMarker{}
	sess := New("t1", "student", marker, nil)
	sess.Seed(domain.TicketStatusOpen, nil)
	ctx := context.Background()

	event := newMessageEvent("m1", "teacher", 1)
	sess.HandleEvent(ctx, event)
	sess.HandleEvent(ctx, event)
	sess.HandleEvent(ctx, event)

	transcript := sess.Transcript()
	assert.Len(t, transcript, 1)
	assert.Equal(t, "m1", transcript[0].ID)
	// The delivered ack fires once, on first sight.
	assert.Equal(t, []string{"m1"}, marker.delivered)
}

func TestSession_DedupeSurvivesInterleaving(t *testing.T) {
	marker := &recordingMarker{}
	sess := New("t1", "student", marker, nil)
	sess.Seed(domain.TicketStatusOpen, nil)
	ctx := context.Background()

	// A re-delivered older message must not reappear even when it is no
	// longer the transcript tail.
	sess.HandleEvent(ctx, newMessageEvent("m1", "teacher", 1))
	sess.HandleEvent(ctx, newMessageEvent("m2", "teacher", 2))
	sess.HandleEvent(ctx, newMessageEvent("m1", "teacher", 1))

	transcript := sess.Transcript()
	assert.Len(t, transcript, 2)
	assert.Equal(t, "m1", transcript[0].ID)
	assert.Equal(t, "m2", transcript[1].ID)
}

func TestSession_OwnMessageNotAcked(t *testing.T) {
	marker := &recordingMarker{}
	sess := New("t1", "student", marker, nil)
	sess.Seed(domain.TicketStatusOpen, nil)

	sess.HandleEvent(context.Background(), newMessageEvent("m1", "student", 1))

	assert.Len(t, sess.Transcript(), 1)
	assert.Empty(t, marker.delivered)
}

func TestSession_ReceiptMerge(t *testing.T) {
	marker := &recordingMarker{}
	sess := New("t1", "student", marker, nil)
	sess.Seed(domain.TicketStatusOpen, []domain.ChatMessage{{ID: "m1", SenderID: "student"}})
	ctx := context.Background()

	sess.HandleEvent(ctx, events.RoomEvent{
		Type:    events.EventMessageSeen,
		Receipt: &events.ReceiptPayload{MessageID: "m1", UserID: "teacher"},
	})

	transcript := sess.Transcript()
	assert.Equal(t, []string{"teacher"}, transcript[0].SeenBy)
	// Seen implies delivered.
	assert.Equal(t, []string{"teacher"}, transcript[0].DeliveredBy)

	// Replaying the receipt must not duplicate the mark.
	sess.HandleEvent(ctx, events.RoomEvent{
		Type:    events.EventMessageSeen,
		Receipt: &events.ReceiptPayload{MessageID: "m1", UserID: "teacher"},
	})
	transcript = sess.Transcript()
	assert.Equal(t, []string{"teacher"}, transcript[0].SeenBy)
	assert.Equal(t, []string{"teacher"}, transcript[0].DeliveredBy)
}

func TestSession_TypingLastWins(t *testing.T) {
	marker := &recordingMarker{}
	sess := New("t1", "student", marker, nil)
	sess.Seed(domain.TicketStatusOpen, nil)
	ctx := context.Background()

	sess.HandleEvent(ctx, events.RoomEvent{Type: events.EventTyping, Typing: &events.TypingPayload{UserID: "teacher"}})
	assert.Equal(t, "teacher", sess.TypingUser())

	sess.HandleEvent(ctx, events.RoomEvent{Type: events.EventTyping, Typing: &events.TypingPayload{UserID: "admin"}})
	assert.Equal(t, "admin", sess.TypingUser())

	// Own typing echoes are ignored.
	sess.HandleEvent(ctx, events.RoomEvent{Type: events.EventTyping, Typing: &events.TypingPayload{UserID: "student"}})
	assert.Equal(t, "admin", sess.TypingUser())

	sess.HandleEvent(ctx, events.RoomEvent{Type: events.EventStopTyping, Typing: &events.TypingPayload{UserID: "admin"}})
	assert.Empty(t, sess.TypingUser())
}

func TestSession_MessageClearsTypingIndicator(t *testing.T) {
	marker := &recordingMarker{}
	sess := New("t1", "student", marker, nil)
	sess.Seed(domain.TicketStatusOpen, nil)
	ctx := context.Background()

	sess.HandleEvent(ctx, events.RoomEvent{Type: events.EventTyping, Typing: &events.TypingPayload{UserID: "teacher"}})
	sess.HandleEvent(ctx, newMessageEvent("m1", "teacher", 1))

	assert.Empty(t, sess.TypingUser())
}

func TestSession_StatusTracksOwnRoomOnly(t *testing.T) {
	marker := &recordingMarker{}
	sess := New("t1", "student", marker, nil)
	sess.Seed(domain.TicketStatusOpen, nil)
	ctx := context.Background()

	sess.HandleEvent(ctx, events.RoomEvent{
		Type:   events.EventTicketStatusChanged,
		Status: &events.StatusPayload{TicketID: "t1", NewStatus: domain.TicketStatusUnderReview},
	})
	assert.Equal(t, domain.TicketStatusUnderReview, sess.Status())

	sess.HandleEvent(ctx, events.RoomEvent{
		Type:   events.EventTicketStatusChanged,
		Status: &events.StatusPayload{TicketID: "other", NewStatus: domain.TicketStatusClosed},
	})
	assert.Equal(t, domain.TicketStatusUnderReview, sess.Status())
}

func TestSession_SeenSweepIdempotent(t *testing.T) {
	marker := &recordingMarker{}
	sess := New("t1", "student", marker, nil)
	sess.Seed(domain.TicketStatusOpen, []domain.ChatMessage{
		{ID: "m1", SenderID: "teacher"},
		{ID: "m2", SenderID: "student"},
		{ID: "m3", SenderID: "teacher", SeenBy: []string{"student"}},
	})
	ctx := context.Background()

	sess.SeenSweep(ctx)
	// Only the unseen foreign message is swept: m2 is the viewer's own,
	// m3 was already seen per the seeded transcript.
	assert.Equal(t, []string{"m1"}, marker.seen)

	sess.SeenSweep(ctx)
	assert.Equal(t, []string{"m1"}, marker.seen)

	sess.HandleEvent(ctx, newMessageEvent("m4", "teacher", 4))
	sess.SeenSweep(ctx)
	assert.Equal(t, []string{"m1", "m4"}, marker.seen)
}

func TestSession_ReseedReconciles(t *testing.T) {
	marker := &recordingMarker{}
	sess := New("t1", "student", marker, nil)
	sess.Seed(domain.TicketStatusOpen, nil)
	ctx := context.Background()

	sess.HandleEvent(ctx, newMessageEvent("m1", "teacher", 1))

	// Reconnect: the store is authoritative again.
	sess.Seed(domain.TicketStatusUnderReview, []domain.ChatMessage{
		{ID: "m1", SenderID: "teacher", SeenBy: []string{"student"}},
		{ID: "m2", SenderID: "student"},
	})

	transcript := sess.Transcript()
	assert.Len(t, transcript, 2)
	assert.Equal(t, domain.TicketStatusUnderReview, sess.Status())

	// The seeded seen mark suppresses a redundant sweep.
	sess.SeenSweep(ctx)
	assert.Empty(t, marker.seen)
}
