package domain

import "time"

// Conversation is the chat room bound 1:1 to a ticket. It is created lazily
// on the first message and never deleted while the ticket exists.
type Conversation struct {
	ID             string
	TicketID       string
	StudentID      string
	TeacherID      string
	LastActivityAt time.Time
	CreatedAt      time.Time
}

// IsParticipant reports whether the user belongs to this conversation.
func (c *Conversation) IsParticipant(userID string) bool {
	return c.StudentID == userID || c.TeacherID == userID
}

// Recipient returns the participant on the other side of the conversation.
func (c *Conversation) Recipient(senderID string) string {
	if c.StudentID == senderID {
		return c.TeacherID
	}
	return c.StudentID
}
