package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusUnderReview TicketStatus = "UNDER_REVIEW"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
)

// ValidStatus reports whether the status is a known value.
func ValidStatus(status TicketStatus) bool {
	switch status {
	case TicketStatusOpen, TicketStatusUnderReview, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketCategory groups tickets by topic.
type TicketCategory string

const (
	CategoryStudyHelp      TicketCategory = "STUDY_HELP"
	CategoryExamDoubts     TicketCategory = "EXAM_DOUBTS"
	CategoryTechnicalIssue TicketCategory = "TECHNICAL_ISSUE"
	CategoryAdministrative TicketCategory = "ADMINISTRATIVE"
	CategoryOther          TicketCategory = "OTHER"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Ticket is the aggregate for student support requests.
type Ticket struct {
	ID          string
	StudentID   string
	TeacherID   *string
	Title       string
	Description string
	Category    TicketCategory
	Priority    TicketPriority
	Status      TicketStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
	ClosedAt    *time.Time
}

// IsParticipant reports whether the user takes part in this ticket's conversation.
func (t *Ticket) IsParticipant(userID string) bool {
	if t.StudentID == userID {
		return true
	}
	return t.TeacherID != nil && *t.TeacherID == userID
}
