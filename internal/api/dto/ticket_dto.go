package dto

import (
	"time"

	"github.com/spec-kit/edusupport/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	TeacherID string `json:"teacher_id"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID          string                `json:"id"`
	StudentID   string                `json:"student_id"`
	TeacherID   *string               `json:"teacher_id,omitempty"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Status      domain.TicketStatus   `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	ResolvedAt  *time.Time            `json:"resolved_at,omitempty"`
	ClosedAt    *time.Time            `json:"closed_at,omitempty"`
}

// TicketListResponse wraps a page of tickets.
type TicketListResponse struct {
	Tickets []TicketResponse `json:"tickets"`
	Count   int              `json:"count"`
}

// TicketFromDomain maps a ticket to its response form.
func TicketFromDomain(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          ticket.ID,
		StudentID:   ticket.StudentID,
		TeacherID:   ticket.TeacherID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Category:    ticket.Category,
		Priority:    ticket.Priority,
		Status:      ticket.Status,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
		ResolvedAt:  ticket.ResolvedAt,
		ClosedAt:    ticket.ClosedAt,
	}
}
