package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/edusupport/internal/domain"
	"github.com/spec-kit/edusupport/internal/events"
	"github.com/spec-kit/edusupport/internal/repository"
	apperrors "github.com/spec-kit/edusupport/pkg/util"
)

// TicketService covers the ticket CRUD surface the chat subsystem depends
// on: creation, lookup with access control, listing, and teacher assignment.
// Status changes flow through ChatService so they broadcast to the room.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(tickets repository.TicketRepository, users repository.UserRepository, dispatcher events.Dispatcher) *TicketService {
	return &TicketService{tickets: tickets, users: users, dispatcher: dispatcher}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
}

// Create opens a new ticket for a student.
func (s *TicketService) Create(ctx context.Context, student *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if student.Role != domain.RoleStudent {
		return nil, apperrors.NewForbidden("only students can open tickets")
	}
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || description == "" {
		return nil, apperrors.NewValidationError("title and description required", nil)
	}

	ticket := &domain.Ticket{
		StudentID:   student.ID,
		Title:       title,
		Description: description,
		Category:    input.Category,
		Priority:    input.Priority,
		Status:      domain.TicketStatusOpen,
	}
	if ticket.Category == "" {
		ticket.Category = domain.CategoryOther
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.DomainEvent{
			Type:     events.DomainEventTicketCreated,
			TicketID: ticket.ID,
			ActorID:  student.ID,
			Role:     student.Role,
		})
	}
	return ticket, nil
}

// Get fetches a ticket, enforcing that only participants or admins see it.
func (s *TicketService) Get(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if actor.Role != domain.RoleAdmin && !ticket.IsParticipant(actor.ID) {
		return nil, apperrors.NewForbidden("not a participant of this ticket")
	}
	return ticket, nil
}

// List returns tickets visible to the actor: own tickets for students,
// assigned tickets for teachers, everything for admins.
func (s *TicketService) List(ctx context.Context, actor *domain.User, statuses []domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{
		Statuses: statuses,
		Limit:    limit,
		Offset:   offset,
	}
	switch actor.Role {
	case domain.RoleStudent:
		filter.StudentID = &actor.ID
	case domain.RoleTeacher:
		filter.TeacherID = &actor.ID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Assign sets the teacher handling a ticket. Admin only.
func (s *TicketService) Assign(ctx context.Context, actor *domain.User, ticketID, teacherID string) (*domain.Ticket, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("only admins can assign tickets")
	}
	teacher, err := s.users.GetByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("teacher", map[string]any{"teacher_id": teacherID})
		}
		return nil, apperrors.MapError(err)
	}
	if teacher.Role != domain.RoleTeacher {
		return nil, apperrors.NewValidationError("assignee must be a teacher", nil)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	ticket.TeacherID = &teacher.ID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}
