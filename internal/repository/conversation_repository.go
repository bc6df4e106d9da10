package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/edusupport/internal/domain"
)

// ErrConversationExists signals the ticket already has a conversation. The
// unique index on ticket_id arbitrates concurrent first-message races; the
// loser recovers by fetching the winner.
var ErrConversationExists = errors.New("conversation already exists for ticket")

const uniqueViolationCode = "23505"

// ConversationRepository manages the ticket-scoped chat rooms.
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	GetByTicket(ctx context.Context, ticketID string) (*domain.Conversation, error)
	TouchActivity(ctx context.Context, id string) error
}

type conversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository builds repository.
func NewConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepository{pool: pool}
}

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	const query = `
        INSERT INTO conversations (ticket_id, student_id, teacher_id)
        VALUES ($1,$2,$3)
        RETURNING id, last_activity_at, created_at`
	err := r.pool.QueryRow(ctx, query,
		conv.TicketID,
		conv.StudentID,
		conv.TeacherID,
	).Scan(&conv.ID, &conv.LastActivityAt, &conv.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrConversationExists
		}
		return err
	}
	return nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	const query = `
        SELECT id, ticket_id, student_id, teacher_id, last_activity_at, created_at
        FROM conversations WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *conversationRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.Conversation, error) {
	const query = `
        SELECT id, ticket_id, student_id, teacher_id, last_activity_at, created_at
        FROM conversations WHERE ticket_id=$1`
	return r.fetchSingle(ctx, query, ticketID)
}

func (r *conversationRepository) TouchActivity(ctx context.Context, id string) error {
	const query = `UPDATE conversations SET last_activity_at=NOW() WHERE id=$1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *conversationRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&conv.ID,
		&conv.TicketID,
		&conv.StudentID,
		&conv.TeacherID,
		&conv.LastActivityAt,
		&conv.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &conv, nil
}
