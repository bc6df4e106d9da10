package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/edusupport/internal/domain"
)

// MessageRepository manages the append-only conversation transcript.
// Messages are totally ordered by the seq column, which reflects commit
// order and is stable across repeated reads.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.ChatMessage) error
	GetByID(ctx context.Context, id string) (*domain.ChatMessage, error)
	ListByConversation(ctx context.Context, conversationID string) ([]domain.ChatMessage, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	const query = `
        INSERT INTO chat_messages (conversation_id, sender_id, body)
        VALUES ($1,$2,$3)
        RETURNING id, seq, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.ConversationID,
		msg.SenderID,
		msg.Body,
	).Scan(&msg.ID, &msg.Seq, &msg.CreatedAt)
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.ChatMessage, error) {
	const query = `
        SELECT id, conversation_id, sender_id, body, seq, created_at
        FROM chat_messages WHERE id=$1`
	var msg domain.ChatMessage
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Body,
		&msg.Seq,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	const query = `
        SELECT id, conversation_id, sender_id, body, seq, created_at
        FROM chat_messages WHERE conversation_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.Body,
			&msg.Seq,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
