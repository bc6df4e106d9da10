package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/edusupport/internal/domain"
)

// AttachmentRepository stores attachment metadata for chat messages.
type AttachmentRepository interface {
	Create(ctx context.Context, att *domain.AttachmentReference) error
	ListByMessage(ctx context.Context, messageID string) ([]domain.AttachmentReference, error)
	ListByConversation(ctx context.Context, conversationID string) ([]domain.AttachmentReference, error)
}

type attachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository builds repository.
func NewAttachmentRepository(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepository{pool: pool}
}

func (r *attachmentRepository) Create(ctx context.Context, att *domain.AttachmentReference) error {
	const query = `
        INSERT INTO message_attachments (message_id, storage_key, file_name, mime_type, size_bytes)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		att.MessageID,
		att.StorageKey,
		att.FileName,
		att.MimeType,
		att.SizeBytes,
	).Scan(&att.ID, &att.CreatedAt)
}

func (r *attachmentRepository) ListByMessage(ctx context.Context, messageID string) ([]domain.AttachmentReference, error) {
	const query = `
        SELECT id, message_id, storage_key, file_name, mime_type, size_bytes, created_at
        FROM message_attachments WHERE message_id=$1 ORDER BY created_at ASC`
	return r.list(ctx, query, messageID)
}

func (r *attachmentRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.AttachmentReference, error) {
	const query = `
        SELECT a.id, a.message_id, a.storage_key, a.file_name, a.mime_type, a.size_bytes, a.created_at
        FROM message_attachments a
        JOIN chat_messages m ON m.id = a.message_id
        WHERE m.conversation_id=$1 ORDER BY a.created_at ASC`
	return r.list(ctx, query, conversationID)
}

func (r *attachmentRepository) list(ctx context.Context, query string, arg any) ([]domain.AttachmentReference, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AttachmentReference
	for rows.Next() {
		var att domain.AttachmentReference
		if err := rows.Scan(
			&att.ID,
			&att.MessageID,
			&att.StorageKey,
			&att.FileName,
			&att.MimeType,
			&att.SizeBytes,
			&att.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, att)
	}
	return result, rows.Err()
}
