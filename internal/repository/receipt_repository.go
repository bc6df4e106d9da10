package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/edusupport/internal/domain"
)

// ReceiptRepository tracks per-recipient delivered/seen marks. All writes
// are idempotent upserts keyed by (message_id, user_id); marking twice has
// no additional effect and marks are never removed.
type ReceiptRepository interface {
	MarkDelivered(ctx context.Context, messageID, userID string) error
	MarkSeen(ctx context.Context, messageID, userID string) error
	Get(ctx context.Context, messageID, userID string) (*domain.MessageReceipt, error)
	ListByMessage(ctx context.Context, messageID string) ([]domain.MessageReceipt, error)
	ListByConversation(ctx context.Context, conversationID string) ([]domain.MessageReceipt, error)
}

type receiptRepository struct {
	pool *pgxpool.Pool
}

// NewReceiptRepository builds repository.
func NewReceiptRepository(pool *pgxpool.Pool) ReceiptRepository {
	return &receiptRepository{pool: pool}
}

func (r *receiptRepository) MarkDelivered(ctx context.Context, messageID, userID string) error {
	const query = `
        INSERT INTO message_receipts (message_id, user_id, delivered_at)
        VALUES ($1,$2,NOW())
        ON CONFLICT (message_id, user_id)
        DO UPDATE SET delivered_at = COALESCE(message_receipts.delivered_at, NOW())`
	_, err := r.pool.Exec(ctx, query, messageID, userID)
	return err
}

// MarkSeen records a seen mark; seen implies delivered, so delivered_at is
// backfilled when absent.
func (r *receiptRepository) MarkSeen(ctx context.Context, messageID, userID string) error {
	const query = `
        INSERT INTO message_receipts (message_id, user_id, delivered_at, seen_at)
        VALUES ($1,$2,NOW(),NOW())
        ON CONFLICT (message_id, user_id)
        DO UPDATE SET
            delivered_at = COALESCE(message_receipts.delivered_at, NOW()),
            seen_at      = COALESCE(message_receipts.seen_at, NOW())`
	_, err := r.pool.Exec(ctx, query, messageID, userID)
	return err
}

func (r *receiptRepository) Get(ctx context.Context, messageID, userID string) (*domain.MessageReceipt, error) {
	const query = `
        SELECT message_id, user_id, delivered_at, seen_at
        FROM message_receipts WHERE message_id=$1 AND user_id=$2`
	var receipt domain.MessageReceipt
	if err := r.pool.QueryRow(ctx, query, messageID, userID).Scan(
		&receipt.MessageID,
		&receipt.UserID,
		&receipt.DeliveredAt,
		&receipt.SeenAt,
	); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *receiptRepository) ListByMessage(ctx context.Context, messageID string) ([]domain.MessageReceipt, error) {
	const query = `
        SELECT message_id, user_id, delivered_at, seen_at
        FROM message_receipts WHERE message_id=$1`
	return r.list(ctx, query, messageID)
}

func (r *receiptRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.MessageReceipt, error) {
	const query = `
        SELECT rc.message_id, rc.user_id, rc.delivered_at, rc.seen_at
        FROM message_receipts rc
        JOIN chat_messages m ON m.id = rc.message_id
        WHERE m.conversation_id=$1`
	return r.list(ctx, query, conversationID)
}

func (r *receiptRepository) list(ctx context.Context, query string, arg any) ([]domain.MessageReceipt, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MessageReceipt
	for rows.Next() {
		var receipt domain.MessageReceipt
		if err := rows.Scan(
			&receipt.MessageID,
			&receipt.UserID,
			&receipt.DeliveredAt,
			&receipt.SeenAt,
		); err != nil {
			return nil, err
		}
		result = append(result, receipt)
	}
	return result, rows.Err()
}
