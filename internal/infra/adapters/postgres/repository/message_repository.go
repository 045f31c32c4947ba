package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/meetsync/meetsync/internal/domain/models"
)

type MessageRepository interface {
	Insert(ctx context.Context, msg *models.ChatMessage) error
	ListBySession(ctx context.Context, sessionID int64) ([]models.ChatMessage, error)
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepo(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Insert(ctx context.Context, msg *models.ChatMessage) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO messages (id, session_id, room_id, sender_id, sender_name, text, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID,
		msg.SessionID,
		msg.RoomID,
		msg.SenderID,
		msg.SenderName,
		msg.Text,
		msg.SentAt,
	)

	return err
}

func (r *messageRepo) ListBySession(ctx context.Context, sessionID int64) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage

	query := `
		SELECT id, session_id, room_id, sender_id, sender_name, text, sent_at
		FROM messages
		WHERE session_id = $1
		ORDER BY sent_at ASC
	`

	err := r.db.SelectContext(ctx, &messages, query, sessionID)
	if err != nil {
		return nil, err
	}

	return messages, nil
}
