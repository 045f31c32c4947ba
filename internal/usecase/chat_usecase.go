package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/infra/adapters/memory"
	"github.com/meetsync/meetsync/internal/infra/adapters/postgres/repository"
)

type ChatUsecase interface {
	// Append persists the message and fans it out on the room's
	// realtime channel. The two effects are independent: fan-out
	// failure never rolls back the write.
	Append(ctx context.Context, msg *models.ChatMessage) error
	Query(ctx context.Context, sessionID int64) ([]models.ChatMessage, error)
}

type chatUsecase struct {
	messageRepo repository.MessageRepository
	subscribers memory.SubscriberRepository
	clock       func() time.Time
}

func NewChatUsecase(messageRepo repository.MessageRepository, subscribers memory.SubscriberRepository) ChatUsecase {
	return &chatUsecase{
		messageRepo: messageRepo,
		subscribers: subscribers,
		clock:       time.Now,
	}
}

func (c *chatUsecase) Append(ctx context.Context, msg *models.ChatMessage) error {
	msg.ID = uuid.NewString()
	if msg.SentAt.IsZero() {
		msg.SentAt = c.clock().UTC()
	}

	if err := c.messageRepo.Insert(ctx, msg); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}

	ev := events.ChatEvent{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		SentAt:     msg.SentAt.Format(time.RFC3339),
	}

	if err := c.subscribers.Broadcast(msg.RoomID, events.Envelope(events.TypeChat, ev)); err != nil {
		slog.Warn("chat broadcast failed",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, msg.RoomID),
		)
	}

	return nil
}

func (c *chatUsecase) Query(ctx context.Context, sessionID int64) ([]models.ChatMessage, error) {
	messages, err := c.messageRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}

	return messages, nil
}
