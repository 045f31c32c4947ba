package dto

import (
	"time"

	"github.com/meetsync/meetsync/internal/domain/models"
)

type CreateSessionRequest struct {
	Title    string     `json:"title"`
	StartsAt time.Time  `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

type SessionResponse struct {
	ID       int64      `json:"id"`
	RoomID   string     `json:"room_id"`
	Title    string     `json:"title"`
	IsActive bool       `json:"is_active"`
	StartsAt time.Time  `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

func NewSessionResponse(s *models.Session) SessionResponse {
	return SessionResponse{
		ID:       s.ID,
		RoomID:   s.RoomID,
		Title:    s.Title,
		IsActive: s.IsActive,
		StartsAt: s.StartsAt,
		EndsAt:   s.EndsAt,
	}
}

type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type AppendMessageRequest struct {
	SessionID  int64  `json:"session_id"`
	RoomID     string `json:"room_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
}

type ListMessagesResponse struct {
	Messages []models.ChatMessage `json:"messages"`
}

type RosterResponse struct {
	Members []models.RoomMember `json:"members"`
}
