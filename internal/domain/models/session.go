package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one schedulable, time-bounded meeting.
type Session struct {
	ID       int64  `json:"id" db:"id"`
	RoomID   string `json:"room_id" db:"room_id"`
	Title    string `json:"title" db:"title"`
	IsActive bool   `json:"is_active" db:"is_active"`

	StartsAt time.Time  `json:"starts_at" db:"starts_at"`
	EndsAt   *time.Time `json:"ends_at" db:"ends_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func NewSession(title string, startsAt time.Time, endsAt *time.Time) *Session {
	now := time.Now().UTC()

	return &Session{
		RoomID:    uuid.NewString(),
		Title:     title,
		IsActive:  true,
		StartsAt:  startsAt.UTC(),
		EndsAt:    endsAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
