package models

import "time"

// ChatMessage is one entry in a session's chat timeline. SentAt is
// stamped by the sender, not by the transport; Persisted flips once the
// backend write has resolved.
type ChatMessage struct {
	ID         string    `json:"id,omitempty" db:"id"`
	SessionID  int64     `json:"session_id" db:"session_id"`
	RoomID     string    `json:"room_id" db:"room_id"`
	SenderID   string    `json:"sender_id" db:"sender_id"`
	SenderName string    `json:"sender_name" db:"sender_name"`
	Text       string    `json:"text" db:"text"`
	SentAt     time.Time `json:"sent_at" db:"sent_at"`
	Persisted  bool      `json:"-" db:"-"`
}
