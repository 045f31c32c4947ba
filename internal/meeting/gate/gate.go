// Package gate decides whether a participant may enter a session:
// waiting room, live room or expired notice, from the record's
// scheduled window and activity flag alone.
package gate

import (
	"time"

	"github.com/meetsync/meetsync/internal/domain/models"
)

type Verdict int

const (
	NotFound Verdict = iota
	Expired
	Waiting
	Live
)

func (v Verdict) String() string {
	switch v {
	case NotFound:
		return "not_found"
	case Expired:
		return "expired"
	case Waiting:
		return "waiting"
	case Live:
		return "live"
	default:
		return "unknown"
	}
}

// Evaluate is a pure function of the clock and the session record.
// Boundary instants are inclusive on the live side: now == startsAt
// and now == endsAt are both Live.
func Evaluate(now time.Time, session *models.Session) Verdict {
	if session == nil {
		return NotFound
	}

	if session.EndsAt != nil && now.After(*session.EndsAt) {
		return Expired
	}

	if !session.IsActive {
		// Ended server-side, possibly before the scheduled end.
		return Expired
	}

	if now.Before(session.StartsAt) {
		return Waiting
	}

	return Live
}
