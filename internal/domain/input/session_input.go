package input

import "time"

type CreateSessionInput struct {
	Title    string
	StartsAt time.Time
	EndsAt   *time.Time
}
