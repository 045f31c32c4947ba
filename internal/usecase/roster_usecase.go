package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/infra/adapters/memory"
)

// ErrIdentityTaken rejects a join whose locally generated identity
// collides with a current room member.
var ErrIdentityTaken = errors.New("identity already present in room")

type RosterUsecase interface {
	Join(ctx context.Context, roomID string, member models.RoomMember) error
	Leave(ctx context.Context, roomID, identity string)
	SetPublished(ctx context.Context, roomID, identity, media string, published bool)
	Snapshot(ctx context.Context, roomID string) []models.RoomMember
}

type rosterUsecase struct {
	members     memory.RoomMembersRepository
	subscribers memory.SubscriberRepository
}

func NewRosterUsecase(members memory.RoomMembersRepository, subscribers memory.SubscriberRepository) RosterUsecase {
	return &rosterUsecase{
		members:     members,
		subscribers: subscribers,
	}
}

func (r *rosterUsecase) Join(ctx context.Context, roomID string, member models.RoomMember) error {
	if _, ok := r.members.Get(ctx, roomID, member.Identity); ok {
		return ErrIdentityTaken
	}

	r.members.Add(ctx, roomID, member)
	r.announce(roomID, events.TypeJoined, events.RosterEvent{RoomID: roomID, Identity: member.Identity})

	return nil
}

func (r *rosterUsecase) Leave(ctx context.Context, roomID, identity string) {
	r.members.Remove(ctx, roomID, identity)
	r.announce(roomID, events.TypeLeft, events.RosterEvent{RoomID: roomID, Identity: identity})
}

func (r *rosterUsecase) SetPublished(ctx context.Context, roomID, identity, media string, published bool) {
	r.members.SetPublished(ctx, roomID, identity, media, published)

	eventType := events.TypePublished
	if !published {
		eventType = events.TypeUnpublished
	}

	r.announce(roomID, eventType, events.RosterEvent{RoomID: roomID, Identity: identity, Media: media})
}

func (r *rosterUsecase) Snapshot(ctx context.Context, roomID string) []models.RoomMember {
	return r.members.List(ctx, roomID)
}

func (r *rosterUsecase) announce(roomID, eventType string, ev events.RosterEvent) {
	if err := r.subscribers.Broadcast(roomID, events.Envelope(eventType, ev)); err != nil {
		slog.Warn("roster broadcast failed",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, roomID),
		)
	}
}
