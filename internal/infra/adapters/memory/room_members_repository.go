package memory

import (
	"context"
	"sync"

	"github.com/meetsync/meetsync/internal/domain/models"
)

type RoomMembersRepository interface {
	Add(ctx context.Context, roomID string, member models.RoomMember)
	Remove(ctx context.Context, roomID, identity string)
	Get(ctx context.Context, roomID, identity string) (models.RoomMember, bool)
	SetPublished(ctx context.Context, roomID, identity, media string, published bool)

	// List returns the room's current members; the authoritative
	// snapshot served to polling clients.
	List(ctx context.Context, roomID string) []models.RoomMember
}

type roomMembersRepository struct {
	members map[string]map[string]*models.RoomMember
	mu      sync.RWMutex
}

func NewRoomMembersRepository() RoomMembersRepository {
	return &roomMembersRepository{
		members: make(map[string]map[string]*models.RoomMember),
	}
}

func (r *roomMembersRepository) Add(ctx context.Context, roomID string, member models.RoomMember) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[roomID]; !ok {
		r.members[roomID] = make(map[string]*models.RoomMember)
	}

	r.members[roomID][member.Identity] = &member
}

func (r *roomMembersRepository) Remove(ctx context.Context, roomID, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[roomID]; !ok {
		return
	}

	delete(r.members[roomID], identity)

	if len(r.members[roomID]) == 0 {
		delete(r.members, roomID)
	}
}

func (r *roomMembersRepository) Get(ctx context.Context, roomID, identity string) (models.RoomMember, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	member, ok := r.members[roomID][identity]
	if !ok {
		return models.RoomMember{}, false
	}

	return *member, true
}

func (r *roomMembersRepository) SetPublished(ctx context.Context, roomID, identity, media string, published bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	member, ok := r.members[roomID][identity]
	if !ok {
		return
	}

	switch media {
	case "audio":
		member.AudioPublished = published
	case "video":
		member.VideoPublished = published
	}
}

func (r *roomMembersRepository) List(ctx context.Context, roomID string) []models.RoomMember {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.members[roomID]
	if !ok {
		return nil
	}

	members := make([]models.RoomMember, 0, len(room))
	for _, member := range room {
		members = append(members, *member)
	}

	return members
}
