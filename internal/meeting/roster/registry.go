package roster

import (
	"sync"

	"github.com/meetsync/meetsync/internal/domain/models"
)

// missThreshold is how many consecutive reconciliations a participant
// may be absent from before dropping out of the visible roster. A
// single missed frame must not flicker the tile.
const missThreshold = 2

type entry struct {
	participant models.RemoteParticipant
	misses      int
}

// Registry is the single source of truth for the remote roster. It is
// read by the renderer at any time and mutated only by Reconcile and
// Remove; push events never write to it directly.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Reconcile replaces the registry's contents with the transport's
// authoritative snapshot. Full replace, not incremental merge: calling
// it twice with the same snapshot is a no-op, so racing triggers are
// harmless. Participants absent from the snapshot are retained until
// they miss missThreshold consecutive reconciliations.
func (r *Registry) Reconcile(snapshot []models.RemoteParticipant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(snapshot))

	for _, p := range snapshot {
		seen[p.Identity] = struct{}{}

		if e, ok := r.entries[p.Identity]; ok {
			e.participant = p
			e.misses = 0
			continue
		}

		r.entries[p.Identity] = &entry{participant: p}
	}

	for identity, e := range r.entries {
		if _, ok := seen[identity]; ok {
			continue
		}

		e.misses++
		if e.misses >= missThreshold {
			delete(r.entries, identity)
		}
	}
}

// Remove drops a participant immediately, bypassing the miss debounce.
// Used for explicit left events.
func (r *Registry) Remove(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, identity)
}

// Participants returns the visible roster.
func (r *Registry) Participants() []models.RemoteParticipant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.RemoteParticipant, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.participant)
	}

	return out
}

// Get returns the participant with the given identity, if visible.
func (r *Registry) Get(identity string) (models.RemoteParticipant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[identity]
	if !ok {
		return models.RemoteParticipant{}, false
	}

	return e.participant, true
}

// Clear stops every borrowed remote track reference and empties the
// registry. Stopping a reference releases only our side; the remote
// peer's publication is untouched.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for identity, e := range r.entries {
		if e.participant.AudioTrack != nil {
			e.participant.AudioTrack.Stop()
		}
		if e.participant.VideoTrack != nil {
			e.participant.VideoTrack.Stop()
		}

		delete(r.entries, identity)
	}
}
