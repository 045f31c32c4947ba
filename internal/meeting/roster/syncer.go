package roster

import (
	"context"
	"log/slog"
	"time"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
)

// DefaultPollInterval is the poll backstop period while in a call.
const DefaultPollInterval = 2 * time.Second

// Snapshotter pulls the transport's current authoritative roster.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]models.RemoteParticipant, error)
}

// Syncer feeds one Registry from two independent triggers: transport
// push events (low latency) and a fixed-interval poll (correctness
// backstop that cannot go stale even if every event is dropped). Both
// paths end in the same idempotent Reconcile.
type Syncer struct {
	registry *Registry
	source   Snapshotter
	interval time.Duration

	// kick coalesces event-driven reconcile requests.
	kick chan struct{}
}

func NewSyncer(registry *Registry, source Snapshotter, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Syncer{
		registry: registry,
		source:   source,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// OnEvent handles a transport roster event. Left removes immediately;
// everything else just requests an early reconcile.
func (s *Syncer) OnEvent(ev events.RosterEvent, eventType string) {
	if eventType == events.TypeLeft {
		s.registry.Remove(ev.Identity)
	}

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Snapshot failures keep the current
// roster; the next tick retries.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.kick:
		}

		s.reconcileOnce(ctx)
	}
}

func (s *Syncer) reconcileOnce(ctx context.Context) {
	snapshot, err := s.source.Snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("roster snapshot failed", slog.Any(constant.Error, err))
		}
		return
	}

	// A snapshot that resolves after cancellation must not repopulate
	// a registry the session has already cleared.
	if ctx.Err() != nil {
		return
	}

	s.registry.Reconcile(snapshot)
}
