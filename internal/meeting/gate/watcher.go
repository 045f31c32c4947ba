package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/models"
)

// DefaultInterval is how often a gate-blocked screen re-checks the
// record, so Waiting promotes to Live and Live demotes to Expired
// without user action.
const DefaultInterval = 60 * time.Second

// SessionFetcher re-reads the session record by room id.
type SessionFetcher interface {
	SessionByRoomID(ctx context.Context, roomID string) (*models.Session, error)
}

// Watcher periodically re-evaluates the gate for one room while the
// participant sits on a pre-join screen.
type Watcher struct {
	fetcher  SessionFetcher
	roomID   string
	interval time.Duration
	clock    func() time.Time

	mu      sync.Mutex
	session *models.Session
	verdict Verdict

	// OnChange, when set, is invoked for every verdict transition.
	OnChange func(Verdict)
}

func NewWatcher(fetcher SessionFetcher, roomID string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Watcher{
		fetcher:  fetcher,
		roomID:   roomID,
		interval: interval,
		clock:    time.Now,
	}
}

// Refresh fetches the record once and re-evaluates. A fetch failure
// keeps the previous verdict and session; an open tab should not flip
// to NotFound because of one bad poll.
func (w *Watcher) Refresh(ctx context.Context) Verdict {
	session, err := w.fetcher.SessionByRoomID(ctx, w.roomID)
	if err != nil {
		slog.Warn("session refresh failed",
			slog.Any(constant.Error, err),
			slog.String(constant.RoomID, w.roomID),
		)

		w.mu.Lock()
		defer w.mu.Unlock()
		return w.verdict
	}

	verdict := Evaluate(w.clock(), session)

	w.mu.Lock()
	changed := verdict != w.verdict
	w.session = session
	w.verdict = verdict
	onChange := w.OnChange
	w.mu.Unlock()

	if changed && onChange != nil {
		onChange(verdict)
	}

	return verdict
}

// Run re-evaluates on the fixed interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}

func (w *Watcher) Verdict() Verdict {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.verdict
}

func (w *Watcher) Session() *models.Session {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.session
}
