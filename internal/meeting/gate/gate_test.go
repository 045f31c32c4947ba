package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meetsync/meetsync/internal/domain/models"
)

var now = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func sessionAt(start time.Time, end *time.Time, active bool) *models.Session {
	return &models.Session{ID: 1, RoomID: "room-1", StartsAt: start, EndsAt: end, IsActive: active}
}

func TestEvaluate(t *testing.T) {
	end := now.Add(50 * time.Minute)

	tests := []struct {
		name    string
		session *models.Session
		want    Verdict
	}{
		{"missing record", nil, NotFound},
		{"before start", sessionAt(now.Add(10*time.Minute), nil, true), Waiting},
		{"at start instant", sessionAt(now, nil, true), Live},
		{"mid window", sessionAt(now.Add(-10*time.Minute), &end, true), Live},
		{"at end instant", sessionAt(now.Add(-50*time.Minute), &now, true), Live},
		{"past end", sessionAt(now.Add(-2*time.Hour), timePtr(now.Add(-time.Minute)), true), Expired},
		{"no end, active", sessionAt(now.Add(-2*time.Hour), nil, true), Live},
		{"inactive past end", sessionAt(now.Add(-2*time.Hour), timePtr(now.Add(-time.Hour)), false), Expired},
		{"inactive without end", sessionAt(now.Add(-10*time.Minute), nil, false), Expired},
		{"inactive before start", sessionAt(now.Add(10*time.Minute), nil, false), Expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(now, tt.session); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

type fakeFetcher struct {
	sessions []*models.Session
	err      error
	calls    int
}

func (f *fakeFetcher) SessionByRoomID(ctx context.Context, roomID string) (*models.Session, error) {
	idx := f.calls
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if idx >= len(f.sessions) {
		idx = len(f.sessions) - 1
	}
	return f.sessions[idx], nil
}

func TestWatcherPromotesWaitingToLive(t *testing.T) {
	fetcher := &fakeFetcher{sessions: []*models.Session{
		sessionAt(now.Add(time.Minute), nil, true),
		sessionAt(now.Add(-time.Minute), nil, true),
	}}

	w := NewWatcher(fetcher, "room-1", time.Minute)
	w.clock = func() time.Time { return now }

	var transitions []Verdict
	w.OnChange = func(v Verdict) { transitions = append(transitions, v) }

	if got := w.Refresh(context.Background()); got != Waiting {
		t.Fatalf("expected Waiting, got %v", got)
	}
	if got := w.Refresh(context.Background()); got != Live {
		t.Fatalf("expected Live, got %v", got)
	}
	if len(transitions) != 2 || transitions[1] != Live {
		t.Fatalf("expected transitions [Waiting Live], got %v", transitions)
	}
}

func TestWatcherDemotesLiveToExpired(t *testing.T) {
	fetcher := &fakeFetcher{sessions: []*models.Session{
		sessionAt(now.Add(-time.Minute), nil, true),
		sessionAt(now.Add(-time.Minute), nil, false),
	}}

	w := NewWatcher(fetcher, "room-1", time.Minute)
	w.clock = func() time.Time { return now }

	if got := w.Refresh(context.Background()); got != Live {
		t.Fatalf("expected Live, got %v", got)
	}
	if got := w.Refresh(context.Background()); got != Expired {
		t.Fatalf("expected Expired after server-side end, got %v", got)
	}
}

func TestWatcherKeepsVerdictOnFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{sessions: []*models.Session{
		sessionAt(now.Add(-time.Minute), nil, true),
	}}

	w := NewWatcher(fetcher, "room-1", time.Minute)
	w.clock = func() time.Time { return now }

	if got := w.Refresh(context.Background()); got != Live {
		t.Fatalf("expected Live, got %v", got)
	}

	fetcher.err = errors.New("gateway unreachable")
	if got := w.Refresh(context.Background()); got != Live {
		t.Fatalf("fetch failure must keep the last verdict, got %v", got)
	}
}
