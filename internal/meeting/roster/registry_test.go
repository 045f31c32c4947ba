package roster

import (
	"context"
	"testing"
	"time"

	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
)

func snapshot(identities ...string) []models.RemoteParticipant {
	out := make([]models.RemoteParticipant, 0, len(identities))
	for _, id := range identities {
		out = append(out, models.RemoteParticipant{Identity: id})
	}
	return out
}

func visible(r *Registry) map[string]bool {
	out := make(map[string]bool)
	for _, p := range r.Participants() {
		out[p.Identity] = true
	}
	return out
}

func TestReconcileAddsParticipants(t *testing.T) {
	r := NewRegistry()

	r.Reconcile(snapshot("7", "12"))

	got := visible(r)
	if len(got) != 2 || !got["7"] || !got["12"] {
		t.Fatalf("expected {7, 12}, got %v", got)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Reconcile(snapshot("7", "12"))
	r.Reconcile(snapshot("7", "12"))
	r.Reconcile(snapshot("7", "12"))

	if len(r.Participants()) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(r.Participants()))
	}
}

func TestSingleMissDoesNotFlicker(t *testing.T) {
	r := NewRegistry()

	r.Reconcile(snapshot("7", "12"))
	r.Reconcile(snapshot("7")) // 12 dropped from one frame

	if !visible(r)["12"] {
		t.Fatal("participant must survive a single missed reconciliation")
	}

	r.Reconcile(snapshot("7")) // second consecutive miss

	if visible(r)["12"] {
		t.Fatal("participant must drop after two consecutive misses")
	}
}

func TestReappearanceResetsMissCount(t *testing.T) {
	r := NewRegistry()

	r.Reconcile(snapshot("7"))
	r.Reconcile(snapshot())    // miss 1
	r.Reconcile(snapshot("7")) // back
	r.Reconcile(snapshot())    // miss 1 again

	if !visible(r)["7"] {
		t.Fatal("reappearing participant must reset its miss count")
	}
}

func TestRemoveBypassesDebounce(t *testing.T) {
	r := NewRegistry()

	r.Reconcile(snapshot("7", "12"))
	r.Remove("12")

	if visible(r)["12"] {
		t.Fatal("explicit left must remove immediately")
	}
}

func TestFinalRosterMatchesLastSnapshot(t *testing.T) {
	r := NewRegistry()

	// Arbitrary interleaving of stale frames; two trailing agreeing
	// snapshots always win regardless of event ordering or loss.
	r.Reconcile(snapshot("1"))
	r.Reconcile(snapshot("1", "2", "3"))
	r.Reconcile(snapshot("2"))
	r.Reconcile(snapshot("4", "5"))
	r.Reconcile(snapshot("4", "5"))

	got := visible(r)
	if len(got) != 2 || !got["4"] || !got["5"] {
		t.Fatalf("expected final roster {4, 5}, got %v", got)
	}
}

type fakeTrack struct{ stops int }

func (f *fakeTrack) Stop() { f.stops++ }

func TestClearStopsBorrowedTracks(t *testing.T) {
	r := NewRegistry()
	audio := &fakeTrack{}
	video := &fakeTrack{}

	r.Reconcile([]models.RemoteParticipant{{Identity: "7", AudioTrack: audio, VideoTrack: video}})
	r.Clear()

	if audio.stops != 1 || video.stops != 1 {
		t.Fatalf("expected each borrowed track stopped once, got audio=%d video=%d", audio.stops, video.stops)
	}
	if len(r.Participants()) != 0 {
		t.Fatal("expected empty roster after clear")
	}
}

type fakeSnapshotter struct {
	snapshots [][]models.RemoteParticipant
	calls     int
}

func (f *fakeSnapshotter) Snapshot(ctx context.Context) ([]models.RemoteParticipant, error) {
	idx := f.calls
	if idx >= len(f.snapshots) {
		idx = len(f.snapshots) - 1
	}
	f.calls++
	return f.snapshots[idx], nil
}

func TestSyncerEventTriggersReconcile(t *testing.T) {
	r := NewRegistry()
	source := &fakeSnapshotter{snapshots: [][]models.RemoteParticipant{snapshot("7")}}
	s := NewSyncer(r, source, DefaultPollInterval)

	s.OnEvent(events.RosterEvent{Identity: "7"}, events.TypeJoined)
	s.reconcileOnce(context.Background())

	if !visible(r)["7"] {
		t.Fatal("expected event-kicked reconcile to populate the roster")
	}
}

// stallingSnapshotter blocks inside Snapshot until released, so the
// test can cancel the syncer while a reconcile is in flight.
type stallingSnapshotter struct {
	entered chan struct{}
	release chan struct{}
}

func (f *stallingSnapshotter) Snapshot(ctx context.Context) ([]models.RemoteParticipant, error) {
	f.entered <- struct{}{}
	<-f.release
	return snapshot("7"), nil
}

func TestSyncerDropsSnapshotResolvedAfterCancel(t *testing.T) {
	r := NewRegistry()
	source := &stallingSnapshotter{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := NewSyncer(r, source, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.OnEvent(events.RosterEvent{Identity: "7"}, events.TypeJoined)
	<-source.entered

	// Teardown order during a leave: cancel first, then clear.
	cancel()
	r.Clear()
	close(source.release)
	<-done

	if got := r.Participants(); len(got) != 0 {
		t.Fatalf("late snapshot must not repopulate a cleared roster, got %v", got)
	}
}

func TestSyncerLeftRemovesImmediately(t *testing.T) {
	r := NewRegistry()
	r.Reconcile(snapshot("7", "12"))

	s := NewSyncer(r, &fakeSnapshotter{snapshots: [][]models.RemoteParticipant{snapshot("7")}}, 0)
	s.OnEvent(events.RosterEvent{Identity: "12"}, events.TypeLeft)

	if visible(r)["12"] {
		t.Fatal("left event must remove the participant without waiting for the poll")
	}
}
