package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
)

type fakeStore struct {
	appended  []models.ChatMessage
	appendErr error
	history   []models.ChatMessage
	queryErr  error
}

func (f *fakeStore) Append(ctx context.Context, msg models.ChatMessage) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, msg)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, sessionID int64) ([]models.ChatMessage, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.history, nil
}

type fakeChannel struct {
	published    []any
	publishErr   error
	onMessage    func([]byte)
	unsubscribes int
}

func (f *fakeChannel) Subscribe(ctx context.Context, roomID string, onMessage func([]byte)) (func(), error) {
	f.onMessage = onMessage
	return func() { f.unsubscribes++ }, nil
}

func (f *fakeChannel) Publish(ctx context.Context, roomID string, payload any) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, payload)
	return nil
}

func newTestEngine(store *fakeStore, channel *fakeChannel) *Engine {
	session := models.Session{ID: 9, RoomID: "room-1"}
	local := models.LocalParticipant{Identity: "42", Name: "Ana"}

	e := NewEngine(store, channel, session, local)
	e.clock = func() time.Time {
		return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	}
	return e
}

func TestSendRejectsBlankInput(t *testing.T) {
	store := &fakeStore{}
	channel := &fakeChannel{}
	e := newTestEngine(store, channel)

	if err := e.Send(context.Background(), "   \t "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(store.appended) != 0 || len(channel.published) != 0 {
		t.Fatal("blank input must not reach the network")
	}
}

func TestSendPersistsAndPublishes(t *testing.T) {
	store := &fakeStore{}
	channel := &fakeChannel{}
	e := newTestEngine(store, channel)

	if err := e.Send(context.Background(), "hola"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(store.appended) != 1 {
		t.Fatalf("expected one persisted message, got %d", len(store.appended))
	}
	if len(channel.published) != 1 {
		t.Fatalf("expected one fan-out publish, got %d", len(channel.published))
	}
	if msgs := e.Messages(); len(msgs) != 1 || !msgs[0].Persisted {
		t.Fatalf("expected one persisted timeline entry, got %+v", msgs)
	}
}

func TestFanOutFailureDoesNotRollBackPersistence(t *testing.T) {
	store := &fakeStore{}
	channel := &fakeChannel{publishErr: errors.New("realtime down")}
	e := newTestEngine(store, channel)

	if err := e.Send(context.Background(), "hola"); err != nil {
		t.Fatalf("fan-out failure must not surface from Send, got %v", err)
	}
	if len(store.appended) != 1 {
		t.Fatal("persistence must survive a fan-out failure")
	}
}

func TestPersistFailureStillFansOut(t *testing.T) {
	store := &fakeStore{appendErr: errors.New("db down")}
	channel := &fakeChannel{}
	e := newTestEngine(store, channel)

	if err := e.Send(context.Background(), "hola"); err == nil {
		t.Fatal("expected persistence error to surface")
	}
	if len(channel.published) != 1 {
		t.Fatal("fan-out must still run when persistence fails")
	}
}

func TestEchoWithSubMinuteSkewIsDeduplicated(t *testing.T) {
	store := &fakeStore{}
	channel := &fakeChannel{}
	e := newTestEngine(store, channel)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := e.Send(context.Background(), "hola"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The realtime echo of our own message arrives with a timestamp a
	// few seconds off.
	echo, _ := json.Marshal(events.Envelope(events.TypeChat, events.ChatEvent{
		SenderID:   "42",
		SenderName: "Ana",
		Text:       "hola",
		SentAt:     time.Date(2026, 3, 14, 15, 9, 41, 0, time.UTC).Format(time.RFC3339),
	}))
	channel.onMessage(echo)

	if msgs := e.Messages(); len(msgs) != 1 {
		t.Fatalf("expected exactly one visible instance, got %d", len(msgs))
	}
}

func TestReceiveStringEnvelope(t *testing.T) {
	store := &fakeStore{}
	channel := &fakeChannel{}
	e := newTestEngine(store, channel)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	inner, _ := json.Marshal(events.ChatEvent{SenderID: "7", SenderName: "Leo", Text: "buenas"})
	doubleEncoded, _ := json.Marshal(string(inner))
	channel.onMessage(doubleEncoded)

	msgs := e.Messages()
	if len(msgs) != 1 || msgs[0].Text != "buenas" {
		t.Fatalf("expected decoded message from string envelope, got %+v", msgs)
	}
	if msgs[0].SentAt.IsZero() {
		t.Fatal("unstamped message must get a local receive time")
	}
}

func TestUnreadTracking(t *testing.T) {
	store := &fakeStore{}
	channel := &fakeChannel{}
	e := newTestEngine(store, channel)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	remote, _ := json.Marshal(events.ChatEvent{SenderID: "7", SenderName: "Leo", Text: "hey"})
	channel.onMessage(remote)

	if !e.Unread() {
		t.Fatal("remote message with closed panel must set unread")
	}

	e.SetPanelOpen(true)
	if e.Unread() {
		t.Fatal("opening the panel must clear unread")
	}

	// Own messages never count as unread.
	e.SetPanelOpen(false)
	if err := e.Send(context.Background(), "mine"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if e.Unread() {
		t.Fatal("own message must not set unread")
	}
}

func TestStartSeedsHistory(t *testing.T) {
	store := &fakeStore{history: []models.ChatMessage{
		{SenderID: "7", SenderName: "Leo", Text: "earlier", SentAt: time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)},
	}}
	channel := &fakeChannel{}
	e := newTestEngine(store, channel)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	msgs := e.Messages()
	if len(msgs) != 1 || !msgs[0].Persisted {
		t.Fatalf("expected persisted history entry, got %+v", msgs)
	}
}

func TestStopUnsubscribesOnce(t *testing.T) {
	store := &fakeStore{}
	channel := &fakeChannel{}
	e := newTestEngine(store, channel)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	e.Stop()
	e.Stop()

	if channel.unsubscribes != 1 {
		t.Fatalf("expected one unsubscribe, got %d", channel.unsubscribes)
	}
}

func TestArrivalOrderPreserved(t *testing.T) {
	store := &fakeStore{}
	channel := &fakeChannel{}
	e := newTestEngine(store, channel)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	late, _ := json.Marshal(events.ChatEvent{SenderID: "7", Text: "second", SentAt: "2026-03-14T15:00:00Z"})
	early, _ := json.Marshal(events.ChatEvent{SenderID: "7", Text: "first", SentAt: "2026-03-14T14:00:00Z"})
	channel.onMessage(late)
	channel.onMessage(early)

	msgs := e.Messages()
	if len(msgs) != 2 || msgs[0].Text != "second" || msgs[1].Text != "first" {
		t.Fatalf("messages must stay in arrival order, got %+v", msgs)
	}
}
