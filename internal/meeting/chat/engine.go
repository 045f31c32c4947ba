package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
)

// ErrEmptyMessage is returned by Send for blank input; no network call
// is made in that case.
var ErrEmptyMessage = errors.New("empty message")

// Store is the chat persistence collaborator. Persistence is the
// authoritative copy of the timeline.
type Store interface {
	Append(ctx context.Context, msg models.ChatMessage) error
	Query(ctx context.Context, sessionID int64) ([]models.ChatMessage, error)
}

// Channel is the per-session realtime pub/sub collaborator. Fan-out is
// best-effort and at-least-once.
type Channel interface {
	Subscribe(ctx context.Context, roomID string, onMessage func(payload []byte)) (unsubscribe func(), err error)
	Publish(ctx context.Context, roomID string, payload any) error
}

// Engine keeps one session's chat timeline synchronized: it sends,
// receives, deduplicates and tracks the unread indicator. Messages are
// appended in arrival order; the transport does not guarantee ordering
// across senders and the engine does not re-sort.
type Engine struct {
	store   Store
	channel Channel

	session models.Session
	local   models.LocalParticipant

	clock func() time.Time

	mu          sync.Mutex
	messages    []models.ChatMessage
	seen        map[dedupKey]struct{}
	unread      int
	panelOpen   bool
	unsubscribe func()
}

// dedupKey is deliberately coarse: the local echo via realtime fan-out
// and the persisted copy of the same message can carry slightly
// different timestamps, so exact matching would under-deduplicate.
type dedupKey struct {
	sender string
	text   string
	minute int64
}

func NewEngine(store Store, channel Channel, session models.Session, local models.LocalParticipant) *Engine {
	return &Engine{
		store:   store,
		channel: channel,
		session: session,
		local:   local,
		clock:   time.Now,
		seen:    make(map[dedupKey]struct{}),
	}
}

// Start subscribes to the session's realtime channel and seeds the
// timeline from persistence. Safe to call once per join.
func (e *Engine) Start(ctx context.Context) error {
	unsubscribe, err := e.channel.Subscribe(ctx, e.session.RoomID, e.onReceive)
	if err != nil {
		return fmt.Errorf("subscribe chat channel: %w", err)
	}

	e.mu.Lock()
	e.unsubscribe = unsubscribe
	e.mu.Unlock()

	history, err := e.store.Query(ctx, e.session.ID)
	if err != nil {
		// History backfill is best-effort; live traffic still flows.
		slog.Warn("chat history query failed", slog.Any(constant.Error, err))
		return nil
	}

	for _, msg := range history {
		msg.Persisted = true
		e.append(msg)
	}

	return nil
}

// Stop releases the realtime subscription. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Send persists the message and publishes it on the realtime channel.
// The two effects are independent and unordered: a fan-out failure
// never rolls back persistence and vice versa. Blank input is rejected
// locally with ErrEmptyMessage.
func (e *Engine) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	msg := models.ChatMessage{
		SessionID:  e.session.ID,
		RoomID:     e.session.RoomID,
		SenderID:   e.local.Identity,
		SenderName: e.local.Name,
		Text:       text,
		SentAt:     e.clock().UTC(),
	}

	var persistErr error
	if err := e.store.Append(ctx, msg); err != nil {
		persistErr = fmt.Errorf("persist chat message: %w", err)
	} else {
		msg.Persisted = true
	}

	ev := events.ChatEvent{
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		SentAt:     msg.SentAt.Format(time.RFC3339),
	}
	if err := e.channel.Publish(ctx, e.session.RoomID, events.Envelope(events.TypeChat, ev)); err != nil {
		// Persistence is authoritative; realtime failures are logged
		// and ignored.
		slog.Warn("chat fan-out failed", slog.Any(constant.Error, err))
	}

	e.append(msg)

	return persistErr
}

// onReceive handles one realtime payload. It tolerates both a bare
// ChatEvent and an envelope whose data is itself a serialized string.
func (e *Engine) onReceive(payload []byte) {
	ev, ok := decodeChatEvent(payload)
	if !ok {
		slog.Warn("undecodable chat payload")
		return
	}

	msg := models.ChatMessage{
		SessionID:  e.session.ID,
		RoomID:     e.session.RoomID,
		SenderID:   ev.SenderID,
		SenderName: ev.SenderName,
		Text:       ev.Text,
	}

	if ts, err := time.Parse(time.RFC3339, ev.SentAt); err == nil {
		msg.SentAt = ts
	} else {
		// Sender did not stamp a time; display with local receive time.
		msg.SentAt = e.clock().UTC()
	}

	e.append(msg)
}

// append adds the message to the timeline unless a duplicate is
// already present, and bumps the unread indicator for remote messages
// while the panel is closed.
func (e *Engine) append(msg models.ChatMessage) {
	key := dedupKey{
		sender: msg.SenderID,
		text:   msg.Text,
		minute: msg.SentAt.UTC().Truncate(time.Minute).Unix(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.seen[key]; dup {
		return
	}

	e.seen[key] = struct{}{}
	e.messages = append(e.messages, msg)

	if msg.SenderID != e.local.Identity && !e.panelOpen {
		e.unread++
	}
}

// Messages returns the timeline in arrival order.
func (e *Engine) Messages() []models.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.ChatMessage, len(e.messages))
	copy(out, e.messages)

	return out
}

// Unread reports whether unseen remote messages arrived while the
// panel was closed.
func (e *Engine) Unread() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.unread > 0
}

// SetPanelOpen tracks the chat panel's visibility; opening it clears
// the unread indicator.
func (e *Engine) SetPanelOpen(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.panelOpen = open
	if open {
		e.unread = 0
	}
}

func (e *Engine) PanelOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.panelOpen
}

func decodeChatEvent(payload []byte) (events.ChatEvent, bool) {
	var envelope events.Message
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Type == events.TypeChat {
		payload = envelope.Data
	}

	// Some publishers double-encode: the data is a JSON string holding
	// the real object.
	var inner string
	if err := json.Unmarshal(payload, &inner); err == nil {
		payload = []byte(inner)
	}

	var ev events.ChatEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return events.ChatEvent{}, false
	}

	if ev.SenderID == "" && ev.Text == "" {
		return events.ChatEvent{}, false
	}

	return ev, true
}
