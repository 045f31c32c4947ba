// Package realtime is the client side of the gateway's per-room
// websocket: chat fan-out in both directions plus roster event hints.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/events"
)

var (
	ErrIdentityTaken = errors.New("identity already in room")
	ErrNotConnected  = errors.New("realtime channel is not connected")
)

// Client multiplexes one websocket connection per session. Chat
// subscribers and the roster event handler share the same read loop.
type Client struct {
	baseURL string

	mu            sync.Mutex
	conn          *websocket.Conn
	chatHandlers  map[int]func(payload []byte)
	nextHandlerID int
	rosterHandler func(eventType string, ev events.RosterEvent)
	signalHandler func(msgType string, data json.RawMessage)

	writeMu sync.Mutex
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:      baseURL,
		chatHandlers: make(map[int]func(payload []byte)),
	}
}

// Connect dials the room's websocket and starts the read loop. An
// identity collision is reported as ErrIdentityTaken.
func (c *Client) Connect(ctx context.Context, roomID, identity, name, token string) error {
	endpoint, err := c.endpoint(roomID, identity, name, token)
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return ErrIdentityTaken
		}

		return fmt.Errorf("dial realtime channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	return nil
}

func (c *Client) endpoint(roomID, identity, name, token string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/ws"

	q := u.Query()
	q.Set("room", roomID)
	q.Set("identity", identity)
	q.Set("name", name)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("realtime read error", slog.Any(constant.Error, err))
			}

			return
		}

		c.dispatch(raw)
	}
}

func (c *Client) dispatch(raw []byte) {
	var msg events.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("undecodable realtime frame", slog.Any(constant.Error, err))
		return
	}

	switch msg.Type {
	case events.TypeChat:
		c.mu.Lock()
		handlers := make([]func([]byte), 0, len(c.chatHandlers))
		for _, h := range c.chatHandlers {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()

		for _, h := range handlers {
			h(raw)
		}

	case events.TypeJoined, events.TypeLeft, events.TypePublished, events.TypeUnpublished:
		var ev events.RosterEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("undecodable roster event", slog.Any(constant.Error, err))
			return
		}

		c.mu.Lock()
		handler := c.rosterHandler
		c.mu.Unlock()

		if handler != nil {
			handler(msg.Type, ev)
		}

	case events.TypeOffer, events.TypeAnswer, events.TypeCandidate:
		c.mu.Lock()
		handler := c.signalHandler
		c.mu.Unlock()

		if handler != nil {
			handler(msg.Type, msg.Data)
		}
	}
}

// Subscribe implements chat.Channel. The returned unsubscribe only
// detaches this handler; the shared connection stays up.
func (c *Client) Subscribe(_ context.Context, _ string, onMessage func(payload []byte)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	id := c.nextHandlerID
	c.nextHandlerID++
	c.chatHandlers[id] = onMessage

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.chatHandlers, id)
	}, nil
}

// Publish implements chat.Channel.
func (c *Client) Publish(_ context.Context, _ string, payload any) error {
	return c.write(payload)
}

// OnRosterEvent registers the single roster hint handler.
func (c *Client) OnRosterEvent(handler func(eventType string, ev events.RosterEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rosterHandler = handler
}

// OnSignal registers the single signaling handler. It must be set
// before Connect so no early offer or candidate is dropped.
func (c *Client) OnSignal(handler func(msgType string, data json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.signalHandler = handler
}

// Announce sends a roster event about the local participant, e.g. a
// publish or unpublish notification.
func (c *Client) Announce(eventType string, ev events.RosterEvent) error {
	return c.write(events.Envelope(eventType, ev))
}

// SendSignal pushes a signaling payload to the gateway's forwarding
// peer.
func (c *Client) SendSignal(msgType string, payload any) error {
	return c.write(events.Envelope(msgType, payload))
}

func (c *Client) write(payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("write realtime frame: %w", err)
	}

	return nil
}

// Close sends a normal close frame and drops the connection. Safe to
// call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, frame, time.Now().Add(time.Second)); err != nil {
		slog.Debug("realtime close frame", slog.Any(constant.Error, err))
	}

	return conn.Close()
}
