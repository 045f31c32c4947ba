package memory

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// SubscriberRepository tracks the websocket connections subscribed to
// each room's realtime channel and fans payloads out to them.
type SubscriberRepository interface {
	Add(roomID, connID string, conn *websocket.Conn)
	Remove(roomID, connID string)

	Broadcast(roomID string, payload any) error

	// Send writes the payload to one subscriber only; signaling
	// messages are addressed, never broadcast.
	Send(roomID, connID string, payload any) error
}

// safeConn serializes writes; gorilla connections allow only one
// concurrent writer.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *safeConn) writeJSON(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn.WriteJSON(payload)
}

type subscriberRepository struct {
	// subscribers stores map[room_id]map[conn_id]*safeConn
	subscribers map[string]map[string]*safeConn

	mu sync.RWMutex
}

func NewSubscriberRepository() SubscriberRepository {
	return &subscriberRepository{
		subscribers: make(map[string]map[string]*safeConn),
	}
}

func (s *subscriberRepository) Add(roomID, connID string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[roomID]; !ok {
		s.subscribers[roomID] = make(map[string]*safeConn)
	}

	s.subscribers[roomID][connID] = &safeConn{conn: conn}
}

func (s *subscriberRepository) Remove(roomID, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscribers[roomID], connID)

	if len(s.subscribers[roomID]) == 0 {
		delete(s.subscribers, roomID)
	}
}

func (s *subscriberRepository) Send(roomID, connID string, payload any) error {
	s.mu.RLock()
	conn, ok := s.subscribers[roomID][connID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("subscriber %s not found in room %s", connID, roomID)
	}

	if err := conn.writeJSON(payload); err != nil {
		return fmt.Errorf("write to subscriber: %w", err)
	}

	return nil
}

// Broadcast writes the payload to every subscriber of the room. A slow
// or broken connection only fails its own write; the error returned is
// the first one encountered.
func (s *subscriberRepository) Broadcast(roomID string, payload any) error {
	s.mu.RLock()
	conns := make([]*safeConn, 0, len(s.subscribers[roomID]))
	for _, conn := range s.subscribers[roomID] {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	var firstErr error
	for _, conn := range conns {
		if err := conn.writeJSON(payload); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("write to subscriber: %w", err)
		}
	}

	return firstErr
}
