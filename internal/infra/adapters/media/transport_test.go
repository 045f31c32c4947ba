package media

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/meetsync/meetsync/internal/application/config"
	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/infra/adapters/memory"
	"github.com/meetsync/meetsync/internal/meeting/track"
	"github.com/meetsync/meetsync/internal/usecase"
)

// loopbackHub stands in for the websocket hub: addressed signaling
// frames from the gateway go straight back to the client's handler.
type loopbackHub struct {
	mu       sync.Mutex
	handlers map[string]func(msgType string, data json.RawMessage)
}

func newLoopbackHub() *loopbackHub {
	return &loopbackHub{handlers: make(map[string]func(string, json.RawMessage))}
}

func (h *loopbackHub) register(identity string, handler func(string, json.RawMessage)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.handlers[identity] = handler
}

func (h *loopbackHub) Add(string, string, *websocket.Conn) {}

func (h *loopbackHub) Remove(string, string) {}

func (h *loopbackHub) Broadcast(string, any) error { return nil }

func (h *loopbackHub) Send(roomID, connID string, payload any) error {
	msg, ok := payload.(events.Message)
	if !ok {
		return fmt.Errorf("unexpected hub payload %T", payload)
	}

	h.mu.Lock()
	handler := h.handlers[connID]
	h.mu.Unlock()

	if handler == nil {
		return fmt.Errorf("no subscriber %s in room %s", connID, roomID)
	}

	handler(msg.Type, msg.Data)

	return nil
}

// loopbackSignaler wires a transport to a live forwarding usecase
// without a network between them.
type loopbackSignaler struct {
	hub      *loopbackHub
	sfu      usecase.SFUUsecase
	roomID   string
	identity string

	mu     sync.Mutex
	signal func(msgType string, data json.RawMessage)
	offers int
}

func (s *loopbackSignaler) Connect(ctx context.Context, roomID, identity, name, token string) error {
	s.hub.register(identity, func(msgType string, data json.RawMessage) {
		s.mu.Lock()
		handler := s.signal
		s.mu.Unlock()

		if handler != nil {
			handler(msgType, data)
		}
	})

	return s.sfu.AddPeer(roomID, identity)
}

func (s *loopbackSignaler) OnSignal(handler func(msgType string, data json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.signal = handler
}

func (s *loopbackSignaler) OnRosterEvent(func(string, events.RosterEvent)) {}

func (s *loopbackSignaler) Announce(string, events.RosterEvent) error { return nil }

func (s *loopbackSignaler) Close() error { return nil }

func (s *loopbackSignaler) SendSignal(msgType string, payload any) error {
	if msgType == events.TypeOffer {
		s.mu.Lock()
		s.offers++
		s.mu.Unlock()
	}

	switch ev := payload.(type) {
	case events.SdpEvent:
		if msgType == events.TypeOffer {
			return s.sfu.HandleOffer(s.roomID, s.identity, ev)
		}
		return s.sfu.HandleAnswer(s.roomID, s.identity, ev)
	case events.CandidateEvent:
		return s.sfu.HandleCandidate(s.roomID, s.identity, ev)
	default:
		return fmt.Errorf("unexpected signal payload %T", payload)
	}
}

func (s *loopbackSignaler) offerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.offers
}

type noMembers struct{}

func (noMembers) RoomMembers(context.Context, string) ([]models.RoomMember, error) {
	return nil, nil
}

func newLoopback(identity string) (*Transport, *loopbackSignaler, memory.PeerRepository) {
	hub := newLoopbackHub()
	peers := memory.NewPeerRepository()
	sfu := usecase.NewSFUUsecase(
		&config.Config{StunURL: "stun:stun.l.google.com:19302"},
		peers,
		hub,
	)

	sig := &loopbackSignaler{hub: hub, sfu: sfu, roomID: "room-1", identity: identity}

	return NewTransport(noMembers{}, sig, "Ana", nil), sig, peers
}

func TestJoinCompletesSignalingExchange(t *testing.T) {
	tr, sig, peers := newLoopback("7")

	if err := tr.Join(context.Background(), "meetsync-test", "room-1", "token", "7"); err != nil {
		t.Fatalf("join: %v", err)
	}
	defer tr.Leave(context.Background())

	tr.mu.Lock()
	pc := tr.pc
	tr.mu.Unlock()

	if pc.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("expected stable signaling after join, got %v", pc.SignalingState())
	}
	if pc.RemoteDescription() == nil {
		t.Fatal("expected the gateway answer to be applied")
	}
	if sig.offerCount() != 1 {
		t.Fatalf("expected exactly one offer at join, got %d", sig.offerCount())
	}

	peer, ok := peers.Get("room-1", "7")
	if !ok {
		t.Fatal("expected a gateway-side peer for the joined identity")
	}
	if peer.Conn.RemoteDescription() == nil {
		t.Fatal("expected the gateway peer to hold the client offer")
	}
	if peer.Conn.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("expected stable gateway peer, got %v", peer.Conn.SignalingState())
	}
}

func TestPublishRenegotiatesWithGateway(t *testing.T) {
	tr, sig, peers := newLoopback("7")

	if err := tr.Join(context.Background(), "meetsync-test", "room-1", "token", "7"); err != nil {
		t.Fatalf("join: %v", err)
	}
	defer tr.Leave(context.Background())

	devices := NewDevices(NewSilenceSource(), nil)
	dev, err := devices.AcquireMicrophone(context.Background())
	if err != nil {
		t.Fatalf("acquire microphone: %v", err)
	}
	defer dev.Stop()

	if err := tr.Publish(context.Background(), []track.DeviceTrack{dev}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if sig.offerCount() != 2 {
		t.Fatalf("expected a renegotiation offer after publish, got %d offers", sig.offerCount())
	}

	tr.mu.Lock()
	pc := tr.pc
	tr.mu.Unlock()

	if pc.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("expected stable signaling after publish, got %v", pc.SignalingState())
	}

	peer, _ := peers.Get("room-1", "7")
	if peer.Conn.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("expected stable gateway peer after publish, got %v", peer.Conn.SignalingState())
	}
}

func TestJoinFailureClosesConnection(t *testing.T) {
	hub := newLoopbackHub()
	sfu := usecase.NewSFUUsecase(
		&config.Config{StunURL: "stun:stun.l.google.com:19302"},
		memory.NewPeerRepository(),
		hub,
	)

	sig := &failingSignaler{loopbackSignaler{hub: hub, sfu: sfu, roomID: "room-1", identity: "7"}}
	tr := NewTransport(noMembers{}, sig, "Ana", nil)

	if err := tr.Join(context.Background(), "meetsync-test", "room-1", "token", "7"); err == nil {
		t.Fatal("expected join to fail when the channel cannot connect")
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.pc != nil {
		t.Fatal("a failed join must not leave a dangling peer connection")
	}
}

type failingSignaler struct {
	loopbackSignaler
}

func (s *failingSignaler) Connect(context.Context, string, string, string, string) error {
	return fmt.Errorf("connection refused")
}
