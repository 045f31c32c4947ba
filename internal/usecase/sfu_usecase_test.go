package usecase

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/meetsync/meetsync/internal/application/config"
	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/infra/adapters/memory"
)

type capturingHub struct {
	mu    sync.Mutex
	sends []events.Message
}

func (h *capturingHub) Add(string, string, *websocket.Conn) {}

func (h *capturingHub) Remove(string, string) {}

func (h *capturingHub) Broadcast(string, any) error { return nil }

func (h *capturingHub) Send(roomID, connID string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg, ok := payload.(events.Message); ok {
		h.sends = append(h.sends, msg)
	}

	return nil
}

func (h *capturingHub) lastOfType(msgType string) (events.Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.sends) - 1; i >= 0; i-- {
		if h.sends[i].Type == msgType {
			return h.sends[i], true
		}
	}

	return events.Message{}, false
}

func newTestSFU(hub *capturingHub) (SFUUsecase, memory.PeerRepository) {
	peers := memory.NewPeerRepository()
	sfu := NewSFUUsecase(
		&config.Config{StunURL: "stun:stun.l.google.com:19302"},
		peers,
		hub,
	)

	return sfu, peers
}

func clientOffer(t *testing.T) (*webrtc.PeerConnection, webrtc.SessionDescription) {
	t.Helper()

	client, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("create client connection: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if _, err := client.CreateDataChannel("sync", nil); err != nil {
		t.Fatalf("create data channel: %v", err)
	}

	offer, err := client.CreateOffer(nil)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if err := client.SetLocalDescription(offer); err != nil {
		t.Fatalf("set local description: %v", err)
	}

	return client, offer
}

func TestOfferIsAnsweredForJoinedPeer(t *testing.T) {
	hub := &capturingHub{}
	sfu, _ := newTestSFU(hub)

	if err := sfu.AddPeer("room-1", "7"); err != nil {
		t.Fatalf("add peer: %v", err)
	}
	defer sfu.RemovePeer("room-1", "7")

	client, offer := clientOffer(t)

	if err := sfu.HandleOffer("room-1", "7", events.SdpEvent{SDP: offer.SDP}); err != nil {
		t.Fatalf("handle offer: %v", err)
	}

	answer, ok := hub.lastOfType(events.TypeAnswer)
	if !ok {
		t.Fatal("expected an answer sent back to the offering peer")
	}

	var ev events.SdpEvent
	if err := json.Unmarshal(answer.Data, &ev); err != nil {
		t.Fatalf("decode answer: %v", err)
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: ev.SDP}
	if err := client.SetRemoteDescription(remote); err != nil {
		t.Fatalf("apply gateway answer: %v", err)
	}

	if client.SignalingState() != webrtc.SignalingStateStable {
		t.Fatalf("expected stable client after answer, got %v", client.SignalingState())
	}
}

func TestSignalingRequiresJoinedPeer(t *testing.T) {
	sfu, _ := newTestSFU(&capturingHub{})

	if err := sfu.HandleOffer("room-1", "ghost", events.SdpEvent{}); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound for offer, got %v", err)
	}
	if err := sfu.HandleAnswer("room-1", "ghost", events.SdpEvent{}); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound for answer, got %v", err)
	}
	if err := sfu.HandleCandidate("room-1", "ghost", events.CandidateEvent{}); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound for candidate, got %v", err)
	}
}

func TestRemovePeerDropsConnection(t *testing.T) {
	sfu, peers := newTestSFU(&capturingHub{})

	if err := sfu.AddPeer("room-1", "7"); err != nil {
		t.Fatalf("add peer: %v", err)
	}

	sfu.RemovePeer("room-1", "7")

	if _, ok := peers.Get("room-1", "7"); ok {
		t.Fatal("expected the peer to be gone after removal")
	}

	// Removing twice must not panic or resurrect anything.
	sfu.RemovePeer("room-1", "7")
}
