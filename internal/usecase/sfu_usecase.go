package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/meetsync/meetsync/internal/application/config"
	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/infra/adapters/memory"
)

var ErrPeerNotFound = errors.New("peer not found")

// SFUUsecase terminates one peer connection per participant and
// forwards every published track to the other peers in the room.
// Signaling rides the same websocket as the roster events: the client
// offers when its media set changes, the gateway offers when the
// room's forwarded set changes.
type SFUUsecase interface {
	AddPeer(roomID, identity string) error
	RemovePeer(roomID, identity string)

	HandleOffer(roomID, identity string, ev events.SdpEvent) error
	HandleAnswer(roomID, identity string, ev events.SdpEvent) error
	HandleCandidate(roomID, identity string, ev events.CandidateEvent) error
}

// forward is one published track being relayed: a local track fed from
// the publisher's RTP that any number of subscriber connections bind.
type forward struct {
	publisher string
	kind      string
	track     *webrtc.TrackLocalStaticRTP
}

type sfuUsecase struct {
	peers       memory.PeerRepository
	subscribers memory.SubscriberRepository
	iceServers  []webrtc.ICEServer

	mu sync.Mutex
	// forwards stores map[room_id]map[forward_key]*forward
	forwards map[string]map[string]*forward
	// senders stores map[room_id/identity]map[forward_key]*webrtc.RTPSender
	senders map[string]map[string]*webrtc.RTPSender
}

func NewSFUUsecase(cfg *config.Config, peers memory.PeerRepository, subscribers memory.SubscriberRepository) SFUUsecase {
	return &sfuUsecase{
		peers:       peers,
		subscribers: subscribers,
		iceServers: []webrtc.ICEServer{
			{URLs: []string{cfg.StunURL}},
		},
		forwards: make(map[string]map[string]*forward),
		senders:  make(map[string]map[string]*webrtc.RTPSender),
	}
}

func (s *sfuUsecase) AddPeer(roomID, identity string) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: s.iceServers})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}

		ev := events.CandidateEvent{Candidate: candidate.ToJSON()}
		if err := s.subscribers.Send(roomID, identity, events.Envelope(events.TypeCandidate, ev)); err != nil {
			slog.Warn("send ice candidate",
				slog.Any(constant.Error, err),
				slog.String(constant.Identity, identity),
			)
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go s.forwardTrack(roomID, identity, remote)
	})

	s.peers.Add(models.NewPeer(roomID, identity, pc))

	return nil
}

// RemovePeer drops the participant's connection and withdraws their
// published tracks from everyone still in the room.
func (s *sfuUsecase) RemovePeer(roomID, identity string) {
	peer, ok := s.peers.Get(roomID, identity)
	if !ok {
		return
	}

	s.peers.Remove(roomID, identity)

	s.mu.Lock()
	delete(s.senders, senderKey(roomID, identity))

	for key, fwd := range s.forwards[roomID] {
		if fwd.publisher == identity {
			delete(s.forwards[roomID], key)
		}
	}
	if len(s.forwards[roomID]) == 0 {
		delete(s.forwards, roomID)
	}
	s.mu.Unlock()

	if err := peer.Conn.Close(); err != nil {
		slog.Warn("close peer connection", slog.Any(constant.Error, err))
	}

	// Remaining peers still hold senders bound to the dead forwards;
	// detach and renegotiate them.
	for _, other := range s.peers.List(roomID, identity) {
		if s.detachStaleForwards(other) {
			s.renegotiate(other)
		}
	}
}

// HandleOffer applies a participant's offer and answers it. Once the
// exchange settles, any room tracks this connection is missing get
// attached and renegotiated.
func (s *sfuUsecase) HandleOffer(roomID, identity string, ev events.SdpEvent) error {
	peer, ok := s.peers.Get(roomID, identity)
	if !ok {
		return ErrPeerNotFound
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: ev.SDP}
	if err := peer.Conn.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	answer, err := peer.Conn.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}

	if err := peer.Conn.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	if err := s.subscribers.Send(roomID, identity, events.Envelope(events.TypeAnswer, events.SdpEvent{SDP: answer.SDP})); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}

	if s.attachForwards(peer) {
		s.renegotiate(peer)
	}

	return nil
}

func (s *sfuUsecase) HandleAnswer(roomID, identity string, ev events.SdpEvent) error {
	peer, ok := s.peers.Get(roomID, identity)
	if !ok {
		return ErrPeerNotFound
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: ev.SDP}
	if err := peer.Conn.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	return nil
}

func (s *sfuUsecase) HandleCandidate(roomID, identity string, ev events.CandidateEvent) error {
	peer, ok := s.peers.Get(roomID, identity)
	if !ok {
		return ErrPeerNotFound
	}

	if err := peer.Conn.AddICECandidate(ev.Candidate); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}

	return nil
}

// forwardTrack pumps one published track into a relay track and fans
// it out to the rest of the room. The relay's stream id is the
// publisher's identity so subscribers can attribute it.
func (s *sfuUsecase) forwardTrack(roomID, publisher string, remote *webrtc.TrackRemote) {
	kind := remote.Kind().String()

	trackID := remote.ID()
	if trackID == "" {
		trackID = kind
	}

	local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, trackID, publisher)
	if err != nil {
		slog.Error("create relay track", slog.Any(constant.Error, err))
		return
	}

	key := forwardKey(publisher, kind)

	s.mu.Lock()
	if s.forwards[roomID] == nil {
		s.forwards[roomID] = make(map[string]*forward)
	}
	s.forwards[roomID][key] = &forward{publisher: publisher, kind: kind, track: local}
	s.mu.Unlock()

	for _, peer := range s.peers.List(roomID, publisher) {
		if s.attachForwards(peer) {
			s.renegotiate(peer)
		}
	}

	slog.Info("forwarding track",
		slog.String(constant.RoomID, roomID),
		slog.String(constant.Identity, publisher),
		slog.String("kind", kind),
	)

	for {
		packet, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("read published rtp", slog.Any(constant.Error, err))
			}

			break
		}

		if err := local.WriteRTP(packet); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			slog.Warn("relay rtp", slog.Any(constant.Error, err))
		}
	}

	s.dropForward(roomID, publisher, key)
}

// dropForward withdraws an ended track from every subscriber.
func (s *sfuUsecase) dropForward(roomID, publisher, key string) {
	s.mu.Lock()
	delete(s.forwards[roomID], key)
	if len(s.forwards[roomID]) == 0 {
		delete(s.forwards, roomID)
	}
	s.mu.Unlock()

	for _, peer := range s.peers.List(roomID, publisher) {
		if s.detachStaleForwards(peer) {
			s.renegotiate(peer)
		}
	}
}

// attachForwards binds every room forward the peer is missing. Returns
// whether anything changed and a renegotiation is due.
func (s *sfuUsecase) attachForwards(peer *models.Peer) bool {
	skey := senderKey(peer.RoomID, peer.Identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	attached := false
	for key, fwd := range s.forwards[peer.RoomID] {
		if fwd.publisher == peer.Identity {
			continue
		}
		if _, ok := s.senders[skey][key]; ok {
			continue
		}

		sender, err := peer.Conn.AddTrack(fwd.track)
		if err != nil {
			slog.Warn("attach relay track",
				slog.Any(constant.Error, err),
				slog.String(constant.Identity, peer.Identity),
			)
			continue
		}

		go drainSenderRTCP(sender)

		if s.senders[skey] == nil {
			s.senders[skey] = make(map[string]*webrtc.RTPSender)
		}
		s.senders[skey][key] = sender
		attached = true
	}

	return attached
}

// detachStaleForwards removes senders whose forward is gone. Returns
// whether anything changed.
func (s *sfuUsecase) detachStaleForwards(peer *models.Peer) bool {
	skey := senderKey(peer.RoomID, peer.Identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	detached := false
	for key, sender := range s.senders[skey] {
		if _, ok := s.forwards[peer.RoomID][key]; ok {
			continue
		}

		if err := peer.Conn.RemoveTrack(sender); err != nil {
			slog.Warn("detach relay track", slog.Any(constant.Error, err))
		}

		delete(s.senders[skey], key)
		detached = true
	}

	return detached
}

// renegotiate pushes a fresh offer to the participant after the
// forwarded track set changed.
func (s *sfuUsecase) renegotiate(peer *models.Peer) {
	offer, err := peer.Conn.CreateOffer(nil)
	if err != nil {
		slog.Warn("create renegotiation offer", slog.Any(constant.Error, err))
		return
	}

	if err := peer.Conn.SetLocalDescription(offer); err != nil {
		slog.Warn("set renegotiation offer", slog.Any(constant.Error, err))
		return
	}

	if err := s.subscribers.Send(peer.RoomID, peer.Identity, events.Envelope(events.TypeOffer, events.SdpEvent{SDP: offer.SDP})); err != nil {
		slog.Warn("send renegotiation offer",
			slog.Any(constant.Error, err),
			slog.String(constant.Identity, peer.Identity),
		)
	}
}

// drainSenderRTCP keeps the sender's interceptor pipeline serviced.
func drainSenderRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func forwardKey(publisher, kind string) string {
	return publisher + "/" + kind
}

func senderKey(roomID, identity string) string {
	return roomID + "/" + identity
}
