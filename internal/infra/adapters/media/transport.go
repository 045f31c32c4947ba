package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/meeting/track"
)

// Signaler is the realtime channel the transport negotiates over:
// roster hints one way, SDP and ICE exchange both ways.
type Signaler interface {
	Connect(ctx context.Context, roomID, identity, name, token string) error
	OnRosterEvent(handler func(eventType string, ev events.RosterEvent))
	OnSignal(handler func(msgType string, data json.RawMessage))
	Announce(eventType string, ev events.RosterEvent) error
	SendSignal(msgType string, payload any) error
	Close() error
}

// MemberLister serves the authoritative roster snapshot.
type MemberLister interface {
	RoomMembers(ctx context.Context, roomID string) ([]models.RoomMember, error)
}

// Transport binds a session to the gateway: the realtime channel for
// events and signaling, the REST API for roster snapshots and a webrtc
// peer connection for the media itself.
type Transport struct {
	api MemberLister
	rt  Signaler

	name       string
	iceServers []webrtc.ICEServer

	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	roomID   string
	identity string
	senders  map[track.DeviceTrack]*webrtc.RTPSender
	remote   map[string]map[string]*remoteTrack
	handler  func(eventType string, ev events.RosterEvent)

	// pending buffers remote candidates that trickled in before the
	// remote description was applied.
	pending []webrtc.ICECandidateInit
}

func NewTransport(api MemberLister, rt Signaler, name string, iceServers []webrtc.ICEServer) *Transport {
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	return &Transport{
		api:        api,
		rt:         rt,
		name:       name,
		iceServers: iceServers,
		senders:    make(map[track.DeviceTrack]*webrtc.RTPSender),
		remote:     make(map[string]map[string]*remoteTrack),
	}
}

// Join builds the peer connection, connects the realtime channel and
// runs the initial offer exchange with the gateway's forwarding peer.
// The connection and its handlers exist before the socket opens so no
// early signal is lost.
func (t *Transport) Join(ctx context.Context, _ string, roomID, token, identity string) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: t.iceServers})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.onRemoteTrack(remote)
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}

		ev := events.CandidateEvent{Candidate: candidate.ToJSON()}
		if err := t.rt.SendSignal(events.TypeCandidate, ev); err != nil {
			slog.Warn("send ice candidate", slog.Any(constant.Error, err))
		}
	})

	// A bare connection has nothing to offer; the data channel gives
	// the first negotiation a media-independent payload, so a join
	// without devices still completes the exchange.
	if _, err := pc.CreateDataChannel("sync", nil); err != nil {
		pc.Close()
		return fmt.Errorf("create sync channel: %w", err)
	}

	t.mu.Lock()
	t.pc = pc
	t.roomID = roomID
	t.identity = identity
	t.pending = nil
	t.mu.Unlock()

	t.rt.OnSignal(t.onSignal)
	t.rt.OnRosterEvent(func(eventType string, ev events.RosterEvent) {
		t.mu.Lock()
		local := ev.Identity == t.identity
		handler := t.handler
		t.mu.Unlock()

		if local || handler == nil {
			return
		}

		handler(eventType, ev)
	})

	if err := t.rt.Connect(ctx, roomID, identity, t.name, token); err != nil {
		pc.Close()

		t.mu.Lock()
		t.pc = nil
		t.mu.Unlock()

		return fmt.Errorf("connect realtime channel: %w", err)
	}

	if err := t.negotiate(); err != nil {
		t.rt.Close()
		pc.Close()

		t.mu.Lock()
		t.pc = nil
		t.mu.Unlock()

		return fmt.Errorf("initial negotiation: %w", err)
	}

	return nil
}

// negotiate sends a fresh offer. Called at join and whenever the local
// track set changes; the gateway answers over the signal channel.
func (t *Transport) negotiate() error {
	t.mu.Lock()
	pc := t.pc
	t.mu.Unlock()

	if pc == nil {
		return errors.New("transport is not joined")
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	if err := t.rt.SendSignal(events.TypeOffer, events.SdpEvent{SDP: offer.SDP}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}

	return nil
}

// onSignal handles the gateway's side of the exchange: answers to our
// offers, renegotiation offers when the forwarded track set changes,
// and trickled candidates.
func (t *Transport) onSignal(msgType string, data json.RawMessage) {
	t.mu.Lock()
	pc := t.pc
	t.mu.Unlock()

	if pc == nil {
		return
	}

	switch msgType {
	case events.TypeOffer:
		var ev events.SdpEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("undecodable sdp offer", slog.Any(constant.Error, err))
			return
		}

		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: ev.SDP}
		if err := pc.SetRemoteDescription(offer); err != nil {
			slog.Warn("apply remote offer", slog.Any(constant.Error, err))
			return
		}

		t.flushCandidates(pc)

		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			slog.Warn("create answer", slog.Any(constant.Error, err))
			return
		}

		if err := pc.SetLocalDescription(answer); err != nil {
			slog.Warn("set local answer", slog.Any(constant.Error, err))
			return
		}

		if err := t.rt.SendSignal(events.TypeAnswer, events.SdpEvent{SDP: answer.SDP}); err != nil {
			slog.Warn("send answer", slog.Any(constant.Error, err))
		}

	case events.TypeAnswer:
		var ev events.SdpEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("undecodable sdp answer", slog.Any(constant.Error, err))
			return
		}

		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: ev.SDP}
		if err := pc.SetRemoteDescription(answer); err != nil {
			slog.Warn("apply remote answer", slog.Any(constant.Error, err))
			return
		}

		t.flushCandidates(pc)

	case events.TypeCandidate:
		var ev events.CandidateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("undecodable ice candidate", slog.Any(constant.Error, err))
			return
		}

		if pc.RemoteDescription() == nil {
			t.mu.Lock()
			t.pending = append(t.pending, ev.Candidate)
			t.mu.Unlock()
			return
		}

		if err := pc.AddICECandidate(ev.Candidate); err != nil {
			slog.Warn("add ice candidate", slog.Any(constant.Error, err))
		}
	}
}

func (t *Transport) flushCandidates(pc *webrtc.PeerConnection) {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, candidate := range pending {
		if err := pc.AddICECandidate(candidate); err != nil {
			slog.Warn("add buffered ice candidate", slog.Any(constant.Error, err))
		}
	}
}

// onRemoteTrack attributes an incoming track to its publisher via the
// stream id and drains its RTP until the track ends.
func (t *Transport) onRemoteTrack(remote *webrtc.TrackRemote) {
	identity := remote.StreamID()
	kind := remote.Kind().String()

	ctx, cancel := context.WithCancel(context.Background())
	ref := &remoteTrack{kind: kind, cancel: cancel}

	t.mu.Lock()
	if t.remote[identity] == nil {
		t.remote[identity] = make(map[string]*remoteTrack)
	}
	t.remote[identity][kind] = ref
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if _, _, err := remote.ReadRTP(); err != nil {
					if !errors.Is(err, io.EOF) {
						slog.Error("RTP read error", slog.Any(constant.Error, err))
					}

					return
				}
			}
		}
	}()
}

func (t *Transport) Publish(_ context.Context, tracks []track.DeviceTrack) error {
	t.mu.Lock()
	pc := t.pc
	identity := t.identity
	roomID := t.roomID
	t.mu.Unlock()

	if pc == nil {
		return errors.New("transport is not joined")
	}

	for _, dev := range tracks {
		local, ok := dev.(*LocalTrack)
		if !ok {
			return fmt.Errorf("unsupported device track %T", dev)
		}

		rtpTrack, err := local.Bind(identity)
		if err != nil {
			return err
		}

		sender, err := pc.AddTrack(rtpTrack)
		if err != nil {
			return fmt.Errorf("add %s track: %w", local.Kind(), err)
		}

		go drainRTCP(sender)

		t.mu.Lock()
		t.senders[dev] = sender
		t.mu.Unlock()

		if err := t.rt.Announce(events.TypePublished, events.RosterEvent{
			RoomID:   roomID,
			Identity: identity,
			Media:    local.Kind(),
		}); err != nil {
			slog.Warn("announce publish", slog.Any(constant.Error, err))
		}
	}

	if len(tracks) > 0 {
		if err := t.negotiate(); err != nil {
			return fmt.Errorf("renegotiate after publish: %w", err)
		}
	}

	return nil
}

func (t *Transport) Unpublish(_ context.Context, tracks []track.DeviceTrack) error {
	t.mu.Lock()
	pc := t.pc
	identity := t.identity
	roomID := t.roomID
	t.mu.Unlock()

	if pc == nil {
		return errors.New("transport is not joined")
	}

	removed := false
	for _, dev := range tracks {
		t.mu.Lock()
		sender := t.senders[dev]
		delete(t.senders, dev)
		t.mu.Unlock()

		if sender == nil {
			continue
		}

		if err := pc.RemoveTrack(sender); err != nil {
			slog.Warn("remove track", slog.Any(constant.Error, err))
		}
		removed = true

		kind := "audio"
		if local, ok := dev.(*LocalTrack); ok {
			kind = local.Kind()
		}

		if err := t.rt.Announce(events.TypeUnpublished, events.RosterEvent{
			RoomID:   roomID,
			Identity: identity,
			Media:    kind,
		}); err != nil {
			slog.Warn("announce unpublish", slog.Any(constant.Error, err))
		}
	}

	if removed {
		if err := t.negotiate(); err != nil {
			slog.Warn("renegotiate after unpublish", slog.Any(constant.Error, err))
		}
	}

	return nil
}

// Subscribe is an acknowledgement, not a request: the gateway attaches
// every published track to every peer and renegotiates on its own, so
// the media arrives via OnTrack regardless.
func (t *Transport) Subscribe(_ context.Context, _, _ string) error {
	return nil
}

func (t *Transport) Leave(_ context.Context) error {
	t.mu.Lock()
	pc := t.pc
	t.pc = nil
	remote := t.remote
	t.remote = make(map[string]map[string]*remoteTrack)
	t.senders = make(map[track.DeviceTrack]*webrtc.RTPSender)
	t.pending = nil
	t.mu.Unlock()

	for _, byKind := range remote {
		for _, ref := range byKind {
			ref.Stop()
		}
	}

	var closeErr error
	if pc != nil {
		closeErr = pc.Close()
	}

	if err := t.rt.Close(); err != nil && closeErr == nil {
		closeErr = err
	}

	return closeErr
}

// Snapshot implements roster.Snapshotter: the REST member list is the
// ground truth, with whatever remote tracks have arrived attached.
func (t *Transport) Snapshot(ctx context.Context) ([]models.RemoteParticipant, error) {
	t.mu.Lock()
	roomID := t.roomID
	identity := t.identity
	t.mu.Unlock()

	members, err := t.api.RoomMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("roster snapshot: %w", err)
	}

	participants := make([]models.RemoteParticipant, 0, len(members))

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, member := range members {
		if member.Identity == identity {
			continue
		}

		participant := models.RemoteParticipant{
			Identity: member.Identity,
			Name:     member.Name,
		}

		if byKind := t.remote[member.Identity]; byKind != nil {
			if member.AudioPublished {
				if ref := byKind["audio"]; ref != nil {
					participant.AudioTrack = ref
				}
			}
			if member.VideoPublished {
				if ref := byKind["video"]; ref != nil {
					participant.VideoTrack = ref
				}
			}
		}

		participants = append(participants, participant)
	}

	return participants, nil
}

func (t *Transport) OnRosterEvent(handler func(eventType string, ev events.RosterEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
}

// remoteTrack is a borrowed reference to another participant's media.
// Stop halts the drain loop; it is called by the roster registry when
// the participant disappears.
type remoteTrack struct {
	kind   string
	cancel context.CancelFunc
}

func (r *remoteTrack) Stop() {
	r.cancel()
}

// drainRTCP keeps the sender's interceptor pipeline serviced.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
