package events

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Message is the generic envelope carried on realtime channels and the
// signaling socket.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Roster event types pushed by the transport. They are hints to
// reconcile sooner, never the source of truth.
const (
	TypeJoined      = "joined"
	TypeLeft        = "left"
	TypePublished   = "published"
	TypeUnpublished = "unpublished"
	TypeChat        = "chat"
)

// Signaling message types exchanged between a participant and the
// gateway's forwarding peer. Either side may (re)offer.
const (
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)

// RosterEvent announces a membership or publication change in a room.
type RosterEvent struct {
	RoomID   string `json:"room_id"`
	Identity string `json:"identity"`
	Media    string `json:"media,omitempty"`
}

// ChatEvent is the realtime fan-out copy of a chat message. SentAt is
// RFC3339; it may be absent when the sender did not stamp one.
type ChatEvent struct {
	ID         string `json:"id,omitempty"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	SentAt     string `json:"sent_at,omitempty"`
}

// SdpEvent carries a session description during negotiation. Whether
// it is an offer or an answer is the envelope type.
type SdpEvent struct {
	SDP string `json:"sdp"`
}

// CandidateEvent carries one trickled ICE candidate.
type CandidateEvent struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// Envelope wraps a typed event payload into the generic Message form.
// Marshal failures cannot happen for the event types in this package.
func Envelope(eventType string, payload any) Message {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{Type: eventType}
	}

	return Message{Type: eventType, Data: data}
}
