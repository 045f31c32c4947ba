package models

import "github.com/pion/webrtc/v4"

// Peer is one participant's server-side leg of the media session: the
// peer connection the gateway forwards published tracks through.
type Peer struct {
	RoomID   string
	Identity string
	Conn     *webrtc.PeerConnection
}

func NewPeer(roomID, identity string, conn *webrtc.PeerConnection) *Peer {
	return &Peer{
		RoomID:   roomID,
		Identity: identity,
		Conn:     conn,
	}
}
