package models

// LocalParticipant is the identity this process joins a room with. The
// numeric identity is generated per process lifetime and is not
// globally unique; the gateway rejects a join that would collide with
// a current room member.
type LocalParticipant struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

// RemoteTrack is a borrowed reference to a remote participant's media
// track. It is owned by the transport; Stop releases only the local
// reference, never the remote peer's publication.
type RemoteTrack interface {
	Stop()
}

// RemoteParticipant is one current room member other than ourselves,
// as reported by the transport's roster snapshot. Track references are
// nil until the transport has subscribed to them.
type RemoteParticipant struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`

	AudioTrack RemoteTrack `json:"-"`
	VideoTrack RemoteTrack `json:"-"`
}

// RoomMember is the gateway's view of one current room member, used to
// serve roster snapshots to polling clients.
type RoomMember struct {
	Identity       string `json:"identity"`
	Name           string `json:"name"`
	AudioPublished bool   `json:"audio_published"`
	VideoPublished bool   `json:"video_published"`
}
