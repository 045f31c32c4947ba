// Package media carries real audio and video over webrtc: local
// capture tracks fed by RTP packet sources and the transport binding
// them to a room.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/meeting/track"
)

var (
	ErrNoMicrophone = errors.New("no microphone source configured")
	ErrNoCamera     = errors.New("no camera source configured")
)

// PacketSource produces one device's RTP stream. Sources pace
// themselves: one packet per frame interval.
type PacketSource interface {
	ReadPacket(ctx context.Context) (*rtp.Packet, error)
}

// Devices acquires local capture tracks from configured packet
// sources. A nil source means the device is absent, which surfaces to
// the track manager as an acquisition failure.
type Devices struct {
	audio PacketSource
	video PacketSource
}

func NewDevices(audio, video PacketSource) *Devices {
	return &Devices{audio: audio, video: video}
}

func (d *Devices) AcquireMicrophoneAndCamera(ctx context.Context) (track.DeviceTrack, track.DeviceTrack, error) {
	if d.video == nil {
		return nil, nil, ErrNoCamera
	}

	audio, err := d.AcquireMicrophone(ctx)
	if err != nil {
		return nil, nil, err
	}

	video := newLocalTrack(webrtc.MimeTypeVP8, "video", d.video)

	return audio, video, nil
}

func (d *Devices) AcquireMicrophone(_ context.Context) (track.DeviceTrack, error) {
	if d.audio == nil {
		return nil, ErrNoMicrophone
	}

	return newLocalTrack(webrtc.MimeTypeOpus, "audio", d.audio), nil
}

// LocalTrack is one capture device's outgoing RTP track. The pion
// track is created lazily on Bind, once the transport knows the local
// identity to stamp as the stream id; until then only the enabled flag
// is live.
type LocalTrack struct {
	mimeType string
	kind     string
	source   PacketSource

	mu      sync.Mutex
	enabled bool
	rtp     *webrtc.TrackLocalStaticRTP
	cancel  context.CancelFunc
}

func newLocalTrack(mimeType, kind string, source PacketSource) *LocalTrack {
	return &LocalTrack{
		mimeType: mimeType,
		kind:     kind,
		source:   source,
		enabled:  true,
	}
}

func (t *LocalTrack) Kind() string { return t.kind }

// Bind creates the pion track with the publisher's identity as its
// stream id and starts pumping the source. Remote peers use the stream
// id to attribute incoming tracks.
func (t *LocalTrack) Bind(identity string) (*webrtc.TrackLocalStaticRTP, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rtp != nil {
		return t.rtp, nil
	}

	rtpTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: t.mimeType}, t.kind, identity,
	)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", t.kind, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.rtp = rtpTrack
	t.cancel = cancel

	go t.pump(ctx)

	return rtpTrack, nil
}

// pump forwards source packets onto the wire. A disabled track keeps
// consuming the source so sequence numbers and timestamps stay
// continuous, it just drops the packets.
func (t *LocalTrack) pump(ctx context.Context) {
	for {
		pkt, err := t.source.ReadPacket(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("read device packet", slog.Any(constant.Error, err))
			}

			return
		}

		t.mu.Lock()
		enabled := t.enabled
		rtpTrack := t.rtp
		t.mu.Unlock()

		if !enabled || rtpTrack == nil {
			continue
		}

		if err := rtpTrack.WriteRTP(pkt); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}

			slog.Error("write RTP", slog.Any(constant.Error, err))
		}
	}
}

// SetEnabled flips the mute flag. The device stays acquired and the
// pump keeps running.
func (t *LocalTrack) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled

	return nil
}

// Stop releases the device. Idempotent.
func (t *LocalTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.rtp = nil
	t.enabled = false

	return nil
}
