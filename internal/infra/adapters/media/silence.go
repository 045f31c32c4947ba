package media

import (
	"context"
	"math/rand"
	"time"

	"github.com/pion/rtp"
)

// opusSilence is a minimal DTX-style opus frame: audible silence that
// keeps the stream alive for receivers and middleboxes.
var opusSilence = []byte{0xF8, 0xFF, 0xFE}

const (
	opusFrameInterval = 20 * time.Millisecond
	// 48kHz clock, 20ms per frame.
	opusSamplesPerFrame = 960
)

// SilenceSource is a paced opus silence generator, used as the
// microphone source when no real capture backend is wired in.
type SilenceSource struct {
	ticker   *time.Ticker
	sequence uint16
	ts       uint32
	ssrc     uint32
}

func NewSilenceSource() *SilenceSource {
	return &SilenceSource{
		ticker:   time.NewTicker(opusFrameInterval),
		sequence: uint16(rand.Intn(1 << 16)),
		ssrc:     rand.Uint32(),
	}
}

func (s *SilenceSource) ReadPacket(ctx context.Context) (*rtp.Packet, error) {
	select {
	case <-ctx.Done():
		s.ticker.Stop()
		return nil, ctx.Err()
	case <-s.ticker.C:
	}

	s.sequence++
	s.ts += opusSamplesPerFrame

	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: s.sequence,
			Timestamp:      s.ts,
			SSRC:           s.ssrc,
		},
		Payload: opusSilence,
	}, nil
}
