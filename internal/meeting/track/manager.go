package track

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meetsync/meetsync/internal/application/constant"
)

// ErrNoDevice is returned by SetEnabled when the handle never acquired
// a device. Callers surface it as a warning, never as a reason to
// leave the session.
var ErrNoDevice = errors.New("no device available")

// DeviceTrack is a locally acquired capture device track.
type DeviceTrack interface {
	SetEnabled(enabled bool) error
	Stop() error
}

// DeviceProvider acquires local capture devices. Permission denial and
// device absence are indistinguishable to callers: both surface as an
// error here and as a Failed handle above.
type DeviceProvider interface {
	AcquireMicrophoneAndCamera(ctx context.Context) (audio, video DeviceTrack, err error)
	AcquireMicrophone(ctx context.Context) (DeviceTrack, error)
}

type State int

const (
	NotAcquired State = iota
	Acquired
	Failed
)

// Handle is the tagged union over one local track's lifecycle. Audio
// and video each get an independent handle; a Failed video never
// blocks an Acquired audio.
type Handle struct {
	mu      sync.Mutex
	state   State
	device  DeviceTrack
	enabled bool
	reason  error
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

func (h *Handle) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state == Acquired && h.enabled
}

// Device exposes the underlying device track for publishing. Nil
// unless the handle is Acquired.
func (h *Handle) Device() DeviceTrack {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Acquired {
		return nil
	}

	return h.device
}

// Manager owns local microphone/camera acquisition, mute toggling and
// teardown. No other component holds raw device handles.
type Manager struct {
	devices DeviceProvider
}

func NewManager(devices DeviceProvider) *Manager {
	return &Manager{devices: devices}
}

// AcquireLocal attempts combined audio+video acquisition and falls
// back to audio-only, marking video as Failed. It never returns an
// error: callers inspect the handle pair and degrade instead of
// aborting the join.
func (m *Manager) AcquireLocal(ctx context.Context) (audio, video *Handle) {
	audioDev, videoDev, err := m.devices.AcquireMicrophoneAndCamera(ctx)
	if err == nil {
		return acquired(audioDev), acquired(videoDev)
	}

	slog.Warn("camera+microphone acquisition failed, retrying audio-only", slog.Any(constant.Error, err))

	video = &Handle{state: Failed, reason: err}

	audioDev, audioErr := m.devices.AcquireMicrophone(ctx)
	if audioErr != nil {
		slog.Warn("microphone acquisition failed", slog.Any(constant.Error, audioErr))

		return &Handle{state: Failed, reason: audioErr}, video
	}

	return acquired(audioDev), video
}

func acquired(dev DeviceTrack) *Handle {
	return &Handle{state: Acquired, device: dev, enabled: true}
}

// SetEnabled flips a track's enabled flag without re-acquiring or
// restarting the device. On failure the flag is left unchanged.
func (m *Manager) SetEnabled(h *Handle, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Acquired {
		return ErrNoDevice
	}

	if err := h.device.SetEnabled(enabled); err != nil {
		return fmt.Errorf("set device enabled: %w", err)
	}

	h.enabled = enabled

	return nil
}

// Release stops and releases the underlying device. Safe to call on an
// already-released, Failed or NotAcquired handle.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Acquired {
		return
	}

	if err := h.device.Stop(); err != nil {
		slog.Warn("stop device track", slog.Any(constant.Error, err))
	}

	h.state = NotAcquired
	h.device = nil
	h.enabled = false
}
