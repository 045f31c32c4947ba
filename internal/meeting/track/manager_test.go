package track

import (
	"context"
	"errors"
	"testing"
)

type fakeDevice struct {
	enabled     bool
	setCalls    int
	stopCalls   int
	setErr      error
	stopErr     error
}

func (f *fakeDevice) SetEnabled(enabled bool) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.enabled = enabled
	return nil
}

func (f *fakeDevice) Stop() error {
	f.stopCalls++
	return f.stopErr
}

type fakeProvider struct {
	combinedErr error
	audioErr    error

	combinedCalls int
	audioCalls    int

	audio *fakeDevice
	video *fakeDevice
}

func (f *fakeProvider) AcquireMicrophoneAndCamera(ctx context.Context) (DeviceTrack, DeviceTrack, error) {
	f.combinedCalls++
	if f.combinedErr != nil {
		return nil, nil, f.combinedErr
	}
	return f.audio, f.video, nil
}

func (f *fakeProvider) AcquireMicrophone(ctx context.Context) (DeviceTrack, error) {
	f.audioCalls++
	if f.audioErr != nil {
		return nil, f.audioErr
	}
	return f.audio, nil
}

func TestAcquireLocalCombined(t *testing.T) {
	provider := &fakeProvider{audio: &fakeDevice{}, video: &fakeDevice{}}
	m := NewManager(provider)

	audio, video := m.AcquireLocal(context.Background())

	if audio.State() != Acquired || video.State() != Acquired {
		t.Fatalf("expected both acquired, got audio=%v video=%v", audio.State(), video.State())
	}
	if !audio.Enabled() || !video.Enabled() {
		t.Fatal("expected freshly acquired tracks to be enabled")
	}
	if provider.audioCalls != 0 {
		t.Fatal("audio-only fallback should not run when combined acquisition succeeds")
	}
}

func TestAcquireLocalFallsBackToAudioOnly(t *testing.T) {
	provider := &fakeProvider{
		combinedErr: errors.New("permission denied"),
		audio:       &fakeDevice{},
	}
	m := NewManager(provider)

	audio, video := m.AcquireLocal(context.Background())

	if audio.State() != Acquired {
		t.Fatalf("expected audio acquired, got %v", audio.State())
	}
	if video.State() != Failed {
		t.Fatalf("expected video failed, got %v", video.State())
	}
	if provider.audioCalls != 1 {
		t.Fatalf("expected one audio-only acquisition, got %d", provider.audioCalls)
	}
}

func TestAcquireLocalBothFail(t *testing.T) {
	provider := &fakeProvider{
		combinedErr: errors.New("no devices"),
		audioErr:    errors.New("no devices"),
	}
	m := NewManager(provider)

	audio, video := m.AcquireLocal(context.Background())

	if audio.State() != Failed || video.State() != Failed {
		t.Fatalf("expected both failed, got audio=%v video=%v", audio.State(), video.State())
	}
}

func TestSetEnabledDoesNotReacquire(t *testing.T) {
	dev := &fakeDevice{}
	provider := &fakeProvider{audio: &fakeDevice{}, video: dev}
	m := NewManager(provider)

	_, video := m.AcquireLocal(context.Background())

	if err := m.SetEnabled(video, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := m.SetEnabled(video, true); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if provider.combinedCalls != 1 {
		t.Fatalf("toggling must not re-acquire the device, got %d acquisitions", provider.combinedCalls)
	}
	if video.Device() != DeviceTrack(dev) {
		t.Fatal("handle must keep the same device across toggles")
	}
	if !video.Enabled() {
		t.Fatal("expected enabled after toggle on")
	}
}

func TestSetEnabledNoDevice(t *testing.T) {
	m := NewManager(&fakeProvider{})
	h := &Handle{state: Failed, reason: errors.New("denied")}

	if err := m.SetEnabled(h, true); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}

func TestSetEnabledFailureKeepsFlag(t *testing.T) {
	dev := &fakeDevice{enabled: true}
	provider := &fakeProvider{audio: &fakeDevice{}, video: dev}
	m := NewManager(provider)

	_, video := m.AcquireLocal(context.Background())

	dev.setErr = errors.New("device wedged")
	if err := m.SetEnabled(video, false); err == nil {
		t.Fatal("expected error from wedged device")
	}
	if !video.Enabled() {
		t.Fatal("enabled flag must be unchanged when the toggle fails")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	dev := &fakeDevice{}
	provider := &fakeProvider{audio: dev, video: &fakeDevice{}}
	m := NewManager(provider)

	audio, _ := m.AcquireLocal(context.Background())

	m.Release(audio)
	m.Release(audio)
	m.Release(nil)

	if dev.stopCalls != 1 {
		t.Fatalf("expected exactly one stop, got %d", dev.stopCalls)
	}
	if audio.State() != NotAcquired {
		t.Fatalf("expected NotAcquired after release, got %v", audio.State())
	}
}
