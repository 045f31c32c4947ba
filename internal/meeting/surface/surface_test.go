package surface

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeSurface struct {
	visible  bool
	attached any
}

func (f *fakeSurface) Visible() bool { return f.visible }

func (f *fakeSurface) Attach(track any) error {
	f.attached = track
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	surfaces map[string]*fakeSurface
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{surfaces: make(map[string]*fakeSurface)}
}

func (f *fakeProvider) Lookup(id string) (Surface, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.surfaces[id]
	if !ok {
		return nil, false
	}
	return s, true
}

func (f *fakeProvider) add(id string, s *fakeSurface) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surfaces[id] = s
}

func TestWaitForImmediate(t *testing.T) {
	provider := newFakeProvider()
	provider.add("video-slot-7", &fakeSurface{})

	if got := WaitFor(context.Background(), provider, "video-slot-7", time.Second); got == nil {
		t.Fatal("expected surface, got nil")
	}
}

func TestWaitForTimeoutReturnsNil(t *testing.T) {
	provider := newFakeProvider()

	start := time.Now()
	got := WaitFor(context.Background(), provider, "missing", 120*time.Millisecond)
	if got != nil {
		t.Fatal("expected nil on timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout wait took too long: %v", elapsed)
	}
}

func TestWaitForLateAppearance(t *testing.T) {
	provider := newFakeProvider()

	go func() {
		time.Sleep(2 * DefaultPollInterval)
		provider.add("video-slot-7", &fakeSurface{})
	}()

	if got := WaitFor(context.Background(), provider, "video-slot-7", time.Second); got == nil {
		t.Fatal("expected surface to be found after it appears")
	}
}

func TestWaitForVisibleIgnoresHiddenSurface(t *testing.T) {
	provider := newFakeProvider()
	provider.add("local-preview", &fakeSurface{visible: false})

	if got := WaitForVisible(context.Background(), provider, "local-preview", 120*time.Millisecond); got != nil {
		t.Fatal("hidden surface must not satisfy a visibility wait")
	}

	provider.add("local-preview", &fakeSurface{visible: true})

	if got := WaitForVisible(context.Background(), provider, "local-preview", time.Second); got == nil {
		t.Fatal("visible surface must satisfy the wait")
	}
}

func TestWaitForCancelled(t *testing.T) {
	provider := newFakeProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := WaitFor(ctx, provider, "missing", time.Minute); got != nil {
		t.Fatal("cancelled wait must return nil")
	}
}
