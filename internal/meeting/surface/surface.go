// Package surface decouples track attachment from render timing.
// Track-ready events and render passes are driven by independent
// schedulers with no ordering guarantee, so attachment waits for the
// target surface with a bounded poll instead of assuming it exists.
package surface

import (
	"context"
	"time"
)

// DefaultPollInterval is the short fixed poll period used while
// waiting for a surface to appear.
const DefaultPollInterval = 50 * time.Millisecond

// Surface is one rendering slot a media track can be attached to.
type Surface interface {
	// Visible reports whether the surface is actually mounted, not
	// merely present. Local preview attachment waits for visibility.
	Visible() bool

	// Attach plays a track on this surface. The track is a local
	// device track or a borrowed remote track; the surface only needs
	// it long enough to start playback.
	Attach(track any) error
}

// Provider is the rendering layer's surface lookup, injected so this
// package stays decoupled from any rendering technology.
type Provider interface {
	Lookup(id string) (Surface, bool)
}

// WaitFor polls the provider until the surface with the given id
// exists or the timeout elapses. A nil result means "attachment
// skipped this cycle, retry on the next state change" — never a fatal
// error.
func WaitFor(ctx context.Context, provider Provider, id string, timeout time.Duration) Surface {
	return wait(ctx, provider, id, timeout, false)
}

// WaitForVisible is WaitFor but additionally requires the surface to
// report visible before returning it.
func WaitForVisible(ctx context.Context, provider Provider, id string, timeout time.Duration) Surface {
	return wait(ctx, provider, id, timeout, true)
}

func wait(ctx context.Context, provider Provider, id string, timeout time.Duration, needVisible bool) Surface {
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()

	for {
		if s, ok := provider.Lookup(id); ok && (!needVisible || s.Visible()) {
			return s
		}

		if time.Now().After(deadline) {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
