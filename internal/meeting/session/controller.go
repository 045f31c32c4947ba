package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/meeting/chat"
	"github.com/meetsync/meetsync/internal/meeting/roster"
	"github.com/meetsync/meetsync/internal/meeting/surface"
	"github.com/meetsync/meetsync/internal/meeting/track"
)

var (
	ErrNameRequired  = errors.New("display name is required")
	ErrAlreadyJoined = errors.New("already in a session")
	ErrNotJoined     = errors.New("not in a session")
)

// State is the controller's lifecycle position. Joined carries the
// orthogonal camera/mic/panel flags separately.
type State int

const (
	Idle State = iota
	Joining
	Joined
	Leaving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Leaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// Transport is the media/signaling capability surface. Join, Publish,
// Subscribe and Leave carry the transport's own timeout semantics;
// this controller treats any failure as a single outcome.
type Transport interface {
	Join(ctx context.Context, appID, roomID, token, identity string) error
	Publish(ctx context.Context, tracks []track.DeviceTrack) error
	Unpublish(ctx context.Context, tracks []track.DeviceTrack) error
	Subscribe(ctx context.Context, identity, media string) error
	Leave(ctx context.Context) error

	// Snapshot pulls the authoritative roster (roster.Snapshotter).
	Snapshot(ctx context.Context) ([]models.RemoteParticipant, error)

	// OnRosterEvent registers the push-event hint callback.
	OnRosterEvent(handler func(eventType string, ev events.RosterEvent))
}

// TokenSource issues transport credentials. A token is requested fresh
// per join and never cached across sessions.
type TokenSource interface {
	TokenFor(ctx context.Context, roomID, identity string) (string, error)
}

// Config carries the collaborators and the mount-time flags. Ambient
// state (e.g. whether the user saw the intro guide) is passed here
// explicitly instead of being read from storage mid-session.
type Config struct {
	AppID    string
	Session  models.Session
	Tokens   TokenSource
	Devices  track.DeviceProvider
	Surfaces surface.Provider

	ChatStore   chat.Store
	ChatChannel chat.Channel

	PollInterval  time.Duration
	AttachTimeout time.Duration
}

// Controller is the session state machine: it composes the track
// manager, roster registry and chat engine across the
// Idle → Joining → Joined → Leaving cycle.
type Controller struct {
	cfg       Config
	transport Transport
	tracks    *track.Manager
	registry  *roster.Registry

	clock    func() time.Time
	identity func() string

	mu     sync.Mutex
	state  State
	local  models.LocalParticipant
	audio  *track.Handle
	video  *track.Handle
	engine *chat.Engine
	cancel context.CancelFunc

	camera bool
	mic    bool
}

func NewController(cfg Config, transport Transport) *Controller {
	if cfg.AttachTimeout <= 0 {
		cfg.AttachTimeout = 3 * time.Second
	}

	c := &Controller{
		cfg:       cfg,
		transport: transport,
		tracks:    track.NewManager(cfg.Devices),
		registry:  roster.NewRegistry(),
		clock:     time.Now,
		identity: func() string {
			return strconv.FormatInt(rand.Int63n(1<<31), 10)
		},
	}

	return c
}

// Join takes the controller from Idle to Joined: token, transport
// join, device acquisition (audio-only fallback permitted), publish of
// whatever was acquired, then roster poll and chat subscription. Any
// irrecoverable failure rolls everything back to Idle; no half-joined
// state is retained.
func (c *Controller) Join(ctx context.Context, name string) error {
	if name == "" {
		return ErrNameRequired
	}

	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}

	c.state = Joining
	local := models.LocalParticipant{Identity: c.identity(), Name: name}
	c.local = local
	c.mu.Unlock()

	// The network sequence runs unlocked so Joining stays observable
	// while the handshake is in flight. Joining itself blocks any
	// competing transition, so only this call can commit or roll back.
	result, err := c.join(ctx, local)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.state = Idle
		c.local = models.LocalParticipant{}
		return err
	}

	c.audio = result.audio
	c.video = result.video
	c.mic = result.audio.Enabled()
	c.camera = result.video.Enabled()
	c.engine = result.engine
	c.cancel = result.cancel
	c.state = Joined

	return nil
}

// joinResult is what a completed handshake hands back to Join for the
// commit under lock.
type joinResult struct {
	audio  *track.Handle
	video  *track.Handle
	engine *chat.Engine
	cancel context.CancelFunc
}

func (c *Controller) join(ctx context.Context, local models.LocalParticipant) (*joinResult, error) {
	roomID := c.cfg.Session.RoomID

	token, err := c.cfg.Tokens.TokenFor(ctx, roomID, local.Identity)
	if err != nil {
		return nil, fmt.Errorf("issue transport token: %w", err)
	}

	if err := c.transport.Join(ctx, c.cfg.AppID, roomID, token, local.Identity); err != nil {
		return nil, fmt.Errorf("transport join: %w", err)
	}

	audio, video := c.tracks.AcquireLocal(ctx)

	published := make([]track.DeviceTrack, 0, 2)
	if dev := audio.Device(); dev != nil {
		published = append(published, dev)
	}
	if dev := video.Device(); dev != nil {
		published = append(published, dev)
	}

	if len(published) > 0 {
		if err := c.transport.Publish(ctx, published); err != nil {
			c.tracks.Release(audio)
			c.tracks.Release(video)

			if leaveErr := c.transport.Leave(ctx); leaveErr != nil {
				slog.Warn("leave after failed publish", slog.Any(constant.Error, leaveErr))
			}

			return nil, fmt.Errorf("transport publish: %w", err)
		}
	}

	sessionCtx, cancel := context.WithCancel(context.Background())

	syncer := roster.NewSyncer(c.registry, c.transport, c.cfg.PollInterval)
	c.transport.OnRosterEvent(func(eventType string, ev events.RosterEvent) {
		c.handleRosterEvent(sessionCtx, syncer, eventType, ev)
	})
	go syncer.Run(sessionCtx)

	engine := chat.NewEngine(c.cfg.ChatStore, c.cfg.ChatChannel, c.cfg.Session, local)
	if err := engine.Start(sessionCtx); err != nil {
		// Chat is layered on the same session but independent of
		// media; a dead chat channel does not abort the join.
		slog.Warn("chat start failed", slog.Any(constant.Error, err))
	}

	go c.attachLocalPreview(sessionCtx, video)

	slog.Info("joined session",
		slog.String(constant.RoomID, roomID),
		slog.String(constant.Identity, local.Identity),
		slog.String(constant.UserName, local.Name),
	)

	return &joinResult{audio: audio, video: video, engine: engine, cancel: cancel}, nil
}

func (c *Controller) handleRosterEvent(ctx context.Context, syncer *roster.Syncer, eventType string, ev events.RosterEvent) {
	if eventType == events.TypePublished && ev.Media != "" {
		if err := c.transport.Subscribe(ctx, ev.Identity, ev.Media); err != nil {
			slog.Warn("subscribe remote media",
				slog.Any(constant.Error, err),
				slog.String(constant.Identity, ev.Identity),
			)
		}
	}

	syncer.OnEvent(ev, eventType)

	if eventType == events.TypePublished && ev.Media == "video" {
		go c.attachRemoteVideo(ctx, ev.Identity)
	}
}

// attachRemoteVideo binds a remote video track to its rendering slot.
// The slot is rendered reactively from the registry's own state, so it
// may not exist yet; a timeout is a silent skip, retried on the next
// published event.
func (c *Controller) attachRemoteVideo(ctx context.Context, identity string) {
	s := surface.WaitFor(ctx, c.cfg.Surfaces, "video-slot-"+identity, c.cfg.AttachTimeout)
	if s == nil {
		return
	}

	participant, ok := c.registry.Get(identity)
	if !ok || participant.VideoTrack == nil {
		return
	}

	if err := s.Attach(participant.VideoTrack); err != nil {
		slog.Warn("attach remote video",
			slog.Any(constant.Error, err),
			slog.String(constant.Identity, identity),
		)
	}
}

func (c *Controller) attachLocalPreview(ctx context.Context, video *track.Handle) {
	dev := video.Device()
	if dev == nil {
		return
	}

	s := surface.WaitForVisible(ctx, c.cfg.Surfaces, "local-preview", c.cfg.AttachTimeout)
	if s == nil {
		return
	}

	if err := s.Attach(dev); err != nil {
		slog.Warn("attach local preview", slog.Any(constant.Error, err))
	}
}

// Leave tears the session down: unpublish, release local handles, stop
// borrowed remote references, transport leave, cancel timers and
// subscriptions. Guarded to run at most once even when an explicit
// click races the unload path.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Joined {
		return nil
	}

	c.state = Leaving

	toUnpublish := make([]track.DeviceTrack, 0, 2)
	if dev := c.audio.Device(); dev != nil {
		toUnpublish = append(toUnpublish, dev)
	}
	if dev := c.video.Device(); dev != nil {
		toUnpublish = append(toUnpublish, dev)
	}

	if len(toUnpublish) > 0 {
		if err := c.transport.Unpublish(ctx, toUnpublish); err != nil {
			slog.Warn("unpublish local tracks", slog.Any(constant.Error, err))
		}
	}

	c.tracks.Release(c.audio)
	c.tracks.Release(c.video)

	// The syncer stops before the registry empties, so a reconcile
	// racing the teardown cannot repopulate it.
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	c.registry.Clear()

	c.engine.Stop()

	if err := c.transport.Leave(ctx); err != nil {
		slog.Warn("transport leave", slog.Any(constant.Error, err))
	}

	c.audio = nil
	c.video = nil
	c.engine = nil
	c.camera = false
	c.mic = false
	c.local = models.LocalParticipant{}
	c.state = Idle

	slog.Info("left session", slog.String(constant.RoomID, c.cfg.Session.RoomID))

	return nil
}

// Close is the unload path: same sequence as Leave, bounded so it can
// run before the process goes away.
func (c *Controller) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return c.Leave(ctx)
}

// ToggleCamera flips the camera's enabled flag. ErrNoDevice surfaces
// as a warning to the caller; the session stays joined and the flag
// unchanged on any failure.
func (c *Controller) ToggleCamera() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Joined {
		return ErrNotJoined
	}

	if err := c.tracks.SetEnabled(c.video, !c.camera); err != nil {
		return err
	}

	c.camera = !c.camera

	return nil
}

// ToggleMic flips the microphone's enabled flag; same failure
// semantics as ToggleCamera.
func (c *Controller) ToggleMic() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Joined {
		return ErrNotJoined
	}

	if err := c.tracks.SetEnabled(c.audio, !c.mic); err != nil {
		return err
	}

	c.mic = !c.mic

	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Controller) JoinedState() bool {
	return c.State() == Joined
}

func (c *Controller) CameraEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.camera
}

func (c *Controller) MicEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mic
}

func (c *Controller) Local() models.LocalParticipant {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.local
}

// Roster returns the current visible remote roster for rendering.
func (c *Controller) Roster() []models.RemoteParticipant {
	return c.registry.Participants()
}

// Messages returns the chat timeline; empty outside Joined.
func (c *Controller) Messages() []models.ChatMessage {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	if engine == nil {
		return nil
	}

	return engine.Messages()
}

func (c *Controller) SendChat(ctx context.Context, text string) error {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	if engine == nil {
		return ErrNotJoined
	}

	return engine.Send(ctx, text)
}

func (c *Controller) Unread() bool {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	return engine != nil && engine.Unread()
}

func (c *Controller) SetChatOpen(open bool) {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	if engine != nil {
		engine.SetPanelOpen(open)
	}
}

func (c *Controller) ChatOpen() bool {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	return engine != nil && engine.PanelOpen()
}

// AudioHandle exposes the local audio handle's state for the shell UI.
func (c *Controller) AudioHandle() *track.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.audio
}

func (c *Controller) VideoHandle() *track.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.video
}
