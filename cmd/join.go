package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/input"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/infra/adapters/httpapi"
	"github.com/meetsync/meetsync/internal/infra/adapters/media"
	"github.com/meetsync/meetsync/internal/infra/adapters/realtime"
	"github.com/meetsync/meetsync/internal/meeting/gate"
	meetsession "github.com/meetsync/meetsync/internal/meeting/session"
	"github.com/meetsync/meetsync/internal/meeting/surface"
)

var (
	joinGateway string
	joinRoom    string
	joinName    string
	joinTitle   string
	joinAppID   string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a meeting as a headless participant",
	Run: func(cmd *cobra.Command, args []string) {
		runJoin()
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinGateway, "gateway", "http://localhost:3000", "gateway base URL")
	joinCmd.Flags().StringVar(&joinRoom, "room", "", "room id of the session to join")
	joinCmd.Flags().StringVar(&joinName, "name", "", "display name")
	joinCmd.Flags().StringVar(&joinTitle, "create", "", "create a new session with this title and join it")
	joinCmd.Flags().StringVar(&joinAppID, "app-id", "meetsync", "transport application id")

	rootCmd.AddCommand(joinCmd)
}

func runJoin() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: slog.LevelInfo},
			),
		),
	)

	api := httpapi.New(joinGateway)

	roomID := joinRoom
	if joinTitle != "" {
		created, err := api.CreateSession(ctx, &input.CreateSessionInput{
			Title:    joinTitle,
			StartsAt: time.Now().UTC(),
		})
		if err != nil {
			slog.Error("create session", slog.Any(constant.Error, err))
			os.Exit(1)
		}

		roomID = created.RoomID
		slog.Info("session created", slog.String(constant.RoomID, roomID))
	}

	if roomID == "" || joinName == "" {
		slog.Error("both --room (or --create) and --name are required")
		os.Exit(1)
	}

	record, ok := waitForLive(ctx, api, roomID)
	if !ok {
		return
	}

	iceServers, err := api.ICEServers(ctx)
	if err != nil {
		slog.Warn("ice config fetch failed, using defaults", slog.Any(constant.Error, err))
	}

	rt := realtime.New(joinGateway)
	transport := media.NewTransport(api, rt, joinName, iceServers)
	devices := media.NewDevices(media.NewSilenceSource(), nil)

	ctrl := meetsession.NewController(meetsession.Config{
		AppID:       joinAppID,
		Session:     *record,
		Tokens:      api,
		Devices:     devices,
		Surfaces:    headlessSurfaces{},
		ChatStore:   api,
		ChatChannel: rt,
	}, transport)

	if err := ctrl.Join(ctx, joinName); err != nil {
		slog.Error("join session", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			roster := ctrl.Roster()

			names := make([]string, 0, len(roster))
			for _, p := range roster {
				names = append(names, p.Name)
			}

			slog.Info("roster",
				slog.Int("count", len(roster)),
				slog.Any("participants", names),
				slog.Int("messages", len(ctrl.Messages())),
			)
		}
	}

	if err := ctrl.Close(); err != nil {
		slog.Error("leave session", slog.Any(constant.Error, err))
	}
}

// waitForLive blocks on the scheduling gate until the session is live.
// NotFound and Expired are terminal; Waiting re-checks on the gate's
// interval.
func waitForLive(ctx context.Context, api *httpapi.Client, roomID string) (*models.Session, bool) {
	watcher := gate.NewWatcher(api, roomID, gate.DefaultInterval)

	for {
		switch watcher.Refresh(ctx) {
		case gate.Live:
			return watcher.Session(), true

		case gate.NotFound:
			slog.Error("no session is scheduled for this room", slog.String(constant.RoomID, roomID))
			return nil, false

		case gate.Expired:
			slog.Error("the session has already ended", slog.String(constant.RoomID, roomID))
			return nil, false

		case gate.Waiting:
			slog.Info("session has not started yet, waiting", slog.String(constant.RoomID, roomID))

			select {
			case <-ctx.Done():
				return nil, false
			case <-time.After(gate.DefaultInterval):
			}
		}
	}
}

// headlessSurfaces is the no-render surface provider: every lookup
// misses, so attachments silently time out.
type headlessSurfaces struct{}

func (headlessSurfaces) Lookup(string) (surface.Surface, bool) { return nil, false }
