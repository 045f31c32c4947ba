package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/meetsync/meetsync/internal/application/config"
	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/infra/adapters/memory"
	"github.com/meetsync/meetsync/internal/infra/adapters/postgres"
	"github.com/meetsync/meetsync/internal/infra/adapters/postgres/repository"
	"github.com/meetsync/meetsync/internal/infra/ports/http/handlers"
	"github.com/meetsync/meetsync/internal/infra/ports/http/server"
	"github.com/meetsync/meetsync/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the meeting gateway",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() {
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

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	slog.Info("Running gateway", slog.Bool("debug", cfg.Debug))

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	sessionRepo := repository.NewSessionRepo(dbConn)
	messageRepo := repository.NewMessageRepo(dbConn)
	membersRepo := memory.NewRoomMembersRepository()
	subscriberRepo := memory.NewSubscriberRepository()
	peerRepo := memory.NewPeerRepository()

	sessionUsecase := usecase.NewSessionUsecase(sessionRepo)
	tokenUsecase := usecase.NewTokenUsecase([]byte(cfg.TokenSecret), cfg.TokenTTL)
	chatUsecase := usecase.NewChatUsecase(messageRepo, subscriberRepo)
	rosterUsecase := usecase.NewRosterUsecase(membersRepo, subscriberRepo)
	sfuUsecase := usecase.NewSFUUsecase(cfg, peerRepo, subscriberRepo)

	sessionHandler := handlers.NewSessionHandler(sessionUsecase)
	chatHandler := handlers.NewChatHandler(chatUsecase)
	tokenHandler := handlers.NewTokenHandler(tokenUsecase)
	rosterHandler := handlers.NewRosterHandler(rosterUsecase)
	realtimeHandler := handlers.NewRealtimeHandler(cfg, tokenUsecase, rosterUsecase, sfuUsecase, subscriberRepo)
	iceHandler := handlers.NewIceHandler(cfg)

	echoSrv := server.New(sessionHandler, chatHandler, tokenHandler, rosterHandler, realtimeHandler, iceHandler)

	srvCh := make(chan (error), 1)
	go func() {
		srvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server due to context cancel")
	case err := <-srvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)

		os.Exit(1)
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown server", slog.Any(constant.Error, err))
	}
}
