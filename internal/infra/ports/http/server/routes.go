package server

import (
	"github.com/labstack/echo/v4"

	"github.com/meetsync/meetsync/internal/infra/ports/http/handlers"
	"github.com/meetsync/meetsync/internal/infra/ports/http/middleware"
)

func New(
	sessionHandler *handlers.SessionHandler,
	chatHandler *handlers.ChatHandler,
	tokenHandler *handlers.TokenHandler,
	rosterHandler *handlers.RosterHandler,
	realtimeHandler *handlers.RealtimeHandler,
	iceHandler *handlers.IceHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.SlogLogger())

	api := e.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.POST("/sessions", sessionHandler.Create)
			v1.GET("/sessions/:id", sessionHandler.GetByID)
			v1.GET("/sessions/room/:room_id", sessionHandler.GetByRoomID)
			v1.POST("/sessions/:id/end", sessionHandler.End)
			v1.GET("/sessions/history", sessionHandler.History)
			v1.DELETE("/sessions/history", sessionHandler.PurgeHistory)

			v1.GET("/token", tokenHandler.Issue)
			v1.GET("/ice", iceHandler.IceServers)

			v1.POST("/messages", chatHandler.Append)
			v1.GET("/messages/:session_id", chatHandler.Query)

			v1.GET("/rooms/:room_id/members", rosterHandler.Snapshot)

			v1.GET("/ws", realtimeHandler.Handle)
		}
	}

	return e
}
