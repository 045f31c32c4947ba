package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/meetsync/meetsync/internal/application/config"
	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/events"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/infra/adapters/memory"
	"github.com/meetsync/meetsync/internal/usecase"
)

// RealtimeHandler is the per-room pub/sub channel: one websocket per
// participant carries roster events, chat fan-out and the media
// signaling exchange with the gateway's forwarding peer.
type RealtimeHandler struct {
	upgrader *websocket.Upgrader

	tokenUsecase  usecase.TokenUsecase
	rosterUsecase usecase.RosterUsecase
	sfuUsecase    usecase.SFUUsecase
	subscribers   memory.SubscriberRepository
}

func NewRealtimeHandler(cfg *config.Config, tokenUsecase usecase.TokenUsecase, rosterUsecase usecase.RosterUsecase, sfuUsecase usecase.SFUUsecase, subscribers memory.SubscriberRepository) *RealtimeHandler {
	return &RealtimeHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		tokenUsecase:  tokenUsecase,
		rosterUsecase: rosterUsecase,
		sfuUsecase:    sfuUsecase,
		subscribers:   subscribers,
	}
}

func (h *RealtimeHandler) Handle(c echo.Context) error {
	roomID := c.QueryParam("room")
	identity := c.QueryParam("identity")
	name := c.QueryParam("name")

	if roomID == "" || identity == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "room and identity are required"})
	}

	tokenRoom, tokenIdentity, err := h.tokenUsecase.Verify(c.QueryParam("token"))
	if err != nil || tokenRoom != roomID || tokenIdentity != identity {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}

	// Membership is claimed before the upgrade so an identity
	// collision can still be answered with a plain status code.
	err = h.rosterUsecase.Join(c.Request().Context(), roomID, models.RoomMember{
		Identity: identity,
		Name:     name,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrIdentityTaken) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "identity already in room"})
		}

		slog.Error("roster join", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to join room"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.rosterUsecase.Leave(c.Request().Context(), roomID, identity)

		slog.Error("websocket upgrade error", slog.Any(constant.Error, err))
		return err
	}
	defer ws.Close()

	// The identity doubles as the connection id: membership is unique
	// per room, and signaling replies need an addressable subscriber.
	h.subscribers.Add(roomID, identity, ws)

	defer func() {
		h.sfuUsecase.RemovePeer(roomID, identity)
		h.subscribers.Remove(roomID, identity)
		h.rosterUsecase.Leave(c.Request().Context(), roomID, identity)
	}()

	if err := h.sfuUsecase.AddPeer(roomID, identity); err != nil {
		slog.Error("add media peer", slog.Any(constant.Error, err))
		return err
	}

	if err := ws.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-c.Request().Context().Done():
				return
			}
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read error", slog.Any(constant.Error, err))
			}

			return nil
		}

		if err := h.handleMessage(c, roomID, identity, raw); err != nil {
			slog.Warn("handle realtime message", slog.Any(constant.Error, err))
		}
	}
}

func (h *RealtimeHandler) handleMessage(c echo.Context, roomID, identity string, raw []byte) error {
	var msg events.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errors.New("unmarshal realtime message")
	}

	ctx := c.Request().Context()

	switch msg.Type {
	case events.TypeOffer:
		var ev events.SdpEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return errors.New("unmarshal sdp offer")
		}

		return h.sfuUsecase.HandleOffer(roomID, identity, ev)

	case events.TypeAnswer:
		var ev events.SdpEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return errors.New("unmarshal sdp answer")
		}

		return h.sfuUsecase.HandleAnswer(roomID, identity, ev)

	case events.TypeCandidate:
		var ev events.CandidateEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return errors.New("unmarshal ice candidate")
		}

		return h.sfuUsecase.HandleCandidate(roomID, identity, ev)

	case events.TypePublished, events.TypeUnpublished:
		var ev events.RosterEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return errors.New("unmarshal roster event")
		}

		h.rosterUsecase.SetPublished(ctx, roomID, identity, ev.Media, msg.Type == events.TypePublished)

	case events.TypeChat:
		// Realtime fan-out copy; persistence goes through the REST
		// append independently.
		if err := h.subscribers.Broadcast(roomID, msg); err != nil {
			slog.Warn("chat relay failed", slog.Any(constant.Error, err))
		}

	case "ping":
		h.subscribers.Broadcast(roomID, map[string]any{"type": "pong"})

	default:
		return errors.New("unknown message type")
	}

	return nil
}
