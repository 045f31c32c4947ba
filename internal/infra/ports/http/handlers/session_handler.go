package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/input"
	"github.com/meetsync/meetsync/internal/infra/ports/http/dto"
	"github.com/meetsync/meetsync/internal/usecase"
)

type SessionHandler struct {
	sessionUsecase usecase.SessionUsecase
}

func NewSessionHandler(sessionUsecase usecase.SessionUsecase) *SessionHandler {
	return &SessionHandler{sessionUsecase: sessionUsecase}
}

func (h *SessionHandler) Create(c echo.Context) error {
	var req dto.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	session, err := h.sessionUsecase.Create(c.Request().Context(), &input.CreateSessionInput{
		Title:    req.Title,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
	})
	if err != nil {
		slog.Error("create session", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
	}

	return c.JSON(http.StatusCreated, dto.NewSessionResponse(session))
}

func (h *SessionHandler) GetByID(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid session id"})
	}

	session, err := h.sessionUsecase.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, usecase.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}

		slog.Error("get session", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get session"})
	}

	return c.JSON(http.StatusOK, dto.NewSessionResponse(session))
}

func (h *SessionHandler) GetByRoomID(c echo.Context) error {
	session, err := h.sessionUsecase.GetByRoomID(c.Request().Context(), c.Param("room_id"))
	if err != nil {
		if errors.Is(err, usecase.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}

		slog.Error("get session by room", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get session"})
	}

	return c.JSON(http.StatusOK, dto.NewSessionResponse(session))
}

func (h *SessionHandler) End(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid session id"})
	}

	if err := h.sessionUsecase.End(c.Request().Context(), id); err != nil {
		if errors.Is(err, usecase.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}

		slog.Error("end session", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to end session"})
	}

	return c.NoContent(http.StatusOK)
}

func (h *SessionHandler) History(c echo.Context) error {
	sessions, err := h.sessionUsecase.History(c.Request().Context())
	if err != nil {
		slog.Error("list sessions", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
	}

	resp := dto.ListSessionsResponse{
		Sessions: make([]dto.SessionResponse, 0, len(sessions)),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, dto.NewSessionResponse(s))
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) PurgeHistory(c echo.Context) error {
	if err := h.sessionUsecase.PurgeHistory(c.Request().Context()); err != nil {
		slog.Error("purge sessions", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to purge sessions"})
	}

	return c.NoContent(http.StatusOK)
}
