package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/domain/models"
	"github.com/meetsync/meetsync/internal/infra/ports/http/dto"
	"github.com/meetsync/meetsync/internal/usecase"
)

type ChatHandler struct {
	chatUsecase usecase.ChatUsecase
}

func NewChatHandler(chatUsecase usecase.ChatUsecase) *ChatHandler {
	return &ChatHandler{chatUsecase: chatUsecase}
}

func (h *ChatHandler) Append(c echo.Context) error {
	var req dto.AppendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	msg := models.ChatMessage{
		SessionID:  req.SessionID,
		RoomID:     req.RoomID,
		SenderID:   req.SenderID,
		SenderName: req.SenderName,
		Text:       req.Text,
	}

	if err := h.chatUsecase.Append(c.Request().Context(), &msg); err != nil {
		slog.Error("append chat message", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to append message"})
	}

	return c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) Query(c echo.Context) error {
	sessionID, err := strconv.ParseInt(c.Param("session_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid session id"})
	}

	messages, err := h.chatUsecase.Query(c.Request().Context(), sessionID)
	if err != nil {
		slog.Error("query chat messages", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to query messages"})
	}

	return c.JSON(http.StatusOK, dto.ListMessagesResponse{Messages: messages})
}
