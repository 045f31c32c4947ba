package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meetsync/meetsync/internal/application/constant"
	"github.com/meetsync/meetsync/internal/infra/ports/http/dto"
	"github.com/meetsync/meetsync/internal/usecase"
)

type TokenHandler struct {
	tokenUsecase usecase.TokenUsecase
}

func NewTokenHandler(tokenUsecase usecase.TokenUsecase) *TokenHandler {
	return &TokenHandler{tokenUsecase: tokenUsecase}
}

// Issue mints a transport token for (room, identity). Each join
// requests a fresh one.
func (h *TokenHandler) Issue(c echo.Context) error {
	roomID := c.QueryParam("room")
	identity := c.QueryParam("identity")

	if roomID == "" || identity == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "room and identity are required"})
	}

	token, err := h.tokenUsecase.Issue(roomID, identity)
	if err != nil {
		slog.Error("issue token", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
	}

	return c.JSON(http.StatusOK, dto.TokenResponse{Token: token})
}
