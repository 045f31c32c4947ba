package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meetsync/meetsync/internal/infra/ports/http/dto"
	"github.com/meetsync/meetsync/internal/usecase"
)

type RosterHandler struct {
	rosterUsecase usecase.RosterUsecase
}

func NewRosterHandler(rosterUsecase usecase.RosterUsecase) *RosterHandler {
	return &RosterHandler{rosterUsecase: rosterUsecase}
}

// Snapshot serves the room's authoritative member list. Clients poll
// this as their reconciliation backstop.
func (h *RosterHandler) Snapshot(c echo.Context) error {
	members := h.rosterUsecase.Snapshot(c.Request().Context(), c.Param("room_id"))

	return c.JSON(http.StatusOK, dto.RosterResponse{Members: members})
}
