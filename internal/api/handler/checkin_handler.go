package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

// CheckinHandler drives the print/check-in state machine.
type CheckinHandler struct {
	service ports.CheckinService
}

func NewCheckinHandler(service ports.CheckinService) *CheckinHandler {
	return &CheckinHandler{service: service}
}

type scanResponse struct {
	Registration *domain.Registration `json:"registration"`
	Scan         *domain.Scan         `json:"scan"`
}

// Scan handles POST /v1/registrations/:ticket/scan.
//
// @Summary      Scan a ticket at check-in
// @Description  The first scan confirms the registration. Every scan advances badge and ticket status.
// @Tags         checkin
// @Produce      json
// @Security     BearerAuth
// @Param        ticket  path      string  true  "Ticket number"
// @Success      200     {object}  scanResponse
// @Failure      403     {object}  map[string]any
// @Failure      404     {object}  map[string]any
// @Failure      409     {object}  map[string]any
// @Router       /v1/registrations/{ticket}/scan [post]
func (h *CheckinHandler) Scan(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	res, err := h.service.Scan(c.Request().Context(), c.Param("ticket"), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, scanResponse{Registration: res.Registration, Scan: res.Scan})
}

// PrintBadge handles POST /v1/registrations/:ticket/print/badge.
//
// @Summary      Record a badge print
// @Tags         checkin
// @Produce      json
// @Security     BearerAuth
// @Param        ticket  path      string  true  "Ticket number"
// @Success      200     {object}  domain.Registration
// @Failure      404     {object}  map[string]any
// @Failure      409     {object}  map[string]any
// @Router       /v1/registrations/{ticket}/print/badge [post]
func (h *CheckinHandler) PrintBadge(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	reg, err := h.service.PrintBadge(c.Request().Context(), c.Param("ticket"), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reg)
}

// PrintTicket handles POST /v1/registrations/:ticket/print/ticket.
//
// @Summary      Record a ticket print
// @Tags         checkin
// @Produce      json
// @Security     BearerAuth
// @Param        ticket  path      string  true  "Ticket number"
// @Success      200     {object}  domain.Registration
// @Failure      404     {object}  map[string]any
// @Failure      409     {object}  map[string]any
// @Router       /v1/registrations/{ticket}/print/ticket [post]
func (h *CheckinHandler) PrintTicket(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	reg, err := h.service.PrintTicket(c.Request().Context(), c.Param("ticket"), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reg)
}
