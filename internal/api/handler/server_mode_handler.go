package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

type ServerModeHandler struct {
	service ports.ServerModeService
}

func NewServerModeHandler(service ports.ServerModeService) *ServerModeHandler {
	return &ServerModeHandler{service: service}
}

type setModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=onsite online both deactivate"`
}

type serverModePage struct {
	Items      []*domain.ServerModeRecord `json:"items"`
	Total      int64                      `json:"total"`
	Page       int                        `json:"page"`
	Limit      int                        `json:"limit"`
	TotalPages int                        `json:"total_pages"`
}

// Get handles GET /v1/server-mode.
//
// @Summary      Current server mode
// @Tags         server-mode
// @Produce      json
// @Success      200  {object}  domain.ServerModeRecord
// @Failure      400  {object}  map[string]any  "No mode configured"
// @Router       /v1/server-mode [get]
func (h *ServerModeHandler) Get(c echo.Context) error {
	rec, err := h.service.Current(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// Set handles POST /v1/server-mode.
//
// @Summary      Switch the server mode
// @Tags         server-mode
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      setModeRequest  true  "New mode"
// @Success      201   {object}  domain.ServerModeRecord
// @Failure      422   {object}  map[string]any
// @Router       /v1/server-mode [post]
func (h *ServerModeHandler) Set(c echo.Context) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req setModeRequest
	if err := c.Bind(&req); err != nil {
		return bindError()
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	rec, err := h.service.Set(c.Request().Context(), req.Mode, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

// History handles GET /v1/server-mode/history.
//
// @Summary      Server mode log, newest first
// @Tags         server-mode
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page, 1-based"
// @Param        limit  query     int  false  "Page size, max 100"
// @Success      200    {object}  serverModePage
// @Router       /v1/server-mode/history [get]
func (h *ServerModeHandler) History(c echo.Context) error {
	verr := domain.NewValidationError()
	page := queryInt(c, "page", verr)
	limit := queryInt(c, "limit", verr)
	if !verr.Empty() {
		return verr
	}

	res, err := h.service.History(c.Request().Context(), page, limit)
	if err != nil {
		return err
	}
	items := res.Items
	if items == nil {
		items = []*domain.ServerModeRecord{}
	}
	return c.JSON(http.StatusOK, serverModePage{
		Items:      items,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
	})
}
