package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

type AssetHandler struct {
	badges ports.BadgeService
}

func NewAssetHandler(badges ports.BadgeService) *AssetHandler {
	return &AssetHandler{badges: badges}
}

// Get handles GET /v1/assets/:file where file is "<ticket>.png". A 404 means
// the asset is not generated yet; clients poll.
//
// @Summary      Download the QR image of a ticket
// @Tags         assets
// @Produce      png
// @Param        file  path      string  true  "<ticket>.png"
// @Success      200   {file}    binary
// @Failure      404   {object}  map[string]any
// @Router       /v1/assets/{file} [get]
func (h *AssetHandler) Get(c echo.Context) error {
	ticket, ok := strings.CutSuffix(c.Param("file"), ".png")
	if !ok || ticket == "" {
		return domain.ErrAssetPending
	}

	rc, err := h.badges.Open(c.Request().Context(), ticket)
	if err != nil {
		return err
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return c.Stream(http.StatusOK, "image/png", rc)
}

// Regenerate handles POST /v1/registrations/:ticket/asset.
//
// @Summary      Queue a fresh QR image for a ticket
// @Tags         assets
// @Produce      json
// @Security     BearerAuth
// @Param        ticket  path      string  true  "Ticket number"
// @Success      202     {object}  map[string]string
// @Failure      404     {object}  map[string]any
// @Failure      503     {object}  map[string]any
// @Router       /v1/registrations/{ticket}/asset [post]
func (h *AssetHandler) Regenerate(c echo.Context) error {
	ticket := c.Param("ticket")
	if err := h.badges.Regenerate(c.Request().Context(), ticket); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"status":    "queued",
		"asset_url": assetURL(ticket),
	})
}
