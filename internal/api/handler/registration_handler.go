package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

// Authorizer checks that a user still exists, is enabled and holds a permission.
type Authorizer interface {
	Authorize(ctx context.Context, username string, perm domain.Permission) error
}

// RegistrationHandler serves ticket issuance and lookups.
type RegistrationHandler struct {
	service ports.RegistrationService
	checkin ports.CheckinService
	authz   Authorizer
}

func NewRegistrationHandler(service ports.RegistrationService, checkin ports.CheckinService, authz Authorizer) *RegistrationHandler {
	return &RegistrationHandler{service: service, checkin: checkin, authz: authz}
}

type registrationResponse struct {
	Registration *domain.Registration `json:"registration"`
	AssetReady   bool                 `json:"asset_ready"`
	AssetURL     string               `json:"asset_url"`
}

type registrationPage struct {
	Items      []*domain.Registration `json:"items"`
	Total      int64                  `json:"total"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	TotalPages int                    `json:"total_pages"`
}

func assetURL(ticket string) string {
	return "/v1/assets/" + ticket + ".png"
}

// Create handles POST /v1/registrations.
//
// @Summary      Issue a ticket
// @Description  Self-service channels (onsite, online) accept anonymous requests. Staff channels
// @Description  (pre-registered, complimentary) need a token with registration:create.
// @Tags         registrations
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header    string             false  "Replay key, at most 128 printable characters"
// @Param        body             body      ports.RegisterInput  true   "Registrant"
// @Success      201              {object}  registrationResponse
// @Success      200              {object}  registrationResponse  "Idempotent replay"
// @Failure      400              {object}  map[string]any
// @Failure      403              {object}  map[string]any
// @Failure      409              {object}  map[string]any
// @Failure      422              {object}  map[string]any
// @Failure      503              {object}  map[string]any
// @Router       /v1/registrations [post]
func (h *RegistrationHandler) Create(c echo.Context) error {
	var in ports.RegisterInput
	if err := c.Bind(&in); err != nil {
		return bindError()
	}

	key := c.Request().Header.Get(HeaderIdempotencyKey)
	if err := validateIdempotencyKey(key); err != nil {
		return err
	}
	in.IdempotencyKey = key

	username, _ := ctxActor(c)
	if staffChannel(in.RegistrationType) {
		if err := h.requirePermission(c.Request().Context(), username, domain.PermRegistrationCreate); err != nil {
			return err
		}
	}
	in.Actor = username

	res, err := h.service.Register(c.Request().Context(), in)
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if res.AlreadyExisted {
		status = http.StatusOK
	}
	return c.JSON(status, registrationResponse{
		Registration: res.Registration,
		AssetReady:   res.AssetReady || res.Registration.QRAssetPath != "",
		AssetURL:     assetURL(res.Registration.TicketNumber),
	})
}

func staffChannel(t string) bool {
	rt := domain.RegistrationType(t)
	return rt == domain.TypePreRegistered || rt == domain.TypeComplimentary
}

func (h *RegistrationHandler) requirePermission(ctx context.Context, username string, perm domain.Permission) error {
	if username == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required for this registration type")
	}
	return h.authz.Authorize(ctx, username, perm)
}

func validateIdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	msg := ""
	if len(key) > maxIdempotencyKeyLen {
		msg = fmt.Sprintf("must be at most %d characters", maxIdempotencyKeyLen)
	}
	for _, r := range key {
		if r < 0x21 || r > 0x7e {
			msg = "must contain printable ASCII characters only"
			break
		}
	}
	if msg == "" {
		return nil
	}
	verr := domain.NewValidationError()
	verr.Add(HeaderIdempotencyKey, msg)
	return verr
}

// List handles GET /v1/registrations.
//
// @Summary      List registrations
// @Tags         registrations
// @Produce      json
// @Security     BearerAuth
// @Param        registration_type  query     string  false  "Channel filter"
// @Param        badge_status       query     string  false  "Badge status filter"
// @Param        confirmed          query     bool    false  "Confirmation filter"
// @Param        page               query     int     false  "Page, 1-based"
// @Param        limit              query     int     false  "Page size, max 100"
// @Success      200                {object}  registrationPage
// @Failure      422                {object}  map[string]any
// @Router       /v1/registrations [get]
func (h *RegistrationHandler) List(c echo.Context) error {
	in := ports.ListRegistrationsInput{
		RegistrationType: c.QueryParam("registration_type"),
		BadgeStatus:      c.QueryParam("badge_status"),
	}

	verr := domain.NewValidationError()
	if raw := c.QueryParam("confirmed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			verr.Add("confirmed", "must be true or false")
		}
		in.Confirmed = &v
	}
	in.Page = queryInt(c, "page", verr)
	in.Limit = queryInt(c, "limit", verr)
	if !verr.Empty() {
		return verr
	}

	res, err := h.service.List(c.Request().Context(), in)
	if err != nil {
		return err
	}
	items := res.Items
	if items == nil {
		items = []*domain.Registration{}
	}
	return c.JSON(http.StatusOK, registrationPage{
		Items:      items,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
	})
}

func queryInt(c echo.Context, name string, verr *domain.ValidationError) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		verr.Add(name, "must be a non-negative integer")
		return 0
	}
	return n
}

// Get handles GET /v1/registrations/:ticket.
//
// @Summary      Get a registration by ticket number
// @Tags         registrations
// @Produce      json
// @Security     BearerAuth
// @Param        ticket  path      string  true  "Ticket number"
// @Success      200     {object}  domain.Registration
// @Failure      404     {object}  map[string]any
// @Router       /v1/registrations/{ticket} [get]
func (h *RegistrationHandler) Get(c echo.Context) error {
	reg, err := h.service.Get(c.Request().Context(), c.Param("ticket"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reg)
}

// Scans handles GET /v1/registrations/:ticket/scans.
//
// @Summary      Scan history of a ticket, oldest first
// @Tags         registrations
// @Produce      json
// @Security     BearerAuth
// @Param        ticket  path      string  true  "Ticket number"
// @Success      200     {array}   domain.Scan
// @Failure      404     {object}  map[string]any
// @Router       /v1/registrations/{ticket}/scans [get]
func (h *RegistrationHandler) Scans(c echo.Context) error {
	scans, err := h.checkin.Scans(c.Request().Context(), c.Param("ticket"))
	if err != nil {
		return err
	}
	if scans == nil {
		scans = []*domain.Scan{}
	}
	return c.JSON(http.StatusOK, scans)
}
