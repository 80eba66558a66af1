package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error  string              `json:"error"`
	Kind   string              `json:"kind,omitempty"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// errorKinds maps each domain error kind to its status code and wire name.
var errorKinds = []struct {
	kind   error
	status int
	name   string
}{
	{domain.ErrValidation, http.StatusUnprocessableEntity, "validation"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrConfigurationMissing, http.StatusBadRequest, "configuration_missing"},
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain error kinds to their HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders {"error", "kind", "fields"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, auth middleware)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, errorResponse{
			Error:  domain.ErrValidation.Error(),
			Kind:   "validation",
			Fields: verr.Fields,
		}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			if k.status == http.StatusServiceUnavailable {
				log.Warn().Err(err).Str("method", c.Request().Method).Str("path", c.Path()).Msg("dependency unavailable")
				return k.status, errorResponse{Error: k.kind.Error(), Kind: k.name}
			}
			return k.status, errorResponse{Error: publicMessage(err, k.kind), Kind: k.name}
		}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error", Kind: "internal"}
}

// publicMessage returns the most specific sentinel message err wraps, without
// the operation prefixes added on the way up.
func publicMessage(err, kind error) string {
	for _, specific := range []error{
		domain.ErrRegistrationNotFound, domain.ErrDuplicatePerson, domain.ErrDuplicateEmail,
		domain.ErrDuplicateTicket, domain.ErrRegistrationBusy, domain.ErrReprintLimit,
		domain.ErrStaleRegistration, domain.ErrIdempotencyKeyReused, domain.ErrIntakeClosed,
		domain.ErrScanForbidden, domain.ErrProtectedUser, domain.ErrUserDisabled,
		domain.ErrServerModeMissing, domain.ErrPrintStatusMissing, domain.ErrAssetPending,
		domain.ErrInvalidCredentials, domain.ErrUserNotFound, domain.ErrUserExists,
		domain.ErrRoleNotFound,
	} {
		if errors.Is(err, specific) {
			return specific.Error()
		}
	}
	return kind.Error()
}
