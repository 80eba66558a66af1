package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventdesk/registration-system/internal/api/handler"
	"github.com/eventdesk/registration-system/internal/core/domain"
)

// RequirePermission allows the request only when the token's user still exists,
// is enabled and holds perm through its current role. It must run after Auth.
func RequirePermission(authz handler.Authorizer, perm domain.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username, _ := c.Get(handler.CtxUsername).(string)
			if username == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
			}

			if err := authz.Authorize(c.Request().Context(), username, perm); err != nil {
				return err
			}
			return next(c)
		}
	}
}
