package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Context keys set by the Auth middleware.
const (
	CtxUsername = "username"
	CtxRole     = "role"
)

// ctxActor returns the authenticated username and role, both empty for
// anonymous requests on optionally authenticated routes.
func ctxActor(c echo.Context) (username, role string) {
	username, _ = c.Get(CtxUsername).(string)
	role, _ = c.Get(CtxRole).(string)
	return username, role
}

// requireActor fails fast when the Auth middleware did not run.
func requireActor(c echo.Context) (string, error) {
	username, role := ctxActor(c)
	if username == "" || role == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return username, nil
}

func bindError() error {
	return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
}
