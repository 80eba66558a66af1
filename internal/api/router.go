package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/eventdesk/registration-system/internal/api/handler"
	"github.com/eventdesk/registration-system/internal/api/middleware"
	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
	_ "github.com/eventdesk/registration-system/internal/docs"
	"github.com/eventdesk/registration-system/internal/infrastructure/http/handlers"
)

// Services are the use cases the API exposes.
type Services struct {
	Registrations ports.RegistrationService
	Checkin       ports.CheckinService
	Badges        ports.BadgeService
	ServerMode    ports.ServerModeService
	Auth          ports.AuthService
}

// Options configure the transport around the services.
type Options struct {
	JWTSecret string
	Logger    zerolog.Logger
	// Checks are the readiness probes served at /health/ready.
	Checks map[string]handlers.Check
	// Metrics registers the Prometheus middleware and /metrics. It registers
	// collectors globally, so only one router per process may enable it.
	Metrics bool
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(svc Services, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(opts.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(opts.Logger))
	if opts.Metrics {
		e.Use(echoprometheus.NewMiddleware("registration"))
		e.GET("/metrics", echoprometheus.NewHandler())
	}

	// --- Health probes and docs (no auth required) ---
	e.GET("/health", handlers.NewHealthHandler().Liveness)
	e.GET("/health/ready", handlers.NewHealthDependenciesHandler(opts.Checks).Readiness)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Dependencies ---
	registrations := handler.NewRegistrationHandler(svc.Registrations, svc.Checkin, svc.Auth)
	checkin := handler.NewCheckinHandler(svc.Checkin)
	assets := handler.NewAssetHandler(svc.Badges)
	modes := handler.NewServerModeHandler(svc.ServerMode)
	users := handler.NewAuthHandler(svc.Auth)

	auth := middleware.Auth(opts.JWTSecret)
	guard := func(p domain.Permission) []echo.MiddlewareFunc {
		return []echo.MiddlewareFunc{auth, middleware.RequirePermission(svc.Auth, p)}
	}

	// --- Auth routes ---
	e.POST("/auth/login", users.Login)

	v1 := e.Group("/v1")

	// --- Registrations ---
	v1.POST("/registrations", registrations.Create, middleware.OptionalAuth(opts.JWTSecret))
	v1.GET("/registrations", registrations.List, guard(domain.PermRegistrationRead)...)
	v1.GET("/registrations/:ticket", registrations.Get, guard(domain.PermRegistrationRead)...)
	v1.GET("/registrations/:ticket/scans", registrations.Scans, guard(domain.PermRegistrationRead)...)

	// --- Check-in ---
	v1.POST("/registrations/:ticket/scan", checkin.Scan, guard(domain.PermCheckinScan)...)
	v1.POST("/registrations/:ticket/print/badge", checkin.PrintBadge, guard(domain.PermBadgePrint)...)
	v1.POST("/registrations/:ticket/print/ticket", checkin.PrintTicket, guard(domain.PermBadgePrint)...)

	// --- Assets ---
	v1.GET("/assets/:file", assets.Get)
	v1.POST("/registrations/:ticket/asset", assets.Regenerate, guard(domain.PermBadgePrint)...)

	// --- Server mode ---
	v1.GET("/server-mode", modes.Get)
	v1.POST("/server-mode", modes.Set, guard(domain.PermServerModeManage)...)
	v1.GET("/server-mode/history", modes.History, guard(domain.PermServerModeManage)...)

	// --- Users ---
	v1.POST("/users", users.CreateUser, guard(domain.PermUserManage)...)
	v1.POST("/users/:username/disable", users.DisableUser, guard(domain.PermUserManage)...)
	v1.DELETE("/users/:username", users.DeleteUser, guard(domain.PermUserManage)...)

	return e
}
