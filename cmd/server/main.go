package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/api"
	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/core/service"
	"github.com/eventdesk/registration-system/internal/infrastructure/assets"
	"github.com/eventdesk/registration-system/internal/infrastructure/config"
	"github.com/eventdesk/registration-system/internal/infrastructure/db"
	redisstore "github.com/eventdesk/registration-system/internal/infrastructure/db/redis"
	"github.com/eventdesk/registration-system/internal/infrastructure/http/handlers"
	"github.com/eventdesk/registration-system/internal/infrastructure/pii"
	"github.com/eventdesk/registration-system/internal/infrastructure/queue"
	"github.com/eventdesk/registration-system/internal/infrastructure/queue/rabbit"
	"github.com/eventdesk/registration-system/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// @title                       Event Registration API
// @version                     1.0
// @description                 Ticket issuance, QR badge assets, check-in scans and the intake gate.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the JWT.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		// The logger is not configured yet.
		fallback := logger.New(logger.Options{Service: "registration"})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "registration"})
	log.Info().Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("initializing registration service")

	cipher := newCipher(cfg, log)
	hasher, err := pii.NewHasher(cfg.Security.LookupKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid LOOKUP_KEY")
	}

	store, err := db.Open(ctx, cfg, cipher, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open datastore")
	}

	redisClient, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

	assetStore, err := assets.NewFileStore(cfg.Assets.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare asset directory")
	}

	// --- Services ---
	modes := service.NewServerModeService(store.ServerModes, log)
	badges := service.NewBadgeService(store.Registrations, assets.NewQREncoder(0), assetStore, cfg.Assets.ContentPrefix, log)
	registrations := service.NewRegistrationService(
		store.Registrations,
		store.PrintStatuses,
		modes,
		badges,
		hasher,
		redisstore.NewPersonLock(redisClient, log),
		service.RegistrationOptions{LockTTL: cfg.Intake.LockTTL},
		log,
	)
	checkin := service.NewCheckinService(store.Registrations, store.PrintStatuses, modes, cfg.Intake.ReprintLimit, log)
	auth := service.NewAuthService(store.Auth, cfg.JWTSecret, cfg.TokenTTL, log)

	// --- Asset jobs ---
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	checks := map[string]handlers.Check{
		store.Driver: store.Ping,
		"redis":      func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"assets":     func(context.Context) error { return assetStore.Ping() },
	}

	var (
		broker     *rabbit.Client
		dispatcher *queue.Dispatcher
	)
	if cfg.Rabbit.URL != "" {
		broker, err = rabbit.Dial(rabbit.Config{
			URL:         cfg.Rabbit.URL,
			Exchange:    cfg.Rabbit.Exchange,
			Queue:       cfg.Rabbit.Queue,
			MaxAttempts: cfg.Assets.MaxAttempts,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		if err := broker.Consume(workerCtx, badges); err != nil {
			log.Fatal().Err(err).Msg("failed to start asset consumer")
		}
		badges.UseQueue(broker)
		checks["rabbitmq"] = broker.Ping
	} else {
		dispatcher = queue.NewDispatcher(cfg.Assets.Workers, queue.DefaultRetryPolicy(cfg.Assets.MaxAttempts), log)
		dispatcher.Start(workerCtx, badges)
		badges.UseQueue(dispatcher)
		log.Info().Int("workers", cfg.Assets.Workers).Msg("in-process asset dispatcher started")
	}

	// --- HTTP ---
	e := api.NewRouter(api.Services{
		Registrations: registrations,
		Checkin:       checkin,
		Badges:        badges,
		ServerMode:    modes,
		Auth:          auth,
	}, api.Options{
		JWTSecret: cfg.JWTSecret,
		Logger:    log,
		Checks:    checks,
		Metrics:   true,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting http server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		log.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}

	cancelWorkers()
	if dispatcher != nil {
		dispatcher.Wait()
	}
	if broker != nil {
		broker.Close()
	}
	if err := redisClient.Close(); err != nil {
		log.Warn().Err(err).Msg("closing redis")
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("closing datastore")
	}

	log.Info().Msg("server stopped")
}

// newCipher builds the PII cipher. Without PII_IDENTITY values are stored in
// plaintext, which config validation only allows outside production.
func newCipher(cfg *config.Config, log zerolog.Logger) ports.FieldCipher {
	if cfg.Security.PIIIdentity == "" {
		log.Warn().Msg("PII_IDENTITY not set, identity fields are stored unencrypted")
		return pii.NopCipher{}
	}
	cipher, err := pii.NewAgeCipher(cfg.Security.PIIIdentity)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid PII_IDENTITY")
	}
	return cipher
}
