// Package db opens the datastore selected by STORE_DRIVER and exposes its
// repositories behind the core ports.
package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/ports"
	"github.com/eventdesk/registration-system/internal/infrastructure/config"
	"github.com/eventdesk/registration-system/internal/infrastructure/db/mongo"
	"github.com/eventdesk/registration-system/internal/infrastructure/db/postgres"
)

// Store bundles the repositories of one backend.
type Store struct {
	Driver        string
	Registrations ports.RegistrationRepository
	PrintStatuses ports.PrintStatusRepository
	ServerModes   ports.ServerModeRepository
	Auth          ports.AuthRepository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ping checks the backend is reachable. It backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.close(ctx)
}

// Open connects to the configured backend and prepares its schema: indexes on
// MongoDB, embedded migrations on PostgreSQL.
func Open(ctx context.Context, cfg *config.Config, cipher ports.FieldCipher, log zerolog.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		return openPostgres(ctx, cfg, cipher, log)
	case config.StoreMongo:
		return openMongo(ctx, cfg, cipher, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openMongo(ctx context.Context, cfg *config.Config, cipher ports.FieldCipher, log zerolog.Logger) (*Store, error) {
	client, database, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return nil, err
	}

	registrations := mongo.NewRegistrationRepository(database, cipher)
	statuses := mongo.NewPrintStatusRepository(database)
	modes := mongo.NewServerModeRepository(database)
	users := mongo.NewAuthRepository(database)

	if err := mongo.EnsureIndexes(ctx, registrations, statuses, modes, users); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("mongodb connected")

	return &Store{
		Driver:        config.StoreMongo,
		Registrations: registrations,
		PrintStatuses: statuses,
		ServerModes:   modes,
		Auth:          users,
		ping:          func(ctx context.Context) error { return client.Ping(ctx, nil) },
		close:         client.Disconnect,
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, cipher ports.FieldCipher, log zerolog.Logger) (*Store, error) {
	conn, err := postgres.Connect(ctx, postgres.Config{URL: cfg.Postgres.URL})
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Info().Msg("postgres connected, migrations applied")

	return &Store{
		Driver:        config.StorePostgres,
		Registrations: postgres.NewRegistrationRepository(conn, cipher),
		PrintStatuses: postgres.NewPrintStatusRepository(conn),
		ServerModes:   postgres.NewServerModeRepository(conn),
		Auth:          postgres.NewAuthRepository(conn),
		ping:          conn.PingContext,
		close:         func(context.Context) error { return conn.Close() },
	}, nil
}
