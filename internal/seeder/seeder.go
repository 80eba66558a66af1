// Package seeder installs the reference data a fresh datastore needs before
// the service can issue tickets.
package seeder

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/ports"
)

// Actor is recorded as the activator of the initial server mode.
const Actor = "seed"

// RoleStore defines methods for seeding roles
type RoleStore interface {
	UpsertRole(ctx context.Context, role domain.Role) error
}

// Options selects what SeedAll creates.
type Options struct {
	SuperadminUsername string
	// SuperadminPassword empty skips the superadmin account.
	SuperadminPassword string
	SuperadminEmail    string
	// InitialMode is set only when no mode has been recorded yet.
	InitialMode domain.ServerMode
}

// Seeder populates the datastore. Every step is idempotent.
type Seeder struct {
	statuses ports.PrintStatusRepository
	roles    RoleStore
	users    ports.AuthService
	modes    ports.ServerModeService
	logger   zerolog.Logger
}

func New(statuses ports.PrintStatusRepository, roles RoleStore, users ports.AuthService, modes ports.ServerModeService, logger zerolog.Logger) *Seeder {
	return &Seeder{statuses: statuses, roles: roles, users: users, modes: modes, logger: logger}
}

// SeedAll runs every step in dependency order: roles before the user that
// references one.
func (s *Seeder) SeedAll(ctx context.Context, opts Options) error {
	if err := s.seedPrintStatuses(ctx); err != nil {
		return fmt.Errorf("seed print statuses: %w", err)
	}
	if err := s.seedRoles(ctx); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	if err := s.seedSuperadmin(ctx, opts); err != nil {
		return fmt.Errorf("seed superadmin: %w", err)
	}
	if err := s.seedServerMode(ctx, opts.InitialMode); err != nil {
		return fmt.Errorf("seed server mode: %w", err)
	}
	s.logger.Info().Msg("seed complete")
	return nil
}

func (s *Seeder) seedPrintStatuses(ctx context.Context) error {
	rows := domain.DefaultPrintStatuses()
	for _, st := range rows {
		if err := s.statuses.Upsert(ctx, st); err != nil {
			return fmt.Errorf("%s/%s: %w", st.Type, st.Name, err)
		}
	}
	s.logger.Info().Int("rows", len(rows)).Msg("print statuses seeded")
	return nil
}

func (s *Seeder) seedRoles(ctx context.Context) error {
	for _, role := range domain.DefaultRoles() {
		if err := s.roles.UpsertRole(ctx, role); err != nil {
			return fmt.Errorf("%s: %w", role.Name, err)
		}
	}
	s.logger.Info().Msg("roles seeded")
	return nil
}

func (s *Seeder) seedSuperadmin(ctx context.Context, opts Options) error {
	if opts.SuperadminPassword == "" {
		s.logger.Warn().Msg("no superadmin password given, skipping superadmin account")
		return nil
	}

	_, err := s.users.CreateUser(ctx, ports.CreateUserInput{
		Username: opts.SuperadminUsername,
		Password: opts.SuperadminPassword,
		Email:    opts.SuperadminEmail,
		Role:     domain.RoleSuperadmin,
	})
	if errors.Is(err, domain.ErrUserExists) {
		s.logger.Info().Str("username", opts.SuperadminUsername).Msg("superadmin already exists")
		return nil
	}
	return err
}

func (s *Seeder) seedServerMode(ctx context.Context, mode domain.ServerMode) error {
	current, err := s.modes.Current(ctx)
	switch {
	case err == nil:
		s.logger.Info().Str("mode", string(current.Mode)).Msg("server mode already set, keeping it")
		return nil
	case !errors.Is(err, domain.ErrServerModeMissing):
		return err
	}

	if _, err := s.modes.Set(ctx, string(mode), Actor); err != nil {
		return err
	}
	s.logger.Info().Str("mode", string(mode)).Msg("initial server mode set")
	return nil
}
