package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/core/service"
	"github.com/eventdesk/registration-system/internal/infrastructure/config"
	"github.com/eventdesk/registration-system/internal/infrastructure/db"
	"github.com/eventdesk/registration-system/internal/infrastructure/pii"
	"github.com/eventdesk/registration-system/internal/seeder"
	"github.com/eventdesk/registration-system/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		opts        seeder.Options
		initialMode string
		genIdentity bool
	)

	flagSet := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flagSet.StringVar(&opts.SuperadminUsername, "superadmin", "superadmin", "username of the superadmin account")
	flagSet.StringVar(&opts.SuperadminPassword, "superadmin-password", os.Getenv("SEED_SUPERADMIN_PASSWORD"), "superadmin password (default $SEED_SUPERADMIN_PASSWORD); empty skips the account")
	flagSet.StringVar(&opts.SuperadminEmail, "superadmin-email", "", "superadmin email")
	flagSet.StringVar(&initialMode, "mode", string(domain.ModeDeactivate), "initial server mode when none is recorded (onsite, online, both, deactivate)")
	flagSet.BoolVar(&genIdentity, "generate-pii-identity", false, "print a new age identity for PII_IDENTITY and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "Usage: seed [flags]")
		flagSet.PrintDefaults()
		return nil
	}

	if genIdentity {
		identity, err := pii.GenerateIdentity()
		if err != nil {
			return err
		}
		fmt.Println(identity)
		return nil
	}

	opts.InitialMode = domain.ServerMode(initialMode)
	if !opts.InitialMode.Valid() {
		return fmt.Errorf("invalid --mode %q", initialMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: true, Service: "seed"})

	// The seeder writes no identity fields, so the repositories never encrypt.
	store, err := db.Open(ctx, cfg, pii.NopCipher{}, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	auth := service.NewAuthService(store.Auth, cfg.JWTSecret, cfg.TokenTTL, log)
	modes := service.NewServerModeService(store.ServerModes, log)

	return seeder.New(store.PrintStatuses, store.Auth, auth, modes, log).SeedAll(ctx, opts)
}
