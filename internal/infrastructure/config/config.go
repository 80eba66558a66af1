package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

type Config struct {
	Port      string        `env:"PORT,       default=8080"`
	Env       string        `env:"ENV,        default=development"`
	LogLevel  string        `env:"LOG_LEVEL,  default=info"`
	LogPretty bool          `env:"LOG_PRETTY, default=false"`
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,  default=12h"`

	StoreDriver string `env:"STORE_DRIVER, default=mongo"`

	Mongo    MongoConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Rabbit   RabbitConfig
	Assets   AssetConfig
	Intake   IntakeConfig
	Security SecurityConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=registration_system"`
}

type PostgresConfig struct {
	URL string `env:"DATABASE_URL"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// RabbitConfig selects the RabbitMQ job transport when URL is set; otherwise
// asset jobs run on the in-process dispatcher.
type RabbitConfig struct {
	URL      string `env:"RABBIT_URL"`
	Exchange string `env:"RABBIT_EXCHANGE, default=registration.assets.delayed"`
	Queue    string `env:"RABBIT_QUEUE,    default=registration.assets"`
}

type AssetConfig struct {
	Dir           string `env:"ASSET_DIR,            default=./data/assets"`
	ContentPrefix string `env:"ASSET_CONTENT_PREFIX"`
	Workers       int    `env:"ASSET_WORKERS,        default=4"`
	MaxAttempts   int    `env:"ASSET_MAX_ATTEMPTS,   default=5"`
}

type IntakeConfig struct {
	// ReprintLimit caps prints after the first one; 0 is unlimited.
	ReprintLimit int           `env:"REPRINT_LIMIT,     default=0"`
	LockTTL      time.Duration `env:"REGISTER_LOCK_TTL, default=10s"`
}

type SecurityConfig struct {
	// PIIIdentity is an age X25519 secret key (AGE-SECRET-KEY-1...).
	PIIIdentity string `env:"PII_IDENTITY"`
	// LookupKey is the 32-byte hex key for blind-index hashes.
	LookupKey string `env:"LOOKUP_KEY"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Production reports whether ENV is production.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Validate checks settings go-envconfig cannot express. Every problem is
// reported, not only the first.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Security.LookupKey == "" {
		errs = append(errs, errors.New("LOOKUP_KEY is required"))
	}
	switch c.StoreDriver {
	case StoreMongo:
	case StorePostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMongo, StorePostgres, c.StoreDriver))
	}
	if c.Production() && c.Security.PIIIdentity == "" {
		errs = append(errs, errors.New("PII_IDENTITY is required in production"))
	}
	if c.Intake.ReprintLimit < 0 {
		errs = append(errs, errors.New("REPRINT_LIMIT must not be negative"))
	}
	if c.Assets.MaxAttempts < 1 {
		errs = append(errs, errors.New("ASSET_MAX_ATTEMPTS must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
