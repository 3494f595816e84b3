// Package config loads the service configuration from the environment.
//
// HOW LOADING WORKS:
//  1. Outside production, a .env file in the working directory is read
//     into the process environment (godotenv). A missing file is fine.
//     Variables already set in the environment win over the file.
//  2. env.Parse fills the Config struct from `env:` tags, applying
//     `envDefault:` values for anything unset.
//  3. Validate checks the cross-field rules the tags cannot express, e.g.
//     "DATABASE_URL is required when DATABASE_TYPE=postgres".
//
// Everything downstream receives a typed section (Auth, Storage, ...)
// instead of reading os.Getenv itself.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend identifiers accepted by DATABASE_TYPE after normalisation.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
)

// MinSecretLength is the shortest JWT_SECRET accepted.
const MinSecretLength = 16

// Config is the full service configuration.
type Config struct {
	Env         string     `env:"APP_ENV" envDefault:"development"`
	Port        int        `env:"PORT" envDefault:"3001"`
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	FrontendURL string     `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	CORSOrigins []string   `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	Auth      Auth
	Storage   Storage
	Google    Google
	RateLimit RateLimit
}

// Auth configures token signing and password hashing.
type Auth struct {
	JWTSecret        string        `env:"JWT_SECRET,required"`
	JWTExpiresIn     time.Duration `env:"JWT_EXPIRES_IN" envDefault:"24h"`
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"expense-auth"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`
	DevLoginPassword string        `env:"DEV_LOGIN_PASSWORD" envDefault:"dev-password-123"`
}

// Storage selects and configures the credential store backend.
type Storage struct {
	Type           string        `env:"DATABASE_TYPE" envDefault:"postgres"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	AutoMigrate    bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"data/auth.db"`
	MongoURL       string        `env:"MONGODB_URL"`
	MongoDatabase  string        `env:"MONGODB_DATABASE" envDefault:"expense_auth"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`
}

// Google holds the OAuth client credentials. Google login is enabled only
// when both ClientID and ClientSecret are set.
type Google struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	CallbackURL  string `env:"GOOGLE_CALLBACK_URL" envDefault:"http://localhost:3001/auth/google/callback"`
}

// Enabled reports whether Google credentials are configured.
func (g Google) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// RateLimit configures the Redis token bucket on credential endpoints.
type RateLimit struct {
	RedisURL       string        `env:"REDIS_URL"`
	Enabled        bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"10"`
	RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS" envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"6s"`
	TTL            time.Duration `env:"RATE_LIMIT_TTL" envDefault:"10m"`
	Prefix         string        `env:"RATE_LIMIT_PREFIX" envDefault:"auth:rl"`
}

// Active reports whether requests should be rate limited at all.
func (r RateLimit) Active() bool {
	return r.Enabled && r.RedisURL != ""
}

// Load reads .env (outside production), parses the environment and
// validates the result.
func Load() (*Config, error) {
	if !isProduction(os.Getenv("APP_ENV")) {
		// The file is optional.
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return isProduction(c.Env)
}

func isProduction(appEnv string) bool {
	switch strings.ToLower(strings.TrimSpace(appEnv)) {
	case "production", "prod":
		return true
	}
	return false
}

// Validate checks rules that span several fields. It normalises
// Storage.Type to one of the Backend constants.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", MinSecretLength))
	}
	if c.Auth.JWTExpiresIn <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}

	backend, err := NormalizeBackend(c.Storage.Type)
	if err != nil {
		errs = append(errs, err)
	} else {
		c.Storage.Type = backend
		switch backend {
		case BackendPostgres:
			if c.Storage.DatabaseURL == "" {
				errs = append(errs, errors.New("DATABASE_URL is required when DATABASE_TYPE=postgres"))
			}
		case BackendMongo:
			if c.Storage.MongoURL == "" {
				errs = append(errs, errors.New("MONGODB_URL is required when DATABASE_TYPE=mongo"))
			}
		case BackendSQLite:
			if c.Storage.SQLitePath == "" {
				errs = append(errs, errors.New("SQLITE_PATH is required when DATABASE_TYPE=sqlite"))
			}
		}
	}

	if c.RateLimit.Active() && c.RateLimit.Capacity <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_CAPACITY must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// NormalizeBackend maps the accepted DATABASE_TYPE spellings to a Backend
// constant. Anything else is an error.
func NormalizeBackend(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "sqlite":
		return BackendSQLite, nil
	case "mongo", "mongodb":
		return BackendMongo, nil
	}
	return "", fmt.Errorf("unknown DATABASE_TYPE %q (want postgres, sqlite or mongo)", value)
}
