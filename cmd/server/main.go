// Package main is the entry point of the auth service.
//
// main only reads configuration, builds the long-lived dependencies and
// starts the server. All behaviour lives in internal/.
//
// STARTUP ORDER:
//  1. Load config (.env outside production, then the environment)
//  2. Build the logger (text in development, JSON in production)
//  3. Open the credential store chosen by DATABASE_TYPE
//  4. Connect Redis for rate limiting, if configured
//  5. Wire the services and start the HTTP server
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/expense-auth/internal/auth"
	"github.com/sakif/expense-auth/internal/config"
	"github.com/sakif/expense-auth/internal/handler"
	"github.com/sakif/expense-auth/internal/ratelimit"
	"github.com/sakif/expense-auth/internal/server"
	"github.com/sakif/expense-auth/internal/service"
	"github.com/sakif/expense-auth/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("auth service stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing credential store", slog.String("error", err.Error()))
		}
	}()

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTExpiresIn)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService(cfg.Auth.BcryptCost)

	authService := service.NewAuthService(store.Users, tokens, passwords, logger, service.Options{
		DevLoginPassword: cfg.Auth.DevLoginPassword,
		Production:       cfg.IsProduction(),
	})

	deps := server.Deps{Auth: authService, Store: store.Users}

	// Assigned only when configured: a nil *GoogleProvider stored in the
	// interface would not compare equal to nil.
	if cfg.Google.Enabled() {
		var google handler.OAuthProvider = auth.NewGoogleProvider(
			cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.CallbackURL)
		deps.Google = google
	} else {
		logger.Info("GOOGLE_CLIENT_ID not set, Google login disabled")
	}

	if cfg.RateLimit.Active() {
		rdb, err := ratelimit.Connect(ctx, cfg.RateLimit.RedisURL)
		if err != nil {
			// Login keeps working without Redis, just unthrottled.
			logger.Warn("rate limiting disabled", slog.String("error", err.Error()))
		} else {
			defer rdb.Close()
			deps.Limiter = ratelimit.NewRedisLimiter(rdb, ratelimit.Config{
				Capacity:       cfg.RateLimit.Capacity,
				RefillTokens:   cfg.RateLimit.RefillTokens,
				RefillInterval: cfg.RateLimit.RefillInterval,
				TTL:            cfg.RateLimit.TTL,
			})
		}
	}

	srv, err := server.New(server.Config{
		Port:            cfg.Port,
		FrontendURL:     cfg.FrontendURL,
		CORSOrigins:     corsOrigins(cfg),
		Production:      cfg.IsProduction(),
		TokenTTL:        tokens.TTL(),
		RateLimitPrefix: cfg.RateLimit.Prefix,
	}, deps, logger)
	if err != nil {
		return err
	}

	logger.Info("auth service configured",
		slog.String("env", cfg.Env),
		slog.String("backend", store.Backend),
		slog.Int("bcryptCost", passwords.Cost()),
	)
	return srv.Start()
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// corsOrigins defaults to the frontend when no explicit list is set.
func corsOrigins(cfg *config.Config) []string {
	if len(cfg.CORSOrigins) > 0 {
		return cfg.CORSOrigins
	}
	if cfg.FrontendURL != "" {
		return []string{cfg.FrontendURL}
	}
	return nil
}
