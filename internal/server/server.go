// Package server wires handlers, middleware and routes into one HTTP
// server.
//
// COMPOSITION ROOT:
// cmd/server builds the long-lived dependencies (credential store, token
// service, Redis client) from config and hands them to New. This package
// only decides which URL maps to which handler and which middleware runs
// where, so tests can build the full router around an in-memory store.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/expense-auth/internal/auth"
	"github.com/sakif/expense-auth/internal/handler"
	"github.com/sakif/expense-auth/internal/middleware"
	"github.com/sakif/expense-auth/internal/ratelimit"
	"github.com/sakif/expense-auth/internal/service"
)

// Config holds the HTTP-level settings.
type Config struct {
	Port        int
	FrontendURL string
	CORSOrigins []string
	Production  bool
	TokenTTL    time.Duration

	// RateLimitPrefix namespaces limiter keys in Redis.
	RateLimitPrefix string
}

// Deps are the collaborators the routes need.
type Deps struct {
	Auth  *service.AuthService
	Store handler.Pinger

	// Google is nil when Google login is not configured; its routes are
	// then not registered at all.
	Google handler.OAuthProvider

	// Limiter is nil when rate limiting is disabled.
	Limiter ratelimit.Limiter
}

// Server is the auth HTTP server.
type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

// New builds the router. It does not start listening.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Auth == nil || deps.Store == nil {
		return nil, errors.New("server: auth service and store are required")
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s, nil
}

// Router returns the fully wired handler, for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes registers middleware and routes.
//
// ROUTE STRUCTURE:
// GET    /health                 → store ping
// POST   /auth/register          → create password account   (rate limited)
// POST   /auth/login             → password login            (rate limited)
// POST   /auth/dev-login         → development login         (rate limited)
// GET    /auth/google            → Google consent redirect   (if configured)
// GET    /auth/google/callback   → Google login completion   (if configured)
// GET    /auth/profile           → current user              (RequireAuth)
// GET    /auth/verify            → token check for services  (RequireAuth)
// POST   /auth/logout            → clear the token cookie
//
// MIDDLEWARE ORDER MATTERS:
// RealIP runs before the rate limiter so buckets are keyed by the client
// address, not the proxy's. CORS runs before routing so preflight
// requests for any route are answered.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS(s.config.CORSOrigins))

	health := handler.NewHealthHandler(s.deps.Store, s.logger)
	s.router.Get("/health", health.HandleHealth)

	authHandler := handler.NewAuthHandler(s.deps.Auth, s.deps.Google, handler.AuthOptions{
		FrontendURL:   s.config.FrontendURL,
		TokenTTL:      s.config.TokenTTL,
		SecureCookies: s.config.Production,
	}, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.deps.Limiter != nil {
				r.Use(ratelimit.Middleware(s.deps.Limiter, s.config.RateLimitPrefix, s.logger))
			}
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/dev-login", authHandler.HandleDevLogin)
		})

		if s.deps.Google != nil {
			r.Get("/google", authHandler.HandleGoogleLogin)
			r.Get("/google/callback", authHandler.HandleGoogleCallback)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.deps.Auth))
			r.Get("/profile", authHandler.HandleProfile)
			r.Get("/verify", authHandler.HandleVerify)
		})

		r.Post("/logout", authHandler.HandleLogout)
	})
}

// Start listens on the configured port and blocks until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Let in-flight requests finish (up to 30s)
//  3. Return; the caller closes the store and Redis client
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.Bool("googleLogin", s.deps.Google != nil),
			slog.Bool("rateLimit", s.deps.Limiter != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
