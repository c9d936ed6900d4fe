// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-idbridge.
//
// go-idbridge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest exposes the identity bridge over a JSON HTTP API: password
// login against the directory, step-up MFA, credential self-management,
// profile access, and the authorization-server login/consent endpoints.
package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-idbridge/pkg/adapters/logger"
	"github.com/jeremyhahn/go-idbridge/pkg/bridge"
	"github.com/jeremyhahn/go-idbridge/pkg/credential"
	"github.com/jeremyhahn/go-idbridge/pkg/directory"
	"github.com/jeremyhahn/go-idbridge/pkg/ratelimit"
	"github.com/jeremyhahn/go-idbridge/pkg/session"
)

// Server represents the REST API server.
type Server struct {
	server   *http.Server
	handlers *HandlerContext
	addr     string
	logger   logger.Logger
	limiter  *ratelimit.Limiter
}

// Config holds the REST server configuration.
type Config struct {
	// Host is the listen address (default: all interfaces).
	Host string

	// Port is the HTTP port to listen on (default: 8080).
	Port int

	// Sessions is the session manager (required).
	Sessions *session.Manager

	// Credentials is the credential challenge manager (required).
	Credentials *credential.Manager

	// Bridge is the authorization-server handshake bridge (required).
	Bridge *bridge.Bridge

	// Directory is the LDAP directory (required).
	Directory directory.Directory

	// Logger is the logging adapter (optional, defaults to slog).
	Logger logger.Logger

	// SessionTTL is the session cookie lifetime (default: 12h).
	SessionTTL time.Duration

	// AdminGroupDN marks members of this group as admins in profile
	// responses (optional).
	AdminGroupDN string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next
	// request.
	IdleTimeout time.Duration

	// RateLimit throttles the credential-bearing endpoints per client
	// IP (optional, disabled when nil).
	RateLimit *ratelimit.Config
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credential manager is required")
	}
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{
			Level: logger.LevelInfo,
		})
	}

	handlers := NewHandlerContext(cfg.Sessions, cfg.Credentials, cfg.Bridge,
		cfg.Directory, log, cfg.SessionTTL, cfg.AdminGroupDN)

	server := &Server{
		handlers: handlers,
		addr:     net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		logger:   log,
		limiter:  ratelimit.New(cfg.RateLimit),
	}

	server.server = &http.Server{
		Addr:         server.addr,
		Handler:      server.setupRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(CorrelationMiddleware())
	r.Use(s.RecoveryMiddleware())
	r.Use(s.SessionMiddleware())
	r.Use(s.LoggingMiddleware())

	r.Get("/health", s.handlers.HealthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Anonymous surface: the login handshake. Rate limited per
		// client IP since passwords travel through here.
		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(s.limiter))

			r.Get("/login", s.handlers.BeginLoginHandler)
			r.Post("/login", s.handlers.LoginHandler)
		})

		// Any live session, fully authenticated or not. MFA proofs are
		// guessable, so they share the login rate limit.
		r.Group(func(r chi.Router) {
			r.Use(s.RequirePartialAuth())

			r.Post("/logout", s.handlers.LogoutHandler)

			r.Group(func(r chi.Router) {
				r.Use(ratelimit.Middleware(s.limiter))

				r.Post("/mfa/webauthn/begin", s.handlers.BeginWebAuthnLoginHandler)
				r.Post("/mfa/webauthn/finish", s.handlers.FinishWebAuthnLoginHandler)
				r.Post("/mfa/totp", s.handlers.VerifyTOTPHandler)
			})
		})

		// Fully authenticated sessions only.
		r.Group(func(r chi.Router) {
			r.Use(s.RequireFullAuth())

			r.Get("/consent", s.handlers.BeginConsentHandler)
			r.Post("/consent/accept", s.handlers.AcceptConsentHandler)
			r.Post("/consent/reject", s.handlers.RejectConsentHandler)

			r.Get("/credentials", s.handlers.ListCredentialsHandler)
			r.Delete("/credentials/{id}", s.handlers.DeleteCredentialHandler)
			r.Post("/credentials/webauthn/begin", s.handlers.BeginWebAuthnRegistrationHandler)
			r.Post("/credentials/webauthn/finish", s.handlers.FinishWebAuthnRegistrationHandler)
			r.Post("/credentials/totp/begin", s.handlers.BeginTOTPHandler)
			r.Post("/credentials/totp/confirm", s.handlers.ConfirmTOTPHandler)

			r.Get("/profile", s.handlers.GetProfileHandler)
			r.Put("/profile", s.handlers.UpdateProfileHandler)
		})
	})

	return r
}

// Handler returns the configured router. Mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the REST API server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", logger.String("addr", s.addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logger.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}
