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

package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-idbridge/pkg/adapters/logger"
	"github.com/jeremyhahn/go-idbridge/pkg/correlation"
	"github.com/jeremyhahn/go-idbridge/pkg/session"
)

type contextKey string

const authResultKey contextKey = "auth_result"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// LoggingMiddleware logs HTTP requests using the configured logger.
func (s *Server) LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			subject := "anonymous"
			if sess := SessionFromContext(r.Context()); sess != nil {
				subject = sess.Username
			}
			s.logger.Info("Request completed",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", wrapped.statusCode),
				logger.String("duration", time.Since(start).String()),
				logger.String("subject", subject),
				logger.String("correlation_id", correlation.GetCorrelationID(r.Context())))
		})
	}
}

// RecoveryMiddleware recovers from handler panics.
func (s *Server) RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					s.logger.Error("Panic in handler",
						logger.String("path", r.URL.Path),
						logger.Any("panic", rec))
					writeError(w, ErrInternalError, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SessionMiddleware evaluates the session cookie into the three-way
// authentication result and stores it on the request context. An
// infrastructure failure short-circuits here; anonymous requests fall
// through to the per-route guards.
func (s *Server) SessionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := s.handlers.sessions.Authenticate(r.Context(), sessionToken(r))
			if result.Err != nil {
				s.logger.WithError(result.Err).Error("session evaluation failed")
				writeError(w, ErrInternalError, http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), authResultKey, result)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthResultFromContext returns the authentication result placed by
// SessionMiddleware.
func AuthResultFromContext(ctx context.Context) session.Result {
	if result, ok := ctx.Value(authResultKey).(session.Result); ok {
		return result
	}
	return session.Result{}
}

// SessionFromContext returns the resolved session, nil for anonymous
// requests.
func SessionFromContext(ctx context.Context) *session.Session {
	return AuthResultFromContext(ctx).Session
}

// RequirePartialAuth admits any live session, fully authenticated or not.
// Anonymous requests get a redirect cookie pointing back at the original
// URL so the login flow can restore it.
func (s *Server) RequirePartialAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := AuthResultFromContext(r.Context())
			if result.Anonymous() {
				setRedirectCookie(w, r.URL.RequestURI())
				writeError(w, ErrUnauthorized, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFullAuth admits only sessions with every step completed. A
// partially authenticated session is told which steps remain.
func (s *Server) RequireFullAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := AuthResultFromContext(r.Context())
			if result.Anonymous() {
				setRedirectCookie(w, r.URL.RequestURI())
				writeError(w, ErrUnauthorized, http.StatusUnauthorized)
				return
			}
			if !result.FullyAuthenticated() {
				writeJSON(w, LoginResponse{
					Status:       "mfa_required",
					Username:     result.Session.Username,
					MissingSteps: result.Session.MissingSteps,
				}, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
