// Package middleware provides HTTP middleware for the Linkhost API.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/artpar/linkhost/internal/core/auth"
)

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// SharedSecret is an optional secret to validate the X-Gateway-Secret header.
	// If empty, secret validation is skipped.
	SharedSecret string

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware extracts the caller identity from gateway headers
// and stores it in the request context.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Handler returns the middleware handler function.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.config.SharedSecret != "" {
			if r.Header.Get(auth.HeaderGatewaySecret) != m.config.SharedSecret {
				m.config.Logger.Warn("invalid gateway secret",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "Invalid gateway secret")
				return
			}
		}

		ctx := auth.ExtractFromRequest(r)
		r = r.WithContext(auth.WithContext(r.Context(), ctx))

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Require Auth Middleware
// =============================================================================

// RequireAuth rejects requests without an owner identity.
// Must be used AFTER AuthMiddleware.
func RequireAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.FromContext(r.Context())

			if !ctx.Authenticated {
				logger.Warn("unauthenticated request to protected endpoint",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
					"method", r.Method,
				)
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// JSON Error Response
// =============================================================================

type errorObject struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

type errorResponse struct {
	Errors []errorObject `json:"errors"`
}

// writeJSONError writes an error in the same shape as the API handlers.
func writeJSONError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Errors: []errorObject{
			{
				Status: strconv.Itoa(status),
				Code:   code,
				Title:  http.StatusText(status),
				Detail: detail,
			},
		},
	})
}
