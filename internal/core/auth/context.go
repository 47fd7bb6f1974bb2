// Package auth provides the authentication context of an API request.
// Identity is established by the gateway in front of the API; this package
// only extracts it.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// =============================================================================
// Context Key
// =============================================================================

type contextKey string

const authContextKey contextKey = "auth"

// =============================================================================
// Types
// =============================================================================

// Context represents the authentication context for a request.
type Context struct {
	// OwnerID is the authenticated user (from X-User-ID or the bearer token subject)
	OwnerID string

	// KeyID is the API key ID if API key authentication was used (from X-Key-ID header)
	KeyID string

	// Authenticated indicates whether the request is authenticated
	Authenticated bool
}

// =============================================================================
// Header Constants
// =============================================================================

const (
	// HeaderUserID is the header containing the authenticated user's ID
	HeaderUserID = "X-User-ID"

	// HeaderKeyID is the header containing the API key ID
	HeaderKeyID = "X-Key-ID"

	// HeaderGatewaySecret is the header containing the shared secret for validation
	HeaderGatewaySecret = "X-Gateway-Secret"
)

// =============================================================================
// Context Extraction
// =============================================================================

// ExtractFromRequest extracts auth context from HTTP request headers.
func ExtractFromRequest(r *http.Request) Context {
	return ExtractFromHeaders(r.Header)
}

// HeaderGetter is an interface for getting header values.
// This allows testing without requiring an http.Request.
type HeaderGetter interface {
	Get(key string) string
}

// ExtractFromHeaders extracts auth context from headers.
// This is a pure function that can be tested without HTTP dependencies.
//
// Auth sources (checked in order):
//  1. X-User-ID header (injected by the gateway)
//  2. Authorization: Bearer {jwt} - the sub claim
func ExtractFromHeaders(headers HeaderGetter) Context {
	if ownerID := strings.TrimSpace(headers.Get(HeaderUserID)); ownerID != "" {
		return Context{
			OwnerID:       ownerID,
			KeyID:         headers.Get(HeaderKeyID),
			Authenticated: true,
		}
	}

	sub := bearerSubject(headers.Get("Authorization"))
	if sub == "" {
		return Context{Authenticated: false}
	}
	return Context{OwnerID: sub, Authenticated: true}
}

// bearerSubject returns the sub claim of a bearer JWT without verifying its
// signature; the gateway has already validated the token.
func bearerSubject(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(authHeader[len(prefix):]), &claims); err != nil {
		return ""
	}
	return strings.TrimSpace(claims.Subject)
}

// =============================================================================
// Context Storage
// =============================================================================

// WithContext stores the auth context in the request context.
func WithContext(ctx context.Context, authCtx Context) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// FromContext retrieves the auth context from the request context.
// If no auth context is found, returns an unauthenticated context.
func FromContext(ctx context.Context) Context {
	if authCtx, ok := ctx.Value(authContextKey).(Context); ok {
		return authCtx
	}
	return Context{Authenticated: false}
}

// =============================================================================
// Helper Types for Testing
// =============================================================================

// MapHeaderGetter wraps a map to implement HeaderGetter interface.
// This is useful for testing without creating http.Request objects.
type MapHeaderGetter map[string]string

func (m MapHeaderGetter) Get(key string) string {
	return m[key]
}
