package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artpar/linkhost/internal/core/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// testHandler is a simple handler that returns the auth context from request.
func testHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"authenticated": ctx.Authenticated,
			"owner_id":      ctx.OwnerID,
			"key_id":        ctx.KeyID,
		})
	})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// =============================================================================
// AuthMiddleware Tests
// =============================================================================

func TestAuthMiddleware_ExtractsGatewayHeaders(t *testing.T) {
	handler := NewAuthMiddleware(AuthConfig{}).Handler(testHandler())
	req := httptest.NewRequest("GET", "/api/v1/domains", nil)
	req.Header.Set(auth.HeaderUserID, "user_123")
	req.Header.Set(auth.HeaderKeyID, "key_9")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, true, resp["authenticated"])
	assert.Equal(t, "user_123", resp["owner_id"])
	assert.Equal(t, "key_9", resp["key_id"])
}

func TestAuthMiddleware_BearerSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user_jwt"}).
		SignedString([]byte("gateway-key"))
	require.NoError(t, err)

	handler := NewAuthMiddleware(AuthConfig{}).Handler(testHandler())
	req := httptest.NewRequest("GET", "/api/v1/domains", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	resp := decode(t, rec)
	assert.Equal(t, true, resp["authenticated"])
	assert.Equal(t, "user_jwt", resp["owner_id"])
}

func TestAuthMiddleware_NoHeaders(t *testing.T) {
	handler := NewAuthMiddleware(AuthConfig{}).Handler(testHandler())
	req := httptest.NewRequest("GET", "/api/v1/domains", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])
}

func TestAuthMiddleware_SharedSecret(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		wantStatus int
	}{
		{"matching secret", "s3cret", http.StatusOK},
		{"wrong secret", "nope", http.StatusForbidden},
		{"missing secret", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthMiddleware(AuthConfig{SharedSecret: "s3cret"}).Handler(testHandler())
			req := httptest.NewRequest("GET", "/api/v1/domains", nil)
			if tt.secret != "" {
				req.Header.Set(auth.HeaderGatewaySecret, tt.secret)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusForbidden {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				require.Len(t, resp.Errors, 1)
				assert.Equal(t, "403", resp.Errors[0].Status)
				assert.Equal(t, "FORBIDDEN", resp.Errors[0].Code)
			}
		})
	}
}

// =============================================================================
// RequireAuth Tests
// =============================================================================

func TestRequireAuth_RejectsAnonymous(t *testing.T) {
	handler := NewAuthMiddleware(AuthConfig{}).Handler(RequireAuth(nil)(testHandler()))
	req := httptest.NewRequest("POST", "/api/v1/domains", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "UNAUTHENTICATED", resp.Errors[0].Code)
	assert.Equal(t, "Unauthorized", resp.Errors[0].Title)
}

func TestRequireAuth_AllowsAuthenticated(t *testing.T) {
	handler := NewAuthMiddleware(AuthConfig{}).Handler(RequireAuth(nil)(testHandler()))
	req := httptest.NewRequest("POST", "/api/v1/domains", nil)
	req.Header.Set(auth.HeaderUserID, "user_1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user_1", decode(t, rec)["owner_id"])
}
