package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/auth"
)

const testSigningKey = "test-secret-key-for-testing-only"

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{SigningKey: testSigningKey, Issuer: "saferoute"})
}

func mintToken(t *testing.T, role string) string {
	t.Helper()
	token, _, err := newTestJWTService().GenerateToken("ops-bot", role, time.Hour)
	require.NoError(t, err)
	return token
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAdmin_MissingAuthorizationHeader(t *testing.T) {
	handler := middleware.RequireAdmin(newTestJWTService())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/dataset:reload", http.NoBody)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization header")
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestRequireAdmin_InvalidAuthorizationFormat(t *testing.T) {
	handler := middleware.RequireAdmin(newTestJWTService())(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "token123"},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"bearer lowercase no space", "bearer"},
		{"empty bearer", "Bearer "},
		{"just bearer", "Bearer"},
		{"garbage token", "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/dataset:reload", http.NoBody)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireAdmin_WrongKey(t *testing.T) {
	other := auth.NewJWTService(auth.JWTConfig{SigningKey: "another-key", Issuer: "saferoute"})
	token, _, err := other.GenerateToken("ops-bot", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	handler := middleware.RequireAdmin(newTestJWTService())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/dataset:reload", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid token")
}

func TestRequireAdmin_NonAdminForbidden(t *testing.T) {
	handler := middleware.RequireAdmin(newTestJWTService())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/dataset:reload", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "reader"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAdmin_ValidToken(t *testing.T) {
	var subject string
	handler := middleware.RequireAdmin(newTestJWTService())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = middleware.GetSubject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token := mintToken(t, auth.RoleAdmin)
	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		t.Run(prefix, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/dataset:reload", http.NoBody)
			req.Header.Set("Authorization", prefix+token)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "ops-bot", subject)
		})
	}
}

func TestRequireAdmin_NotConfigured(t *testing.T) {
	handler := middleware.RequireAdmin(auth.NewJWTService(auth.JWTConfig{}))(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/dataset:reload", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, auth.RoleAdmin))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestGetClaims_NoAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Nil(t, middleware.GetClaims(req.Context()))
	assert.Empty(t, middleware.GetSubject(req.Context()))
}
