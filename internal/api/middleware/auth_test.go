package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punktual/server/internal/auth"
)

const testUserID = "5b0c3a57-8f1e-4b7c-9d2a-0f3e6a1b2c4d"

func TestAuthenticate_BearerAndCookie(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour, "")
	token, err := manager.Generate(testUserID, "ada@example.com")
	require.NoError(t, err)

	var seen *auth.Claims
	handler := Authenticate(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.ClaimsFromContext(r.Context())
	}))

	t.Run("bearer", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		handler.ServeHTTP(httptest.NewRecorder(), req)
		require.NotNil(t, seen)
		assert.Equal(t, testUserID, seen.Subject)
	})

	t.Run("cookie", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
		handler.ServeHTTP(httptest.NewRecorder(), req)
		require.NotNil(t, seen)
		assert.Equal(t, "ada@example.com", seen.Email)
	})

	t.Run("invalid token is anonymous", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Nil(t, seen)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireAuth(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour, "")
	token, err := manager.Generate(testUserID, "ada@example.com")
	require.NoError(t, err)

	handler := Authenticate(manager)(RequireAuth("test")(okHandler()))

	anon := httptest.NewRecorder()
	handler.ServeHTTP(anon, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	assert.Equal(t, http.StatusUnauthorized, anon.Code)
	assert.Equal(t, "application/problem+json", anon.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	authed := httptest.NewRecorder()
	handler.ServeHTTP(authed, req)
	assert.Equal(t, http.StatusOK, authed.Code)
}

func TestRequireAuth_RejectsNonUUIDSubject(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour, "")
	token, err := manager.Generate("service-account", "")
	require.NoError(t, err)

	handler := Authenticate(manager)(RequireAuth("test")(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
