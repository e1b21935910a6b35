package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueThenVerifyRoundTrips(t *testing.T) {
	a := New("top-secret", time.Hour)
	tok, err := a.Issue("u1", "admin", "admin")
	require.NoError(t, err)

	claims, err := a.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestVerifyRejectsTokenSignedWithDifferentSecret(t *testing.T) {
	a1 := New("secret-one", time.Hour)
	a2 := New("secret-two", time.Hour)

	tok, err := a1.Issue("u1", "admin", "admin")
	require.NoError(t, err)

	_, err = a2.Verify(tok)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	a := New("secret", -time.Minute)
	tok, err := a.Issue("u1", "admin", "admin")
	require.NoError(t, err)

	_, err = a.Verify(tok)
	assert.Error(t, err)
}

func TestMiddlewareRejectsMissingBearerToken(t *testing.T) {
	a := New("secret", time.Hour)
	called := false
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings/proxy", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewarePassesClaimsThrough(t *testing.T) {
	a := New("secret", time.Hour)
	tok, err := a.Issue("u1", "admin", "admin")
	require.NoError(t, err)

	var gotRole string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := FromContext(r.Context())
		require.True(t, ok)
		gotRole = claims.Role
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings/proxy", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "admin", gotRole)
}
