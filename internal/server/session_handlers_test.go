package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_ReturnsUser(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, PathSession, nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: env.mint(t)})

	rec := env.serve(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := decodeBody(t, rec)

	user := body["user"].(map[string]any)
	assert.Equal(t, "google-sub-1", user["id"])
	assert.Equal(t, "jane@example.com", user["email"])
	assert.Equal(t, "Jane Doe", user["name"])
	assert.Equal(t, "google", user["provider"])
	assert.Equal(t, true, user["email_verified"])

	issuedAt := int64(body["issuedAt"].(float64))
	assert.Equal(t, env.clock.t.Unix(), issuedAt)
	assert.Equal(t, issuedAt+20, int64(body["expiresAt"].(float64)))
}

func TestSession_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)
	rec := env.serve(httptest.NewRequest(http.MethodGet, PathSession, nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, uniformUnauthorized, rec.Body.String())
}

func TestLogout_ClearsCookie(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, PathLogout, nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: env.mint(t)})

	rec := env.serve(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])

	c := sessionCookie(rec, "auth_token")
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/", c.Path)
}

func TestLogout_WithoutSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.serve(httptest.NewRequest(http.MethodPost, PathLogout, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, sessionCookie(rec, "auth_token"))
}
