package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	opaques := []string{"", "xyz", "a|b", "||", "with spaces & symbols=?", "mobile|web"}
	for _, p := range []Platform{PlatformNative, PlatformWeb} {
		for _, opaque := range opaques {
			t.Run(fmt.Sprintf("%s/%q", p, opaque), func(t *testing.T) {
				gotPlatform, gotOpaque, err := DecodeState(EncodeState(p, opaque))
				require.NoError(t, err)
				assert.Equal(t, p, gotPlatform)
				assert.Equal(t, opaque, gotOpaque)
			})
		}
	}
}

func TestEncodeStateTags(t *testing.T) {
	assert.Equal(t, "mobile|abc", EncodeState(PlatformNative, "abc"))
	assert.Equal(t, "web|abc", EncodeState(PlatformWeb, "abc"))
}

func TestDecodeStateErrors(t *testing.T) {
	tests := []struct {
		state string
		code  ErrorCode
	}{
		{"", ErrMissingState},
		{"xyz", ErrInvalidState},
		{"desktop|xyz", ErrInvalidState},
		{"|xyz", ErrInvalidState},
		{"WEB|xyz", ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			_, _, err := DecodeState(tt.state)
			var relayErr *Error
			require.True(t, errors.As(err, &relayErr))
			assert.Equal(t, tt.code, relayErr.Code)
			assert.Equal(t, http.StatusBadRequest, relayErr.Status)
		})
	}
}

func TestPlatformFromForm(t *testing.T) {
	assert.Equal(t, PlatformWeb, PlatformFromForm("web"))
	assert.Equal(t, PlatformNative, PlatformFromForm(""))
	assert.Equal(t, PlatformNative, PlatformFromForm("native"))
	assert.Equal(t, PlatformNative, PlatformFromForm("ios"))
}

func TestTargets(t *testing.T) {
	targets := Targets{Native: "myapp://", Web: "https://app.example.com"}

	p, ok := targets.Match("myapp://")
	assert.True(t, ok)
	assert.Equal(t, PlatformNative, p)

	p, ok = targets.Match("https://app.example.com")
	assert.True(t, ok)
	assert.Equal(t, PlatformWeb, p)

	for _, bad := range []string{"", "https://app.example.com/", "https://evil.example.com", "myapp://callback"} {
		_, ok := targets.Match(bad)
		assert.False(t, ok, bad)
	}

	assert.Equal(t, "myapp://", targets.For(PlatformNative))
	assert.Equal(t, "https://app.example.com", targets.For(PlatformWeb))
}

func TestErrorStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrConfigMissing:          http.StatusInternalServerError,
		ErrInvalidRedirect:        http.StatusBadRequest,
		ErrUnsupportedClient:      http.StatusBadRequest,
		ErrMissingCode:            http.StatusBadRequest,
		ErrMissingState:           http.StatusBadRequest,
		ErrUpstreamExchangeFailed: http.StatusBadRequest,
		ErrUnauthenticated:        http.StatusUnauthorized,
		ErrInvalidToken:           http.StatusUnauthorized,
		ErrTokenExpired:           http.StatusUnauthorized,
	}
	for code, status := range tests {
		assert.Equal(t, status, NewError(code, "").Status, code)
	}
}

func TestWriteError_UniformUnauthorized(t *testing.T) {
	bodies := map[ErrorCode]string{}
	for _, code := range []ErrorCode{ErrUnauthenticated, ErrInvalidToken, ErrTokenExpired} {
		rec := httptest.NewRecorder()
		WriteError(rec, NewError(code, "detail that must not leak"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotContains(t, rec.Body.String(), "must not leak")
		bodies[code] = rec.Body.String()
	}
	assert.Equal(t, bodies[ErrInvalidToken], bodies[ErrTokenExpired])
	assert.Equal(t, bodies[ErrInvalidToken], bodies[ErrUnauthenticated])
}

func TestWriteError_BadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("wrapped: %w", NewError(ErrInvalidRedirect, "redirect_uri not allowed")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_redirect", body["error"])
	assert.Equal(t, "redirect_uri not allowed", body["message"])
}

func TestWriteError_UnknownError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRedirectWithError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback", nil)
	RedirectWithError(rec, req, "https://app.example.com", "access_denied", "user said no", "xyz")

	assert.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "user said no", loc.Query().Get("error_description"))
	assert.Equal(t, "xyz", loc.Query().Get("state"))
}

func TestAppendQuery(t *testing.T) {
	params := url.Values{"code": {"abc"}, "state": {"x|y"}}

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"deep_link", "myapp://", "myapp://?code=abc&state=x%7Cy"},
		{"web_origin", "https://app.example.com", "https://app.example.com?code=abc&state=x%7Cy"},
		{"existing_query", "https://app.example.com/cb?v=1", "https://app.example.com/cb?v=1&code=abc&state=x%7Cy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AppendQuery(tt.target, params))
		})
	}
	assert.Equal(t, "myapp://", AppendQuery("myapp://", nil))
}

func TestRedirectWithError_DeepLink(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback", nil)
	RedirectWithError(rec, req, "myapp://", "access_denied", "", "s1")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "myapp://?error=access_denied&state=s1", rec.Header().Get("Location"))
}
