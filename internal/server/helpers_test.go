package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/auth-relay/internal/cookie"
	"github.com/dgellow/auth-relay/internal/idp"
	"github.com/dgellow/auth-relay/internal/metrics"
	"github.com/dgellow/auth-relay/internal/relay"
	"github.com/dgellow/auth-relay/internal/sessiontoken"
	"github.com/dgellow/auth-relay/internal/testutil"
)

const (
	testBaseURL     = "https://app.example.com"
	testAppRedirect = "myapp://"
	testCallback    = "https://app.example.com/api/auth/callback"
	testClientID    = "relay-client-id"
)

var testSecret = []byte(strings.Repeat("s", 32))

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

type testEnv struct {
	provider *testutil.MockProvider
	clock    *testClock
	codec    *sessiontoken.Codec
	cookies  cookie.Policy
	metrics  *metrics.Metrics
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithProvider(t, nil)
}

// newTestEnvWithProvider builds a router around provider, or around a
// MockProvider when provider is nil
func newTestEnvWithProvider(t *testing.T, provider idp.Provider) *testEnv {
	t.Helper()

	env := &testEnv{
		clock: &testClock{t: time.Now().Truncate(time.Second)},
		cookies: cookie.Policy{
			Name:     "auth_token",
			Path:     "/",
			MaxAge:   20 * time.Second,
			SameSite: http.SameSiteLaxMode,
			Secure:   true,
		},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	if provider == nil {
		env.provider = &testutil.MockProvider{}
		env.provider.On("Type").Return("google").Maybe()
		provider = env.provider
	}
	env.codec = sessiontoken.NewCodec(testSecret, testBaseURL, 20*time.Second, sessiontoken.WithClock(env.clock.Now))

	env.route(provider)
	return env
}

// route rebuilds the router, picking up changes to env.cookies
func (e *testEnv) route(provider idp.Provider) {
	targets := relay.Targets{Native: testAppRedirect, Web: testBaseURL}
	e.router = NewRouter(RouterConfig{
		Relay:   NewRelayHandlers(provider, testClientID, targets, e.codec, e.cookies, e.metrics),
		Session: NewSessionHandlers(e.cookies),
		Guard:   NewGuard(e.codec, e.cookies, e.metrics),
		BaseURL: testBaseURL,
	})
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) mint(t *testing.T) string {
	t.Helper()
	token, _, err := e.codec.Mint(testIdentity())
	require.NoError(t, err)
	return token
}

func testIdentity() *idp.Identity {
	return &idp.Identity{
		Provider:      "google",
		Subject:       "google-sub-1",
		Email:         "jane@example.com",
		EmailVerified: true,
		Name:          "Jane Doe",
		GivenName:     "Jane",
		FamilyName:    "Doe",
		Picture:       "https://example.com/jane.png",
		ExpiresAt:     time.Now().Add(time.Hour),
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func sessionCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
