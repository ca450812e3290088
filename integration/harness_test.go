package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgellow/auth-relay/internal"
	"github.com/dgellow/auth-relay/internal/client"
	"github.com/dgellow/auth-relay/internal/config"
	"github.com/dgellow/auth-relay/internal/testutil"
)

const (
	testClientID     = "relay-client"
	testClientSecret = "relay-client-secret"
	testAppRedirect  = "myapp://"
)

var testJWTSecret = strings.Repeat("x", 32)

// stack is a fake provider and a relay wired to it, both on loopback
type stack struct {
	idp   *testutil.FakeIdP
	relay *internal.AuthRelay
	url   string
}

func newStack(t *testing.T) *stack {
	t.Helper()

	fake, err := testutil.NewFakeIdP(testClientID, testClientSecret)
	require.NoError(t, err)
	t.Cleanup(fake.Close)

	srv := httptest.NewUnstartedServer(nil)
	base := "http://" + srv.Listener.Addr().String()

	insecure := false
	cfg := config.Config{
		Addr:           "127.0.0.1:0",
		BaseURL:        base,
		AppScheme:      "myapp",
		AppRedirectURI: testAppRedirect,
		Provider: config.ProviderConfig{
			Kind:         config.ProviderGoogle,
			ClientID:     testClientID,
			ClientSecret: config.Secret(testClientSecret),
			AuthURL:      fake.AuthURL(),
			TokenURL:     fake.TokenURL(),
			JWKSURL:      fake.JWKSURL(),
			Issuers:      []string{fake.Issuer},
		},
		Session: config.SessionConfig{JWTSecret: config.Secret(testJWTSecret)},
		Cookie:  config.CookieConfig{Secure: &insecure},
	}
	config.ApplyDefaults(&cfg)
	require.NoError(t, config.ValidateConfig(&cfg))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	relay, err := internal.NewAuthRelay(ctx, cfg)
	require.NoError(t, err)

	srv.Config.Handler = relay.Handler()
	srv.Start()
	t.Cleanup(srv.Close)

	return &stack{idp: fake, relay: relay, url: base}
}

func (s *stack) discovery() client.Discovery { return client.DiscoveryFor(s.url) }

func (s *stack) nativeController(t *testing.T, store client.TokenStore) *client.Controller {
	t.Helper()
	return client.NewController(client.ControllerConfig{
		Transport:   client.NewNativeTransport(s.discovery(), store, nil),
		Launcher:    redirectFollower{},
		Discovery:   s.discovery(),
		RedirectURI: testAppRedirect,
	})
}

func (s *stack) webController(t *testing.T, tr *client.WebTransport) *client.Controller {
	t.Helper()
	if tr == nil {
		var err error
		tr, err = client.NewWebTransport(s.discovery(), nil)
		require.NoError(t, err)
	}
	return client.NewController(client.ControllerConfig{
		Transport:   tr,
		Launcher:    redirectFollower{},
		Discovery:   s.discovery(),
		RedirectURI: s.url,
	})
}

// redirectFollower stands in for the browser: it follows the authorize
// redirects through the provider and the relay callback and stops at the
// client's own redirect URI
type redirectFollower struct{}

func (redirectFollower) Launch(ctx context.Context, authURL, redirectURI string) (client.AuthResponse, error) {
	c := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	next := authURL
	for i := 0; i < 10; i++ {
		if rest, ok := strings.CutPrefix(next, redirectURI+"?"); ok {
			query, err := url.ParseQuery(rest)
			if err != nil {
				return client.AuthResponse{}, err
			}
			return client.ParseRedirect(query), nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return client.AuthResponse{}, err
		}
		resp, err := c.Do(req)
		if err != nil {
			return client.AuthResponse{}, err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusFound {
			return client.AuthResponse{}, fmt.Errorf("GET %s: status %d", next, resp.StatusCode)
		}
		next = resp.Header.Get("Location")
	}
	return client.AuthResponse{}, fmt.Errorf("too many redirects")
}

// get fetches a relay path without credentials
func (s *stack) get(t *testing.T, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.url+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	c := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := c.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
