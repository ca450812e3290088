package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dgellow/auth-relay/internal/idp"
	jsonwriter "github.com/dgellow/auth-relay/internal/json"
	"github.com/dgellow/auth-relay/internal/sessiontoken"
)

// stubRelay plays the relay's token, session and logout endpoints
type stubRelay struct {
	server *httptest.Server
	codec  *sessiontoken.Codec

	mu           sync.Mutex
	forms        []url.Values
	failExchange bool
	failLogout   bool
	logoutCalls  int
	lastAuth     string
}

func newStubRelay(t *testing.T) *stubRelay {
	t.Helper()
	s := &stubRelay{
		codec: sessiontoken.NewCodec([]byte(strings.Repeat("k", 32)), "https://relay.test", time.Hour),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/token", s.handleToken)
	mux.HandleFunc("GET /api/auth/session", s.handleSession)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/protected/data", s.handleProtected)
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func adaIdentity() *idp.Identity {
	return &idp.Identity{
		Provider: "google",
		Subject:  "sub-42",
		Email:    "ada@example.com",
		Name:     "Ada",
	}
}

func (s *stubRelay) discovery() Discovery { return DiscoveryFor(s.server.URL) }

func (s *stubRelay) mint(t *testing.T) string {
	t.Helper()
	token, _, err := s.codec.Mint(adaIdentity())
	require.NoError(t, err)
	return token
}

func (s *stubRelay) handleToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	s.forms = append(s.forms, r.PostForm)
	fail := s.failExchange
	s.mu.Unlock()

	if fail || r.PostForm.Get("code") != "good-code" {
		jsonwriter.WriteError(w, http.StatusBadRequest, "upstream_exchange_failed", "failed to retrieve ID token")
		return
	}

	token, claims, err := s.codec.Mint(adaIdentity())
	if err != nil {
		jsonwriter.WriteInternalServerError(w, err.Error())
		return
	}

	if r.PostForm.Get("platform") == "web" {
		http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: token, Path: "/", HttpOnly: true})
		_ = jsonwriter.Write(w, map[string]any{
			"success":   true,
			"issuedAt":  claims.IssuedAt.Unix(),
			"expiresAt": claims.ExpiresAt.Unix(),
		})
		return
	}
	_ = jsonwriter.Write(w, map[string]any{"accessToken": token})
}

func (s *stubRelay) handleSession(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie("auth_token")
	if err != nil {
		jsonwriter.WriteUnauthorized(w, "authentication required")
		return
	}
	claims, err := s.codec.Verify(c.Value)
	if err != nil {
		jsonwriter.WriteUnauthorized(w, "authentication required")
		return
	}
	_ = jsonwriter.Write(w, map[string]any{"user": claims.User()})
}

func (s *stubRelay) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.logoutCalls++
	fail := s.failLogout
	s.mu.Unlock()
	if fail {
		jsonwriter.WriteInternalServerError(w, "logout broke")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: "", Path: "/", MaxAge: -1})
	_ = jsonwriter.Write(w, map[string]any{"success": true})
}

func (s *stubRelay) handleProtected(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	s.mu.Lock()
	s.lastAuth = auth
	s.mu.Unlock()
	if c, err := r.Cookie("auth_token"); err == nil && c.Value != "" {
		_ = jsonwriter.Write(w, map[string]any{"via": "cookie"})
		return
	}
	if auth != "" {
		_ = jsonwriter.Write(w, map[string]any{"via": "bearer"})
		return
	}
	jsonwriter.WriteUnauthorized(w, "authentication required")
}

func (s *stubRelay) setFailLogout(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLogout = fail
}

func (s *stubRelay) setFailExchange(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failExchange = fail
}

func (s *stubRelay) authorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

func (s *stubRelay) lastForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.forms) == 0 {
		return nil
	}
	return s.forms[len(s.forms)-1]
}

// successLauncher answers every launch with good-code and the request's
// own state, checking the PKCE challenge along the way
func successLauncher(t *testing.T, challenge *string) launcherFunc {
	return func(ctx context.Context, authURL, redirectURI string) (AuthResponse, error) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()
		if challenge != nil {
			*challenge = q.Get("code_challenge")
		}
		return ParseRedirect(url.Values{"code": {"good-code"}, "state": {q.Get("state")}}), nil
	}
}

func challengeOf(verifier string) string { return oauth2.S256ChallengeFromVerifier(verifier) }
