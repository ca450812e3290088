package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/oauth2"
)

// FakeIdP is a Google-shaped identity provider: authorize, token and JWKS
// endpoints, with id_tokens signed by a per-instance RSA key.
type FakeIdP struct {
	Server       *httptest.Server
	ClientID     string
	ClientSecret string
	Issuer       string

	key jwk.Key
	set jwk.Set

	mu sync.Mutex
	// claims are merged into every id_token the token endpoint issues
	claims        map[string]any
	omitIDToken   bool
	denyAuthorize bool
	codes         map[string]pendingCode
	nextCode      int
	lastAuthorize url.Values
	tokenCalls    int
}

type pendingCode struct {
	redirectURI   string
	codeChallenge string
}

// NewFakeIdP starts a fake provider. Close it with Close.
func NewFakeIdP(clientID, clientSecret string) (*FakeIdP, error) {
	key, err := NewSigningKey("fake-idp-key")
	if err != nil {
		return nil, err
	}
	set, err := PublicKeySet(key)
	if err != nil {
		return nil, err
	}

	f := &FakeIdP{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		key:          key,
		set:          set,
		codes:        make(map[string]pendingCode),
		claims: map[string]any{
			"sub":            "fake-user-1",
			"email":          "user@example.com",
			"email_verified": true,
			"name":           "Fake User",
			"given_name":     "Fake",
			"family_name":    "User",
			"picture":        "https://example.com/avatar.png",
			"locale":         "en",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/authorize", f.handleAuthorize)
	mux.HandleFunc("/token", f.handleToken)
	mux.HandleFunc("/jwks", f.handleJWKS)
	f.Server = httptest.NewServer(mux)
	f.Issuer = f.Server.URL
	return f, nil
}

func (f *FakeIdP) Close() { f.Server.Close() }

func (f *FakeIdP) AuthURL() string  { return f.Server.URL + "/authorize" }
func (f *FakeIdP) TokenURL() string { return f.Server.URL + "/token" }
func (f *FakeIdP) JWKSURL() string  { return f.Server.URL + "/jwks" }

// LastAuthorize returns the query of the most recent authorize request
func (f *FakeIdP) LastAuthorize() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuthorize
}

// TokenCalls counts requests that reached the token endpoint
func (f *FakeIdP) TokenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls
}

// IssueCode registers a code as if the user had consented, for tests that
// skip the authorize redirect
func (f *FakeIdP) IssueCode(redirectURI, codeChallenge string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCode++
	code := fmt.Sprintf("fake-code-%d", f.nextCode)
	f.codes[code] = pendingCode{redirectURI: redirectURI, codeChallenge: codeChallenge}
	return code
}

// SetOmitIDToken makes the token endpoint answer without an id_token
func (f *FakeIdP) SetOmitIDToken(omit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.omitIDToken = omit
}

// SetDenyAuthorize makes the authorize endpoint redirect with access_denied
func (f *FakeIdP) SetDenyAuthorize(deny bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denyAuthorize = deny
}

// SetClaim overrides one id_token claim
func (f *FakeIdP) SetClaim(name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims[name] = value
}

func (f *FakeIdP) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.lastAuthorize = q
	deny := f.denyAuthorize
	f.mu.Unlock()

	redirectURI := q.Get("redirect_uri")
	if q.Get("client_id") != f.ClientID || redirectURI == "" || q.Get("response_type") != "code" {
		http.Error(w, "bad authorize request", http.StatusBadRequest)
		return
	}

	target, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "bad redirect_uri", http.StatusBadRequest)
		return
	}
	out := target.Query()
	if deny {
		out.Set("error", "access_denied")
		out.Set("error_description", "The user denied access")
	} else {
		out.Set("code", f.IssueCode(redirectURI, q.Get("code_challenge")))
	}
	out.Set("state", q.Get("state"))
	target.RawQuery = out.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (f *FakeIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.tokenCalls++
	code := r.PostForm.Get("code")
	pending, ok := f.codes[code]
	delete(f.codes, code)
	omit := f.omitIDToken
	claims := make(map[string]any, len(f.claims))
	for k, v := range f.claims {
		claims[k] = v
	}
	f.mu.Unlock()

	switch {
	case r.PostForm.Get("grant_type") != "authorization_code":
		writeOAuthError(w, "unsupported_grant_type")
		return
	case r.PostForm.Get("client_id") != f.ClientID || r.PostForm.Get("client_secret") != f.ClientSecret:
		writeOAuthError(w, "invalid_client")
		return
	case !ok || r.PostForm.Get("redirect_uri") != pending.redirectURI:
		writeOAuthError(w, "invalid_grant")
		return
	case pending.codeChallenge != "" &&
		oauth2.S256ChallengeFromVerifier(r.PostForm.Get("code_verifier")) != pending.codeChallenge:
		writeOAuthError(w, "invalid_grant")
		return
	}

	resp := map[string]any{
		"access_token": "fake-access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if !omit {
		idToken, err := f.SignIDToken(claims)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp["id_token"] = idToken
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *FakeIdP) handleJWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(f.set)
}

func writeOAuthError(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":             code,
		"error_description": "rejected by fake provider",
	})
}

// SignIDToken signs claims with the provider key. iss, aud, iat and exp
// are filled in unless present.
func (f *FakeIdP) SignIDToken(claims map[string]any) (string, error) {
	now := time.Now()
	full := map[string]any{
		"iss": f.Issuer,
		"aud": f.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		full[k] = v
	}
	return SignToken(f.key, full)
}

// NewSigningKey generates an RS256 private key with the given key id
func NewSigningKey(kid string) (jwk.Key, error) {
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("wrapping rsa key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	return key, nil
}

// PublicKeySet returns a JWKS holding the public half of key
func PublicKeySet(key jwk.Key) (jwk.Set, error) {
	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		return nil, err
	}
	return set, nil
}

// SignToken builds and signs a JWT from raw claims
func SignToken(key jwk.Key, claims map[string]any) (string, error) {
	tok := jwt.New()
	for k, v := range claims {
		if err := tok.Set(k, v); err != nil {
			return "", fmt.Errorf("setting claim %s: %w", k, err)
		}
	}

	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.KeyIDKey, key.KeyID()); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return string(signed), nil
}
