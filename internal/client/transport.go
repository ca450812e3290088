package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/dgellow/auth-relay/internal/log"
	"github.com/dgellow/auth-relay/internal/relay"
	"github.com/dgellow/auth-relay/internal/sessiontoken"
)

var (
	// ErrExchangeFailed means the relay did not complete the code exchange
	ErrExchangeFailed = errors.New("token exchange failed")
	// ErrNoAccessToken means a native exchange answered without a token
	ErrNoAccessToken = errors.New("no access token received")
)

// maxBodyBytes bounds relay responses read by the client
const maxBodyBytes = 1 << 20

// Session is what a transport hands the controller after restore or exchange
type Session struct {
	User sessiontoken.User
	// AccessToken is empty for the web transport: the cookie jar holds it
	AccessToken string
}

// SessionTransport carries credentials for one platform. It is chosen
// once, when the controller is built.
type SessionTransport interface {
	Platform() relay.Platform
	// Restore returns the session found at startup, or nil when signed out
	Restore(ctx context.Context) (*Session, error)
	// Exchange posts the token request form and returns the new session
	Exchange(ctx context.Context, form url.Values) (*Session, error)
	// Persist keeps a freshly exchanged session across restarts
	Persist(ctx context.Context, session *Session) error
	// SignOut drops credentials held outside the controller
	SignOut(ctx context.Context) error
	// Authorize attaches credentials to an outgoing request
	Authorize(req *http.Request, accessToken string)
	HTTPClient() *http.Client
}

// Discovery lists the relay endpoints a client talks to
type Discovery struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	SessionEndpoint       string
	LogoutEndpoint        string
}

// DiscoveryFor derives the relay endpoints from its base URL
func DiscoveryFor(baseURL string) Discovery {
	base := strings.TrimSuffix(baseURL, "/")
	return Discovery{
		AuthorizationEndpoint: base + "/api/auth/authorize",
		TokenEndpoint:         base + "/api/auth/token",
		SessionEndpoint:       base + "/api/auth/session",
		LogoutEndpoint:        base + "/api/auth/logout",
	}
}

type sessionResponse struct {
	User *sessiontoken.User `json:"user"`
}

type webTokenResponse struct {
	Success   bool  `json:"success"`
	IssuedAt  int64 `json:"issuedAt"`
	ExpiresAt int64 `json:"expiresAt"`
}

type nativeTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// WebTransport keeps the session in an HttpOnly cookie. Every request goes
// through a cookie jar, the equivalent of credentials: include.
type WebTransport struct {
	discovery Discovery
	client    *http.Client
}

// NewWebTransport builds a transport with its own cookie jar. base may be
// nil; its Transport and Timeout are reused.
func NewWebTransport(discovery Discovery, base *http.Client) (*WebTransport, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	c := &http.Client{Jar: jar, Timeout: 30 * time.Second}
	if base != nil {
		c.Transport = base.Transport
		if base.Timeout != 0 {
			c.Timeout = base.Timeout
		}
	}
	return &WebTransport{discovery: discovery, client: c}, nil
}

func (t *WebTransport) Platform() relay.Platform { return relay.PlatformWeb }

func (t *WebTransport) HTTPClient() *http.Client { return t.client }

// Restore asks the relay who the cookie belongs to. Any non-2xx answer
// means signed out.
func (t *WebTransport) Restore(ctx context.Context) (*Session, error) {
	return t.fetchSession(ctx)
}

func (t *WebTransport) fetchSession(ctx context.Context) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.discovery.SessionEndpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		log.LogDebugWithFields("client", "No session from relay", map[string]any{
			"status": resp.StatusCode,
			"body":   strings.TrimSpace(string(text)),
		})
		return nil, nil
	}

	var body sessionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if body.User == nil || body.User.ID == "" {
		return nil, nil
	}
	return &Session{User: *body.User}, nil
}

// Exchange lets the relay set the cookie, then reads the canonical user
// back from the session endpoint
func (t *WebTransport) Exchange(ctx context.Context, form url.Values) (*Session, error) {
	resp, err := postForm(ctx, t.client, t.discovery.TokenEndpoint, form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var body webTokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if !body.Success {
		return nil, ErrExchangeFailed
	}

	session, err := t.fetchSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session not established", ErrExchangeFailed)
	}
	return session, nil
}

func (t *WebTransport) Persist(context.Context, *Session) error { return nil }

// SignOut asks the relay to clear the cookie
func (t *WebTransport) SignOut(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.discovery.LogoutEndpoint, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling logout: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout returned status %d", resp.StatusCode)
	}
	return nil
}

func (t *WebTransport) Authorize(*http.Request, string) {}

// NativeTransport holds the session token itself and sends it as a bearer
// credential
type NativeTransport struct {
	discovery Discovery
	client    *http.Client
	store     TokenStore
	now       func() time.Time
}

// NewNativeTransport creates a transport persisting tokens in store. client
// may be nil.
func NewNativeTransport(discovery Discovery, store TokenStore, client *http.Client) *NativeTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &NativeTransport{
		discovery: discovery,
		client:    client,
		store:     store,
		now:       time.Now,
	}
}

func (t *NativeTransport) Platform() relay.Platform { return relay.PlatformNative }

func (t *NativeTransport) HTTPClient() *http.Client { return t.client }

// Restore adopts a stored token while its exp is in the future, with no
// network round trip. Expired or unreadable tokens are deleted.
func (t *NativeTransport) Restore(ctx context.Context) (*Session, error) {
	token, err := t.store.GetToken(ctx, AccessTokenKey)
	if errors.Is(err, ErrTokenNotFound) || (err == nil && token == "") {
		log.LogDebugWithFields("client", "No stored access token", nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading stored token: %w", err)
	}

	claims, err := sessiontoken.DecodeUnverified(token)
	if err != nil {
		log.LogWarnWithFields("client", "Discarding unreadable stored token", map[string]any{
			"error": err.Error(),
		})
		return nil, t.store.DeleteToken(ctx, AccessTokenKey)
	}
	if claims.Expired(t.now()) {
		log.LogInfoWithFields("client", "Stored access token expired", map[string]any{
			"subject": claims.Subject,
		})
		return nil, t.store.DeleteToken(ctx, AccessTokenKey)
	}
	return &Session{User: claims.User(), AccessToken: token}, nil
}

// Exchange reads the session token from the response body
func (t *NativeTransport) Exchange(ctx context.Context, form url.Values) (*Session, error) {
	resp, err := postForm(ctx, t.client, t.discovery.TokenEndpoint, form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var body nativeTokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, ErrNoAccessToken
	}

	claims, err := sessiontoken.DecodeUnverified(body.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decoding access token: %w", err)
	}
	return &Session{User: claims.User(), AccessToken: body.AccessToken}, nil
}

func (t *NativeTransport) Persist(ctx context.Context, session *Session) error {
	if session == nil || session.AccessToken == "" {
		return nil
	}
	return t.store.SaveToken(ctx, AccessTokenKey, session.AccessToken)
}

// SignOut deletes both cached token entries
func (t *NativeTransport) SignOut(ctx context.Context) error {
	return errors.Join(
		t.store.DeleteToken(ctx, AccessTokenKey),
		t.store.DeleteToken(ctx, RefreshTokenKey),
	)
}

func (t *NativeTransport) Authorize(req *http.Request, accessToken string) {
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

func postForm(ctx context.Context, c *http.Client, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting token request: %w", err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	text, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	return fmt.Errorf("%w: status %d: %s", ErrExchangeFailed, resp.StatusCode, strings.TrimSpace(string(text)))
}
