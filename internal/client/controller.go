package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dgellow/auth-relay/internal/crypto"
	"github.com/dgellow/auth-relay/internal/log"
	"github.com/dgellow/auth-relay/internal/relay"
	"github.com/dgellow/auth-relay/internal/sessiontoken"
)

var (
	// ErrNotPrepared is returned by SignIn before an auth request exists
	ErrNotPrepared = errors.New("auth request is not initialized")
	// ErrStateMismatch means the redirect did not answer our request
	ErrStateMismatch = errors.New("authorization response state mismatch")
	// ErrStaleFlow means a newer sign-in or sign-out superseded this one
	ErrStaleFlow = errors.New("authorization flow superseded")
)

// DefaultScopes are requested on every sign-in
var DefaultScopes = []string{"openid", "profile", "email"}

// State is the observable session state. It is replaced, never mutated,
// so snapshots are safe to keep.
type State struct {
	IsLoading bool
	User      *sessiontoken.User
	Error     error
	// AccessToken is only set on native platforms
	AccessToken string
}

// SignedIn reports whether a user is present
func (s State) SignedIn() bool { return s.User != nil }

// AuthRequest is a prepared authorization request. State and CodeVerifier
// are single use.
type AuthRequest struct {
	ClientID      string
	Scopes        []string
	RedirectURI   string
	State         string
	CodeVerifier  string
	CodeChallenge string
}

// URL builds the authorize URL against the relay
func (r *AuthRequest) URL(d Discovery) string {
	q := url.Values{
		"client_id":     {r.ClientID},
		"redirect_uri":  {r.RedirectURI},
		"response_type": {"code"},
		"scope":         {strings.Join(r.Scopes, " ")},
		"state":         {r.State},
	}
	if r.CodeChallenge != "" {
		q.Set("code_challenge", r.CodeChallenge)
		q.Set("code_challenge_method", "S256")
	}
	return relay.AppendQuery(d.AuthorizationEndpoint, q)
}

// ControllerConfig wires a controller to one platform
type ControllerConfig struct {
	Transport   SessionTransport
	Launcher    Launcher
	Discovery   Discovery
	RedirectURI string
	// ClientID names the identity provider at the relay, "google" by default
	ClientID string
	Scopes   []string
}

// Controller owns the client session state. Every flow step checks that
// its flow id is still current before mutating state, so a sign-out or a
// newer sign-in discards late results.
type Controller struct {
	transport   SessionTransport
	launcher    Launcher
	discovery   Discovery
	redirectURI string
	clientID    string
	scopes      []string

	mu      sync.Mutex
	state   State
	loading int
	flow    uint64 // starts at 1; 0 means unchecked
	request *AuthRequest
	subs    map[int]func(State)
	nextSub int

	// storeMu orders credential persistence against sign-out
	storeMu sync.Mutex
	restore singleflight.Group
}

func NewController(cfg ControllerConfig) *Controller {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "google"
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &Controller{
		transport:   cfg.Transport,
		launcher:    cfg.Launcher,
		discovery:   cfg.Discovery,
		redirectURI: cfg.RedirectURI,
		clientID:    clientID,
		scopes:      scopes,
		flow:        1,
		subs:        make(map[int]func(State)),
	}
}

// State returns a snapshot of the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every state change. The returned func
// unsubscribes.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// mutate applies fn under the lock when flow is still current and
// notifies subscribers. A zero flow skips the check.
func (c *Controller) mutate(flow uint64, fn func(s *State)) bool {
	c.mu.Lock()
	if flow != 0 && flow != c.flow {
		c.mu.Unlock()
		return false
	}
	next := c.state
	fn(&next)
	next.IsLoading = c.loading > 0
	c.state = next
	subs := c.subscribers()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return true
}

func (c *Controller) subscribers() []func(State) {
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (c *Controller) beginLoading() {
	c.mu.Lock()
	c.loading++
	c.mu.Unlock()
	c.mutate(0, func(*State) {})
}

// endLoading always runs, stale flow or not
func (c *Controller) endLoading() {
	c.mu.Lock()
	if c.loading > 0 {
		c.loading--
	}
	c.mu.Unlock()
	c.mutate(0, func(*State) {})
}

func (c *Controller) currentFlow() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow
}

func (c *Controller) isCurrent(flow uint64) bool {
	return c.currentFlow() == flow
}

// Restore loads an existing session at startup. Concurrent calls share
// one restore.
func (c *Controller) Restore(ctx context.Context) {
	_, _, _ = c.restore.Do("restore", func() (any, error) {
		c.doRestore(ctx)
		return nil, nil
	})
}

func (c *Controller) doRestore(ctx context.Context) {
	flow := c.currentFlow()
	c.beginLoading()
	defer c.endLoading()

	c.storeMu.Lock()
	session, err := c.transport.Restore(ctx)
	c.storeMu.Unlock()
	if err != nil {
		log.LogErrorWithFields("client", "Error restoring session", map[string]any{
			"platform": c.transport.Platform().String(),
			"error":    err.Error(),
		})
		return
	}
	if session == nil {
		log.LogDebugWithFields("client", "User is not authenticated", map[string]any{
			"platform": c.transport.Platform().String(),
		})
		return
	}

	if !c.mutate(flow, func(s *State) {
		user := session.User
		s.User = &user
		s.AccessToken = session.AccessToken
	}) {
		log.LogDebugWithFields("client", "Discarding restore result from a superseded flow", nil)
	}
}

// Prepare builds a fresh auth request with new state and PKCE values
func (c *Controller) Prepare() (*AuthRequest, error) {
	state, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}
	pkce := crypto.NewPKCE()
	req := &AuthRequest{
		ClientID:      c.clientID,
		Scopes:        c.scopes,
		RedirectURI:   c.redirectURI,
		State:         state,
		CodeVerifier:  pkce.Verifier,
		CodeChallenge: pkce.Challenge,
	}

	c.mu.Lock()
	c.request = req
	c.mu.Unlock()

	out := *req
	return &out, nil
}

// SignIn runs the interactive flow with the prepared request. It is a
// no-op returning ErrNotPrepared when Prepare has not run yet.
func (c *Controller) SignIn(ctx context.Context) error {
	c.mu.Lock()
	req := c.request
	if req == nil {
		c.mu.Unlock()
		log.LogWarnWithFields("client", "Auth request is not initialized", nil)
		return ErrNotPrepared
	}
	c.flow++
	flow := c.flow
	c.mu.Unlock()

	resp, err := c.launcher.Launch(ctx, req.URL(c.discovery), req.RedirectURI)
	if err != nil {
		log.LogErrorWithFields("client", "Error during sign-in", map[string]any{
			"error": err.Error(),
		})
		c.mutate(flow, func(s *State) { s.Error = err })
		return err
	}
	return c.handleResponse(ctx, flow, req, resp)
}

// HandleResponse processes a redirect delivered outside SignIn, such as a
// deep link opened by the platform
func (c *Controller) HandleResponse(ctx context.Context, resp AuthResponse) error {
	c.mu.Lock()
	flow, req := c.flow, c.request
	c.mu.Unlock()
	return c.handleResponse(ctx, flow, req, resp)
}

func (c *Controller) handleResponse(ctx context.Context, flow uint64, req *AuthRequest, resp AuthResponse) error {
	switch resp.Kind {
	case ResponseError:
		// error redirects carry the pending request's state too
		if req != nil && resp.Params.Get("state") != req.State {
			log.LogWarnWithFields("client", "Ignoring error response with mismatched state", nil)
			return ErrStateMismatch
		}
		var err error = &AuthError{Code: "unknown_error"}
		if resp.Err != nil {
			err = resp.Err
		}
		log.LogWarnWithFields("client", "Authorization returned an error", map[string]any{
			"error": err.Error(),
		})
		c.consumeRequest(req)
		c.mutate(flow, func(s *State) { s.Error = err })
		return err

	case ResponseDismiss:
		log.LogDebugWithFields("client", "Authorization dismissed", nil)
		return nil
	}

	if req == nil {
		log.LogWarnWithFields("client", "Auth request is not initialized", nil)
		return ErrNotPrepared
	}
	if resp.Params.Get("state") != req.State {
		c.consumeRequest(req)
		err := &AuthError{Code: "state_mismatch", Description: ErrStateMismatch.Error()}
		c.mutate(flow, func(s *State) { s.Error = err })
		return ErrStateMismatch
	}
	c.consumeRequest(req)

	code := resp.Params.Get("code")
	if code == "" {
		err := &AuthError{Code: "invalid_request", Description: "authorization code missing"}
		c.mutate(flow, func(s *State) { s.Error = err })
		return err
	}

	c.beginLoading()
	defer c.endLoading()

	form := url.Values{"code": {code}}
	if c.transport.Platform() == relay.PlatformWeb {
		form.Set("platform", "web")
	}
	if req.CodeVerifier != "" {
		form.Set("code_verifier", req.CodeVerifier)
	} else {
		log.LogWarnWithFields("client", "No code verifier found in request", nil)
	}

	session, err := c.transport.Exchange(ctx, form)
	if err != nil {
		log.LogErrorWithFields("client", "Error exchanging code for tokens", map[string]any{
			"platform": c.transport.Platform().String(),
			"error":    err.Error(),
		})
		return err
	}

	if !c.commit(ctx, flow, session) {
		log.LogDebugWithFields("client", "Discarding exchange result from a superseded flow", nil)
		return ErrStaleFlow
	}
	log.LogInfoWithFields("client", "Signed in", map[string]any{
		"platform": c.transport.Platform().String(),
		"subject":  session.User.ID,
	})
	return nil
}

// consumeRequest retires a used request and prepares the next one
func (c *Controller) consumeRequest(used *AuthRequest) {
	c.mu.Lock()
	current := c.request == used
	c.mu.Unlock()
	if !current {
		return
	}
	if _, err := c.Prepare(); err != nil {
		log.LogErrorWithFields("client", "Could not prepare next auth request", map[string]any{
			"error": err.Error(),
		})
		c.mu.Lock()
		if c.request == used {
			c.request = nil
		}
		c.mu.Unlock()
	}
}

// commit persists and adopts session if flow is still current
func (c *Controller) commit(ctx context.Context, flow uint64, session *Session) bool {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	if !c.isCurrent(flow) {
		return false
	}
	if err := c.transport.Persist(ctx, session); err != nil {
		log.LogWarnWithFields("client", "Could not persist access token", map[string]any{
			"error": err.Error(),
		})
	}
	return c.mutate(flow, func(s *State) {
		user := session.User
		s.User = &user
		s.AccessToken = session.AccessToken
		s.Error = nil
	})
}

// SignOut drops credentials and clears the user whether or not the
// transport call succeeds. Any flow in progress is superseded.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.flow++
	c.mu.Unlock()

	c.storeMu.Lock()
	err := c.transport.SignOut(ctx)
	c.storeMu.Unlock()
	if err != nil {
		log.LogErrorWithFields("client", "Error during sign-out", map[string]any{
			"platform": c.transport.Platform().String(),
			"error":    err.Error(),
		})
	}

	c.mutate(0, func(s *State) {
		s.User = nil
		s.AccessToken = ""
		s.Error = nil
	})
	return err
}

// FetchWithAuth sends req with the platform's credentials. A 401 is
// returned to the caller as is; there is no refresh.
func (c *Controller) FetchWithAuth(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	c.transport.Authorize(out, c.State().AccessToken)
	return c.transport.HTTPClient().Do(out)
}
