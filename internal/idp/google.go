package idp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleConfig is the relay's confidential client registration with Google.
// AuthURL and TokenURL override google.Endpoint when set.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	DefaultScope string
	Prompt       string
	HTTPClient   *http.Client
}

// GoogleProvider implements the Provider interface for Google OAuth.
type GoogleProvider struct {
	config     oauth2.Config
	prompt     string
	verifier   IDTokenVerifier
	httpClient *http.Client
}

// NewGoogleProvider creates a new Google OAuth provider.
func NewGoogleProvider(cfg GoogleConfig, verifier IDTokenVerifier) *GoogleProvider {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	// Google expects client credentials in the form body
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	scope := cfg.DefaultScope
	if scope == "" {
		scope = "openid profile email"
	}

	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       strings.Fields(scope),
			Endpoint:     endpoint,
		},
		prompt:     cfg.Prompt,
		verifier:   verifier,
		httpClient: cfg.HTTPClient,
	}
}

// Type returns the provider type.
func (p *GoogleProvider) Type() string {
	return "google"
}

// AuthURL generates the authorization URL. The redirect URI is always the
// relay callback, never anything taken from the request.
func (p *GoogleProvider) AuthURL(req AuthRequest) string {
	var opts []oauth2.AuthCodeOption
	if req.Scope != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", req.Scope))
	}
	if p.prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", p.prompt))
	}
	if req.CodeChallenge != "" {
		method := req.CodeChallengeMethod
		if method == "" {
			method = "plain"
		}
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", req.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", method),
		)
	}
	return p.config.AuthCodeURL(req.State, opts...)
}

// Exchange swaps the code at the token endpoint and verifies the returned id_token
func (p *GoogleProvider) Exchange(ctx context.Context, code, codeVerifier string) (*Identity, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	token, err := p.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, ErrNoIDToken
	}

	identity, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIDTokenInvalid, err)
	}
	identity.Provider = p.Type()
	return identity, nil
}
