package idp

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoIDToken means the provider answered the code exchange without an id_token
	ErrNoIDToken = errors.New("idp: token response has no id_token")
	// ErrIDTokenInvalid means the id_token failed signature or claim checks
	ErrIDTokenInvalid = errors.New("idp: id_token failed verification")
)

// Identity is the verified content of a provider id_token
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	GivenName     string
	FamilyName    string
	Locale        string
	HostedDomain  string
	ExpiresAt     time.Time
}

// AuthRequest carries the per-request parameters of an authorization redirect
type AuthRequest struct {
	State string
	// Scope overrides the provider's default scope when set
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Provider abstracts identity provider operations.
type Provider interface {
	// Type returns the provider type identifier, also the client_id clients send.
	Type() string

	// AuthURL builds the provider authorization URL for the relay callback.
	AuthURL(req AuthRequest) string

	// Exchange trades an authorization code for a verified identity.
	// codeVerifier may be empty.
	Exchange(ctx context.Context, code, codeVerifier string) (*Identity, error)
}

// IDTokenVerifier checks a raw id_token and returns its claims
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*Identity, error)
}
