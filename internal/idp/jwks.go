package idp

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWKSConfig configures id_token verification against a provider key set
type JWKSConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
	// MinRefresh bounds how often the key set is refetched
	MinRefresh time.Duration
	Skew       time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
}

// JWKSVerifier verifies RS256 id_tokens with a cached, auto-refreshed JWKS
type JWKSVerifier struct {
	set      jwk.Set
	audience string
	issuers  []string
	skew     time.Duration
	now      func() time.Time
}

// NewJWKSVerifier registers the key set URL with a cache bound to ctx.
// Keys are fetched lazily on the first verification.
func NewJWKSVerifier(ctx context.Context, cfg JWKSConfig) (*JWKSVerifier, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	if cfg.Audience == "" {
		return nil, fmt.Errorf("audience is required")
	}
	if len(cfg.Issuers) == 0 {
		return nil, fmt.Errorf("at least one issuer is required")
	}

	minRefresh := cfg.MinRefresh
	if minRefresh == 0 {
		minRefresh = 15 * time.Minute
	}
	opts := []jwk.RegisterOption{jwk.WithMinRefreshInterval(minRefresh)}
	if cfg.HTTPClient != nil {
		opts = append(opts, jwk.WithHTTPClient(cfg.HTTPClient))
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, opts...); err != nil {
		return nil, fmt.Errorf("registering jwks url: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	skew := cfg.Skew
	if skew == 0 {
		skew = 30 * time.Second
	}

	return &JWKSVerifier{
		set:      jwk.NewCachedSet(cache, cfg.JWKSURL),
		audience: cfg.Audience,
		issuers:  cfg.Issuers,
		skew:     skew,
		now:      now,
	}, nil
}

// Verify checks signature, audience, expiry and issuer of an id_token
func (v *JWKSVerifier) Verify(_ context.Context, rawIDToken string) (*Identity, error) {
	token, err := jwt.Parse([]byte(rawIDToken),
		jwt.WithKeySet(v.set, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithValidate(true),
		jwt.WithAudience(v.audience),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithClock(jwt.ClockFunc(v.now)),
	)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(v.issuers, token.Issuer()) {
		return nil, fmt.Errorf("unexpected issuer %q", token.Issuer())
	}
	if token.Subject() == "" {
		return nil, fmt.Errorf("id_token has no subject")
	}

	return &Identity{
		Subject:       token.Subject(),
		Email:         stringClaim(token, "email"),
		EmailVerified: boolClaim(token, "email_verified"),
		Name:          stringClaim(token, "name"),
		Picture:       stringClaim(token, "picture"),
		GivenName:     stringClaim(token, "given_name"),
		FamilyName:    stringClaim(token, "family_name"),
		Locale:        stringClaim(token, "locale"),
		HostedDomain:  stringClaim(token, "hd"),
		ExpiresAt:     token.Expiration(),
	}, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// boolClaim accepts both JSON booleans and the "true"/"false" strings some
// Google tokens carry
func boolClaim(token jwt.Token, name string) bool {
	v, ok := token.Get(name)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	default:
		return false
	}
}
