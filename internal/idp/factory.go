package idp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dgellow/auth-relay/internal/config"
)

// NewProvider creates a Provider based on the resolved provider config.
// ctx bounds the background JWKS refresh.
func NewProvider(ctx context.Context, cfg config.ProviderConfig, httpClient *http.Client) (Provider, error) {
	switch cfg.Kind {
	case config.ProviderGoogle:
		verifier, err := NewJWKSVerifier(ctx, JWKSConfig{
			JWKSURL:    cfg.JWKSURL,
			Audience:   cfg.ClientID,
			Issuers:    cfg.Issuers,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("creating id_token verifier: %w", err)
		}
		return NewGoogleProvider(GoogleConfig{
			ClientID:     cfg.ClientID,
			ClientSecret: string(cfg.ClientSecret),
			RedirectURI:  cfg.RedirectURI,
			AuthURL:      cfg.AuthURL,
			TokenURL:     cfg.TokenURL,
			DefaultScope: cfg.DefaultScope,
			Prompt:       cfg.Prompt,
			HTTPClient:   httpClient,
		}, verifier), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Kind)
	}
}
