package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// relayEnv holds raw env values for running the relay without a config file
type relayEnv struct {
	Addr           string        `env:"AUTH_RELAY_ADDR"            envDefault:":8081"`
	BaseURL        string        `env:"AUTH_RELAY_BASE_URL"`
	AppScheme      string        `env:"AUTH_RELAY_APP_SCHEME"`
	AppRedirectURI string        `env:"AUTH_RELAY_APP_REDIRECT_URI"`
	AllowedOrigins []string      `env:"AUTH_RELAY_ALLOWED_ORIGINS" envSeparator:","`
	ClientID       string        `env:"GOOGLE_CLIENT_ID"`
	ClientSecret   string        `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURI    string        `env:"GOOGLE_REDIRECT_URI"`
	AuthURL        string        `env:"GOOGLE_AUTH_URL"`
	TokenURL       string        `env:"GOOGLE_TOKEN_URL"`
	JWKSURL        string        `env:"GOOGLE_JWKS_URL"`
	Issuers        []string      `env:"GOOGLE_ISSUERS"             envSeparator:","`
	JWTSecret      string        `env:"JWT_SECRET"`
	TokenTTL       time.Duration `env:"AUTH_RELAY_TOKEN_TTL"       envDefault:"1h"`
	CookieName     string        `env:"AUTH_RELAY_COOKIE_NAME"`
	CookieMaxAge   time.Duration `env:"AUTH_RELAY_COOKIE_MAX_AGE"`
	CookieSameSite string        `env:"AUTH_RELAY_COOKIE_SAMESITE"`
}

// FromEnv builds a validated config from environment variables only
func FromEnv() (Config, error) {
	var raw relayEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	config := Config{
		Addr:           raw.Addr,
		BaseURL:        raw.BaseURL,
		AppScheme:      raw.AppScheme,
		AppRedirectURI: raw.AppRedirectURI,
		AllowedOrigins: raw.AllowedOrigins,
		Provider: ProviderConfig{
			Kind:         ProviderGoogle,
			ClientID:     raw.ClientID,
			ClientSecret: Secret(raw.ClientSecret),
			RedirectURI:  raw.RedirectURI,
			AuthURL:      raw.AuthURL,
			TokenURL:     raw.TokenURL,
			JWKSURL:      raw.JWKSURL,
			Issuers:      raw.Issuers,
		},
		Session: SessionConfig{
			JWTSecret: Secret(raw.JWTSecret),
			TokenTTL:  raw.TokenTTL,
		},
		Cookie: CookieConfig{
			Name:     raw.CookieName,
			MaxAge:   raw.CookieMaxAge,
			SameSite: raw.CookieSameSite,
		},
	}

	ApplyDefaults(&config)
	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}
