package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dgellow/auth-relay/internal/envutil"
	"github.com/dgellow/auth-relay/internal/log"
)

const (
	DefaultAddr         = ":8081"
	DefaultScope        = "openid profile email"
	DefaultPrompt       = "select_account"
	DefaultTokenTTL     = time.Hour
	DefaultCookieName   = "auth_token"
	DefaultCookiePath   = "/"
	DefaultJWKSURL      = "https://www.googleapis.com/oauth2/v3/certs"
	DefaultCallbackPath = "/api/auth/callback"
)

// DefaultIssuers are the issuer values Google puts in id_tokens
var DefaultIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != ConfigVersion {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig rejects secrets written inline in the config file
func validateRawConfig(rawConfig map[string]any) error {
	checks := []struct {
		section string
		field   string
	}{
		{"provider", "clientSecret"},
		{"session", "jwtSecret"},
	}
	for _, c := range checks {
		section, ok := rawConfig[c.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[c.field]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", c.section, c.field)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", c.section, c.field)
			}
		}
	}
	return nil
}

// ApplyDefaults fills unset fields. It is safe to call more than once.
func ApplyDefaults(config *Config) {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.AppRedirectURI == "" && config.AppScheme != "" {
		config.AppRedirectURI = config.AppScheme + "://"
	}

	p := &config.Provider
	if p.Kind == "" {
		p.Kind = ProviderGoogle
	}
	if p.RedirectURI == "" && config.BaseURL != "" {
		p.RedirectURI = config.BaseURL + DefaultCallbackPath
	}
	if p.JWKSURL == "" {
		p.JWKSURL = DefaultJWKSURL
	}
	if len(p.Issuers) == 0 {
		p.Issuers = append([]string(nil), DefaultIssuers...)
	}
	if p.DefaultScope == "" {
		p.DefaultScope = DefaultScope
	}
	if p.Prompt == "" {
		p.Prompt = DefaultPrompt
	}

	if config.Session.TokenTTL == 0 {
		config.Session.TokenTTL = DefaultTokenTTL
	}

	c := &config.Cookie
	if c.Name == "" {
		c.Name = DefaultCookieName
	}
	if c.Path == "" {
		c.Path = DefaultCookiePath
	}
	if c.MaxAge == 0 {
		c.MaxAge = config.Session.TokenTTL
	}
	if c.SameSite == "" {
		c.SameSite = "lax"
	}
	c.SameSite = strings.ToLower(c.SameSite)
	if c.Secure == nil {
		secure := !envutil.IsDev()
		c.Secure = &secure
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if config.BaseURL == "" {
		return fmt.Errorf("baseURL is required")
	}
	if err := validateHTTPURL(config.BaseURL); err != nil {
		return fmt.Errorf("baseURL: %w", err)
	}
	if config.AppScheme == "" {
		return fmt.Errorf("appScheme is required")
	}
	if strings.Contains(config.AppScheme, ":") || strings.Contains(config.AppScheme, "/") {
		return fmt.Errorf("appScheme must be a bare scheme name like 'myapp', got %q", config.AppScheme)
	}
	if config.AppRedirectURI == "" {
		return fmt.Errorf("appRedirectUri is required")
	}
	if config.AppRedirectURI == config.BaseURL {
		return fmt.Errorf("appRedirectUri must differ from baseURL")
	}
	for _, origin := range config.AllowedOrigins {
		if err := validateHTTPURL(origin); err != nil {
			return fmt.Errorf("allowedOrigins: %q: %w", origin, err)
		}
	}

	if err := validateProviderConfig(&config.Provider); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}

	if len(config.Session.JWTSecret) < 32 {
		return fmt.Errorf("session.jwtSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(config.Session.JWTSecret))
	}
	if config.Session.TokenTTL <= 0 {
		return fmt.Errorf("session.tokenTtl must be positive")
	}

	if config.Cookie.MaxAge < 0 {
		return fmt.Errorf("cookie.maxAge cannot be negative")
	}
	switch config.Cookie.SameSite {
	case "lax", "strict":
	case "none":
		if config.Cookie.Secure != nil && !*config.Cookie.Secure {
			log.LogWarn("cookie.sameSite is none but cookie is not secure - browsers will reject it")
		}
	default:
		return fmt.Errorf("cookie.sameSite must be one of lax, strict, none (got %q)", config.Cookie.SameSite)
	}
	if config.Cookie.MaxAge > 0 && config.Cookie.MaxAge != config.Session.TokenTTL {
		log.LogWarn("cookie.maxAge (%s) differs from session.tokenTtl (%s)", config.Cookie.MaxAge, config.Session.TokenTTL)
	}

	return nil
}

func validateProviderConfig(p *ProviderConfig) error {
	if p.Kind != ProviderGoogle {
		return fmt.Errorf("unsupported provider kind %q", p.Kind)
	}
	if p.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if p.RedirectURI == "" {
		return fmt.Errorf("redirectUri is required")
	}
	if err := validateHTTPURL(p.RedirectURI); err != nil {
		return fmt.Errorf("redirectUri: %w", err)
	}
	for field, value := range map[string]string{"authUrl": p.AuthURL, "tokenUrl": p.TokenURL, "jwksUrl": p.JWKSURL} {
		if value == "" {
			continue
		}
		if err := validateHTTPURL(value); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL")
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}
