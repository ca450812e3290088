package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// parseString resolves an optional string-or-reference value
func parseString(raw json.RawMessage, field string) (string, error) {
	if raw == nil {
		return "", nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return parsed.value, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for Config
func (c *Config) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		Addr           json.RawMessage `json:"addr"`
		BaseURL        json.RawMessage `json:"baseURL"`
		AppScheme      json.RawMessage `json:"appScheme"`
		AppRedirectURI json.RawMessage `json:"appRedirectUri"`
		AllowedOrigins []string        `json:"allowedOrigins"`
		Provider       ProviderConfig  `json:"provider"`
		Session        SessionConfig   `json:"session"`
		Cookie         CookieConfig    `json:"cookie"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if c.Addr, err = parseString(raw.Addr, "addr"); err != nil {
		return err
	}
	if c.BaseURL, err = parseString(raw.BaseURL, "baseURL"); err != nil {
		return err
	}
	if c.AppScheme, err = parseString(raw.AppScheme, "appScheme"); err != nil {
		return err
	}
	if c.AppRedirectURI, err = parseString(raw.AppRedirectURI, "appRedirectUri"); err != nil {
		return err
	}
	c.AllowedOrigins = raw.AllowedOrigins
	c.Provider = raw.Provider
	c.Session = raw.Session
	c.Cookie = raw.Cookie
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	type rawProvider struct {
		Kind         ProviderKind    `json:"kind"`
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
		RedirectURI  json.RawMessage `json:"redirectUri"`
		AuthURL      string          `json:"authUrl"`
		TokenURL     string          `json:"tokenUrl"`
		JWKSURL      string          `json:"jwksUrl"`
		Issuers      []string        `json:"issuers"`
		DefaultScope string          `json:"defaultScope"`
		Prompt       string          `json:"prompt"`
	}

	var raw rawProvider
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Kind = raw.Kind
	p.AuthURL = raw.AuthURL
	p.TokenURL = raw.TokenURL
	p.JWKSURL = raw.JWKSURL
	p.Issuers = raw.Issuers
	p.DefaultScope = raw.DefaultScope
	p.Prompt = raw.Prompt

	var err error
	if p.ClientID, err = parseString(raw.ClientID, "clientId"); err != nil {
		return err
	}
	secret, err := parseString(raw.ClientSecret, "clientSecret")
	if err != nil {
		return err
	}
	p.ClientSecret = Secret(secret)
	if p.RedirectURI, err = parseString(raw.RedirectURI, "redirectUri"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for SessionConfig
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		JWTSecret json.RawMessage `json:"jwtSecret"`
		TokenTTL  string          `json:"tokenTtl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	secret, err := parseString(raw.JWTSecret, "jwtSecret")
	if err != nil {
		return err
	}
	s.JWTSecret = Secret(secret)

	if s.TokenTTL, err = parseDuration(raw.TokenTTL, "tokenTtl"); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for CookieConfig
func (c *CookieConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     string `json:"name"`
		Path     string `json:"path"`
		MaxAge   string `json:"maxAge"`
		SameSite string `json:"sameSite"`
		Secure   *bool  `json:"secure"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Name = raw.Name
	c.Path = raw.Path
	c.SameSite = raw.SameSite
	c.Secure = raw.Secure

	maxAge, err := parseDuration(raw.MaxAge, "maxAge")
	if err != nil {
		return err
	}
	c.MaxAge = maxAge
	return nil
}
