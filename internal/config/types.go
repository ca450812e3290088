package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ConfigVersion is the only config file version this build understands
const ConfigVersion = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ProviderKind identifies the upstream identity provider
type ProviderKind string

const (
	ProviderGoogle ProviderKind = "google"
)

// ProviderConfig holds the relay's confidential client registration with the
// identity provider. Endpoint fields are optional overrides of the provider
// defaults, used for staging providers and tests.
type ProviderConfig struct {
	Kind         ProviderKind `json:"kind"`
	ClientID     string       `json:"clientId"`
	ClientSecret Secret       `json:"clientSecret"`
	// RedirectURI is the single provider-facing callback owned by the relay
	RedirectURI  string   `json:"redirectUri"`
	AuthURL      string   `json:"authUrl,omitempty"`
	TokenURL     string   `json:"tokenUrl,omitempty"`
	JWKSURL      string   `json:"jwksUrl,omitempty"`
	Issuers      []string `json:"issuers,omitempty"`
	DefaultScope string   `json:"defaultScope,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
}

// SessionConfig configures session token minting
type SessionConfig struct {
	JWTSecret Secret        `json:"jwtSecret"`
	TokenTTL  time.Duration `json:"tokenTtl"`
}

// CookieConfig is the policy for the web session cookie
type CookieConfig struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	MaxAge   time.Duration `json:"maxAge"`
	SameSite string        `json:"sameSite"`
	// Secure defaults to true outside development mode
	Secure *bool `json:"secure,omitempty"`
}

// Config represents the relay configuration with resolved values
type Config struct {
	Addr           string         `json:"addr"`
	BaseURL        string         `json:"baseURL"`
	AppScheme      string         `json:"appScheme"`
	// AppRedirectURI is the native deep link target, appScheme + "://" by default
	AppRedirectURI string         `json:"appRedirectUri,omitempty"`
	AllowedOrigins []string       `json:"allowedOrigins"`
	Provider       ProviderConfig `json:"provider"`
	Session        SessionConfig  `json:"session"`
	Cookie         CookieConfig   `json:"cookie"`
}

// RawConfigValue represents a value that could be a plain string or an env reference.
// This is only used during parsing, not in the final config
type RawConfigValue struct {
	value string
}

// ParseConfigValue parses a JSON value that could be a string or {"$env": "VAR"}
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &RawConfigValue{value: value}, nil
}
