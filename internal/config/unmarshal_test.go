package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		envVars       map[string]string
		expectedValue string
		expectedError bool
	}{
		{
			name:          "plain string",
			input:         `"hello world"`,
			expectedValue: "hello world",
		},
		{
			name:          "env reference",
			input:         `{"$env": "TEST_VAR"}`,
			envVars:       map[string]string{"TEST_VAR": "test value"},
			expectedValue: "test value",
		},
		{
			name:          "env reference with double quotes",
			input:         `{"$env": "QUOTED_VAR"}`,
			envVars:       map[string]string{"QUOTED_VAR": `"quoted value"`},
			expectedValue: "quoted value",
		},
		{
			name:          "env reference with single quotes",
			input:         `{"$env": "SINGLE_QUOTED"}`,
			envVars:       map[string]string{"SINGLE_QUOTED": `'single quoted'`},
			expectedValue: "single quoted",
		},
		{
			name:          "env reference with mixed quotes not stripped",
			input:         `{"$env": "MIXED_QUOTES"}`,
			envVars:       map[string]string{"MIXED_QUOTES": `"mixed quotes'`},
			expectedValue: `"mixed quotes'`,
		},
		{
			name:          "missing env var",
			input:         `{"$env": "AUTH_RELAY_MISSING_VAR"}`,
			expectedError: true,
		},
		{
			name:          "invalid reference type",
			input:         `{"$unknown": "value"}`,
			expectedError: true,
		},
		{
			name:          "number instead of string",
			input:         `123`,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			result, err := ParseConfigValue(json.RawMessage(tt.input))
			if tt.expectedError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedValue, result.value)
		})
	}
}

func TestConfig_UnmarshalJSON(t *testing.T) {
	t.Setenv("TEST_CLIENT_SECRET", "google-secret")
	t.Setenv("TEST_JWT_SECRET", "this-is-a-jwt-secret-of-32-chars!")
	t.Setenv("TEST_BASE_URL", "https://relay.example.com")

	input := `{
		"addr": ":9000",
		"baseURL": {"$env": "TEST_BASE_URL"},
		"appScheme": "myapp",
		"allowedOrigins": ["https://app.example.com"],
		"provider": {
			"kind": "google",
			"clientId": "client-123",
			"clientSecret": {"$env": "TEST_CLIENT_SECRET"},
			"redirectUri": "https://relay.example.com/api/auth/callback",
			"issuers": ["https://accounts.google.com"]
		},
		"session": {
			"jwtSecret": {"$env": "TEST_JWT_SECRET"},
			"tokenTtl": "30m"
		},
		"cookie": {
			"name": "sid",
			"maxAge": "45m",
			"sameSite": "Strict",
			"secure": false
		}
	}`

	var config Config
	require.NoError(t, json.Unmarshal([]byte(input), &config))

	assert.Equal(t, ":9000", config.Addr)
	assert.Equal(t, "https://relay.example.com", config.BaseURL)
	assert.Equal(t, "myapp", config.AppScheme)
	assert.Equal(t, []string{"https://app.example.com"}, config.AllowedOrigins)

	assert.Equal(t, ProviderGoogle, config.Provider.Kind)
	assert.Equal(t, "client-123", config.Provider.ClientID)
	assert.Equal(t, Secret("google-secret"), config.Provider.ClientSecret)
	assert.Equal(t, []string{"https://accounts.google.com"}, config.Provider.Issuers)

	assert.Equal(t, Secret("this-is-a-jwt-secret-of-32-chars!"), config.Session.JWTSecret)
	assert.Equal(t, 30*time.Minute, config.Session.TokenTTL)

	assert.Equal(t, "sid", config.Cookie.Name)
	assert.Equal(t, 45*time.Minute, config.Cookie.MaxAge)
	assert.Equal(t, "Strict", config.Cookie.SameSite)
	require.NotNil(t, config.Cookie.Secure)
	assert.False(t, *config.Cookie.Secure)
}

func TestSessionConfig_UnmarshalJSON_InvalidDuration(t *testing.T) {
	var s SessionConfig
	err := json.Unmarshal([]byte(`{"tokenTtl": "forever"}`), &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing tokenTtl")
}

func TestProviderConfig_UnmarshalJSON_MissingEnv(t *testing.T) {
	var p ProviderConfig
	err := json.Unmarshal([]byte(`{"clientSecret": {"$env": "AUTH_RELAY_NOT_SET_ANYWHERE"}}`), &p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_RELAY_NOT_SET_ANYWHERE")
}
