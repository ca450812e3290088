package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name          string
		config        string
		wantErrors    []string
		wantWarnings  []string
		wantErrCount  int
		wantWarnCount int
	}{
		{
			name: "valid_config",
			config: `{
				"version": "v1",
				"addr": ":8081",
				"baseURL": "https://relay.example.com",
				"appScheme": "myapp",
				"provider": {
					"kind": "google",
					"clientId": {"$env": "GOOGLE_CLIENT_ID"},
					"clientSecret": {"$env": "GOOGLE_CLIENT_SECRET"},
					"redirectUri": "https://relay.example.com/api/auth/callback"
				},
				"session": {
					"jwtSecret": {"$env": "JWT_SECRET"},
					"tokenTtl": "1h"
				},
				"cookie": {"sameSite": "lax", "maxAge": "1h"}
			}`,
		},
		{
			name: "missing_version",
			config: `{
				"addr": ":8081",
				"baseURL": "https://relay.example.com",
				"appScheme": "myapp",
				"provider": {"clientId": "x", "clientSecret": {"$env": "S"}, "redirectUri": "https://r/cb"},
				"session": {"jwtSecret": {"$env": "J"}}
			}`,
			wantErrors:   []string{"version field is required"},
			wantErrCount: 1,
		},
		{
			name: "plain_text_secrets",
			config: `{
				"version": "v1",
				"addr": ":8081",
				"baseURL": "https://relay.example.com",
				"appScheme": "myapp",
				"provider": {"clientId": "x", "clientSecret": "hunter2", "redirectUri": "https://r/cb"},
				"session": {"jwtSecret": "also-hunter2"}
			}`,
			wantErrors:   []string{"clientSecret must use environment variable reference", "jwtSecret must use environment variable reference"},
			wantErrCount: 2,
		},
		{
			name: "bash_style_secret",
			config: `{
				"version": "v1",
				"addr": ":8081",
				"baseURL": "https://relay.example.com",
				"appScheme": "myapp",
				"provider": {"clientId": "x", "clientSecret": "${GOOGLE_SECRET}", "redirectUri": "https://r/cb"},
				"session": {"jwtSecret": {"$env": "J"}}
			}`,
			wantErrors:    []string{"found bash-style syntax"},
			wantWarnings:  []string{"found bash-style syntax"},
			wantErrCount:  1,
			wantWarnCount: 1,
		},
		{
			name: "missing_sections",
			config: `{
				"version": "v1",
				"addr": ":8081",
				"baseURL": "https://relay.example.com",
				"appScheme": "myapp"
			}`,
			wantErrors:   []string{"provider section is required", "session section is required"},
			wantErrCount: 2,
		},
		{
			name: "defaults_warned",
			config: `{
				"version": "v1",
				"baseURL": "https://relay.example.com",
				"appScheme": "myapp",
				"provider": {"clientId": "x", "clientSecret": {"$env": "S"}},
				"session": {"jwtSecret": {"$env": "J"}}
			}`,
			wantWarnings:  []string{"addr not set", "redirectUri not set"},
			wantWarnCount: 2,
		},
		{
			name: "bad_durations_and_samesite",
			config: `{
				"version": "v1",
				"addr": ":8081",
				"baseURL": "https://relay.example.com",
				"appScheme": "myapp",
				"provider": {"clientId": "x", "clientSecret": {"$env": "S"}, "redirectUri": "https://r/cb"},
				"session": {"jwtSecret": {"$env": "J"}, "tokenTtl": "soon"},
				"cookie": {"sameSite": "sometimes", "maxAge": "-1h"}
			}`,
			wantErrors:   []string{"invalid duration", "maxAge must be positive", "sameSite must be one of"},
			wantErrCount: 3,
		},
		{
			name: "unsupported_provider",
			config: `{
				"version": "v1",
				"addr": ":8081",
				"baseURL": "https://relay.example.com",
				"appScheme": "myapp",
				"provider": {"kind": "github", "clientId": "x", "clientSecret": {"$env": "S"}, "redirectUri": "https://r/cb"},
				"session": {"jwtSecret": {"$env": "J"}}
			}`,
			wantErrors:   []string{"unsupported provider kind 'github'"},
			wantErrCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.config), 0o644))

			result, err := ValidateFile(configPath)
			require.NoError(t, err)

			assert.Len(t, result.Errors, tt.wantErrCount, "errors: %v", result.Errors)
			assert.Len(t, result.Warnings, tt.wantWarnCount, "warnings: %v", result.Warnings)
			assert.Equal(t, tt.wantErrCount == 0, result.IsValid())

			for _, want := range tt.wantErrors {
				assert.True(t, containsMessage(result.Errors, want), "expected error containing %q in %v", want, result.Errors)
			}
			for _, want := range tt.wantWarnings {
				assert.True(t, containsMessage(result.Warnings, want), "expected warning containing %q in %v", want, result.Warnings)
			}
		})
	}
}

func TestValidateFile_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"version": `), 0o644))

	result, err := ValidateFile(configPath)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "invalid JSON")
}

func TestValidateFile_MissingFile(t *testing.T) {
	_, err := ValidateFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func containsMessage(issues []ValidationError, substr string) bool {
	for _, issue := range issues {
		if strings.Contains(issue.Message, substr) {
			return true
		}
	}
	return false
}
