package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", ConfigVersion)
	} else if version != ConfigVersion {
		result.addError("version", "unsupported version '%s' - use '%s'", version, ConfigVersion)
	}

	validateTopLevelStructure(rawConfig, result)
	validateProviderStructure(rawConfig, result)
	validateSessionStructure(rawConfig, result)
	validateCookieStructure(rawConfig, result)

	return result, nil
}

func validateTopLevelStructure(rawConfig map[string]any, result *ValidationResult) {
	for _, field := range []string{"baseURL", "appScheme"} {
		if _, ok := rawConfig[field]; !ok {
			result.addError(field, "%s is required", field)
		}
	}
	if _, ok := rawConfig["addr"]; !ok {
		result.addWarning("addr", "addr not set, defaulting to %s", DefaultAddr)
	}
	if origins, ok := rawConfig["allowedOrigins"]; ok {
		if _, isList := origins.([]any); !isList {
			result.addError("allowedOrigins", "allowedOrigins must be a list of origins")
		}
	}
}

func validateProviderStructure(rawConfig map[string]any, result *ValidationResult) {
	provider, ok := rawConfig["provider"].(map[string]any)
	if !ok {
		result.addError("provider", "provider section is required")
		return
	}

	if kind, ok := provider["kind"].(string); ok && kind != string(ProviderGoogle) {
		result.addError("provider.kind", "unsupported provider kind '%s' - only '%s' is supported", kind, ProviderGoogle)
	}
	if _, ok := provider["clientId"]; !ok {
		result.addError("provider.clientId", "clientId is required")
	}
	if secret, ok := provider["clientSecret"]; !ok {
		result.addError("provider.clientSecret", "clientSecret is required")
	} else if err := validateEnvVarReference(secret, "clientSecret", "provider.clientSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
	if _, ok := provider["redirectUri"]; !ok {
		result.addWarning("provider.redirectUri", "redirectUri not set, defaulting to baseURL + %s", DefaultCallbackPath)
	}
	if issuers, ok := provider["issuers"]; ok {
		list, isList := issuers.([]any)
		if !isList || len(list) == 0 {
			result.addError("provider.issuers", "issuers must be a non-empty list")
		}
	}
}

func validateSessionStructure(rawConfig map[string]any, result *ValidationResult) {
	session, ok := rawConfig["session"].(map[string]any)
	if !ok {
		result.addError("session", "session section is required")
		return
	}

	if secret, ok := session["jwtSecret"]; !ok {
		result.addError("session.jwtSecret", "jwtSecret is required")
	} else if err := validateEnvVarReference(secret, "jwtSecret", "session.jwtSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
	validateDurationField(session, "tokenTtl", "session.tokenTtl", result)
}

func validateCookieStructure(rawConfig map[string]any, result *ValidationResult) {
	cookie, ok := rawConfig["cookie"].(map[string]any)
	if !ok {
		return
	}

	validateDurationField(cookie, "maxAge", "cookie.maxAge", result)
	sameSite, _ := cookie["sameSite"].(string)
	switch strings.ToLower(sameSite) {
	case "", "lax", "strict":
	case "none":
		if secure, ok := cookie["secure"].(bool); ok && !secure {
			result.addWarning("cookie.sameSite", "sameSite none requires secure cookies in modern browsers")
		}
	default:
		result.addError("cookie.sameSite", "sameSite must be one of lax, strict, none (got '%s')", sameSite)
	}
}

func validateDurationField(section map[string]any, key, path string, result *ValidationResult) {
	value, ok := section[key]
	if !ok {
		return
	}
	s, isString := value.(string)
	if !isString {
		result.addError(path, "%s must be a duration string like \"1h\"", key)
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
		return
	}
	if d <= 0 {
		result.addError(path, "%s must be positive", key)
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format, not %v", fieldName, v),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
