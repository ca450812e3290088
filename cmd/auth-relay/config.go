package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgellow/auth-relay/internal/config"
)

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version":        config.ConfigVersion,
		"addr":           config.DefaultAddr,
		"baseURL":        "https://auth.yourcompany.com",
		"appScheme":      "myapp",
		"allowedOrigins": []string{"https://auth.yourcompany.com"},
		"provider": map[string]any{
			"kind":         string(config.ProviderGoogle),
			"clientId":     map[string]string{"$env": "GOOGLE_CLIENT_ID"},
			"clientSecret": map[string]string{"$env": "GOOGLE_CLIENT_SECRET"},
			"redirectUri":  "https://auth.yourcompany.com" + config.DefaultCallbackPath,
		},
		"session": map[string]any{
			"jwtSecret": map[string]string{"$env": "JWT_SECRET"},
			"tokenTtl":  config.DefaultTokenTTL.String(),
		},
		"cookie": map[string]any{
			"name":     config.DefaultCookieName,
			"sameSite": "lax",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-init <path>",
		Short: "Write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generateDefaultConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default config at: %s\n", args[0])
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Check a config file without starting the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd, args[0])
		},
	}
}

func validateConfig(cmd *cobra.Command, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nErrors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			printIssue(cmd, e)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintf(out, "\nWarnings (%d):\n", len(result.Warnings))
		for _, w := range result.Warnings {
			printIssue(cmd, w)
		}
	}

	fmt.Fprintln(out)
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Fprintln(out, "Result: PASS")
		return nil
	case len(result.Errors) == 0:
		fmt.Fprintln(out, "Result: FAIL (warnings present)")
	default:
		fmt.Fprintln(out, "Result: FAIL")
	}
	return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
}

func printIssue(cmd *cobra.Command, issue config.ValidationError) {
	if issue.Path != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s: %s\n", issue.Path, issue.Message)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", issue.Message)
}
