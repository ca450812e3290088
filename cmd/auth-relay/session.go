package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgellow/auth-relay/internal/client"
)

const passphraseEnv = "AUTH_RELAY_TOKEN_PASSPHRASE"

// clientFlags configure the command line client, which behaves as a
// native platform with a loopback redirect
type clientFlags struct {
	relayURL    string
	redirectURI string
	tokenFile   string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.relayURL, "relay", envOr("AUTH_RELAY_URL", "http://localhost:8081"), "relay base URL")
	cmd.Flags().StringVar(&f.redirectURI, "redirect-uri", envOr("AUTH_RELAY_APP_REDIRECT_URI", "http://127.0.0.1:8765/callback"), "loopback redirect URI registered as the relay's native target")
	cmd.Flags().StringVar(&f.tokenFile, "token-file", defaultTokenFile(), "sealed token file")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".auth-relay-tokens"
	}
	return filepath.Join(dir, "auth-relay", "tokens")
}

func (f *clientFlags) controller(cmd *cobra.Command) (*client.Controller, error) {
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("%s must be set to unlock the token file", passphraseEnv)
	}
	store, err := client.NewFileStore(f.tokenFile, []byte(passphrase))
	if err != nil {
		return nil, err
	}

	discovery := client.DiscoveryFor(f.relayURL)
	return client.NewController(client.ControllerConfig{
		Transport:   client.NewNativeTransport(discovery, store, nil),
		Launcher:    &client.LoopbackLauncher{Out: cmd.ErrOrStderr()},
		Discovery:   discovery,
		RedirectURI: f.redirectURI,
	}), nil
}

func loginCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the relay and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.controller(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			c.Restore(ctx)
			if s := c.State(); s.SignedIn() {
				fmt.Fprintf(cmd.OutOrStdout(), "Already signed in as %s\n", s.User.Email)
				return nil
			}

			if _, err := c.Prepare(); err != nil {
				return err
			}
			if err := c.SignIn(ctx); err != nil {
				return fmt.Errorf("sign-in failed: %w", err)
			}
			s := c.State()
			if !s.SignedIn() {
				return errors.New("sign-in did not complete")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", s.User.Email)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func whoamiCmd() *cobra.Command {
	var (
		flags clientFlags
		fetch bool
	)

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.controller(cmd)
			if err != nil {
				return err
			}
			c.Restore(cmd.Context())
			s := c.State()
			if !s.SignedIn() {
				return errors.New("not signed in")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if !fetch {
				return enc.Encode(s.User)
			}

			endpoint := strings.TrimSuffix(flags.relayURL, "/") + "/api/protected/data"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := c.FetchWithAuth(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("protected endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&fetch, "fetch", false, "call the protected data endpoint with the stored token")
	return cmd
}

func logoutCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.controller(cmd)
			if err != nil {
				return err
			}
			if err := c.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
