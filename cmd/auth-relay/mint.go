package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgellow/auth-relay/internal/idp"
	"github.com/dgellow/auth-relay/internal/sessiontoken"
)

// mintCmd issues a session token without a provider round trip, for
// exercising protected endpoints in development
func mintCmd() *cobra.Command {
	var (
		flags    configFlags
		identity idp.Identity
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Issue a session token for a given identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.Session.TokenTTL
			}
			identity.Provider = string(cfg.Provider.Kind)

			codec := sessiontoken.NewCodec([]byte(cfg.Session.JWTSecret), cfg.BaseURL, ttl)
			token, claims, err := codec.Mint(&identity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&identity.Subject, "subject", "", "subject (sub) claim")
	cmd.Flags().StringVar(&identity.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&identity.Name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (config tokenTtl when zero)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
