package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgellow/auth-relay/internal"
	"github.com/dgellow/auth-relay/internal/log"
)

func serveCmd() *cobra.Command {
	var flags configFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}

			log.LogInfoWithFields("main", "Starting auth-relay", map[string]any{
				"version": BuildVersion,
				"config":  flags.configPath,
			})

			ctx := cmd.Context()
			relay, err := internal.NewAuthRelay(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to build relay: %w", err)
			}
			if err := relay.Run(ctx); err != nil {
				return fmt.Errorf("failed to run server: %w", err)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
