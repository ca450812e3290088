package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dgellow/auth-relay/internal/config"
	"github.com/dgellow/auth-relay/internal/log"
)

var BuildVersion = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "auth-relay",
		Short: "OAuth relay between Google and native or web clients",
		Long: `auth-relay holds the Google client secret and relays the
authorization code flow for native apps and browsers. It issues its own
session tokens: bearer tokens for native clients, an HttpOnly cookie for
the web.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		validateCmd(),
		configInitCmd(),
		mintCmd(),
		loginCmd(),
		whoamiCmd(),
		logoutCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadEnvFile reads a dotenv file into the process environment. A
// missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		log.LogDebugWithFields("main", "Loaded env file", map[string]any{"path": path})
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	return fmt.Errorf("loading env file %s: %w", path, err)
}

// loadConfig reads the config file when given, otherwise the environment
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}

type configFlags struct {
	configPath string
	envFile    string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to config file (environment variables are used when omitted)")
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading config")
}

func (f *configFlags) load(cmd *cobra.Command) (config.Config, error) {
	if err := loadEnvFile(f.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return config.Config{}, err
	}
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
