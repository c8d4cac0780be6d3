// FinBoard Core - finance dashboard backend
//
// This is the main entry point for the FinBoard Core application. It serves
// a configurable dashboard of widgets, each bound to a JSON API that is
// polled on a schedule or streamed over WebSocket, and pushes widget state
// to browsers over WebSocket and, optionally, to an MQTT broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/finboard-core/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnvVar overrides the config path when --config is not given.
const configEnvVar = "FINBOARD_CONFIG"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand is the same as "serve".
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "finboard",
		Short:         "Finance dashboard backend",
		Long:          "FinBoard Core keeps a dashboard of API-backed widgets up to date and serves it over HTTP, WebSocket and MQTT.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().String("config", "", "Path to config file (default $"+configEnvVar+" or "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(),
		newFieldsCmd(),
		newExportCmd(),
		newImportCmd(),
		newTemplatesCmd(),
		newDBCmd(),
	)
	return root
}

// getConfigPath returns the configuration file path and whether it was
// chosen explicitly. --config wins over FINBOARD_CONFIG, which wins over
// the default.
func getConfigPath(cmd *cobra.Command) (string, bool) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, true
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig loads the configuration for cmd. A missing default config
// file falls back to built-in defaults; an explicitly named one must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, explicit := getConfigPath(cmd)
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), "", nil
	}
	return nil, path, fmt.Errorf("loading config: %w", err)
}
