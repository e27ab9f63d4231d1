// ButtRest - REST gateway for Buttplug devices
//
// ButtRest keeps one WebSocket session open to an Intiface control server
// and exposes the devices it reports as REST resources. Device commands
// are forwarded to the server and answered once the server replies.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/buttrest/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnvVar names the environment variable holding the config file path.
const configEnvVar = "BUTTREST_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Without a subcommand it serves.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "buttrest",
		Short:         "REST gateway for Buttplug devices",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $"+configEnvVar+", environment only if unset)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(getConfigPath(configPath))
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	serve := newServeCmd(load)
	root.RunE = serve.RunE
	root.AddCommand(serve, newDevicesCmd(load), newActuateCmd(load))

	return root
}

// getConfigPath returns the flag value, falling back to BUTTREST_CONFIG.
// An empty result means configuration comes from the environment only.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(configEnvVar)
}
