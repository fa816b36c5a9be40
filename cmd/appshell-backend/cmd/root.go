package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/appshell/internal/config"
	"github.com/oshokin/appshell/internal/service/server"
	"github.com/oshokin/appshell/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// bridgeAddress overrides the HTTP bridge address from config.
	bridgeAddress string

	// rootCmd represents the base command for running the application backend.
	rootCmd = &cobra.Command{
		Use:   "appshell-backend [listen-address]",
		Short: "Run the application backend and its self-updater.",
		Long: `Starts the backend that serves application commands to the frontend.

Commands are served over gRPC on the listen address and, when a bridge address is
configured, over HTTP with a WebSocket event stream for the web frontend.
Listen address can be provided as argument to override config (e.g., :7001, 127.0.0.1:7001).
When update endpoints are configured the backend checks them periodically and
announces new releases to connected frontends.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				BridgeAddress: bridgeAddress,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the appshell-backend CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&bridgeAddress, "bridge", "b", "", "listen address of the HTTP bridge")
}
