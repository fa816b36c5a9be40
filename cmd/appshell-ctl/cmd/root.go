package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/appshell/internal/config"
	"github.com/oshokin/appshell/internal/service/client"
	"github.com/oshokin/appshell/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// serverAddress overrides the backend address from config.
	serverAddress string

	// rootCmd groups the commands sent to a running backend.
	rootCmd = &cobra.Command{
		Use:   "appshell-ctl",
		Short: "Invoke commands on a running application backend.",
		Long: `Sends application commands to the backend over gRPC.

Server address can be provided with --server or loaded from configuration file.`,
	}
)

// newActionCommand builds a subcommand that performs a single backend action.
func newActionCommand(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			return run(command, action, "")
		},
	}
}

// run executes one backend action with signal-aware context.
func run(command *cobra.Command, action, name string) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return client.Run(ctx, &client.Options{
		ConfigPath:    cfgPath,
		ServerAddress: serverAddress,
		Action:        action,
		Name:          name,
		Output:        command.OutOrStdout(),
	})
}

// Execute runs the appshell-ctl CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddress, "server", "s", "", "backend address")

	rootCmd.AddCommand(
		newActionCommand("check", "Check the release feed for a newer version", client.ActionCheck),
		newActionCommand("install", "Download and install the pending update", client.ActionInstall),
		newActionCommand("environment", "Print the backend build environment", client.ActionEnvironment),
		newActionCommand("app-version", "Print the backend version", client.ActionVersion),
		&cobra.Command{
			Use:   "greet <name>",
			Short: "Ask the backend for a greeting",
			Args:  cobra.ExactArgs(1),
			RunE: func(command *cobra.Command, args []string) error {
				return run(command, client.ActionGreet, args[0])
			},
		},
	)
}
