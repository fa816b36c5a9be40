package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/appshell/internal/service/packager"
	"github.com/oshokin/appshell/internal/version"
)

var (
	// target is the platform key of the artifact.
	target string
	// notes are the release notes.
	notes string
	// date is the RFC 3339 publication date.
	date string
	// keyPath is the SSH private key used for signing.
	keyPath string
	// output is the feed document to write.
	output string

	// rootCmd represents the base command for preparing release feed documents.
	rootCmd = &cobra.Command{
		Use:   "appshell-packager <version> <artifact> <url>",
		Short: "Prepare the release feed for distribution",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{
				Version:      args[0],
				ArtifactPath: args[1],
				URL:          args[2],
				Target:       target,
				Notes:        notes,
				KeyPath:      keyPath,
				OutputPath:   output,
			}

			if date != "" {
				published, err := time.Parse(time.RFC3339, date)
				if err != nil {
					return fmt.Errorf("parse date: %w", err)
				}

				options.Date = published
			}

			return packager.Run(ctx, options)
		},
	}
)

// Execute runs the appshell-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&target, "target", "t", "", "platform key, e.g. linux-x86_64 (defaults to this machine)")
	rootCmd.Flags().StringVarP(&notes, "notes", "n", "", "release notes")
	rootCmd.Flags().StringVarP(&date, "date", "d", "", "RFC 3339 publication date (defaults to now)")
	rootCmd.Flags().StringVarP(&keyPath, "key", "k", "", "SSH private key used to sign the artifact")
	rootCmd.Flags().StringVarP(&output, "output", "o", packager.DefaultOutput, "release feed document to create or update")
}
