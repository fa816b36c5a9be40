package server

import (
	"context"
	"fmt"

	"github.com/oshokin/appshell/internal/config"
	"github.com/oshokin/appshell/internal/events"
	"github.com/oshokin/appshell/internal/feed"
	"github.com/oshokin/appshell/internal/logger"
	"github.com/oshokin/appshell/internal/platform"
	"github.com/oshokin/appshell/internal/repository/journal"
	"github.com/oshokin/appshell/internal/service/shell"
	"github.com/oshokin/appshell/internal/service/updater"
	"github.com/oshokin/appshell/internal/signature"
	"github.com/oshokin/appshell/internal/version"
)

// application holds the components shared by the transports.
type application struct {
	// updater runs checks and installs.
	updater *updater.Service
	// broker fans events out to bridge subscribers.
	broker *events.Broker
	// commands is the command table served by both transports.
	commands *shell.Commands
}

// newApplication wires the update flow for the detected platform. Updates are
// unsupported when the platform cannot self-update or no endpoint is configured.
func newApplication(ctx context.Context, settings *config.Config, p platform.Platform) (*application, error) {
	ctx = logger.WithKV(ctx, "platform", p.Target())

	repo := journal.NewFileRepository(settings.JournalFile)

	installer := updater.NewBinaryInstaller(
		updater.WithTargetPath(settings.InstallPath),
		updater.WithTerminateProcesses(settings.TerminateProcesses...),
		updater.WithJournal(repo),
		updater.WithRestart(settings.RestartAfterInstall),
	)

	if target, err := installer.TargetPath(); err == nil {
		updater.CleanupAfterUpgrade(ctx, repo, target)
	}

	verifier, err := signature.NewVerifier(settings.PublicKeys)
	if err != nil {
		return nil, fmt.Errorf("load public keys: %w", err)
	}

	supported := p.SupportsUpdates() && len(settings.Endpoints) > 0

	var source updater.Feed

	if supported {
		client, clientErr := feed.NewClient(settings.Endpoints, version.Short(), p, feed.WithTimeout(settings.Timeout))
		if clientErr != nil {
			return nil, fmt.Errorf("create feed client: %w", clientErr)
		}

		source = client
	}

	switch {
	case !p.SupportsUpdates():
		logger.Warn(ctx, "Updates are not supported on this platform")
	case len(settings.Endpoints) == 0:
		logger.Warn(ctx, "No update endpoints configured, updates disabled")
	default:
		logger.InfoKV(ctx, "Updates enabled",
			"endpoints", len(settings.Endpoints),
			"signed", verifier.Enabled())
	}

	svc := updater.New(source, installer, supported, updater.WithVerifier(verifier))
	broker := events.NewBroker(events.DefaultBufferSize)

	return &application{
		updater:  svc,
		broker:   broker,
		commands: shell.New(svc, broker),
	}, nil
}
