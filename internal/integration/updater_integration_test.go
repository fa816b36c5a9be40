package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/appshell/internal/config"
	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
	"github.com/oshokin/appshell/internal/repository/journal"
	"github.com/oshokin/appshell/internal/service/common"
)

// TestUpdate_CheckAndInstall runs a full update against a live backend over gRPC.
func TestUpdate_CheckAndInstall(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "appshell-app")
	journalPath := filepath.Join(dir, "journal.yaml")
	payload := []byte("release 9.9.9 payload")

	require.NoError(t, os.WriteFile(target, []byte("release 1.0.0"), 0o600))

	releases := newReleaseServer(t, "9.9.9", payload)
	addr := reservePort(t)

	startBackend(t, &config.Config{
		ListenAddress: addr,
		Endpoints:     []string{releases.URL + "/latest.json"},
		InstallPath:   target,
		JournalFile:   journalPath,
	})

	ctx := context.Background()

	client, err := common.Dial(ctx, addr,
		common.WithCallTimeout(5*time.Second),
		common.WithActor(&common.Actor{Hostname: "test-host", Username: "test-user"}),
	)
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	info, err := client.CheckForUpdates(ctx)
	require.NoError(t, err)
	require.Equal(t, update.Info{
		Version:   "9.9.9",
		Notes:     "integration release",
		Date:      "2025-06-22T19:25:57Z",
		Available: true,
	}, info)

	var received []events.Event

	err = client.DownloadAndInstallUpdate(ctx, func(event events.Event) {
		received = append(received, event)
	})
	require.NoError(t, err)

	require.NotEmpty(t, received)
	require.Equal(t, events.FinishedEvent, received[len(received)-1].Name)

	var downloaded uint64

	for _, event := range received[:len(received)-1] {
		require.Equal(t, events.ProgressEvent, event.Name)

		progress, ok := event.Payload.(update.Progress)
		require.True(t, ok)

		downloaded = progress.Downloaded
	}

	require.Equal(t, uint64(len(payload)), downloaded)

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, payload, contents)

	record, err := journal.NewFileRepository(journalPath).Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "9.9.9", record.ToVersion)

	// The pending update was consumed by the install.
	err = client.DownloadAndInstallUpdate(ctx, func(events.Event) {})
	require.Error(t, err)
	require.Equal(t, "No pending update found", common.StatusMessage(err))
}

// TestUpdate_NoEndpoints reports updates as unsupported and still serves the other commands.
func TestUpdate_NoEndpoints(t *testing.T) {
	t.Parallel()

	addr := reservePort(t)
	startBackend(t, &config.Config{ListenAddress: addr})

	ctx := context.Background()

	client, err := common.Dial(ctx, addr, common.WithCallTimeout(5*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	_, err = client.CheckForUpdates(ctx)
	require.Error(t, err)
	require.Equal(t, "Updates not supported on this platform", common.StatusMessage(err))

	greeting, err := client.Greet(ctx, "Ada")
	require.NoError(t, err)
	require.Equal(t, "Hello, Ada! You've been greeted from Go!", greeting)

	environment, err := client.GetAppEnvironment(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, environment)
}
