package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/appshell/internal/config"
	"github.com/oshokin/appshell/internal/platform"
	"github.com/oshokin/appshell/internal/service/common"
	"github.com/oshokin/appshell/internal/service/packager"
)

// TestPackager_PublishAndInstall publishes a release with the packager and installs it from a static file server.
func TestPackager_PublishAndInstall(t *testing.T) {
	t.Parallel()

	publishDir := t.TempDir()
	artifact := filepath.Join(publishDir, "appshell-app")
	payload := []byte("packaged release")

	require.NoError(t, os.WriteFile(artifact, payload, 0o600))

	files := httptest.NewServer(http.FileServer(http.Dir(publishDir)))
	defer files.Close()

	ctx := context.Background()

	require.NoError(t, packager.Run(ctx, &packager.Options{
		Version:      "9.9.9",
		ArtifactPath: artifact,
		URL:          files.URL + "/appshell-app",
		Target:       platform.Detect().Target(),
		Notes:        "packaged",
		Date:         time.Date(2025, time.June, 22, 0, 0, 0, 0, time.UTC),
		OutputPath:   filepath.Join(publishDir, "latest.json"),
	}))

	installDir := t.TempDir()
	target := filepath.Join(installDir, "appshell-app")

	require.NoError(t, os.WriteFile(target, []byte("old release"), 0o600))

	addr := reservePort(t)

	startBackend(t, &config.Config{
		ListenAddress: addr,
		Endpoints:     []string{files.URL + "/latest.json"},
		InstallPath:   target,
	})

	client, err := common.Dial(ctx, addr, common.WithCallTimeout(5*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	info, err := client.CheckForUpdates(ctx)
	require.NoError(t, err)
	require.True(t, info.Available)
	require.Equal(t, "packaged", info.Notes)
	require.Equal(t, "2025-06-22T00:00:00Z", info.Date)

	require.NoError(t, client.DownloadAndInstallUpdate(ctx, nil))

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, payload, contents)
}
