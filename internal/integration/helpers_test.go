package integration

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/appshell/internal/config"
	"github.com/oshokin/appshell/internal/feed"
	"github.com/oshokin/appshell/internal/platform"
	"github.com/oshokin/appshell/internal/service/server"
)

// reservePort returns a free loopback address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// releaseServer serves a release feed and its payload.
type releaseServer struct {
	*httptest.Server

	// manifest is served at /latest.json.
	manifest atomic.Pointer[feed.Manifest]
	// payload is served at /payload.
	payload []byte
}

// newReleaseServer publishes payload as the given version for the current platform.
func newReleaseServer(t *testing.T, version string, payload []byte) *releaseServer {
	t.Helper()

	rs := &releaseServer{payload: payload}

	mux := http.NewServeMux()
	mux.HandleFunc("/latest.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		raw, err := json.Marshal(rs.manifest.Load())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		_, _ = w.Write(raw)
	})
	mux.HandleFunc("/payload", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(rs.payload)
	})

	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)

	checksum := sha512.Sum512(payload)

	manifest := feed.NewManifest(version)
	manifest.Notes = "integration release"
	manifest.PubDate = "2025-06-22T19:25:57Z"
	manifest.Platforms[platform.Detect().Target()] = feed.PlatformEntry{
		URL:    rs.URL + "/payload",
		SHA512: base64.StdEncoding.EncodeToString(checksum[:]),
	}

	rs.manifest.Store(manifest)

	return rs
}

// startBackend saves settings to a temporary file and runs the backend until the test ends.
func startBackend(t *testing.T, settings *config.Config) {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "settings.yaml")

	if settings.JournalFile == "" {
		settings.JournalFile = filepath.Join(dir, "journal.yaml")
	}

	if settings.Timeout == 0 {
		settings.Timeout = 5 * time.Second
	}

	require.NoError(t, config.Save(cfgPath, settings))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, &server.Options{ConfigPath: cfgPath})
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	waitListening(t, settings.ListenAddress)

	if settings.BridgeAddress != "" {
		waitListening(t, settings.BridgeAddress)
	}
}

// waitListening blocks until addr accepts TCP connections.
func waitListening(t *testing.T, addr string) {
	t.Helper()

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return false
		}

		_ = conn.Close()

		return true
	}, 5*time.Second, 20*time.Millisecond)
}
