package feed

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/platform"
)

// testPlatform is the platform every feed test pretends to run on.
//
//nolint:gochecknoglobals // Shared read-only fixture.
var testPlatform = platform.Platform{OS: "linux", Arch: "amd64"}

// serveManifest starts a server returning the given manifest as JSON.
func serveManifest(t *testing.T, manifest *Manifest) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(manifest)
	}))
	t.Cleanup(server.Close)

	return server
}

// TestClient_Check_NewerRelease verifies a newer release yields a descriptor for the platform.
func TestClient_Check_NewerRelease(t *testing.T) {
	t.Parallel()

	checksum := sha512.Sum512([]byte("payload"))

	manifest := &Manifest{
		Version: "1.2.0",
		Notes:   "bugfix",
		Platforms: map[string]PlatformEntry{
			"linux-x86_64": {
				URL:    "https://downloads.local/app",
				SHA512: base64.StdEncoding.EncodeToString(checksum[:]),
			},
		},
	}

	server := serveManifest(t, manifest)

	client, err := NewClient([]string{server.URL}, "1.0.0", testPlatform)
	require.NoError(t, err)

	desc, err := client.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, desc)
	require.Equal(t, "1.2.0", desc.Version)
	require.Equal(t, "1.0.0", desc.CurrentVersion)
	require.Equal(t, "bugfix", desc.Notes)
	require.Nil(t, desc.Date)
	require.Equal(t, checksum[:], desc.Artifact.Checksum)
	require.Equal(t, "linux-x86_64", desc.Artifact.Target)
	require.Equal(t, update.Info{Version: "1.2.0", Notes: "bugfix", Date: "Unknown", Available: true}, desc.Info())
}

// TestClient_Check_CustomHTTPClient reaches a TLS feed through a caller-provided HTTP client.
func TestClient_Check_CustomHTTPClient(t *testing.T) {
	t.Parallel()

	manifest := &Manifest{
		Version: "1.2.0",
		Platforms: map[string]PlatformEntry{
			"linux-x86_64": {URL: "https://downloads.local/app"},
		},
	}

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(manifest)
	}))
	defer server.Close()

	// The default client does not trust the test certificate.
	client, err := NewClient([]string{server.URL}, "1.0.0", testPlatform)
	require.NoError(t, err)

	_, err = client.Check(context.Background())
	require.ErrorIs(t, err, errAllEndpointsFailed)

	client, err = NewClient([]string{server.URL}, "1.0.0", testPlatform, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	desc, err := client.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.2.0", desc.Version)
}

// TestClient_Check_NoUpdate covers same/older versions and 204 responses.
func TestClient_Check_NoUpdate(t *testing.T) {
	t.Parallel()

	for _, remote := range []string{"1.0.0", "0.9.9", "v1.0.0"} {
		server := serveManifest(t, &Manifest{
			Version:   remote,
			Platforms: map[string]PlatformEntry{"linux-x86_64": {URL: "https://downloads.local/app"}},
		})

		client, err := NewClient([]string{server.URL}, "1.0.0", testPlatform)
		require.NoError(t, err)

		desc, err := client.Check(context.Background())
		require.NoError(t, err)
		require.Nil(t, desc, "remote %s", remote)
	}

	noContent := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer noContent.Close()

	client, err := NewClient([]string{noContent.URL}, "1.0.0", testPlatform)
	require.NoError(t, err)

	desc, err := client.Check(context.Background())
	require.NoError(t, err)
	require.Nil(t, desc)
}

// TestClient_Check_Fallback ensures a failing endpoint is skipped and placeholders are expanded.
func TestClient_Check_Fallback(t *testing.T) {
	t.Parallel()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	var requestedPath, userAgent string

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		userAgent = r.UserAgent()

		_ = json.NewEncoder(w).Encode(&Manifest{
			Version:   "2.0.0",
			PubDate:   "2025-06-22T19:25:57Z",
			Platforms: map[string]PlatformEntry{"linux-x86_64": {URL: "https://downloads.local/app"}},
		})
	}))
	defer healthy.Close()

	client, err := NewClient(
		[]string{broken.URL, healthy.URL + "/{{target}}/{{arch}}/{{current_version}}"},
		"1.0.0",
		testPlatform,
	)
	require.NoError(t, err)

	desc, err := client.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, desc)
	require.Equal(t, "2025-06-22T19:25:57Z", desc.Info().Date)
	require.Equal(t, "/linux-x86_64/x86_64/1.0.0", requestedPath)
	require.True(t, strings.HasPrefix(userAgent, "appshell/1.0.0"))
}

// TestClient_Check_Failures covers unreachable endpoints, bad JSON and missing platforms.
func TestClient_Check_Failures(t *testing.T) {
	t.Parallel()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer garbage.Close()

	client, err := NewClient([]string{garbage.URL}, "1.0.0", testPlatform)
	require.NoError(t, err)

	_, err = client.Check(context.Background())
	require.ErrorIs(t, err, errAllEndpointsFailed)
	require.ErrorIs(t, err, errInvalidManifest)

	otherPlatform := serveManifest(t, &Manifest{
		Version:   "2.0.0",
		Platforms: map[string]PlatformEntry{"windows-x86_64": {URL: "https://downloads.local/app.exe"}},
	})

	client, err = NewClient([]string{otherPlatform.URL}, "1.0.0", testPlatform)
	require.NoError(t, err)

	_, err = client.Check(context.Background())
	require.ErrorIs(t, err, errNoPlatform)
}

// TestNewClient_Validation rejects missing endpoints and unparsable versions.
func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, "1.0.0", testPlatform)
	require.ErrorIs(t, err, errNoEndpoints)

	_, err = NewClient([]string{"https://example.com"}, "not-a-version", testPlatform)
	require.ErrorIs(t, err, errInvalidVersion)
}

// TestClient_Download reports every chunk in order with the content length.
func TestClient_Download(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0xAB}, 3*downloadBufferSize+17)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	client, err := NewClient([]string{server.URL}, "1.0.0", testPlatform)
	require.NoError(t, err)

	var (
		received bytes.Buffer
		summed   uint64
		total    *uint64
	)

	err = client.Download(context.Background(), update.Artifact{URL: server.URL}, &received,
		func(chunk uint64, length *uint64) {
			summed += chunk
			total = length
		})
	require.NoError(t, err)
	require.Equal(t, payload, received.Bytes())
	require.Equal(t, uint64(len(payload)), summed)
	require.NotNil(t, total)
	require.Equal(t, uint64(len(payload)), *total)
}

// TestClient_Download_UnknownLength reports a nil total for chunked responses.
func TestClient_Download_UnknownLength(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher, _ := w.(http.Flusher)

		for range 3 {
			_, _ = w.Write([]byte("chunk"))

			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer server.Close()

	client, err := NewClient([]string{server.URL}, "1.0.0", testPlatform)
	require.NoError(t, err)

	var (
		received bytes.Buffer
		summed   uint64
		sawTotal bool
	)

	err = client.Download(context.Background(), update.Artifact{URL: server.URL}, &received,
		func(chunk uint64, length *uint64) {
			summed += chunk
			sawTotal = sawTotal || length != nil
		})
	require.NoError(t, err)
	require.Equal(t, "chunkchunkchunk", received.String())
	require.Equal(t, uint64(15), summed)
	require.False(t, sawTotal)
}

// TestClient_Download_BadStatus fails on non-200 responses.
func TestClient_Download_BadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client, err := NewClient([]string{server.URL}, "1.0.0", testPlatform)
	require.NoError(t, err)

	err = client.Download(context.Background(), update.Artifact{URL: server.URL}, new(bytes.Buffer), nil)
	require.ErrorIs(t, err, errBadHTTPStatus)
}

// TestManifest_SaveLoad checks manifests survive a trip through disk.
func TestManifest_SaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "latest.json")

	m := NewManifest("1.2.0")
	m.Notes = "bugfix"
	m.Platforms["linux-x86_64"] = PlatformEntry{URL: "https://downloads.local/app"}

	require.NoError(t, SaveManifest(path, m))

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	require.Equal(t, m, loaded)
}
