package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/logger"
	"github.com/oshokin/appshell/internal/platform"
)

const (
	// DefaultTimeout bounds feed and download requests unless overridden.
	DefaultTimeout = 30 * time.Second

	// maxManifestSize caps the manifest body read from an endpoint.
	maxManifestSize = 1 << 20

	// downloadBufferSize is the largest chunk reported by a single progress callback.
	downloadBufferSize = 32 * 1024

	userAgentFormat = "appshell/%s (%s; %s)"
)

var (
	errNoEndpoints        = errors.New("no update endpoints configured")
	errAllEndpointsFailed = errors.New("could not fetch a valid release manifest from any endpoint")
	errBadHTTPStatus      = errors.New("unexpected http status")
	errInvalidVersion     = errors.New("invalid current version")
)

// ChunkFunc is called for every chunk received while downloading. total is nil
// when the server did not report a content length.
type ChunkFunc func(chunkLength uint64, total *uint64)

// Client asks release feed endpoints for updates and downloads their artifacts.
type Client struct {
	// endpoints are feed URL templates tried in order.
	endpoints []string
	// currentVersion is the running application version.
	currentVersion *goversion.Version
	// platform selects the artifact and fills URL placeholders.
	platform platform.Platform
	// httpClient performs every request.
	httpClient *http.Client
	// timeout bounds a manifest request and the wait for download response headers.
	timeout time.Duration
	// userAgent is sent with every request.
	userAgent string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the manifest request timeout and the download header timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient creates a feed client for the running version on the given platform.
func NewClient(endpoints []string, currentVersion string, p platform.Platform, opts ...Option) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, errNoEndpoints
	}

	current, err := goversion.NewVersion(currentVersion)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", errInvalidVersion, currentVersion, err)
	}

	c := &Client{
		endpoints:      append([]string(nil), endpoints...),
		currentVersion: current,
		platform:       p,
		timeout:        DefaultTimeout,
		userAgent:      fmt.Sprintf(userAgentFormat, currentVersion, p.OS, p.Arch),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = newHTTPClient(c.timeout)
	}

	return c, nil
}

// Check asks the endpoints, in order, whether a newer release exists.
// It returns nil without error when the running version is the latest.
func (c *Client) Check(ctx context.Context) (*update.Descriptor, error) {
	failures := make([]error, 0, len(c.endpoints))

	for _, template := range c.endpoints {
		endpoint := c.expand(template)

		manifest, err := c.fetchManifest(ctx, endpoint)
		if err != nil {
			logger.WarnKV(ctx, "Update endpoint failed", "endpoint", endpoint, "error", err)
			failures = append(failures, err)

			continue
		}

		if manifest == nil {
			logger.DebugKV(ctx, "Endpoint reported no update", "endpoint", endpoint)
			return nil, nil
		}

		return c.evaluate(ctx, manifest)
	}

	return nil, fmt.Errorf("%w: %w", errAllEndpointsFailed, errors.Join(failures...))
}

// evaluate compares the manifest with the running version.
func (c *Client) evaluate(ctx context.Context, manifest *Manifest) (*update.Descriptor, error) {
	remote, err := manifest.ParsedVersion()
	if err != nil {
		return nil, err
	}

	if !remote.GreaterThan(c.currentVersion) {
		logger.DebugKV(ctx, "Running version is up to date",
			"current", c.currentVersion.String(), "remote", remote.String())

		return nil, nil
	}

	return manifest.Descriptor(c.platform.Target(), c.currentVersion.Original())
}

// fetchManifest downloads and decodes one endpoint. A nil manifest means "no update".
func (c *Client) fetchManifest(ctx context.Context, endpoint string) (*Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := c.get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(response.Body, maxManifestSize))
	if err != nil {
		return nil, fmt.Errorf("read manifest from %s: %w", endpoint, err)
	}

	var manifest Manifest
	if err = json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w from %s: %w", errInvalidManifest, endpoint, err)
	}

	return &manifest, nil
}

// Download streams the artifact into dst, calling onChunk for every chunk in
// the order the bytes arrive.
func (c *Client) Download(ctx context.Context, artifact update.Artifact, dst io.Writer, onChunk ChunkFunc) error {
	response, err := c.get(ctx, artifact.URL, "application/octet-stream")
	if err != nil {
		return err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	var total *uint64

	if response.ContentLength >= 0 {
		length := uint64(response.ContentLength)
		total = &length
	}

	buffer := make([]byte, downloadBufferSize)

	for {
		n, readErr := response.Body.Read(buffer)
		if n > 0 {
			if _, err = dst.Write(buffer[:n]); err != nil {
				return fmt.Errorf("write payload: %w", err)
			}

			if onChunk != nil {
				onChunk(uint64(n), total)
			}
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}

		if readErr != nil {
			return fmt.Errorf("read payload: %w", readErr)
		}
	}
}

// get performs a GET request and rejects any status other than 200 and 204.
func (c *Client) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusNoContent {
		_ = response.Body.Close()

		return nil, fmt.Errorf("%s, %s: %w", url, response.Status, errBadHTTPStatus)
	}

	return response, nil
}

// newHTTPClient builds a client whose downloads are bounded only while waiting
// for response headers, so large payloads are not cut off mid-stream.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}

	transport = transport.Clone()
	transport.ResponseHeaderTimeout = timeout

	return &http.Client{Transport: transport}
}

// expand fills the URL placeholders of an endpoint template.
func (c *Client) expand(template string) string {
	return strings.NewReplacer(
		"{{target}}", c.platform.Target(),
		"{{arch}}", c.platform.FeedArch(),
		"{{current_version}}", c.currentVersion.Original(),
	).Replace(template)
}
