package packager

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/oshokin/appshell/internal/feed"
	"github.com/oshokin/appshell/internal/logger"
	"github.com/oshokin/appshell/internal/platform"
	"github.com/oshokin/appshell/internal/service/updater"
	"github.com/oshokin/appshell/internal/signature"
)

// DefaultOutput is the feed document written when no output is given.
const DefaultOutput = "latest.json"

// Options contains inputs for the packager entry point.
type Options struct {
	// Version is the released version.
	Version string
	// ArtifactPath is the payload to publish.
	ArtifactPath string
	// URL is where clients will download the payload from.
	URL string
	// Target is the platform key, e.g. linux-x86_64. Defaults to the current platform.
	Target string
	// Notes are the release notes.
	Notes string
	// Date is the publication date. Defaults to now.
	Date time.Time
	// KeyPath is an optional SSH private key used to sign the payload.
	KeyPath string
	// OutputPath is the feed document to create or update.
	OutputPath string
}

var (
	errVersionRequired  = errors.New("version must be provided")
	errArtifactRequired = errors.New("artifact path must be provided")
	errURLRequired      = errors.New("artifact url must be provided")
)

// packager builds the release feed document.
// Callers use Run, which validates the options first.
type packager struct {
	// opts are the validated inputs.
	opts *Options
	// manifest is the feed document being updated.
	manifest *feed.Manifest
	// dropped lists platforms removed because they belonged to another version.
	dropped []string
}

// Run executes the packaging workflow.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "appshell-packager")

	pkg, err := newPackager(opts)
	if err != nil {
		return fmt.Errorf("initialize packager: %w", err)
	}

	if err = pkg.Run(ctx); err != nil {
		return fmt.Errorf("packager failed: %w", err)
	}

	logger.Info(ctx, "Packager completed successfully")

	return nil
}

// newPackager validates the options, fills defaults and loads an existing feed document.
func newPackager(opts *Options) (*packager, error) {
	switch {
	case strings.TrimSpace(opts.Version) == "":
		return nil, errVersionRequired
	case opts.ArtifactPath == "":
		return nil, errArtifactRequired
	case opts.URL == "":
		return nil, errURLRequired
	}

	normalized := *opts

	if normalized.Target == "" {
		normalized.Target = platform.Detect().Target()
	}

	if normalized.Date.IsZero() {
		normalized.Date = time.Now()
	}

	if normalized.OutputPath == "" {
		normalized.OutputPath = DefaultOutput
	}

	manifest, err := feed.LoadManifest(normalized.OutputPath)

	switch {
	case errors.Is(err, os.ErrNotExist):
		manifest = feed.NewManifest(normalized.Version)
	case err != nil:
		return nil, err
	}

	release := feed.NewManifest(normalized.Version)

	current, err := release.ParsedVersion()
	if err != nil {
		return nil, err
	}

	var dropped []string

	// Entries of another version would offer that old artifact under the new version number.
	if previous, parseErr := manifest.ParsedVersion(); parseErr != nil || !previous.Equal(current) {
		for target := range manifest.Platforms {
			dropped = append(dropped, target)
		}

		sort.Strings(dropped)

		manifest.Platforms = release.Platforms
	}

	manifest.Version = normalized.Version

	return &packager{
		opts:     &normalized,
		manifest: manifest,
		dropped:  dropped,
	}, nil
}

// Run fills the platform entry and writes the feed document to disk.
func (p *packager) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Preparing release", "version", p.opts.Version, "target", p.opts.Target)

	if len(p.dropped) > 0 {
		logger.WarnKV(ctx, "Feed held another version, its platform entries were removed",
			"platforms", strings.Join(p.dropped, ", "))
	}

	entry, err := p.platformEntry(ctx)
	if err != nil {
		return err
	}

	p.manifest.Notes = p.opts.Notes
	p.manifest.PubDate = p.opts.Date.UTC().Format(time.RFC3339)
	p.manifest.Platforms[p.opts.Target] = *entry

	logger.InfoKV(ctx, "Saving release feed", "path", p.opts.OutputPath)

	if err = feed.SaveManifest(p.opts.OutputPath, p.manifest); err != nil {
		return err
	}

	p.printNextSteps(ctx)

	return nil
}

// platformEntry computes the checksum and the optional signature of the artifact.
func (p *packager) platformEntry(ctx context.Context) (*feed.PlatformEntry, error) {
	if _, err := os.Stat(p.opts.ArtifactPath); err != nil {
		return nil, fmt.Errorf("stat %s: %w", p.opts.ArtifactPath, err)
	}

	checksum, err := updater.GetFileChecksum(p.opts.ArtifactPath)
	if err != nil {
		return nil, err
	}

	entry := &feed.PlatformEntry{
		URL:    p.opts.URL,
		SHA512: base64.StdEncoding.EncodeToString(checksum),
	}

	if p.opts.KeyPath == "" {
		logger.Warn(ctx, "No signing key given, the artifact is published unsigned")
		return entry, nil
	}

	armored, err := signFile(p.opts.KeyPath, p.opts.ArtifactPath)
	if err != nil {
		return nil, err
	}

	entry.Signature = string(armored)

	logger.InfoKV(ctx, "Artifact signed", "namespace", signature.Namespace)

	return entry, nil
}

// signFile signs the artifact with an unencrypted SSH private key.
func signFile(keyPath, artifactPath string) ([]byte, error) {
	pemBytes, err := os.ReadFile(filepath.Clean(keyPath))
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	artifact, err := os.Open(filepath.Clean(artifactPath))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}

	defer func() {
		_ = artifact.Close()
	}()

	return signature.Sign(signer, artifact)
}

// printNextSteps logs human-readable guidance for publishing the release.
func (p *packager) printNextSteps(ctx context.Context) {
	targets := make([]string, 0, len(p.manifest.Platforms))
	for target := range p.manifest.Platforms {
		targets = append(targets, target)
	}

	sort.Strings(targets)

	var builder strings.Builder

	builder.WriteString("Upload ")
	builder.WriteString(p.opts.ArtifactPath)
	builder.WriteString(" so that it is served at ")
	builder.WriteString(p.opts.URL)
	builder.WriteString(",\nthen publish ")
	builder.WriteString(p.opts.OutputPath)
	builder.WriteString(" at every update endpoint.\nPlatforms in this release: ")
	builder.WriteString(strings.Join(targets, ", "))

	logger.Info(ctx, builder.String())
}
