package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/events"
	"github.com/oshokin/appshell/internal/feed"
	"github.com/oshokin/appshell/internal/logger"
)

var (
	// ErrNotSupported is returned on platforms that cannot self-update.
	ErrNotSupported = errors.New("updates not supported on this platform")
	// ErrNoPendingUpdate is returned when an install is requested before a successful check.
	ErrNoPendingUpdate = errors.New("no pending update found")
	// ErrCheckFailed wraps every failure of an update check.
	ErrCheckFailed = errors.New("failed to check for updates")
	// ErrInstallFailed wraps every failure of a download and install.
	ErrInstallFailed = errors.New("failed to download and install update")

	errChecksumMismatch = errors.New("payload checksum mismatch")
	errUnsignedPayload  = errors.New("payload is not signed but trusted keys are configured")
)

// Feed finds releases and downloads their artifacts.
type Feed interface {
	Check(ctx context.Context) (*update.Descriptor, error)
	Download(ctx context.Context, artifact update.Artifact, dst io.Writer, onChunk feed.ChunkFunc) error
}

// Installer applies a downloaded payload.
type Installer interface {
	Install(ctx context.Context, desc *update.Descriptor, payloadPath string) error
}

// Verifier checks payload signatures.
type Verifier interface {
	Enabled() bool
	Verify(message io.Reader, armored []byte) error
}

// Service runs update checks and installs. It is safe for concurrent use.
type Service struct {
	// feed finds and downloads releases.
	feed Feed
	// installer applies downloaded payloads.
	installer Installer
	// verifier checks payload signatures, nil to skip.
	verifier Verifier
	// supported reports whether this platform can update itself.
	supported bool
	// tempDir is the parent of per-run download directories, empty for the OS default.
	tempDir string
	// slot holds the update found by the latest successful check.
	slot update.Slot
}

// Option configures the service.
type Option func(*Service)

// WithVerifier enables signature checks of downloaded payloads.
func WithVerifier(v Verifier) Option {
	return func(s *Service) {
		s.verifier = v
	}
}

// WithTempDir sets where payloads are downloaded.
func WithTempDir(dir string) Option {
	return func(s *Service) {
		s.tempDir = dir
	}
}

// New creates the service. Updates are reported unsupported when supported is
// false or no feed is given.
func New(f Feed, installer Installer, supported bool, opts ...Option) *Service {
	s := &Service{
		feed:      f,
		installer: installer,
		supported: supported && f != nil && installer != nil,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Supported reports whether checks and installs can run.
func (s *Service) Supported() bool {
	return s.supported
}

// CheckForUpdates asks the feed for a newer release. A found release is stored
// as the pending update, replacing any previous one.
func (s *Service) CheckForUpdates(ctx context.Context) (update.Info, error) {
	if !s.supported {
		return update.Info{}, ErrNotSupported
	}

	desc, err := s.feed.Check(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Update check failed", "error", err)
		return update.Info{}, fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	if desc == nil {
		logger.Info(ctx, "No updates available")
		return update.NoUpdate(), nil
	}

	replaced := s.slot.Store(desc)

	switch {
	case replaced == nil:
	case replaced.Version != desc.Version:
		logger.WarnKV(ctx, "Pending update replaced by newer check",
			"replaced", replaced.Version, "pending", desc.Version)
	default:
		logger.DebugKV(ctx, "Pending update refreshed", "version", desc.Version)
	}

	logger.InfoKV(ctx, "Update available", "current", desc.CurrentVersion, "version", desc.Version)

	return desc.Info(), nil
}

// DownloadAndInstallUpdate consumes the pending update, downloads and verifies
// its payload, installs it and emits progress and completion events. The pending
// update is consumed even when the install fails.
func (s *Service) DownloadAndInstallUpdate(ctx context.Context, emitter events.Emitter) error {
	if !s.supported {
		return ErrNotSupported
	}

	desc := s.slot.Take()
	if desc == nil {
		return ErrNoPendingUpdate
	}

	if emitter == nil {
		emitter = events.Discard
	}

	ctx = logger.WithKV(ctx, "run_id", uuid.NewString(), "version", desc.Version)

	logger.InfoKV(ctx, "Installing update", "url", desc.Artifact.URL)

	if err := s.downloadAndInstall(ctx, desc, emitter); err != nil {
		logger.ErrorKV(ctx, "Update install failed", "error", err)
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	s.emit(ctx, emitter, events.Event{Name: events.FinishedEvent})

	logger.Info(ctx, "Update downloaded and installed successfully")

	return nil
}

// downloadAndInstall performs one attempt of the install pipeline.
func (s *Service) downloadAndInstall(ctx context.Context, desc *update.Descriptor, emitter events.Emitter) error {
	directory, err := os.MkdirTemp(s.tempDir, temporaryDirectoryPattern)
	if err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	defer func() {
		if removeErr := os.RemoveAll(directory); removeErr != nil {
			logger.WarnKV(ctx, "Could not remove download directory", "path", directory, "error", removeErr)
		}
	}()

	payloadPath := filepath.Join(directory, payloadFilename)

	checksum, err := s.download(ctx, desc.Artifact, payloadPath, emitter)
	if err != nil {
		return err
	}

	if len(desc.Artifact.Checksum) > 0 && !bytes.Equal(checksum, desc.Artifact.Checksum) {
		return errChecksumMismatch
	}

	if err = s.verify(ctx, desc.Artifact, payloadPath); err != nil {
		return err
	}

	logger.Debug(ctx, "Applying update")

	if err = s.installer.Install(ctx, desc, payloadPath); err != nil {
		return fmt.Errorf("install: %w", err)
	}

	return nil
}

// download writes the artifact to path, emitting one progress event per chunk,
// and returns the payload checksum.
func (s *Service) download(
	ctx context.Context,
	artifact update.Artifact,
	path string,
	emitter events.Emitter,
) ([]byte, error) {
	file, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("create payload file: %w", err)
	}

	var (
		hasher     = DefaultChecksumFunction.New()
		downloaded uint64
	)

	onChunk := func(chunkLength uint64, total *uint64) {
		downloaded += chunkLength

		s.emit(ctx, emitter, events.Event{
			Name: events.ProgressEvent,
			Payload: update.Progress{
				ChunkLength:   chunkLength,
				ContentLength: total,
				Downloaded:    downloaded,
			},
		})
	}

	err = s.feed.Download(ctx, artifact, io.MultiWriter(file, hasher), onChunk)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close payload file: %w", closeErr)
	}

	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	logger.InfoKV(ctx, "Downloaded update payload", "bytes", downloaded)

	return hasher.Sum(nil), nil
}

// verify checks the payload signature when trusted keys are configured.
func (s *Service) verify(ctx context.Context, artifact update.Artifact, path string) error {
	if s.verifier == nil || !s.verifier.Enabled() {
		if artifact.Signature != "" {
			logger.Debug(ctx, "No trusted keys configured, skipping signature check")
		}

		return nil
	}

	if artifact.Signature == "" {
		return errUnsignedPayload
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	if err = s.verifier.Verify(file, []byte(artifact.Signature)); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}

	logger.Debug(ctx, "Payload signature verified")

	return nil
}

// emit delivers an event. Delivery failures are logged and never fail the install.
func (s *Service) emit(ctx context.Context, emitter events.Emitter, event events.Event) {
	if err := emitter.Emit(ctx, event); err != nil {
		logger.WarnKV(ctx, "Could not emit event", "event", event.Name, "error", err)
	}
}
