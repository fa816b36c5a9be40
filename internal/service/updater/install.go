package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/appshell/internal/domain/update"
	"github.com/oshokin/appshell/internal/logger"
	"github.com/oshokin/appshell/internal/repository/journal"
)

var (
	errUnsupportedOS = errors.New("os not supported")
	errRollback      = errors.New("rollback after failed replace also failed")
)

// BinaryInstaller replaces an executable with a downloaded payload.
type BinaryInstaller struct {
	// targetPath is the executable to replace, empty for the running one.
	targetPath string
	// terminate lists process names killed before the replace.
	terminate []string
	// journal records completed installs, nil to skip.
	journal journal.Repository
	// restart starts the new executable after a successful replace.
	restart bool
	// start launches an executable, replaced in tests.
	start func(ctx context.Context, executable string) error
	// now returns the install time.
	now func() time.Time
}

// InstallerOption configures a BinaryInstaller.
type InstallerOption func(*BinaryInstaller)

// WithTargetPath replaces the given file instead of the running executable.
func WithTargetPath(path string) InstallerOption {
	return func(i *BinaryInstaller) {
		i.targetPath = path
	}
}

// WithTerminateProcesses kills processes with these executable names before replacing.
func WithTerminateProcesses(names ...string) InstallerOption {
	return func(i *BinaryInstaller) {
		i.terminate = append(i.terminate, names...)
	}
}

// WithJournal records every completed install.
func WithJournal(repo journal.Repository) InstallerOption {
	return func(i *BinaryInstaller) {
		i.journal = repo
	}
}

// WithRestart starts the replaced executable after a successful install.
func WithRestart(restart bool) InstallerOption {
	return func(i *BinaryInstaller) {
		i.restart = restart
	}
}

// NewBinaryInstaller creates an installer.
func NewBinaryInstaller(opts ...InstallerOption) *BinaryInstaller {
	i := &BinaryInstaller{
		start: startExecutable,
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// TargetPath returns the file the installer replaces.
func (i *BinaryInstaller) TargetPath() (string, error) {
	if i.targetPath != "" {
		return filepath.Abs(i.targetPath)
	}

	executable, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate running executable: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(executable)
	if err != nil {
		return "", fmt.Errorf("resolve running executable: %w", err)
	}

	return resolved, nil
}

// Install replaces the target with the payload, rolling back on failure.
func (i *BinaryInstaller) Install(ctx context.Context, desc *update.Descriptor, payloadPath string) error {
	target, err := i.TargetPath()
	if err != nil {
		return err
	}

	ctx = logger.WithKV(ctx, "target", target)

	if err = terminateProcesses(ctx, i.terminate); err != nil {
		return fmt.Errorf("terminate processes: %w", err)
	}

	if err = i.replace(ctx, desc, target, payloadPath); err != nil {
		return err
	}

	if i.journal != nil {
		record := &journal.Record{
			FromVersion:    desc.CurrentVersion,
			ToVersion:      desc.Version,
			Target:         desc.Artifact.Target,
			ExecutablePath: target,
			InstalledAt:    i.now().UTC(),
		}

		if err = i.journal.Save(ctx, record); err != nil {
			logger.WarnKV(ctx, "Could not write install journal", "error", err)
		}
	}

	if i.restart {
		logger.Info(ctx, "Starting updated executable")

		if err = i.start(context.WithoutCancel(ctx), target); err != nil {
			return fmt.Errorf("start updated executable: %w", err)
		}
	}

	return nil
}

// replace applies the payload with go-update and removes the previous file when possible.
func (i *BinaryInstaller) replace(ctx context.Context, desc *update.Descriptor, target, payloadPath string) error {
	payload, err := os.Open(filepath.Clean(payloadPath))
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}

	defer func() {
		_ = payload.Close()
	}()

	oldPath := target + OldFileSuffix

	options := goupdate.Options{
		TargetPath:  target,
		TargetMode:  DefaultFileMode,
		Checksum:    desc.Artifact.Checksum,
		Hash:        DefaultChecksumFunction,
		OldSavePath: oldPath,
	}

	if err = goupdate.Apply(payload, options); err != nil {
		if rollbackErr := goupdate.RollbackError(err); rollbackErr != nil {
			return fmt.Errorf("replace %s: %w: %w", target, errRollback, rollbackErr)
		}

		return fmt.Errorf("replace %s: %w", target, err)
	}

	// Windows keeps the running image locked; CleanupAfterUpgrade retries on next start.
	if err = removeIfExists(oldPath); err != nil {
		logger.DebugKV(ctx, "Previous executable left in place", "path", oldPath, "error", err)
	}

	return nil
}

// CleanupAfterUpgrade removes the previous executable left by an install,
// logs the last journaled upgrade and clears the journal. It is meant to run
// once at startup. The journal is kept when the previous executable could not
// be removed, so the next start retries.
func CleanupAfterUpgrade(ctx context.Context, repo journal.Repository, target string) {
	var record *journal.Record

	if repo != nil {
		loaded, err := repo.Load(ctx)

		switch {
		case errors.Is(err, journal.ErrNotFound):
		case err != nil:
			logger.WarnKV(ctx, "Could not read install journal", "error", err)
		default:
			record = loaded

			logger.InfoKV(ctx, "Running after upgrade",
				"from", record.FromVersion,
				"to", record.ToVersion,
				"installed_at", record.InstalledAt)

			if record.ExecutablePath != "" {
				target = record.ExecutablePath
			}
		}
	}

	if target != "" {
		oldPath := target + OldFileSuffix
		if err := removeIfExists(oldPath); err != nil {
			logger.WarnKV(ctx, "Could not remove previous executable", "path", oldPath, "error", err)
			return
		}
	}

	if record == nil {
		return
	}

	if err := repo.Clear(ctx); err != nil {
		logger.WarnKV(ctx, "Could not clear install journal", "error", err)
	}
}

// startExecutable launches the executable detached from the caller.
func startExecutable(ctx context.Context, executable string) error {
	switch runtime.GOOS {
	case "linux", "darwin":
		return exec.CommandContext(ctx, executable).Start()
	case "windows":
		return exec.CommandContext(ctx, "cmd.exe", "/C", "start", "", executable).Start()
	default:
		return fmt.Errorf("%s OS is not supported: %w", runtime.GOOS, errUnsupportedOS)
	}
}
