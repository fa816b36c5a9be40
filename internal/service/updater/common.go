package updater

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/appshell/internal/logger"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

var errHashUnavailable = errors.New("hash function unavailable")

const (
	// DefaultFileMode is applied to the replaced executable.
	DefaultFileMode os.FileMode = 0o755

	// DefaultChecksumFunction is used to calculate payload hashes.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512

	// OldFileSuffix is appended to the previous executable kept during replace.
	OldFileSuffix = ".old"

	// temporaryDirectoryPattern names the download directory of an install run.
	temporaryDirectoryPattern = "appshell-update-"

	// payloadFilename is the downloaded artifact name inside the run directory.
	payloadFilename = "payload"
)

// GetFileChecksum returns checksum bytes for a file using DefaultChecksumFunction.
func GetFileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err = hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// terminateProcesses kills every process whose executable name is listed,
// except the current process.
func terminateProcesses(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	wanted := sliceToSet(names)

	processList, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if _, found := wanted[process.Executable()]; !found {
			continue
		}

		var runningProcess *os.Process

		runningProcess, err = os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		logger.InfoKV(ctx, "Terminating process", "name", process.Executable(), "pid", process.Pid())

		if err = runningProcess.Kill(); err != nil {
			return fmt.Errorf("kill %s (%d): %w", process.Executable(), process.Pid(), err)
		}
	}

	return nil
}

// removeIfExists deletes path, ignoring a missing file.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

// sliceToSet converts a slice to a set for quick lookups.
func sliceToSet[T comparable](elements []T) map[T]struct{} {
	result := make(map[T]struct{}, len(elements))
	for _, value := range elements {
		result[value] = struct{}{}
	}

	return result
}
