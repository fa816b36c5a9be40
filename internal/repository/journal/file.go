package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/appshell/internal/config"
)

// Record describes one completed installation.
type Record struct {
	// FromVersion is the version that was running before the install.
	FromVersion string `yaml:"from_version"`
	// ToVersion is the version that was installed.
	ToVersion string `yaml:"to_version"`
	// Target is the platform key of the installed artifact.
	Target string `yaml:"target"`
	// ExecutablePath is the file that was replaced.
	ExecutablePath string `yaml:"executable_path"`
	// InstalledAt is when the install finished.
	InstalledAt time.Time `yaml:"installed_at"`
}

// Repository defines persistence operations for the install journal.
type Repository interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, record *Record) error
	Clear(ctx context.Context) error
}

// FileRepository persists the install journal to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the journal file.
	path string
	// mu protects concurrent access to the journal file.
	mu sync.Mutex
}

// ErrNotFound is returned when no install has been journaled yet.
var ErrNotFound = errors.New("install journal not found")

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the last install record from disk.
func (r *FileRepository) Load(_ context.Context) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read journal file: %w", err)
	}

	var record Record
	if err = yaml.Unmarshal(contents, &record); err != nil {
		return nil, fmt.Errorf("decode journal file: %w", err)
	}

	return &record, nil
}

// Save overwrites the journal with the given record.
func (r *FileRepository) Save(_ context.Context, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write journal file: %w", err)
	}

	return nil
}

// Clear removes the journal file. A missing file is not an error.
func (r *FileRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove journal file: %w", err)
	}

	return nil
}
