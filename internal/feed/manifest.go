package feed

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/oshokin/appshell/internal/domain/update"
)

// DefaultManifestMode is the file mode used when writing a manifest to disk.
const DefaultManifestMode os.FileMode = 0o644

var (
	errNoPlatform      = errors.New("release has no artifact for platform")
	errEmptyArtifact   = errors.New("artifact url is empty")
	errInvalidManifest = errors.New("invalid release manifest")
)

// Manifest is the release feed document served by every endpoint.
type Manifest struct {
	// Version is the released version.
	Version string `json:"version"`
	// Notes are the release notes.
	Notes string `json:"notes,omitempty"`
	// PubDate is the RFC 3339 publication date.
	PubDate string `json:"pub_date,omitempty"`
	// Platforms maps platform keys (e.g. linux-x86_64) to their artifacts.
	Platforms map[string]PlatformEntry `json:"platforms"`
}

// PlatformEntry describes the artifact published for one platform.
type PlatformEntry struct {
	// URL is the download location of the payload.
	URL string `json:"url"`
	// SHA512 is the base64-encoded SHA-512 checksum of the payload.
	SHA512 string `json:"sha512,omitempty"`
	// Signature is the armored SSH signature of the payload.
	Signature string `json:"signature,omitempty"`
}

// NewManifest returns an empty manifest for the given version.
func NewManifest(version string) *Manifest {
	return &Manifest{
		Version:   version,
		Platforms: make(map[string]PlatformEntry),
	}
}

// ParsedVersion returns the manifest version as a semantic version.
func (m *Manifest) ParsedVersion() (*goversion.Version, error) {
	v, err := goversion.NewVersion(m.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %w", errInvalidManifest, m.Version, err)
	}

	return v, nil
}

// Descriptor builds the update descriptor for the given platform target.
func (m *Manifest) Descriptor(target, currentVersion string) (*update.Descriptor, error) {
	entry, ok := m.Platforms[target]
	if !ok {
		return nil, fmt.Errorf("%w %s", errNoPlatform, target)
	}

	if entry.URL == "" {
		return nil, fmt.Errorf("%s: %w", target, errEmptyArtifact)
	}

	var checksum []byte

	if entry.SHA512 != "" {
		decoded, err := base64.StdEncoding.DecodeString(entry.SHA512)
		if err != nil {
			return nil, fmt.Errorf("%w: checksum for %s: %w", errInvalidManifest, target, err)
		}

		checksum = decoded
	}

	var date *time.Time

	if m.PubDate != "" {
		parsed, err := time.Parse(time.RFC3339, m.PubDate)
		if err != nil {
			return nil, fmt.Errorf("%w: pub_date %q: %w", errInvalidManifest, m.PubDate, err)
		}

		date = &parsed
	}

	return &update.Descriptor{
		Version:        m.Version,
		CurrentVersion: currentVersion,
		Notes:          m.Notes,
		Date:           date,
		Artifact: update.Artifact{
			Target:    target,
			URL:       entry.URL,
			Checksum:  checksum,
			Signature: entry.Signature,
		},
	}, nil
}

// LoadManifest reads a manifest from disk.
func LoadManifest(path string) (*Manifest, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err = json.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if m.Platforms == nil {
		m.Platforms = make(map[string]PlatformEntry)
	}

	return &m, nil
}

// SaveManifest writes a manifest to disk as indented JSON.
func SaveManifest(path string, m *Manifest) error {
	contents, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), append(contents, '\n'), DefaultManifestMode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}
