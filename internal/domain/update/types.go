package update

import "time"

const (
	// UnknownDate is rendered when the feed does not report a release date.
	UnknownDate = "Unknown"
	// NoUpdatesNotes is the notes text of the no-update record.
	NoUpdatesNotes = "No updates available"
)

// Artifact is the platform-specific payload of a release: everything needed to
// fetch and apply it.
type Artifact struct {
	// Target is the platform key the artifact was selected for (e.g. linux-x86_64).
	Target string
	// URL is where the payload is downloaded from.
	URL string
	// Checksum is the expected SHA-512 of the payload, nil when the feed has none.
	Checksum []byte
	// Signature is the armored SSH signature of the payload, empty when unsigned.
	Signature string
}

// Descriptor describes a release newer than the running version.
type Descriptor struct {
	// Version is the release version.
	Version string
	// CurrentVersion is the running version the release was compared against.
	CurrentVersion string
	// Notes are the release notes, empty when absent.
	Notes string
	// Date is the publication date, nil when absent.
	Date *time.Time
	// Artifact is the payload to download for this platform.
	Artifact Artifact
}

// Info converts the descriptor to the record returned by a successful check.
func (d *Descriptor) Info() Info {
	date := UnknownDate
	if d.Date != nil {
		date = d.Date.Format(time.RFC3339)
	}

	return Info{
		Version:   d.Version,
		Notes:     d.Notes,
		Date:      date,
		Available: true,
	}
}

// Info is the update check result returned to the UI.
type Info struct {
	// Version is the available version, empty when there is no update.
	Version string `json:"version"`
	// Notes are the release notes or the no-update message.
	Notes string `json:"notes"`
	// Date is the release date, "Unknown" when not reported, empty without update.
	Date string `json:"date"`
	// Available reports whether a newer version exists.
	Available bool `json:"available"`
}

// NoUpdate returns the record reported when the running version is the latest.
func NoUpdate() Info {
	return Info{
		Version:   "",
		Notes:     NoUpdatesNotes,
		Date:      "",
		Available: false,
	}
}

// Progress is the payload of a download progress event.
type Progress struct {
	// ChunkLength is the size of the chunk just received.
	ChunkLength uint64 `json:"chunk_length"`
	// ContentLength is the total payload size, nil when the server did not report it.
	ContentLength *uint64 `json:"content_length,omitempty"`
	// Downloaded is the number of bytes received so far, including this chunk.
	Downloaded uint64 `json:"downloaded"`
}
