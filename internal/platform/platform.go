package platform

import (
	"runtime"
	"strings"
)

// Platform identifies the operating system and architecture the backend runs on.
type Platform struct {
	// OS is the GOOS value.
	OS string
	// Arch is the GOARCH value.
	Arch string
}

// desktopSystems lists the operating systems that can replace their own executable.
//
//nolint:gochecknoglobals // Read-only lookup table.
var desktopSystems = map[string]struct{}{
	"linux":   {},
	"darwin":  {},
	"windows": {},
}

// feedArchitectures maps GOARCH to the architecture names used in release feeds.
//
//nolint:gochecknoglobals // Read-only lookup table.
var feedArchitectures = map[string]string{
	"amd64": "x86_64",
	"arm64": "aarch64",
	"386":   "i686",
	"arm":   "armv7",
}

// Detect returns the platform of the running process.
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

// SupportsUpdates reports whether self-update is available on this platform.
func (p Platform) SupportsUpdates() bool {
	_, ok := desktopSystems[strings.ToLower(p.OS)]

	return ok
}

// FeedArch returns the architecture name used in release feeds.
func (p Platform) FeedArch() string {
	if arch, ok := feedArchitectures[p.Arch]; ok {
		return arch
	}

	return p.Arch
}

// Target returns the release feed platform key, e.g. "linux-x86_64".
func (p Platform) Target() string {
	return strings.ToLower(p.OS) + "-" + p.FeedArch()
}
