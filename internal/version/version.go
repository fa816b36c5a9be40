package version

import "fmt"

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "1.0.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
	// BuildMode is "development" for local builds; release pipelines set it to "release" via ldflags.
	BuildMode = developmentEnvironment
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit, build time and build mode.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s, mode: %s", Version, Commit, BuildTime, BuildMode)
}
