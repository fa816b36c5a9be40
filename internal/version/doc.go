// Package version exposes build metadata for the project.
//
// Variables Version, Commit, BuildTime and BuildMode are injected at build time
// via Go ldflags and default to sensible values for local builds.
// Helper functions Short and Full render the version string for CLI output and logs,
// and Environment reports the environment label shown by the UI.
package version
