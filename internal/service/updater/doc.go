// Package updater checks the release feed and installs updates.
//
// Service owns the pending update slot: CheckForUpdates fills it and
// DownloadAndInstallUpdate consumes it, streaming the payload to a temporary
// directory while emitting progress events. BinaryInstaller replaces the target
// executable atomically with rollback and journals the install.
package updater
