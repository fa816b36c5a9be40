// Package journal persists the record of the last installed update.
//
// The FileRepository keeps the record as YAML next to the settings file so the
// backend can report and clean up after an upgrade on its next start.
package journal
