// Package update contains the core domain types of the update flow.
//
// It defines the Descriptor of a discovered release, the Info record returned to
// the UI, the Progress payload of download events and the Slot that holds at most
// one pending descriptor between a check and an install.
package update
