// Package events carries updater notifications from the backend to the UI.
//
// An Emitter receives events in the order they are produced. The Broker fans
// them out to every subscriber with bounded buffers and blocking delivery, so
// a slow subscriber slows the publisher down instead of losing progress.
package events
