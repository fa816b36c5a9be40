// Package checker polls the release feed in the background and announces
// available updates to the UI.
package checker
