// Package packager prepares a release for publication.
//
// It computes the SHA-512 checksum of an artifact, optionally signs it with an
// SSH key and merges the platform entry into the release feed document that
// the backend polls.
package packager
