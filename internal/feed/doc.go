// Package feed talks to the remote release feed.
//
// A feed endpoint serves a JSON Manifest listing the latest version, its notes,
// publication date and one artifact per platform. The Client compares that
// version with the running one, picks the artifact for the current platform and
// streams it to disk, reporting every received chunk.
package feed
