// Package common holds helpers shared by several services.
//
// It provides the gRPC command client with timeouts and the detection of the
// current system actor (hostname/username) sent along with every call.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
