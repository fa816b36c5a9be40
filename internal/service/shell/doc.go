// Package shell is the command table exposed to the webview front-end and to
// tooling. Both the HTTP bridge and the gRPC service dispatch through it.
package shell
