// Package server runs the appshell backend process: the gRPC command service,
// the HTTP/WebSocket bridge for the webview and optional background update checks.
package server
