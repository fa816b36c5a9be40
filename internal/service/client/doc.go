// Package client implements appshell-ctl: it invokes the backend commands over
// gRPC and prints their results, including live install progress.
package client
