// Package bridge is the local HTTP/WebSocket surface of the webview front-end.
//
// Commands are invoked with POST /invoke/{command} and a JSON argument body.
// Updater events are pushed over the WebSocket at GET /events, one JSON text
// frame per event.
package bridge
