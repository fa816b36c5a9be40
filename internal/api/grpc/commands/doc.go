// Package commands implements the gRPC transport for the application commands.
//
// The service is described by hand on top of protobuf well-known types
// (Empty, Struct, StringValue), so no generated stubs are needed. Updater
// events are streamed as Struct messages of the form {"event", "payload"}.
package commands
