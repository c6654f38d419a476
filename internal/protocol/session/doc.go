// Package session drives a connected transport: the receive pipeline
// (chunk -> assembler -> registry -> handler), the wait between empty reads,
// and the serialized send path with periodic heartbeats.
//
// A Receiver owns its assembler. The registry it dispatches through may be
// shared and extended concurrently.
package session
