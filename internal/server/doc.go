// Package server implements the HTTP and WebSocket surface of the chat
// relay.
//
// The implementation is organized into specialized files: configuration and
// origin checks, the per-connection session state machine, the roster
// builder, route wiring, and server lifecycle. The protocol leaves live in
// the sibling packages wire, presence, and bus.
package server
