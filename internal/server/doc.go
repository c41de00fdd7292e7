// Package server implements the core HTTP and WebSocket functionality for the
// RoomRelay service.
//
// The implementation is organized into specialized files for configuration,
// identity allocation, room membership, the broadcast hub, per-connection
// clients, the relay state machine, message persistence, routing, and HTTP
// handlers to keep the codebase maintainable and testable as the project
// grows.
package server
