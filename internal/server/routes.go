// Package server wires HTTP handlers into a gorilla/mux router for the
// RoomRelay application via routing helpers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns a router with all application routes:
// health check, WebSocket endpoint, the persisted message listing, and the
// browser test page on the catch-all document route.
func SetupRoutes(relay *Relay) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/messages", MessagesHandler(relay.store)).Methods(http.MethodGet)
	r.HandleFunc("/ws", WebSocketHandler(relay))
	r.PathPrefix("/").HandlerFunc(TestPageHandler).Methods(http.MethodGet)
	return r
}
