// Package server wires HTTP handlers into a ServeMux for the chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes. api serves the REST history endpoints under /api/ and may be nil.
func SetupRoutes(hub *Hub, api http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", hub.WebSocketHandler)
	mux.HandleFunc("/test", TestPageHandler)
	mux.HandleFunc("/presence", hub.PresenceHandler)
	mux.Handle("/metrics", promhttp.Handler())
	if api != nil {
		mux.Handle("/api/", api)
	}
	return mux
}
