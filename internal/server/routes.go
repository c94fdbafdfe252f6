// Package server wires HTTP handlers into a chi router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes returns the application router bound to hub.
func SetupRoutes(hub *Hub) http.Handler {
	router := chi.NewRouter()
	router.Get("/", NewHealthHandler(hub))
	router.HandleFunc("/ws", NewWebSocketHandler(hub))
	router.Get("/test", TestPageHandler)
	return router
}
