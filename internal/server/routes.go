// Package server wires the HTTP routes for the chat relay.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes returns the router serving the chat page, the WebSocket endpoint,
// and the static assets.
func (rm *Room) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", IndexHandler)
	r.Get("/websocket", rm.WebSocketHandler)
	r.Handle("/assets/*", AssetsHandler())

	return r
}
