// Package server wires HTTP handlers into a chi router for the chat service.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the router: liveness on / and /health, the chat upgrade on /ws.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.RootHandler)
	r.Get("/health", s.HealthHandler)
	r.HandleFunc("/ws", s.WebSocketHandler)
	return r
}
