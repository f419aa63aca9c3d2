// Package server constructs and starts the chat HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Server ties the HTTP surface, the connection hub and the room registry
// together. Create it with New.
type Server struct {
	cfg      Config
	registry *chat.Registry
	hub      *Hub
	upgrader websocket.Upgrader
	http     *http.Server
	started  time.Time
}

// NewRegistry builds the room registry described by cfg.
func NewRegistry(cfg Config) *chat.Registry {
	cfg = cfg.Sanitize()
	return chat.NewRegistry(
		chat.WithHistoryLimit(cfg.HistoryLimit),
		chat.WithRooms(cfg.Rooms),
	)
}

// New creates a server for cfg. A nil registry is replaced by NewRegistry(cfg).
func New(cfg Config, registry *chat.Registry) *Server {
	cfg = cfg.Sanitize()
	if registry == nil {
		registry = NewRegistry(cfg)
	}

	policy := newOriginPolicy(cfg.AllowedOrigins)
	s := &Server{
		cfg:      cfg,
		registry: registry,
		hub:      NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		started: time.Now(),
	}
	s.http = CreateServer(cfg.Port, s.Routes())
	return s
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config { return s.cfg }

// Registry returns the room registry.
func (s *Server) Registry() *chat.Registry { return s.registry }

// Hub returns the connection hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler, for use with httptest or a custom listener.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// StartHub starts the hub's event loop in a separate goroutine.
// This should be called before serving any request.
func (s *Server) StartHub() {
	go s.hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")
}

// Start starts the hub and blocks serving HTTP on the configured port. It
// returns nil after Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Port)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.StartHub()
	log.Printf("Server listening on %s", ln.Addr())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting HTTP requests, then closes every chat connection
// through the hub. Each connection runs its normal leave path.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")

	httpErr := s.http.Shutdown(ctx)
	if httpErr != nil {
		log.Printf("HTTP server shutdown error: %v", httpErr)
	}

	hubErr := s.hub.Shutdown(ctx)
	if err := errors.Join(httpErr, hubErr); err != nil {
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
