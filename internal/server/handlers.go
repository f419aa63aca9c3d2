// Package server exposes HTTP handlers, including WebSocket upgrades and
// health checks.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/protocol"
)

const maxNameLength = 64

// HealthStatus is the body served by the health endpoint.
type HealthStatus struct {
	Status      string          `json:"status"`
	Uptime      string          `json:"uptime"`
	Connections int             `json:"connections"`
	Users       int             `json:"users"`
	Rooms       []chat.RoomInfo `json:"rooms"`
}

// WebSocketHandler upgrades GET /ws?username=<name>&room=<room> to a chat
// connection. The username is required; the room defaults to the configured
// default room and is created on first use.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	username, err := validateName("username", query.Get("username"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.EqualFold(username, protocol.SystemUsername) {
		http.Error(w, "username is reserved", http.StatusBadRequest)
		return
	}

	room := s.cfg.DefaultRoom
	if raw := query.Get("room"); strings.TrimSpace(raw) != "" {
		if room, err = validateName("room", raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, s.hub, s.registry, s.cfg, username, room, r.RemoteAddr)
	log.Printf("Upgraded %s [request %s]", client, middleware.GetReqID(r.Context()))

	// The hub launches the pump goroutines.
	if err := s.hub.Register(client); err != nil {
		log.Printf("Rejecting %s: %v", client, err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(s.cfg.WriteWait))
		_ = conn.Close()
	}
}

func validateName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("%s query parameter is required", field)
	case utf8.RuneCountInString(value) > maxNameLength:
		return "", fmt.Errorf("%s must be at most %d characters", field, maxNameLength)
	case strings.ContainsFunc(value, func(r rune) bool { return r < 0x20 || r == 0x7f }):
		return "", fmt.Errorf("%s contains control characters", field)
	}
	return value, nil
}

// RootHandler is a plain text liveness probe.
func (s *Server) RootHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "roomchat server is running!")
}

// HealthHandler reports liveness plus room and connection counts as JSON.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	status := HealthStatus{
		Status:      "ok",
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Connections: s.hub.ClientCount(),
		Users:       s.registry.Presence().Len(),
		Rooms:       s.registry.Rooms(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("Error writing health response: %v", err)
	}
}
